package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeCompletionChecker struct {
	completed bool
	err       error
}

func (f *fakeCompletionChecker) HasCompleted(_ context.Context, _ uuid.UUID, _ int) (bool, error) {
	return f.completed, f.err
}

func TestNewTokenServiceRequiresSecret(t *testing.T) {
	_, err := NewTokenService("", time.Minute, &fakeCompletionChecker{})
	require.Error(t, err)
}

func TestTokenRoundTrip(t *testing.T) {
	svc, err := NewTokenService("test-secret", 30*time.Minute, &fakeCompletionChecker{})
	require.NoError(t, err)

	examID := uuid.New()
	token, err := svc.Issue(42, examID)
	require.NoError(t, err)

	verdict, err := svc.Validate(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, 42, verdict.StudentID)
	require.Equal(t, examID, verdict.ExamID)
	require.False(t, verdict.IsAlreadySubmitted)
}

func TestTokenRepeatedValidationIsStable(t *testing.T) {
	svc, err := NewTokenService("test-secret", 30*time.Minute, &fakeCompletionChecker{})
	require.NoError(t, err)

	examID := uuid.New()
	token, err := svc.Issue(7, examID)
	require.NoError(t, err)

	// Validation must not consume the token: every call within the expiry
	// window yields the same identity.
	for i := 0; i < 3; i++ {
		verdict, err := svc.Validate(context.Background(), token)
		require.NoError(t, err)
		require.Equal(t, 7, verdict.StudentID)
		require.Equal(t, examID, verdict.ExamID)
	}
}

func TestTokenExpired(t *testing.T) {
	svc, err := NewTokenService("test-secret", -time.Minute, &fakeCompletionChecker{})
	require.NoError(t, err)

	token, err := svc.Issue(1, uuid.New())
	require.NoError(t, err)

	_, err = svc.Validate(context.Background(), token)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenWrongSignature(t *testing.T) {
	issuer, err := NewTokenService("secret-a", 30*time.Minute, &fakeCompletionChecker{})
	require.NoError(t, err)
	verifier, err := NewTokenService("secret-b", 30*time.Minute, &fakeCompletionChecker{})
	require.NoError(t, err)

	token, err := issuer.Issue(1, uuid.New())
	require.NoError(t, err)

	_, err = verifier.Validate(context.Background(), token)
	require.ErrorIs(t, err, ErrTokenSignatureInvalid)
}

func TestTokenMalformed(t *testing.T) {
	svc, err := NewTokenService("test-secret", 30*time.Minute, &fakeCompletionChecker{})
	require.NoError(t, err)

	for _, tokenStr := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := svc.Validate(context.Background(), tokenStr)
		require.ErrorIs(t, err, ErrTokenMalformed, "token %q", tokenStr)
	}
}

func TestTokenAlreadySubmitted(t *testing.T) {
	svc, err := NewTokenService("test-secret", 30*time.Minute, &fakeCompletionChecker{completed: true})
	require.NoError(t, err)

	token, err := svc.Issue(9, uuid.New())
	require.NoError(t, err)

	verdict, err := svc.Validate(context.Background(), token)
	require.NoError(t, err)
	require.True(t, verdict.IsAlreadySubmitted)
}
