package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Typed entry-credential failures. All are terminal for the session — the
// shell shows the message and quits, there is no retry path.
var (
	ErrTokenExpired          = errors.New("entry token expired")
	ErrTokenMalformed        = errors.New("entry token malformed")
	ErrTokenSignatureInvalid = errors.New("entry token signature invalid")
)

const entryTokenType = "exam_entry"

// EntryClaims is the signed payload of an exam entry credential: one
// student, one exam, one launch window.
type EntryClaims struct {
	jwt.RegisteredClaims
	TokenType string    `json:"token_type"`
	StudentID int       `json:"student_id"`
	ExamID    uuid.UUID `json:"exam_id"`
}

// EntryVerdict is the result of validating an entry credential.
type EntryVerdict struct {
	StudentID          int
	ExamID             uuid.UUID
	IsAlreadySubmitted bool
}

// completionChecker answers whether a COMPLETED submission already exists
// for a (exam, student) pair. Satisfied by repository.SubmissionRepository.
type completionChecker interface {
	HasCompleted(ctx context.Context, examID uuid.UUID, studentID int) (bool, error)
}

// TokenService signs and verifies exam entry credentials. The signing secret
// is injected at construction; New fails fast on an empty secret instead of
// erroring per-request.
type TokenService struct {
	secret      []byte
	expiry      time.Duration
	submissions completionChecker
}

// NewTokenService creates a TokenService or fails on a missing secret.
func NewTokenService(secret string, expiry time.Duration, submissions completionChecker) (*TokenService, error) {
	if secret == "" {
		return nil, errors.New("entry token secret must not be empty")
	}
	return &TokenService{
		secret:      []byte(secret),
		expiry:      expiry,
		submissions: submissions,
	}, nil
}

// Issue signs a fresh entry credential binding a student to an exam.
// Issuance normally happens in the exam-scheduling surface; it lives here so
// cmd/mint-token and the e2e suite share one implementation.
func (s *TokenService) Issue(studentID int, examID uuid.UUID) (string, error) {
	now := time.Now()
	claims := EntryClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   strconv.Itoa(studentID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
		TokenType: entryTokenType,
		StudentID: studentID,
		ExamID:    examID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate verifies signature and expiry and reports prior-submission
// status. It must run before any exam data is fetched, so invalid callers
// never see exam content.
func (s *TokenService) Validate(ctx context.Context, tokenStr string) (*EntryVerdict, error) {
	claims, err := s.Parse(tokenStr)
	if err != nil {
		return nil, err
	}

	alreadySubmitted, err := s.submissions.HasCompleted(ctx, claims.ExamID, claims.StudentID)
	if err != nil {
		return nil, fmt.Errorf("check prior submission: %w", err)
	}

	return &EntryVerdict{
		StudentID:          claims.StudentID,
		ExamID:             claims.ExamID,
		IsAlreadySubmitted: alreadySubmitted,
	}, nil
}

// Parse verifies signature and expiry only. Repeated calls on a valid token
// always yield the same (student, exam) pair until expiry.
func (s *TokenService) Parse(tokenStr string) (*EntryClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &EntryClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrTokenSignatureInvalid
		default:
			return nil, ErrTokenMalformed
		}
	}

	claims, ok := token.Claims.(*EntryClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenMalformed
	}
	if claims.TokenType != entryTokenType || claims.StudentID == 0 || claims.ExamID == uuid.Nil {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}
