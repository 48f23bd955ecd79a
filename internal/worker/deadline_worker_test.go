package worker

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestParseDeadlineMember(t *testing.T) {
	examID := uuid.New()

	gotExam, gotStudent, ok := parseDeadlineMember(examID.String() + ":42")
	require.True(t, ok)
	require.Equal(t, examID, gotExam)
	require.Equal(t, 42, gotStudent)

	for _, member := range []string{"", "no-separator", "not-a-uuid:42", examID.String() + ":abc"} {
		_, _, ok := parseDeadlineMember(member)
		require.False(t, ok, "member %q", member)
	}
}
