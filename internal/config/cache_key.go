package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SessionStageKey returns the cache key holding the lifecycle stage of a
// student's exam session.
func (r *CacheKeyStruct) SessionStageKey(examID string, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%s:stage", studentID, examID)
}

// SessionStartKey returns the cache key for a session's actual start time.
func (r *CacheKeyStruct) SessionStartKey(examID string, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%s:session_start", studentID, examID)
}

// SessionAnswersKey returns the cache key for a student's answers hash.
func (r *CacheKeyStruct) SessionAnswersKey(examID string, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%s:answers", studentID, examID)
}

// SessionReviewKey returns the cache key for a student's mark-for-review set.
func (r *CacheKeyStruct) SessionReviewKey(examID string, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%s:review", studentID, examID)
}

// SessionIndexKey returns the cache key for a student's current question index.
func (r *CacheKeyStruct) SessionIndexKey(examID string, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%s:question_index", studentID, examID)
}

// SessionChecksKey returns the cache key for a session's security-check verdict.
func (r *CacheKeyStruct) SessionChecksKey(examID string, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%s:security_checks", studentID, examID)
}

// SubmitLockKey returns the cache key for a session's one-shot submit lock.
func (r *CacheKeyStruct) SubmitLockKey(examID string, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%s:submit_lock", studentID, examID)
}

// ExamPayloadKey returns the cache key for an exam's student-facing payload.
func (r *CacheKeyStruct) ExamPayloadKey(examID string) string {
	return fmt.Sprintf("exam:%s:payload", examID)
}

// ExamDurationKey returns the cache key for an exam's duration in minutes.
func (r *CacheKeyStruct) ExamDurationKey(examID string) string {
	return fmt.Sprintf("exam:%s:duration", examID)
}

// SessionDeadlinesKey returns the sorted-set key indexing every running
// session by its submission deadline (unix seconds as score).
func (r *CacheKeyStruct) SessionDeadlinesKey() string {
	return "session_deadlines"
}

// DeadlineMember encodes an (exam, student) pair as a deadline ZSET member.
func (r *CacheKeyStruct) DeadlineMember(examID string, studentID int) string {
	return fmt.Sprintf("%s:%d", examID, studentID)
}

var CacheKey = NewCacheKeyStruct()
