package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// TestPaperKey returns the cache key for a test's student-facing paper payload.
func (r *CacheKeyStruct) TestPaperKey(testID string) string {
	return fmt.Sprintf("test:%s:paper", testID)
}

// StudentActiveAttemptKey returns the cache key mapping a student's live
// attempt on a test to its attempt ID. Used for idempotent re-entry.
func (r *CacheKeyStruct) StudentActiveAttemptKey(testID string, studentID int) string {
	return fmt.Sprintf("student:%d:test:%s:active_attempt", studentID, testID)
}

var CacheKey = NewCacheKeyStruct()
