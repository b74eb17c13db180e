package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ExamPayloadKey returns the cache key for an exam's payload
func (r *CacheKeyStruct) ExamPayloadKey(examID string) string {
	return fmt.Sprintf("exam:%s:payload", examID)
}

// ExamMonitorChannel returns the Redis PubSub channel name for an exam monitor
func (r *CacheKeyStruct) ExamMonitorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

// StudentActiveSessionKey marks the session a student currently has open
// for an exam, so a second tab can be refused.
func (r *CacheKeyStruct) StudentActiveSessionKey(examID, studentID string) string {
	return fmt.Sprintf("student:%s:exam:%s:session", studentID, examID)
}

var CacheKey = NewCacheKeyStruct()
