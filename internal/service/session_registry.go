package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-proctor/internal/config"
)

// ErrSessionAlreadyActive is returned when the student already has a session
// open for the exam on another connection.
var ErrSessionAlreadyActive = errors.New("another session is already active for this exam")

// SessionLease is how long a claim survives without a refresh.
const SessionLease = 45 * time.Second

// releaseScript deletes the key only if it still holds our session id.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends the key only if it still holds our session id.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// SessionRegistry enforces one open session per student per exam across
// server instances.
type SessionRegistry struct {
	rdb *redis.Client
}

// NewSessionRegistry creates a new SessionRegistry.
func NewSessionRegistry(rdb *redis.Client) *SessionRegistry {
	return &SessionRegistry{rdb: rdb}
}

// Claim registers sessionID as the student's active session.
func (r *SessionRegistry) Claim(ctx context.Context, examID, studentID, sessionID uuid.UUID) error {
	key := config.CacheKey.StudentActiveSessionKey(examID.String(), studentID.String())
	ok, err := r.rdb.SetNX(ctx, key, sessionID.String(), SessionLease).Result()
	if err != nil {
		return fmt.Errorf("claim session: %w", err)
	}
	if !ok {
		return ErrSessionAlreadyActive
	}
	return nil
}

// Refresh extends the lease. It reports false when the claim was lost.
func (r *SessionRegistry) Refresh(ctx context.Context, examID, studentID, sessionID uuid.UUID) (bool, error) {
	key := config.CacheKey.StudentActiveSessionKey(examID.String(), studentID.String())
	n, err := refreshScript.Run(ctx, r.rdb, []string{key}, sessionID.String(), SessionLease.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("refresh session: %w", err)
	}
	return n == 1, nil
}

// Release drops the claim if it is still ours.
func (r *SessionRegistry) Release(ctx context.Context, examID, studentID, sessionID uuid.UUID) error {
	key := config.CacheKey.StudentActiveSessionKey(examID.String(), studentID.String())
	return releaseScript.Run(ctx, r.rdb, []string{key}, sessionID.String()).Err()
}
