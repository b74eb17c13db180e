package service

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-proctor/internal/config"
)

// newTestRedis connects to REDIS_TEST_URL. Tests that need it are skipped
// when it is unset or unreachable.
func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse REDIS_TEST_URL: %v", err)
	}
	rdb := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		t.Skipf("redis unreachable: %v", err)
	}
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestSessionRegistryLease(t *testing.T) {
	rdb := newTestRedis(t)
	reg := NewSessionRegistry(rdb)
	ctx := context.Background()

	examID, studentID := uuid.New(), uuid.New()
	first, second := uuid.New(), uuid.New()
	key := config.CacheKey.StudentActiveSessionKey(examID.String(), studentID.String())
	t.Cleanup(func() { rdb.Del(context.Background(), key) })

	if err := reg.Claim(ctx, examID, studentID, first); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if err := reg.Claim(ctx, examID, studentID, second); !errors.Is(err, ErrSessionAlreadyActive) {
		t.Fatalf("second claim err = %v, want ErrSessionAlreadyActive", err)
	}

	steps := []struct {
		name      string
		sessionID uuid.UUID
		want      bool
	}{
		{"other session cannot refresh", second, false},
		{"owner refreshes", first, true},
	}
	for _, st := range steps {
		ok, err := reg.Refresh(ctx, examID, studentID, st.sessionID)
		if err != nil {
			t.Fatalf("%s: %v", st.name, err)
		}
		if ok != st.want {
			t.Errorf("%s: refreshed = %v, want %v", st.name, ok, st.want)
		}
	}
	if ttl := rdb.PTTL(ctx, key).Val(); ttl <= 0 || ttl > SessionLease {
		t.Errorf("ttl after refresh = %v", ttl)
	}

	// Releasing someone else's claim leaves it in place.
	if err := reg.Release(ctx, examID, studentID, second); err != nil {
		t.Fatalf("foreign release: %v", err)
	}
	if got := rdb.Get(ctx, key).Val(); got != first.String() {
		t.Fatalf("owner after foreign release = %q, want %s", got, first)
	}

	if err := reg.Release(ctx, examID, studentID, first); err != nil {
		t.Fatalf("release: %v", err)
	}
	if n := rdb.Exists(ctx, key).Val(); n != 0 {
		t.Fatal("claim still present after release")
	}
	if ok, _ := reg.Refresh(ctx, examID, studentID, first); ok {
		t.Error("refresh succeeded after release")
	}
	if err := reg.Claim(ctx, examID, studentID, second); err != nil {
		t.Errorf("claim after release: %v", err)
	}
}
