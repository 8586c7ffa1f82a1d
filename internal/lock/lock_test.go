package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLock(t *testing.T) (*miniredis.Miniredis, *ResumeLock) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})

	return mr, NewResumeLock(rdb, Config{TTL: time.Minute})
}

func TestResumeLock_AcquireRelease(t *testing.T) {
	_, l := newTestLock(t)
	ctx := context.Background()

	token, err := l.Acquire(ctx, "SIGN-1")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if _, err := l.Acquire(ctx, "SIGN-1"); !errors.Is(err, ErrHeld) {
		t.Fatalf("second Acquire() error = %v, want ErrHeld", err)
	}

	if _, err := l.Acquire(ctx, "SIGN-2"); err != nil {
		t.Errorf("other sign order must not be blocked: %v", err)
	}

	if err := l.Release(ctx, "SIGN-1", token); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	if _, err := l.Acquire(ctx, "SIGN-1"); err != nil {
		t.Errorf("Acquire() after release error = %v", err)
	}
}

func TestResumeLock_ReleaseWrongToken(t *testing.T) {
	mr, l := newTestLock(t)
	ctx := context.Background()

	if _, err := l.Acquire(ctx, "SIGN-1"); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if err := l.Release(ctx, "SIGN-1", "someone-else"); !errors.Is(err, ErrNotOwner) {
		t.Errorf("Release() error = %v, want ErrNotOwner", err)
	}
	if !mr.Exists(defaultPrefix + "SIGN-1") {
		t.Error("foreign release must not delete the key")
	}
}

func TestResumeLock_Expires(t *testing.T) {
	mr, l := newTestLock(t)
	ctx := context.Background()

	token, err := l.Acquire(ctx, "SIGN-1")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := l.Acquire(ctx, "SIGN-1"); err != nil {
		t.Fatalf("Acquire() after expiry error = %v", err)
	}
	if err := l.Release(ctx, "SIGN-1", token); !errors.Is(err, ErrNotOwner) {
		t.Errorf("stale token Release() error = %v, want ErrNotOwner", err)
	}
}

func TestResumeLock_RedisDown(t *testing.T) {
	mr, l := newTestLock(t)
	mr.Close()

	_, err := l.Acquire(context.Background(), "SIGN-1")
	if err == nil || errors.Is(err, ErrHeld) {
		t.Errorf("expected connection error, got %v", err)
	}
}
