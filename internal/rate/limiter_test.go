package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiter(t *testing.T, cfg Config) (*miniredis.Miniredis, *Limiter) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	return mr, New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), cfg)
}

func TestLoginLimiterBlocksAfterBudget(t *testing.T) {
	mr, l := newLimiter(t, Config{MaxLoginAttempts: 3, LoginCooldownDuration: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.CheckLogin(ctx, "ana@example.com", ""); err != nil {
			t.Fatalf("attempt %d blocked early: %v", i, err)
		}
		if err := l.RecordLoginFailure(ctx, "ana@example.com", ""); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := l.CheckLogin(ctx, "ana@example.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.CheckLogin(ctx, "bob@example.com", ""); err != nil {
		t.Fatalf("other email must not be limited: %v", err)
	}

	mr.FastForward(61 * time.Second)
	if err := l.CheckLogin(ctx, "ana@example.com", ""); err != nil {
		t.Fatalf("window should have reset: %v", err)
	}
}

func TestLoginLimiterReset(t *testing.T) {
	_, l := newLimiter(t, Config{MaxLoginAttempts: 2})
	ctx := context.Background()

	_ = l.RecordLoginFailure(ctx, "ana@example.com", "")
	_ = l.RecordLoginFailure(ctx, "ana@example.com", "")
	if err := l.ResetLogin(ctx, "ana@example.com"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	n, err := l.LoginAttempts(ctx, "ana@example.com")
	if err != nil || n != 0 {
		t.Fatalf("attempts after reset = %d, %v", n, err)
	}
}

func TestLoginLimiterIPThrottle(t *testing.T) {
	_, l := newLimiter(t, Config{EnableIPThrottle: true, MaxLoginAttempts: 2})
	ctx := context.Background()

	_ = l.RecordLoginFailure(ctx, "a@example.com", "10.0.0.1")
	_ = l.RecordLoginFailure(ctx, "b@example.com", "10.0.0.1")
	if err := l.CheckLogin(ctx, "c@example.com", "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected IP to be limited, got %v", err)
	}
	if err := l.CheckLogin(ctx, "c@example.com", "10.0.0.2"); err != nil {
		t.Fatalf("other IP must pass: %v", err)
	}
}

func TestTOTPLimiter(t *testing.T) {
	_, l := newLimiter(t, Config{MaxTOTPAttempts: 2})
	ctx := context.Background()

	_ = l.RecordTOTPFailure(ctx, "acct-1")
	if err := l.CheckTOTP(ctx, "acct-1"); err != nil {
		t.Fatalf("unexpected limit: %v", err)
	}
	_ = l.RecordTOTPFailure(ctx, "acct-1")
	if err := l.CheckTOTP(ctx, "acct-1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.ResetTOTP(ctx, "acct-1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := l.CheckTOTP(ctx, "acct-1"); err != nil {
		t.Fatalf("expected reset to clear limit: %v", err)
	}
}

func TestLimiterRedisDown(t *testing.T) {
	mr, l := newLimiter(t, Config{})
	mr.Close()
	if err := l.CheckLogin(context.Background(), "ana@example.com", ""); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
