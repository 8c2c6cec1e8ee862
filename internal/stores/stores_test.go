package stores

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func savePending(t *testing.T, s *PendingLoginStore, id, account string) {
	t.Helper()
	err := s.Save(context.Background(), id, &PendingLogin{
		AccountID: account,
		ExpiresAt: time.Now().Add(5 * time.Minute).Unix(),
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
}

func TestPendingSaveGetConsume(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewPendingLoginStore(rdb, "")
	ctx := context.Background()

	savePending(t, s, "jti-1", "acct-1")
	if ttl := mr.TTL("apl:jti-1"); ttl <= 0 || ttl > 5*time.Minute {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	rec, err := s.Get(ctx, "jti-1", "acct-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.AccountID != "acct-1" || rec.Attempts != 0 {
		t.Fatalf("unexpected record %+v", rec)
	}

	if _, err := s.Get(ctx, "jti-1", "acct-2"); !errors.Is(err, ErrPendingAccount) {
		t.Fatalf("expected ErrPendingAccount, got %v", err)
	}

	if err := s.Consume(ctx, "jti-1"); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if err := s.Consume(ctx, "jti-1"); !errors.Is(err, ErrPendingNotFound) {
		t.Fatalf("expected replay to fail, got %v", err)
	}
	if _, err := s.Get(ctx, "jti-1", "acct-1"); !errors.Is(err, ErrPendingNotFound) {
		t.Fatalf("expected ErrPendingNotFound, got %v", err)
	}
}

func TestPendingConsumeSingleWinner(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewPendingLoginStore(rdb, "")
	savePending(t, s, "jti-race", "acct-1")

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Consume(context.Background(), "jti-race") == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins.Load())
	}
}

func TestPendingRecordFailure(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewPendingLoginStore(rdb, "")
	ctx := context.Background()
	savePending(t, s, "jti-2", "acct-1")

	for i := 1; i < 3; i++ {
		exceeded, err := s.RecordFailure(ctx, "jti-2", 3)
		if err != nil || exceeded {
			t.Fatalf("attempt %d: exceeded=%v err=%v", i, exceeded, err)
		}
		rec, err := s.Get(ctx, "jti-2", "acct-1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if int(rec.Attempts) != i {
			t.Fatalf("attempts = %d, want %d", rec.Attempts, i)
		}
	}

	exceeded, err := s.RecordFailure(ctx, "jti-2", 3)
	if err != nil || !exceeded {
		t.Fatalf("expected exceeded, got %v %v", exceeded, err)
	}
	if _, err := s.Get(ctx, "jti-2", "acct-1"); !errors.Is(err, ErrPendingNotFound) {
		t.Fatalf("expected record gone, got %v", err)
	}
	if _, err := s.RecordFailure(ctx, "jti-2", 3); !errors.Is(err, ErrPendingNotFound) {
		t.Fatalf("expected ErrPendingNotFound, got %v", err)
	}
}

func TestPendingExpiresWithTTL(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewPendingLoginStore(rdb, "")
	savePending(t, s, "jti-3", "acct-1")

	mr.FastForward(6 * time.Minute)
	if _, err := s.Get(context.Background(), "jti-3", "acct-1"); !errors.Is(err, ErrPendingNotFound) {
		t.Fatalf("expected ErrPendingNotFound after TTL, got %v", err)
	}
}

func TestPendingSaveRejectsPastExpiry(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewPendingLoginStore(rdb, "")
	err := s.Save(context.Background(), "jti-4", &PendingLogin{AccountID: "a", ExpiresAt: time.Now().Add(-time.Second).Unix()})
	if !errors.Is(err, ErrPendingExpired) {
		t.Fatalf("expected ErrPendingExpired, got %v", err)
	}
}

func TestPendingBackendDown(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewPendingLoginStore(rdb, "")
	mr.Close()

	if _, err := s.Get(context.Background(), "x", "a"); !errors.Is(err, ErrPendingBackend) {
		t.Fatalf("expected ErrPendingBackend, got %v", err)
	}
}

func TestPendingCodecRejectsGarbage(t *testing.T) {
	if _, err := decodePendingLogin([]byte{9, 0, 0}); err == nil {
		t.Fatal("expected unknown version to fail")
	}
	good, err := encodePendingLogin(&PendingLogin{AccountID: "acct", ExpiresAt: 42, Attempts: 2})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := decodePendingLogin(append(good, 0)); err == nil {
		t.Fatal("expected trailing bytes to fail")
	}
	if _, err := decodePendingLogin(good[:len(good)-1]); err == nil {
		t.Fatal("expected truncated record to fail")
	}
}

func TestReplayLedger(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := NewTOTPReplayLedger(rdb, "")
	ctx := context.Background()

	ok, err := l.Claim(ctx, "acct-1", 100, 90*time.Second)
	if err != nil || !ok {
		t.Fatalf("first claim: %v %v", ok, err)
	}
	ok, err = l.Claim(ctx, "acct-1", 100, 90*time.Second)
	if err != nil || ok {
		t.Fatalf("second claim must fail: %v %v", ok, err)
	}
	ok, err = l.Claim(ctx, "acct-2", 100, 90*time.Second)
	if err != nil || !ok {
		t.Fatalf("other account claim: %v %v", ok, err)
	}

	mr.FastForward(91 * time.Second)
	ok, err = l.Claim(ctx, "acct-1", 100, 90*time.Second)
	if err != nil || !ok {
		t.Fatalf("claim after ttl: %v %v", ok, err)
	}
}
