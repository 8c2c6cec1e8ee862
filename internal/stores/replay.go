package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrReplayBackend = errors.New("totp replay ledger unavailable")

// TOTPReplayLedger remembers which time-step counters have already been
// accepted for an account, so a code seen once cannot be replayed inside its
// validity window.
type TOTPReplayLedger struct {
	redis  redis.UniversalClient
	prefix string
}

func NewTOTPReplayLedger(redisClient redis.UniversalClient, prefix string) *TOTPReplayLedger {
	if prefix == "" {
		prefix = "atr"
	}
	return &TOTPReplayLedger{redis: redisClient, prefix: prefix}
}

func (l *TOTPReplayLedger) key(accountID string, counter int64) string {
	return l.prefix + ":" + accountID + ":" + strconv.FormatInt(counter, 10)
}

// Claim marks counter as used for accountID. It returns false when the
// counter was already claimed. ttl should cover the whole verification window.
func (l *TOTPReplayLedger) Claim(ctx context.Context, accountID string, counter int64, ttl time.Duration) (bool, error) {
	ok, err := l.redis.SetNX(ctx, l.key(accountID, counter), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrReplayBackend, err)
	}
	return ok, nil
}
