package external

import (
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
)

// StateCache issues single-use OAuth state values that expire after ttl.
type StateCache struct {
	cache *ttlcache.Cache[string, struct{}]
}

// NewStateCache starts the expiry loop; call Stop when done.
func NewStateCache(ttl time.Duration) *StateCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	cache := ttlcache.New(
		ttlcache.WithTTL[string, struct{}](ttl),
		ttlcache.WithDisableTouchOnHit[string, struct{}](),
	)
	go cache.Start()
	return &StateCache{cache: cache}
}

// Issue returns a fresh state value.
func (s *StateCache) Issue() string {
	state := uuid.NewString()
	s.cache.Set(state, struct{}{}, ttlcache.DefaultTTL)
	return state
}

// Consume reports whether state was issued and not yet used or expired.
// A state can be consumed once.
func (s *StateCache) Consume(state string) bool {
	if state == "" {
		return false
	}
	item, ok := s.cache.GetAndDelete(state)
	return ok && item != nil && !item.IsExpired()
}

// Len is the number of outstanding states.
func (s *StateCache) Len() int {
	return s.cache.Len()
}

// Stop ends the expiry loop.
func (s *StateCache) Stop() {
	s.cache.Stop()
}
