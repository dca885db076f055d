// Package memory provides an in-process coupon catalog and usage ledger.
package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/xenking/coupon-selector/internal/domain/coupon"
)

var (
	_ coupon.Catalog = (*Store)(nil)
	_ coupon.Ledger  = (*Store)(nil)
)

type usageKey struct {
	code   string
	userID string
}

// Store keeps coupons and their usage counters in memory.
//
// Catalog mutations take mu exclusively only for the uniqueness check and
// append; snapshots copy under the read lock. Usage counters are independent
// of mu: each (coupon, user) pair has its own counter updated by
// compare-and-swap, so redemptions of unrelated pairs never contend.
type Store struct {
	mu      sync.RWMutex
	coupons []coupon.Coupon
	byCode  map[string]int

	usage sync.Map // usageKey -> *atomic.Int64
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{byCode: make(map[string]int)}
}

// Insert stores a copy of c, rejecting duplicate codes.
func (s *Store) Insert(_ context.Context, c coupon.Coupon) error {
	c = c.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byCode[c.Code]; ok {
		return &coupon.DuplicateCodeError{Code: c.Code}
	}
	s.byCode[c.Code] = len(s.coupons)
	s.coupons = append(s.coupons, c)
	return nil
}

// Snapshot returns copies of all coupons in insertion order.
func (s *Store) Snapshot(_ context.Context) ([]coupon.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]coupon.Coupon, len(s.coupons))
	for i, c := range s.coupons {
		out[i] = c.Clone()
	}
	return out, nil
}

// Count returns the recorded usage of code by userID.
func (s *Store) Count(_ context.Context, code, userID string) (int, error) {
	v, ok := s.usage.Load(usageKey{code: code, userID: userID})
	if !ok {
		return 0, nil
	}
	return int(v.(*atomic.Int64).Load()), nil
}

// TryConsume increments the (code, userID) counter unless limit is reached.
func (s *Store) TryConsume(_ context.Context, code, userID string, limit coupon.Opt[int]) (bool, error) {
	v, _ := s.usage.LoadOrStore(usageKey{code: code, userID: userID}, new(atomic.Int64))
	counter := v.(*atomic.Int64)

	for {
		used := counter.Load()
		if n, ok := limit.Get(); ok && used >= int64(n) {
			return false, nil
		}
		if counter.CompareAndSwap(used, used+1) {
			return true, nil
		}
	}
}

// usageOf returns the usage ledger of code: user ID to consumption count.
func (s *Store) usageOf(code string) map[string]int {
	out := make(map[string]int)
	s.usage.Range(func(k, v any) bool {
		key := k.(usageKey)
		if key.code == code {
			if n := v.(*atomic.Int64).Load(); n > 0 {
				out[key.userID] = int(n)
			}
		}
		return true
	})
	return out
}
