package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/coupon-selector/internal/domain/coupon"
)

func testCoupon(code string) coupon.Coupon {
	now := time.Now()
	return coupon.Coupon{
		Code:          code,
		DiscountType:  coupon.DiscountFlat,
		DiscountValue: decimal.NewFromInt(10),
		StartDate:     now.Add(-time.Hour),
		EndDate:       now.Add(time.Hour),
		Eligibility: coupon.EligibilityRules{
			AllowedCountries: []string{"IN"},
		},
	}
}

func TestStore_InsertAndSnapshot(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.Insert(ctx, testCoupon("B")))
	require.NoError(t, s.Insert(ctx, testCoupon("A")))

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap, 2)
	assert.Equal(t, "B", snap[0].Code)
	assert.Equal(t, "A", snap[1].Code)
}

func TestStore_InsertDuplicate(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.Insert(ctx, testCoupon("DUP")))

	err := s.Insert(ctx, testCoupon("DUP"))
	require.ErrorIs(t, err, coupon.ErrDuplicateCode)

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap, 1)
}

func TestStore_SnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	c := testCoupon("ISO")
	require.NoError(t, s.Insert(ctx, c))

	// Mutating the inserted value or a snapshot must not leak into the store.
	c.Eligibility.AllowedCountries[0] = "US"
	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	snap[0].Eligibility.AllowedCountries[0] = "DE"
	snap[0].Description = "changed"

	again, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"IN"}, again[0].Eligibility.AllowedCountries)
	assert.Empty(t, again[0].Description)
}

func TestStore_TryConsume(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	limit := coupon.NewOpt(2)

	for range 2 {
		ok, err := s.TryConsume(ctx, "C", "u1", limit)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := s.TryConsume(ctx, "C", "u1", limit)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := s.Count(ctx, "C", "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.Count(ctx, "C", "u2")
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Equal(t, map[string]int{"u1": 2}, s.usageOf("C"))
	assert.Empty(t, s.usageOf("OTHER"))
}

func TestStore_TryConsumeUnlimited(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	for range 100 {
		ok, err := s.TryConsume(ctx, "FREE", "u1", coupon.Opt[int]{})
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Equal(t, map[string]int{"u1": 100}, s.usageOf("FREE"))
}

func TestStore_ConcurrentTryConsume(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	limit := coupon.NewOpt(5)

	var (
		wg      sync.WaitGroup
		granted atomic.Int64
	)
	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.TryConsume(ctx, "HOT", "u1", limit)
			assert.NoError(t, err)
			if ok {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(5), granted.Load())
	n, err := s.Count(ctx, "HOT", "u1")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestStore_ConcurrentSelection(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	svc, err := coupon.NewService(coupon.ServiceConfig{}, s, s, zaptest.NewLogger(t))
	require.NoError(t, err)

	start := time.Now().Add(-time.Hour).Format(time.RFC3339)
	end := time.Now().Add(time.Hour).Format(time.RFC3339)
	for _, in := range []coupon.CreateInput{
		{Code: "BEST", DiscountType: "FLAT", DiscountValue: coupon.NewOpt(decimal.NewFromInt(100)), StartDate: start, EndDate: end, UsageLimitPerUser: coupon.NewOpt(2)},
		{Code: "NEXT", DiscountType: "FLAT", DiscountValue: coupon.NewOpt(decimal.NewFromInt(50)), StartDate: start, EndDate: end, UsageLimitPerUser: coupon.NewOpt(3)},
	} {
		_, err := svc.CreateCoupon(ctx, in)
		require.NoError(t, err)
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		counts = map[string]int{}
	)
	for range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			user := coupon.UserContext{UserID: "u1"}
			cart := coupon.Cart{Items: []coupon.CartItem{
				{ProductID: "p1", Category: "books", UnitPrice: decimal.NewFromInt(200), Quantity: 1},
			}}
			sel, err := svc.SelectBest(ctx, coupon.SelectRequest{User: &user, Cart: &cart})
			assert.NoError(t, err)
			if sel == nil {
				return
			}
			mu.Lock()
			counts[sel.Coupon.Code]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, map[string]int{"BEST": 2, "NEXT": 3}, counts)
	assert.Equal(t, map[string]int{"u1": 2}, s.usageOf("BEST"))
	assert.Equal(t, map[string]int{"u1": 3}, s.usageOf("NEXT"))
}

func TestStore_ConcurrentInsert(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	var (
		wg       sync.WaitGroup
		inserted atomic.Int64
	)
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Insert(ctx, testCoupon("RACE")) == nil {
				inserted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), inserted.Load())
}
