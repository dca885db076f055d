package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/coupon-selector/internal/domain/coupon"
)

func newTestLedger(t *testing.T) (*Ledger, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	l := New(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = l.Close() })
	return l, mr
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	l, err := Connect(ctx, Options{Addr: mr.Addr()})
	require.NoError(t, err)
	require.NoError(t, l.Ping(ctx))
	require.NoError(t, l.Close())

	_, err = Connect(ctx, Options{Addr: "127.0.0.1:0"})
	require.Error(t, err)
}

func TestCloseNil(t *testing.T) {
	var l *Ledger
	assert.NoError(t, l.Close())
}

func TestLedger_TryConsume(t *testing.T) {
	l, mr := newTestLedger(t)
	ctx := context.Background()

	n, err := l.Count(ctx, "ONCE", "u1")
	require.NoError(t, err)
	assert.Zero(t, n)

	ok, err := l.TryConsume(ctx, "ONCE", "u1", coupon.NewOpt(1))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.TryConsume(ctx, "ONCE", "u1", coupon.NewOpt(1))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = l.TryConsume(ctx, "ONCE", "u2", coupon.NewOpt(1))
	require.NoError(t, err)
	assert.True(t, ok, "limits are per user")

	n, err = l.Count(ctx, "ONCE", "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, "1", mr.HGet(KeyPrefix+"ONCE", "u1"))
}

func TestLedger_Unlimited(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	for range 5 {
		ok, err := l.TryConsume(ctx, "FREE", "u1", coupon.Opt[int]{})
		require.NoError(t, err)
		require.True(t, ok)
	}
	n, err := l.Count(ctx, "FREE", "u1")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestLedger_Concurrent(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		granted atomic.Int64
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := l.TryConsume(ctx, "HOT", "u1", coupon.NewOpt(3))
			assert.NoError(t, err)
			if ok {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 3, granted.Load())
	n, err := l.Count(ctx, "HOT", "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestLedger_Unavailable(t *testing.T) {
	l, mr := newTestLedger(t)
	ctx := context.Background()
	mr.Close()

	_, err := l.Count(ctx, "X", "u1")
	assert.Error(t, err)

	_, err = l.TryConsume(ctx, "X", "u1", coupon.NewOpt(1))
	assert.Error(t, err)
}
