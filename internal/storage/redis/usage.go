// Package redis implements the per-user coupon usage ledger on Redis.
package redis

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-redis/redis/v8"

	"github.com/xenking/coupon-selector/internal/domain/coupon"
)

// KeyPrefix is prepended to the coupon code to form the usage hash key.
const KeyPrefix = "coupon:usage:"

// consumeScript increments the user's counter in the coupon hash unless the
// limit (ARGV[2], 0 for unlimited) has been reached. It returns 1 when the
// use was recorded and 0 otherwise.
var consumeScript = redis.NewScript(`
local used = tonumber(redis.call("HGET", KEYS[1], ARGV[1]) or "0")
local limit = tonumber(ARGV[2])
if limit > 0 and used >= limit then
	return 0
end
redis.call("HINCRBY", KEYS[1], ARGV[1], 1)
return 1
`)

var _ coupon.Ledger = (*Ledger)(nil)

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Ledger implements coupon.Ledger with one Redis hash per coupon code, keyed
// by user id. Check-and-increment runs as a single Lua script.
type Ledger struct {
	client redis.UniversalClient
}

// Connect dials Redis and verifies the connection.
func Connect(ctx context.Context, opts Options) (*Ledger, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return New(rdb), nil
}

// New wraps an existing client.
func New(client redis.UniversalClient) *Ledger {
	return &Ledger{client: client}
}

// Ping checks that Redis is reachable.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (l *Ledger) Close() error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Close()
}

// Count returns how many times userID consumed code.
func (l *Ledger) Count(ctx context.Context, code, userID string) (int, error) {
	n, err := l.client.HGet(ctx, usageKey(code), userID).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading usage of %q by %q: %w", code, userID, err)
	}
	return n, nil
}

// TryConsume records one use of code by userID unless limit is reached.
func (l *Ledger) TryConsume(ctx context.Context, code, userID string, limit coupon.Opt[int]) (bool, error) {
	ceiling := 0
	if n, ok := limit.Get(); ok {
		ceiling = n
	}
	res, err := consumeScript.Run(ctx, l.client, []string{usageKey(code)}, userID, ceiling).Int()
	if err != nil {
		return false, fmt.Errorf("recording usage of %q by %q: %w", code, userID, err)
	}
	return res == 1, nil
}

func usageKey(code string) string {
	return KeyPrefix + code
}
