package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/coupon-selector/internal/domain/coupon"
)

const (
	getUsageSQL = `SELECT used FROM coupon_usage WHERE code = $1 AND user_id = $2`

	// consumeUsageSQL inserts the first use or increments an existing row
	// while it is under the limit. The row lock taken by ON CONFLICT makes
	// the check and the increment one atomic step; no row is returned when
	// the limit is already reached.
	consumeUsageSQL = `INSERT INTO coupon_usage (code, user_id, used) VALUES ($1, $2, 1)
		ON CONFLICT (code, user_id) DO UPDATE SET used = coupon_usage.used + 1
		WHERE $3::integer IS NULL OR coupon_usage.used < $3::integer
		RETURNING used`
)

var _ coupon.Ledger = (*UsageRepository)(nil)

// UsageRepository implements coupon.Ledger backed by PostgreSQL.
type UsageRepository struct {
	pool *pgxpool.Pool
}

// NewUsageRepository returns a UsageRepository that uses the given pool.
func NewUsageRepository(pool *pgxpool.Pool) *UsageRepository {
	return &UsageRepository{pool: pool}
}

// Count returns how many times userID consumed code.
func (r *UsageRepository) Count(ctx context.Context, code, userID string) (int, error) {
	var used int32
	err := r.pool.QueryRow(ctx, getUsageSQL, code, userID).Scan(&used)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading usage of %q by %q: %w", code, userID, err)
	}
	return int(used), nil
}

// TryConsume records one use of code by userID unless limit is reached.
func (r *UsageRepository) TryConsume(ctx context.Context, code, userID string, limit coupon.Opt[int]) (bool, error) {
	var ceiling *int32
	if n, ok := limit.Get(); ok {
		v := int32(n)
		ceiling = &v
	}

	var used int32
	err := r.pool.QueryRow(ctx, consumeUsageSQL, code, userID, ceiling).Scan(&used)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("recording usage of %q by %q: %w", code, userID, err)
	}
	return true, nil
}
