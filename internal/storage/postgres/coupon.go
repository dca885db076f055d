package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/coupon-selector/internal/codec"
	"github.com/xenking/coupon-selector/internal/domain/coupon"
)

const (
	insertCouponSQL = `INSERT INTO coupons (code, description, discount_type, discount_value,
		max_discount_amount, start_date, end_date, usage_limit_per_user, eligibility)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	listCouponsSQL = `SELECT code, description, discount_type, discount_value,
		max_discount_amount, start_date, end_date, usage_limit_per_user, eligibility
		FROM coupons ORDER BY id`
)

var _ coupon.Catalog = (*CouponRepository)(nil)

// CouponRepository implements coupon.Catalog backed by PostgreSQL. Code
// uniqueness is enforced by the table's unique constraint.
type CouponRepository struct {
	pool *pgxpool.Pool
	lg   *zap.Logger
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool, lg *zap.Logger) *CouponRepository {
	return &CouponRepository{pool: pool, lg: lg}
}

// Insert stores c. It returns a *coupon.DuplicateCodeError when the code
// already exists.
func (r *CouponRepository) Insert(ctx context.Context, c coupon.Coupon) error {
	var e jx.Encoder
	codec.EncodeRules(&e, c.Eligibility)

	var limit *int32
	if n, ok := c.UsageLimitPerUser.Get(); ok {
		v := int32(n)
		limit = &v
	}

	_, err := r.pool.Exec(ctx, insertCouponSQL,
		c.Code,
		c.Description,
		string(c.DiscountType),
		c.DiscountValue,
		nullDecimal(c.MaxDiscountAmount),
		c.StartDate,
		c.EndDate,
		limit,
		string(e.Bytes()),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return &coupon.DuplicateCodeError{Code: c.Code}
		}
		return fmt.Errorf("inserting coupon %q: %w", c.Code, err)
	}
	return nil
}

// Snapshot returns all coupons in creation order. Rows that cannot be decoded
// are logged and left out.
func (r *CouponRepository) Snapshot(ctx context.Context) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, listCouponsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	defer rows.Close()

	var coupons []coupon.Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			r.lg.Warn("Skipping malformed coupon row", zap.String("code", c.Code), zap.Error(err))
			continue
		}
		coupons = append(coupons, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	return coupons, nil
}

func scanCoupon(row pgx.Row) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
		maxDiscount  decimal.NullDecimal
		start, end   time.Time
		limit        *int32
		eligibility  []byte
	)
	err := row.Scan(
		&c.Code, &c.Description, &discountType, &c.DiscountValue,
		&maxDiscount, &start, &end, &limit, &eligibility,
	)
	if err != nil {
		return c, errors.Wrap(err, "scan")
	}

	c.DiscountType = coupon.DiscountType(discountType)
	if maxDiscount.Valid {
		c.MaxDiscountAmount = coupon.NewOpt(maxDiscount.Decimal)
	}
	c.StartDate = start.UTC()
	c.EndDate = end.UTC()
	if limit != nil {
		c.UsageLimitPerUser = coupon.NewOpt(int(*limit))
	}

	c.Eligibility, err = codec.DecodeRules(jx.DecodeBytes(eligibility))
	if err != nil {
		return c, errors.Wrap(err, "eligibility")
	}
	return c, nil
}

func nullDecimal(v coupon.Opt[decimal.Decimal]) decimal.NullDecimal {
	d, ok := v.Get()
	return decimal.NullDecimal{Decimal: d, Valid: ok}
}
