package coupon

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountFlat yields a fixed monetary amount regardless of cart size.
	DiscountFlat DiscountType = "FLAT"
	// DiscountPercent yields a percentage of the cart subtotal, optionally capped.
	DiscountPercent DiscountType = "PERCENT"
)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	return t == DiscountFlat || t == DiscountPercent
}

// State is the lifecycle phase of a coupon, derived from the clock.
type State string

const (
	StatePending State = "pending"
	StateActive  State = "active"
	StateExpired State = "expired"
)

var (
	// ErrDuplicateCode is matched by every *DuplicateCodeError.
	ErrDuplicateCode = errors.New("coupon code already exists")
	// ErrInvalidRequest is returned by SelectBest when the caller omits the
	// user context or the cart, or sends a malformed one.
	ErrInvalidRequest = errors.New("invalid request")
)

// DuplicateCodeError is returned when a coupon code is already in the catalog.
type DuplicateCodeError struct {
	Code string
}

func (e *DuplicateCodeError) Error() string {
	return fmt.Sprintf("coupon code %q already exists", e.Code)
}

// Is makes errors.Is(err, ErrDuplicateCode) hold.
func (e *DuplicateCodeError) Is(target error) bool {
	return target == ErrDuplicateCode
}

// FieldError describes one malformed or missing input field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError lists every problem found in a coupon definition.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "invalid coupon: " + strings.Join(parts, "; ")
}

// Add records a problem with field.
func (e *ValidationError) Add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Opt is an optional value. The zero Opt is unset, which keeps "false" and
// "zero" distinguishable from "absent".
type Opt[T any] struct {
	Value T
	Set   bool
}

// NewOpt returns a set Opt holding v.
func NewOpt[T any](v T) Opt[T] {
	return Opt[T]{Value: v, Set: true}
}

// Get returns the value and whether it is set.
func (o Opt[T]) Get() (T, bool) {
	return o.Value, o.Set
}

// EligibilityRules constrain which user and cart combinations a coupon
// applies to. Unset fields and empty sets impose no constraint.
type EligibilityRules struct {
	AllowedUserTiers     []string
	MinLifetimeSpend     Opt[decimal.Decimal]
	MinOrdersPlaced      Opt[int]
	FirstOrderOnly       Opt[bool]
	AllowedCountries     []string
	MinCartValue         Opt[decimal.Decimal]
	ApplicableCategories []string
	ExcludedCategories   []string
	MinItemsCount        Opt[int]
}

func (r EligibilityRules) clone() EligibilityRules {
	r.AllowedUserTiers = slices.Clone(r.AllowedUserTiers)
	r.AllowedCountries = slices.Clone(r.AllowedCountries)
	r.ApplicableCategories = slices.Clone(r.ApplicableCategories)
	r.ExcludedCategories = slices.Clone(r.ExcludedCategories)
	return r
}

// Coupon is a validated coupon definition. Values handed out by a Catalog are
// copies; mutating them does not affect the catalog.
type Coupon struct {
	Code              string
	Description       string
	DiscountType      DiscountType
	DiscountValue     decimal.Decimal
	MaxDiscountAmount Opt[decimal.Decimal]
	StartDate         time.Time
	EndDate           time.Time
	UsageLimitPerUser Opt[int]
	Eligibility       EligibilityRules
}

// Clone returns a deep copy of c.
func (c Coupon) Clone() Coupon {
	c.Eligibility = c.Eligibility.clone()
	return c
}

// State reports the lifecycle phase of c at now. Both window bounds are
// inclusive.
func (c Coupon) State(now time.Time) State {
	switch {
	case now.Before(c.StartDate):
		return StatePending
	case now.After(c.EndDate):
		return StateExpired
	default:
		return StateActive
	}
}

// UserContext describes the shopper requesting a coupon.
type UserContext struct {
	UserID        string
	UserTier      string
	Country       string
	LifetimeSpend decimal.Decimal
	OrdersPlaced  int
}

// CartItem is a single cart line.
type CartItem struct {
	ProductID string
	Category  string
	UnitPrice decimal.Decimal
	Quantity  int
}

// Cart is an ordered sequence of cart lines.
type Cart struct {
	Items []CartItem
}

// Subtotal returns the sum of unit price * quantity across all items.
func (c Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range c.Items {
		sum = sum.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return sum
}

// TotalQuantity returns the sum of quantities across all items.
func (c Cart) TotalQuantity() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// Categories returns the set of item categories in the cart.
func (c Cart) Categories() map[string]struct{} {
	set := make(map[string]struct{}, len(c.Items))
	for _, item := range c.Items {
		set[item.Category] = struct{}{}
	}
	return set
}

// Selection is the outcome of a successful SelectBest call.
type Selection struct {
	Coupon   Coupon
	Discount decimal.Decimal
}

// Catalog owns the set of coupon definitions.
type Catalog interface {
	// Insert stores c. It returns a *DuplicateCodeError when the code is taken.
	Insert(ctx context.Context, c Coupon) error
	// Snapshot returns copies of all coupons in a stable order.
	Snapshot(ctx context.Context) ([]Coupon, error)
}

// Ledger records per-user coupon consumption.
type Ledger interface {
	// Count returns how many times userID consumed code.
	Count(ctx context.Context, code, userID string) (int, error)
	// TryConsume atomically increments the counter for (code, userID) unless
	// limit is set and already reached. It reports whether the use was recorded.
	TryConsume(ctx context.Context, code, userID string, limit Opt[int]) (bool, error)
}
