package coupon

import "github.com/shopspring/decimal"

// ComputeDiscount returns the exact discount c yields for cart. It assumes c
// is eligible. FLAT returns the discount value as is, never clamped to the
// subtotal. PERCENT is capped by MaxDiscountAmount and floored at zero.
// Unknown discount types yield zero.
func ComputeDiscount(c Coupon, cart Cart) decimal.Decimal {
	switch c.DiscountType {
	case DiscountFlat:
		return c.DiscountValue
	case DiscountPercent:
		amount := cart.Subtotal().Mul(c.DiscountValue).Div(hundred)
		if maxDiscount, ok := c.MaxDiscountAmount.Get(); ok {
			amount = decimal.Min(amount, maxDiscount)
		}
		return floorAtZero(amount)
	default:
		return decimal.Zero
	}
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
