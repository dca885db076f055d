package coupon

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestComputeDiscount(t *testing.T) {
	cartOf := func(subtotal string) Cart {
		return testCart(CartItem{ProductID: "p1", Category: "misc", UnitPrice: decimal.RequireFromString(subtotal), Quantity: 1})
	}

	tests := []struct {
		name   string
		coupon Coupon
		cart   Cart
		want   string
	}{
		{
			name:   "flat",
			coupon: Coupon{DiscountType: DiscountFlat, DiscountValue: decimal.NewFromInt(50)},
			cart:   cartOf("500"),
			want:   "50",
		},
		{
			name:   "flat exceeding subtotal is not clamped",
			coupon: Coupon{DiscountType: DiscountFlat, DiscountValue: decimal.NewFromInt(100)},
			cart:   cartOf("30"),
			want:   "100",
		},
		{
			name:   "flat ignores max discount",
			coupon: Coupon{DiscountType: DiscountFlat, DiscountValue: decimal.NewFromInt(100), MaxDiscountAmount: NewOpt(decimal.NewFromInt(10))},
			cart:   cartOf("1000"),
			want:   "100",
		},
		{
			name:   "percent without cap",
			coupon: Coupon{DiscountType: DiscountPercent, DiscountValue: decimal.NewFromInt(20)},
			cart:   cartOf("1000"),
			want:   "200",
		},
		{
			name:   "percent capped",
			coupon: Coupon{DiscountType: DiscountPercent, DiscountValue: decimal.NewFromInt(20), MaxDiscountAmount: NewOpt(decimal.NewFromInt(100))},
			cart:   cartOf("1000"),
			want:   "100",
		},
		{
			name:   "percent below cap",
			coupon: Coupon{DiscountType: DiscountPercent, DiscountValue: decimal.NewFromInt(20), MaxDiscountAmount: NewOpt(decimal.NewFromInt(100))},
			cart:   cartOf("300"),
			want:   "60",
		},
		{
			name:   "percent with zero cap",
			coupon: Coupon{DiscountType: DiscountPercent, DiscountValue: decimal.NewFromInt(20), MaxDiscountAmount: NewOpt(decimal.Zero)},
			cart:   cartOf("1000"),
			want:   "0",
		},
		{
			name:   "percent keeps fractional cents",
			coupon: Coupon{DiscountType: DiscountPercent, DiscountValue: decimal.NewFromInt(15)},
			cart:   cartOf("33.33"),
			want:   "4.9995",
		},
		{
			name:   "flat keeps fractional cents",
			coupon: Coupon{DiscountType: DiscountFlat, DiscountValue: decimal.RequireFromString("10.005")},
			cart:   cartOf("100"),
			want:   "10.005",
		},
		{
			name:   "flat below half a cent",
			coupon: Coupon{DiscountType: DiscountFlat, DiscountValue: decimal.RequireFromString("0.004")},
			cart:   cartOf("100"),
			want:   "0.004",
		},
		{
			name:   "percent never exceeds fractional cap",
			coupon: Coupon{DiscountType: DiscountPercent, DiscountValue: decimal.NewFromInt(50), MaxDiscountAmount: NewOpt(decimal.RequireFromString("10.005"))},
			cart:   cartOf("100"),
			want:   "10.005",
		},
		{
			name:   "percent of empty cart",
			coupon: Coupon{DiscountType: DiscountPercent, DiscountValue: decimal.NewFromInt(50)},
			cart:   Cart{},
			want:   "0",
		},
		{
			name:   "unknown type",
			coupon: Coupon{DiscountType: "BOGO", DiscountValue: decimal.NewFromInt(50)},
			cart:   cartOf("1000"),
			want:   "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeDiscount(tt.coupon, tt.cart)
			want := decimal.RequireFromString(tt.want)
			assert.True(t, want.Equal(got), "expected %s, got %s", want, got)
		})
	}
}
