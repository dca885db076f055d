package coupon

import (
	"math"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// maxCount bounds every integer field; storage keeps them as 32-bit integers.
const maxCount = math.MaxInt32

// dateLayouts are tried in order when parsing start and end dates. Layouts
// without a zone are interpreted as UTC.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// CreateInput carries a coupon definition as received from a client, before
// validation. Dates are unparsed strings.
type CreateInput struct {
	Code              string
	Description       string
	DiscountType      string
	DiscountValue     Opt[decimal.Decimal]
	MaxDiscountAmount Opt[decimal.Decimal]
	StartDate         string
	EndDate           string
	UsageLimitPerUser Opt[int]
	Eligibility       EligibilityRules
}

// Build validates in and returns the coupon it describes. All problems are
// collected into a single *ValidationError.
func Build(in CreateInput) (Coupon, error) {
	verr := &ValidationError{}

	if strings.TrimSpace(in.Code) == "" {
		verr.Add("code", "is required")
	}

	dt := DiscountType(in.DiscountType)
	switch {
	case in.DiscountType == "":
		verr.Add("discountType", "is required")
	case !dt.Valid():
		verr.Add("discountType", "must be one of %s, %s", DiscountFlat, DiscountPercent)
	}

	value, ok := in.DiscountValue.Get()
	switch {
	case !ok:
		verr.Add("discountValue", "is required")
	case !value.IsPositive():
		verr.Add("discountValue", "must be positive")
	case dt == DiscountPercent && value.GreaterThan(hundred):
		verr.Add("discountValue", "must not exceed 100 for %s coupons", DiscountPercent)
	}

	if maxDiscount, ok := in.MaxDiscountAmount.Get(); ok && maxDiscount.IsNegative() {
		verr.Add("maxDiscountAmount", "must not be negative")
	}

	start, startErr := parseDate(in.StartDate)
	if startErr != nil {
		verr.Add("startDate", "%s", startErr)
	}
	end, endErr := parseDate(in.EndDate)
	if endErr != nil {
		verr.Add("endDate", "%s", endErr)
	}
	if startErr == nil && endErr == nil && start.After(end) {
		verr.Add("endDate", "must not be before startDate")
	}

	if limit, ok := in.UsageLimitPerUser.Get(); ok {
		switch {
		case limit <= 0:
			verr.Add("usageLimitPerUser", "must be a positive integer")
		case limit > maxCount:
			verr.Add("usageLimitPerUser", "must not exceed %d", maxCount)
		}
	}

	validateRules(verr, in.Eligibility)

	if len(verr.Fields) > 0 {
		return Coupon{}, verr
	}

	return Coupon{
		Code:              in.Code,
		Description:       in.Description,
		DiscountType:      dt,
		DiscountValue:     value,
		MaxDiscountAmount: in.MaxDiscountAmount,
		StartDate:         start,
		EndDate:           end,
		UsageLimitPerUser: in.UsageLimitPerUser,
		Eligibility:       in.Eligibility.clone(),
	}, nil
}

func validateRules(verr *ValidationError, r EligibilityRules) {
	if v, ok := r.MinLifetimeSpend.Get(); ok && v.IsNegative() {
		verr.Add("eligibility.minLifetimeSpend", "must not be negative")
	}
	if v, ok := r.MinOrdersPlaced.Get(); ok {
		validateCount(verr, "eligibility.minOrdersPlaced", v)
	}
	if v, ok := r.MinCartValue.Get(); ok && v.IsNegative() {
		verr.Add("eligibility.minCartValue", "must not be negative")
	}
	if v, ok := r.MinItemsCount.Get(); ok {
		validateCount(verr, "eligibility.minItemsCount", v)
	}
}

func validateCount(verr *ValidationError, field string, v int) {
	switch {
	case v < 0:
		verr.Add(field, "must not be negative")
	case v > maxCount:
		verr.Add(field, "must not exceed %d", maxCount)
	}
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("is required")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("cannot parse %q as a date", s)
}
