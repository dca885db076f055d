package coupon

import (
	"fmt"
	"slices"
	"time"
)

// Rule names a single eligibility predicate.
type Rule string

// Predicates in evaluation order.
const (
	RuleTemporal             Rule = "temporal"
	RuleUsageLimit           Rule = "usage_limit"
	RuleUserTier             Rule = "user_tier"
	RuleLifetimeSpend        Rule = "lifetime_spend"
	RuleOrdersPlaced         Rule = "orders_placed"
	RuleFirstOrder           Rule = "first_order"
	RuleCountry              Rule = "country"
	RuleCartValue            Rule = "cart_value"
	RuleApplicableCategories Rule = "applicable_categories"
	RuleExcludedCategories   Rule = "excluded_categories"
	RuleMinItems             Rule = "min_items"
)

// IneligibleError names the first rule a coupon failed.
type IneligibleError struct {
	Code string
	Rule Rule
}

func (e *IneligibleError) Error() string {
	return fmt.Sprintf("coupon %q not eligible: %s", e.Code, e.Rule)
}

// CheckEligibility evaluates every rule of c against the user and cart at now,
// stopping at the first failure. used is how many times the user already
// consumed c. It returns nil when the coupon applies.
func CheckEligibility(c Coupon, used int, user UserContext, cart Cart, now time.Time) error {
	if rule, ok := firstFailure(c, used, user, cart, now); !ok {
		return &IneligibleError{Code: c.Code, Rule: rule}
	}
	return nil
}

// IsEligible reports whether c applies to the user and cart at now.
func IsEligible(c Coupon, used int, user UserContext, cart Cart, now time.Time) bool {
	return CheckEligibility(c, used, user, cart, now) == nil
}

func firstFailure(c Coupon, used int, user UserContext, cart Cart, now time.Time) (Rule, bool) {
	e := c.Eligibility

	if c.State(now) != StateActive {
		return RuleTemporal, false
	}
	if limit, ok := c.UsageLimitPerUser.Get(); ok && used >= limit {
		return RuleUsageLimit, false
	}
	if len(e.AllowedUserTiers) > 0 && !slices.Contains(e.AllowedUserTiers, user.UserTier) {
		return RuleUserTier, false
	}
	if v, ok := e.MinLifetimeSpend.Get(); ok && user.LifetimeSpend.LessThan(v) {
		return RuleLifetimeSpend, false
	}
	if v, ok := e.MinOrdersPlaced.Get(); ok && user.OrdersPlaced < v {
		return RuleOrdersPlaced, false
	}
	if v, ok := e.FirstOrderOnly.Get(); ok && v && user.OrdersPlaced != 0 {
		return RuleFirstOrder, false
	}
	if len(e.AllowedCountries) > 0 && !slices.Contains(e.AllowedCountries, user.Country) {
		return RuleCountry, false
	}
	if v, ok := e.MinCartValue.Get(); ok && cart.Subtotal().LessThan(v) {
		return RuleCartValue, false
	}

	if len(e.ApplicableCategories) > 0 || len(e.ExcludedCategories) > 0 {
		categories := cart.Categories()
		if len(e.ApplicableCategories) > 0 && !containsAny(categories, e.ApplicableCategories) {
			return RuleApplicableCategories, false
		}
		if len(e.ExcludedCategories) > 0 && containsAny(categories, e.ExcludedCategories) {
			return RuleExcludedCategories, false
		}
	}

	if v, ok := e.MinItemsCount.Get(); ok && cart.TotalQuantity() < v {
		return RuleMinItems, false
	}
	return "", true
}

func containsAny(set map[string]struct{}, values []string) bool {
	for _, v := range values {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}
