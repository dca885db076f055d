package coupon

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

// Candidate is an eligible coupon together with the discount it yields.
type Candidate struct {
	Coupon   Coupon
	Discount decimal.Decimal
}

// Compare orders candidates so that the better one sorts first: higher
// discount, then earlier end date, then the lexicographically smaller code.
func Compare(a, b Candidate) int {
	if c := b.Discount.Cmp(a.Discount); c != 0 {
		return c
	}
	if c := a.Coupon.EndDate.Compare(b.Coupon.EndDate); c != 0 {
		return c
	}
	return strings.Compare(a.Coupon.Code, b.Coupon.Code)
}

// Less reports whether a beats b.
func Less(a, b Candidate) bool {
	return Compare(a, b) < 0
}

// Rank sorts candidates best first, dropping those with a non-positive
// discount. The input slice is not modified.
func Rank(candidates []Candidate) []Candidate {
	ranked := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Discount.IsPositive() {
			ranked = append(ranked, c)
		}
	}
	slices.SortFunc(ranked, Compare)
	return ranked
}

// Pick returns the best candidate, or false when none has a positive discount.
func Pick(candidates []Candidate) (Candidate, bool) {
	var (
		best  Candidate
		found bool
	)
	for _, c := range candidates {
		if !c.Discount.IsPositive() {
			continue
		}
		if !found || Less(c, best) {
			best, found = c, true
		}
	}
	return best, found
}
