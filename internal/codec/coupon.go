package codec

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/coupon-selector/internal/domain/coupon"
)

// DecodeCreateInput reads a coupon definition. Field type mismatches are
// reported as a *coupon.ValidationError and malformed JSON as an error
// wrapping coupon.ErrInvalidRequest.
func DecodeCreateInput(d *jx.Decoder) (coupon.CreateInput, error) {
	var (
		in coupon.CreateInput
		r  fieldReader
	)
	if d.Next() != jx.Object {
		return in, errors.Wrap(coupon.ErrInvalidRequest, "coupon definition must be a JSON object")
	}

	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			in.Code, err = r.str(d, key)
		case "description":
			in.Description, err = r.str(d, key)
		case "discountType":
			in.DiscountType, err = r.str(d, key)
		case "discountValue":
			in.DiscountValue, err = r.decimal(d, key)
		case "maxDiscountAmount":
			in.MaxDiscountAmount, err = r.decimal(d, key)
		case "startDate":
			in.StartDate, err = r.str(d, key)
		case "endDate":
			in.EndDate, err = r.str(d, key)
		case "usageLimitPerUser":
			in.UsageLimitPerUser, err = r.int(d, key)
		case "eligibility":
			in.Eligibility, err = r.rules(d, key, key+".")
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return in, errors.Wrapf(coupon.ErrInvalidRequest, "malformed JSON: %s", err)
	}
	if r.failed() {
		return in, &r.verr
	}
	return in, nil
}

// DecodeRules reads eligibility rules, as stored alongside a coupon.
func DecodeRules(d *jx.Decoder) (coupon.EligibilityRules, error) {
	var r fieldReader
	rules, err := r.rules(d, "eligibility", "")
	if err != nil {
		return rules, errors.Wrap(err, "decode eligibility")
	}
	if r.failed() {
		return rules, &r.verr
	}
	return rules, nil
}

// rules reads an eligibility object reported as name. Its members are
// reported as prefix+key.
func (r *fieldReader) rules(d *jx.Decoder, name, prefix string) (coupon.EligibilityRules, error) {
	var rules coupon.EligibilityRules
	switch d.Next() {
	case jx.Object:
	case jx.Null:
		return rules, d.Null()
	default:
		return rules, r.mismatch(d, name, "an object")
	}

	err := d.Obj(func(d *jx.Decoder, key string) error {
		field := prefix + key
		var err error
		switch key {
		case "allowedUserTiers":
			rules.AllowedUserTiers, err = r.strings(d, field)
		case "minLifetimeSpend":
			rules.MinLifetimeSpend, err = r.decimal(d, field)
		case "minOrdersPlaced":
			rules.MinOrdersPlaced, err = r.int(d, field)
		case "firstOrderOnly":
			rules.FirstOrderOnly, err = r.bool(d, field)
		case "allowedCountries":
			rules.AllowedCountries, err = r.strings(d, field)
		case "minCartValue":
			rules.MinCartValue, err = r.decimal(d, field)
		case "applicableCategories":
			rules.ApplicableCategories, err = r.strings(d, field)
		case "excludedCategories":
			rules.ExcludedCategories, err = r.strings(d, field)
		case "minItemsCount":
			rules.MinItemsCount, err = r.int(d, field)
		default:
			err = d.Skip()
		}
		return err
	})
	return rules, err
}

// EncodeCoupon writes c as a JSON object.
func EncodeCoupon(e *jx.Encoder, c coupon.Coupon) {
	e.ObjStart()
	e.FieldStart("code")
	e.Str(c.Code)
	e.FieldStart("description")
	e.Str(c.Description)
	e.FieldStart("discountType")
	e.Str(string(c.DiscountType))
	e.FieldStart("discountValue")
	encodeDecimal(e, c.DiscountValue)
	e.FieldStart("maxDiscountAmount")
	encodeOptDecimal(e, c.MaxDiscountAmount)
	e.FieldStart("startDate")
	e.Str(c.StartDate.Format(time.RFC3339))
	e.FieldStart("endDate")
	e.Str(c.EndDate.Format(time.RFC3339))
	e.FieldStart("usageLimitPerUser")
	if n, ok := c.UsageLimitPerUser.Get(); ok {
		e.Int(n)
	} else {
		e.Null()
	}
	e.FieldStart("eligibility")
	EncodeRules(e, c.Eligibility)
	e.ObjEnd()
}

// EncodeRules writes the set fields of rules as a JSON object.
func EncodeRules(e *jx.Encoder, rules coupon.EligibilityRules) {
	e.ObjStart()
	if rules.AllowedUserTiers != nil {
		e.FieldStart("allowedUserTiers")
		encodeStrings(e, rules.AllowedUserTiers)
	}
	if v, ok := rules.MinLifetimeSpend.Get(); ok {
		e.FieldStart("minLifetimeSpend")
		encodeDecimal(e, v)
	}
	if v, ok := rules.MinOrdersPlaced.Get(); ok {
		e.FieldStart("minOrdersPlaced")
		e.Int(v)
	}
	if v, ok := rules.FirstOrderOnly.Get(); ok {
		e.FieldStart("firstOrderOnly")
		e.Bool(v)
	}
	if rules.AllowedCountries != nil {
		e.FieldStart("allowedCountries")
		encodeStrings(e, rules.AllowedCountries)
	}
	if v, ok := rules.MinCartValue.Get(); ok {
		e.FieldStart("minCartValue")
		encodeDecimal(e, v)
	}
	if rules.ApplicableCategories != nil {
		e.FieldStart("applicableCategories")
		encodeStrings(e, rules.ApplicableCategories)
	}
	if rules.ExcludedCategories != nil {
		e.FieldStart("excludedCategories")
		encodeStrings(e, rules.ExcludedCategories)
	}
	if v, ok := rules.MinItemsCount.Get(); ok {
		e.FieldStart("minItemsCount")
		e.Int(v)
	}
	e.ObjEnd()
}

// EncodeCoupons writes a JSON array of coupons.
func EncodeCoupons(e *jx.Encoder, coupons []coupon.Coupon) {
	e.ArrStart()
	for _, c := range coupons {
		EncodeCoupon(e, c)
	}
	e.ArrEnd()
}
