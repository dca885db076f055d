// Package codec converts coupon domain values to and from JSON using jx.
//
// Type mismatches in individual fields are collected into a
// *coupon.ValidationError instead of aborting the decode, so clients get
// every problem at once. Syntax errors abort.
package codec

import (
	"math"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/coupon-selector/internal/domain/coupon"
)

var (
	minInt = decimal.NewFromInt(math.MinInt32)
	maxInt = decimal.NewFromInt(math.MaxInt32)
)

// fieldReader reads typed values and records type mismatches per field.
type fieldReader struct {
	verr coupon.ValidationError
}

func (r *fieldReader) failed() bool {
	return len(r.verr.Fields) > 0
}

// mismatch skips the current value and records a problem with field.
func (r *fieldReader) mismatch(d *jx.Decoder, field, want string) error {
	if err := d.Skip(); err != nil {
		return err
	}
	r.verr.Add(field, "must be %s", want)
	return nil
}

func (r *fieldReader) str(d *jx.Decoder, field string) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Null:
		return "", d.Null()
	default:
		return "", r.mismatch(d, field, "a string")
	}
}

func (r *fieldReader) decimal(d *jx.Decoder, field string) (coupon.Opt[decimal.Decimal], error) {
	var raw string
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return coupon.Opt[decimal.Decimal]{}, err
		}
		raw = string(n)
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return coupon.Opt[decimal.Decimal]{}, err
		}
		raw = s
	case jx.Null:
		return coupon.Opt[decimal.Decimal]{}, d.Null()
	default:
		return coupon.Opt[decimal.Decimal]{}, r.mismatch(d, field, "a number")
	}

	v, err := decimal.NewFromString(raw)
	if err != nil {
		r.verr.Add(field, "must be a number")
		return coupon.Opt[decimal.Decimal]{}, nil
	}
	return coupon.NewOpt(v), nil
}

func (r *fieldReader) int(d *jx.Decoder, field string) (coupon.Opt[int], error) {
	switch d.Next() {
	case jx.Number, jx.Null:
	default:
		return coupon.Opt[int]{}, r.mismatch(d, field, "an integer")
	}
	v, err := r.decimal(d, field)
	if err != nil || !v.Set {
		return coupon.Opt[int]{}, err
	}
	if !v.Value.IsInteger() {
		r.verr.Add(field, "must be an integer")
		return coupon.Opt[int]{}, nil
	}
	// Counts are stored as 32-bit integers.
	if v.Value.LessThan(minInt) || v.Value.GreaterThan(maxInt) {
		r.verr.Add(field, "must be between %d and %d", math.MinInt32, math.MaxInt32)
		return coupon.Opt[int]{}, nil
	}
	return coupon.NewOpt(int(v.Value.IntPart())), nil
}

func (r *fieldReader) bool(d *jx.Decoder, field string) (coupon.Opt[bool], error) {
	switch d.Next() {
	case jx.Bool:
		v, err := d.Bool()
		if err != nil {
			return coupon.Opt[bool]{}, err
		}
		return coupon.NewOpt(v), nil
	case jx.Null:
		return coupon.Opt[bool]{}, d.Null()
	default:
		return coupon.Opt[bool]{}, r.mismatch(d, field, "a boolean")
	}
}

func (r *fieldReader) strings(d *jx.Decoder, field string) ([]string, error) {
	switch d.Next() {
	case jx.Array:
	case jx.Null:
		return nil, d.Null()
	default:
		return nil, r.mismatch(d, field, "an array of strings")
	}

	out := []string{}
	bad := false
	err := d.Arr(func(d *jx.Decoder) error {
		if d.Next() != jx.String {
			bad = true
			return d.Skip()
		}
		s, err := d.Str()
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if bad {
		r.verr.Add(field, "must be an array of strings")
		return nil, nil
	}
	return out, nil
}

func encodeDecimal(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.String()))
}

func encodeOptDecimal(e *jx.Encoder, v coupon.Opt[decimal.Decimal]) {
	if d, ok := v.Get(); ok {
		encodeDecimal(e, d)
		return
	}
	e.Null()
}

func encodeStrings(e *jx.Encoder, values []string) {
	e.ArrStart()
	for _, v := range values {
		e.Str(v)
	}
	e.ArrEnd()
}
