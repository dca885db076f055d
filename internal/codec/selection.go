package codec

import (
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/coupon-selector/internal/domain/coupon"
)

// DecodeSelectRequest reads {"userContext": {...}, "cart": {"items": [...]}}.
// Absent or null members leave the corresponding request field nil. Any
// malformed member yields an error wrapping coupon.ErrInvalidRequest.
func DecodeSelectRequest(d *jx.Decoder) (coupon.SelectRequest, error) {
	var (
		req coupon.SelectRequest
		r   fieldReader
	)
	if d.Next() != jx.Object {
		return req, errors.Wrap(coupon.ErrInvalidRequest, "body must be a JSON object")
	}

	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "userContext":
			user, err := r.user(d)
			req.User = user
			return err
		case "cart":
			cart, err := r.cart(d)
			req.Cart = cart
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return req, errors.Wrapf(coupon.ErrInvalidRequest, "malformed JSON: %s", err)
	}
	if r.failed() {
		return req, errors.Wrap(coupon.ErrInvalidRequest, r.verr.Error())
	}
	return req, nil
}

func (r *fieldReader) user(d *jx.Decoder) (*coupon.UserContext, error) {
	switch d.Next() {
	case jx.Object:
	case jx.Null:
		return nil, d.Null()
	default:
		return nil, r.mismatch(d, "userContext", "an object")
	}

	var u coupon.UserContext
	err := d.Obj(func(d *jx.Decoder, key string) error {
		field := "userContext." + key
		switch key {
		case "userId":
			v, err := r.str(d, field)
			u.UserID = v
			return err
		case "userTier":
			v, err := r.str(d, field)
			u.UserTier = v
			return err
		case "country":
			v, err := r.str(d, field)
			u.Country = v
			return err
		case "lifetimeSpend":
			v, err := r.decimal(d, field)
			u.LifetimeSpend = v.Value
			return err
		case "ordersPlaced":
			v, err := r.int(d, field)
			u.OrdersPlaced = v.Value
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *fieldReader) cart(d *jx.Decoder) (*coupon.Cart, error) {
	switch d.Next() {
	case jx.Object:
	case jx.Null:
		return nil, d.Null()
	default:
		return nil, r.mismatch(d, "cart", "an object")
	}

	cart := coupon.Cart{Items: []coupon.CartItem{}}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "items" {
			return d.Skip()
		}
		switch d.Next() {
		case jx.Array:
		case jx.Null:
			return d.Null()
		default:
			return r.mismatch(d, "cart.items", "an array")
		}
		return d.Arr(func(d *jx.Decoder) error {
			item, err := r.cartItem(d, len(cart.Items))
			if err != nil {
				return err
			}
			cart.Items = append(cart.Items, item)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *fieldReader) cartItem(d *jx.Decoder, idx int) (coupon.CartItem, error) {
	var item coupon.CartItem
	prefix := "cart.items[" + strconv.Itoa(idx) + "]."
	if d.Next() != jx.Object {
		return item, r.mismatch(d, prefix[:len(prefix)-1], "an object")
	}

	err := d.Obj(func(d *jx.Decoder, key string) error {
		field := prefix + key
		switch key {
		case "productId":
			v, err := r.str(d, field)
			item.ProductID = v
			return err
		case "category":
			v, err := r.str(d, field)
			item.Category = v
			return err
		case "unitPrice":
			v, err := r.decimal(d, field)
			item.UnitPrice = v.Value
			return err
		case "quantity":
			v, err := r.int(d, field)
			item.Quantity = v.Value
			return err
		default:
			return d.Skip()
		}
	})
	return item, err
}

// EncodeSelection writes {"coupon": ..., "discount": ...}. A nil selection
// is written as {"coupon": null, "discount": 0}.
func EncodeSelection(e *jx.Encoder, sel *coupon.Selection) {
	e.ObjStart()
	e.FieldStart("coupon")
	if sel == nil {
		e.Null()
		e.FieldStart("discount")
		e.Int(0)
		e.ObjEnd()
		return
	}
	EncodeCoupon(e, sel.Coupon)
	e.FieldStart("discount")
	encodeDecimal(e, sel.Discount)
	e.ObjEnd()
}

// EncodeError writes the error body used by every endpoint.
func EncodeError(e *jx.Encoder, code int, message string, fields []coupon.FieldError) {
	e.ObjStart()
	e.FieldStart("code")
	e.Int(code)
	e.FieldStart("message")
	e.Str(message)
	if len(fields) > 0 {
		e.FieldStart("fields")
		e.ArrStart()
		for _, f := range fields {
			e.ObjStart()
			e.FieldStart("field")
			e.Str(f.Field)
			e.FieldStart("message")
			e.Str(f.Message)
			e.ObjEnd()
		}
		e.ArrEnd()
	}
	e.ObjEnd()
}
