// Package handler exposes the coupon service over HTTP with JSON bodies.
package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/coupon-selector/internal/codec"
	"github.com/xenking/coupon-selector/internal/domain/coupon"
)

// maxBodySize bounds request bodies.
const maxBodySize = 1 << 20

// Handler serves coupon creation, listing and best-coupon selection.
type Handler struct {
	svc *coupon.Service
}

// New returns a Handler delegating to svc.
func New(svc *coupon.Service) *Handler {
	return &Handler{svc: svc}
}

// Register adds the coupon routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/coupons", h.CreateCoupon)
	mux.HandleFunc("POST /coupon/create", h.CreateCoupon)
	mux.HandleFunc("GET /api/coupons", h.ListCoupons)
	mux.HandleFunc("POST /api/coupons/best", h.BestCoupon)
	mux.HandleFunc("POST /coupon/best", h.BestCoupon)
}

// CreateCoupon decodes a coupon definition and adds it to the catalog.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	in, err := codec.DecodeCreateInput(jx.DecodeBytes(body))
	if err != nil {
		writeErr(w, r, err)
		return
	}

	c, err := h.svc.CreateCoupon(r.Context(), in)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	var e jx.Encoder
	codec.EncodeCoupon(&e, *c)
	writeJSON(w, http.StatusCreated, e.Bytes())
}

// ListCoupons returns every coupon in the catalog in creation order.
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.svc.List(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}

	var e jx.Encoder
	codec.EncodeCoupons(&e, coupons)
	writeJSON(w, http.StatusOK, e.Bytes())
}

// BestCoupon selects the coupon giving the largest discount for the posted
// user context and cart, and records one use of it.
func (h *Handler) BestCoupon(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	req, err := codec.DecodeSelectRequest(jx.DecodeBytes(body))
	if err != nil {
		writeErr(w, r, err)
		return
	}

	sel, err := h.svc.SelectBest(r.Context(), req)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	var e jx.Encoder
	codec.EncodeSelection(&e, sel)
	writeJSON(w, http.StatusOK, e.Bytes())
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", nil)
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "failed to read request body", nil)
		return nil, false
	}
	return body, true
}

// writeErr maps domain errors to HTTP responses.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var verr *coupon.ValidationError
	if errors.As(err, &verr) {
		writeError(w, http.StatusBadRequest, "invalid coupon", verr.Fields)
		return
	}

	var dup *coupon.DuplicateCodeError
	if errors.As(err, &dup) {
		writeError(w, http.StatusConflict, dup.Error(), nil)
		return
	}

	if errors.Is(err, coupon.ErrInvalidRequest) {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	zctx.From(r.Context()).Error("Request failed",
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal error", nil)
}

func writeError(w http.ResponseWriter, code int, message string, fields []coupon.FieldError) {
	var e jx.Encoder
	codec.EncodeError(&e, code, message, fields)
	writeJSON(w, code, e.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
