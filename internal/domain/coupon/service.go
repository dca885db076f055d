package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/xenking/coupon-selector/internal/domain/coupon"

// ServiceConfig holds optional telemetry providers. Nil providers are
// replaced with no-op implementations.
type ServiceConfig struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// SelectRequest carries the inputs of SelectBest. Both fields are required.
type SelectRequest struct {
	User *UserContext
	Cart *Cart
}

// Service creates coupons and selects the best one for a user and cart.
type Service struct {
	catalog Catalog
	ledger  Ledger
	lg      *zap.Logger
	now     func() time.Time

	tracer     trace.Tracer
	selections metric.Int64Counter
	creations  metric.Int64Counter
}

// NewService creates a Service backed by the given catalog and usage ledger.
func NewService(cfg ServiceConfig, catalog Catalog, ledger Ledger, lg *zap.Logger) (*Service, error) {
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = tracenoop.NewTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = metricnoop.NewMeterProvider()
	}

	meter := cfg.MeterProvider.Meter(instrumentationName)
	selections, err := meter.Int64Counter("coupon.selections",
		metric.WithDescription("Best coupon selections by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create selections counter")
	}
	creations, err := meter.Int64Counter("coupon.creations",
		metric.WithDescription("Coupon creations by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create creations counter")
	}

	return &Service{
		catalog:    catalog,
		ledger:     ledger,
		lg:         lg,
		now:        time.Now,
		tracer:     cfg.TracerProvider.Tracer(instrumentationName),
		selections: selections,
		creations:  creations,
	}, nil
}

// CreateCoupon validates in and stores the resulting coupon. It returns a
// *ValidationError for malformed input and a *DuplicateCodeError when the
// code is already taken. Nothing is stored on error.
func (s *Service) CreateCoupon(ctx context.Context, in CreateInput) (*Coupon, error) {
	ctx, span := s.tracer.Start(ctx, "coupon.CreateCoupon")
	defer span.End()

	c, err := Build(in)
	if err != nil {
		s.countCreation(ctx, "invalid")
		return nil, err
	}

	if err := s.catalog.Insert(ctx, c); err != nil {
		if errors.Is(err, ErrDuplicateCode) {
			s.countCreation(ctx, "duplicate")
			return nil, err
		}
		span.RecordError(err)
		return nil, errors.Wrap(err, "insert coupon")
	}

	s.countCreation(ctx, "created")
	s.lg.Info("Coupon created",
		zap.String("code", c.Code),
		zap.String("type", string(c.DiscountType)),
		zap.Time("end_date", c.EndDate),
	)

	out := c.Clone()
	return &out, nil
}

// List returns the current catalog snapshot.
func (s *Service) List(ctx context.Context) ([]Coupon, error) {
	coupons, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "snapshot catalog")
	}
	return coupons, nil
}

// SelectBest evaluates the catalog for the user and cart, picks the best
// eligible coupon and records one use of it for the user. It returns nil when
// no coupon applies; that is not an error. Coupons whose evaluation fails are
// skipped.
func (s *Service) SelectBest(ctx context.Context, req SelectRequest) (*Selection, error) {
	ctx, span := s.tracer.Start(ctx, "coupon.SelectBest")
	defer span.End()

	if err := validateSelectRequest(req); err != nil {
		s.countSelection(ctx, "invalid")
		return nil, err
	}
	user, cart := *req.User, *req.Cart

	coupons, err := s.catalog.Snapshot(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "snapshot catalog")
	}

	now := s.now()
	candidates := make([]Candidate, 0, len(coupons))
	for _, c := range coupons {
		if cand, ok := s.evaluate(ctx, c, user, cart, now); ok {
			candidates = append(candidates, cand)
		}
	}

	// The eligibility pass read usage without holding anything; TryConsume
	// re-checks the limit atomically and a lost race falls through to the
	// next candidate.
	for _, cand := range Rank(candidates) {
		consumed, err := s.ledger.TryConsume(ctx, cand.Coupon.Code, user.UserID, cand.Coupon.UsageLimitPerUser)
		if err != nil {
			span.RecordError(err)
			return nil, errors.Wrapf(err, "record usage of %q", cand.Coupon.Code)
		}
		if !consumed {
			s.lg.Debug("Usage limit reached concurrently",
				zap.String("code", cand.Coupon.Code),
				zap.String("user_id", user.UserID),
			)
			continue
		}

		s.countSelection(ctx, "selected")
		span.SetAttributes(attribute.String("coupon.code", cand.Coupon.Code))
		s.lg.Debug("Coupon selected",
			zap.String("code", cand.Coupon.Code),
			zap.String("user_id", user.UserID),
			zap.Stringer("discount", cand.Discount),
			zap.Int("candidates", len(candidates)),
		)
		return &Selection{Coupon: cand.Coupon, Discount: cand.Discount}, nil
	}

	s.countSelection(ctx, "none")
	return nil, nil
}

// evaluate checks one coupon and computes its discount. Any fault, including
// a panic on malformed stored data, skips the coupon.
func (s *Service) evaluate(ctx context.Context, c Coupon, user UserContext, cart Cart, now time.Time) (cand Candidate, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			s.lg.Warn("Skipping coupon after evaluation panic",
				zap.String("code", c.Code),
				zap.Any("panic", rec),
			)
			cand, ok = Candidate{}, false
		}
	}()

	used := 0
	if _, limited := c.UsageLimitPerUser.Get(); limited {
		n, err := s.ledger.Count(ctx, c.Code, user.UserID)
		if err != nil {
			s.lg.Warn("Skipping coupon, usage lookup failed",
				zap.String("code", c.Code),
				zap.Error(err),
			)
			return Candidate{}, false
		}
		used = n
	}

	if err := CheckEligibility(c, used, user, cart, now); err != nil {
		return Candidate{}, false
	}

	discount := ComputeDiscount(c, cart)
	if !discount.IsPositive() {
		return Candidate{}, false
	}
	return Candidate{Coupon: c, Discount: discount}, true
}

func validateSelectRequest(req SelectRequest) error {
	if req.User == nil {
		return errors.Wrap(ErrInvalidRequest, "userContext is required")
	}
	if req.Cart == nil {
		return errors.Wrap(ErrInvalidRequest, "cart is required")
	}
	if req.User.UserID == "" {
		return errors.Wrap(ErrInvalidRequest, "userContext.userId is required")
	}
	for i, item := range req.Cart.Items {
		if item.Quantity <= 0 {
			return errors.Wrapf(ErrInvalidRequest, "cart.items[%d].quantity must be greater than 0", i)
		}
		if item.UnitPrice.IsNegative() {
			return errors.Wrapf(ErrInvalidRequest, "cart.items[%d].unitPrice must not be negative", i)
		}
	}
	return nil
}

func (s *Service) countSelection(ctx context.Context, outcome string) {
	s.selections.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (s *Service) countCreation(ctx context.Context, outcome string) {
	s.creations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
