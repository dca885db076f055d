// Package ingest bulk-loads coupon definitions from gzip-compressed NDJSON
// files into the catalog.
package ingest

import (
	"bufio"
	"context"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/coupon-selector/internal/codec"
	"github.com/xenking/coupon-selector/internal/domain/coupon"
)

const (
	defaultExpectedCodes = 1_000_000
	bloomFPR             = 0.001
	maxLineSize          = 1 << 20
	progressEvery        = 10_000
)

// Creator stores one coupon. *coupon.Service implements it.
type Creator interface {
	CreateCoupon(ctx context.Context, in coupon.CreateInput) (*coupon.Coupon, error)
}

// Config tunes an Importer.
type Config struct {
	// Workers is the number of concurrent CreateCoupon calls. Defaults to 4.
	Workers int
	// ExpectedCodes sizes the duplicate prefilter.
	ExpectedCodes uint
}

// Stats summarizes an import run.
type Stats struct {
	Lines     int64
	Created   int64
	Duplicate int64
	Invalid   int64
}

// Importer reads coupon definitions, one JSON object per line, from several
// files concurrently and creates each distinct code once. Lines for a code
// already settled in this run are counted as duplicates without a catalog
// round trip.
type Importer struct {
	creator Creator
	lg      *zap.Logger
	workers int

	mu     sync.Mutex
	filter *bloom.BloomFilter
	seen   map[string]struct{}

	lines, created, duplicate, invalid atomic.Int64
}

// New returns an Importer that creates coupons through creator.
func New(creator Creator, lg *zap.Logger, cfg Config) *Importer {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.ExpectedCodes == 0 {
		cfg.ExpectedCodes = defaultExpectedCodes
	}
	return &Importer{
		creator: creator,
		lg:      lg,
		workers: cfg.Workers,
		filter:  bloom.NewWithEstimates(cfg.ExpectedCodes, bloomFPR),
		seen:    make(map[string]struct{}),
	}
}

// ImportFiles imports every file. It stops at the first read error; invalid
// lines and duplicate codes are counted and skipped.
func (im *Importer) ImportFiles(ctx context.Context, paths ...string) (Stats, error) {
	g, ctx := errgroup.WithContext(ctx)
	inputs := make(chan coupon.CreateInput, im.workers*2)

	readers, rctx := errgroup.WithContext(ctx)
	for _, path := range paths {
		readers.Go(func() error {
			return im.readFile(rctx, path, inputs)
		})
	}
	g.Go(func() error {
		defer close(inputs)
		return readers.Wait()
	})

	for range im.workers {
		g.Go(func() error {
			for in := range inputs {
				if err := im.create(ctx, in); err != nil {
					return err
				}
			}
			return nil
		})
	}

	err := g.Wait()
	return im.Stats(), err
}

// Stats returns the counters collected so far.
func (im *Importer) Stats() Stats {
	return Stats{
		Lines:     im.lines.Load(),
		Created:   im.created.Load(),
		Duplicate: im.duplicate.Load(),
		Invalid:   im.invalid.Load(),
	}
}

func (im *Importer) readFile(ctx context.Context, path string, out chan<- coupon.CreateInput) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	if err := im.readLines(ctx, path, gz, out); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

func (im *Importer) readLines(ctx context.Context, path string, r io.Reader, out chan<- coupon.CreateInput) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		if n := im.lines.Add(1); n%progressEvery == 0 {
			im.lg.Info("Import progress", zap.Int64("lines", n))
		}

		in, err := codec.DecodeCreateInput(jx.DecodeBytes(raw))
		if err != nil {
			im.invalid.Add(1)
			im.lg.Debug("Skipping invalid line",
				zap.String("file", path),
				zap.Int("line", line),
				zap.Error(err),
			)
			continue
		}
		if im.settled(in.Code) {
			im.duplicate.Add(1)
			continue
		}

		select {
		case out <- in:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return scanner.Err()
}

// settled reports whether code was already created or found in the catalog
// during this run. Bloom positives are confirmed against the exact set.
func (im *Importer) settled(code string) bool {
	im.mu.Lock()
	defer im.mu.Unlock()

	if !im.filter.TestString(code) {
		return false
	}
	_, ok := im.seen[code]
	return ok
}

// settle records that code exists in the catalog. Invalid definitions are
// never settled, so a later valid line for the same code is still created.
func (im *Importer) settle(code string) {
	im.mu.Lock()
	defer im.mu.Unlock()

	im.filter.AddString(code)
	im.seen[code] = struct{}{}
}

func (im *Importer) create(ctx context.Context, in coupon.CreateInput) error {
	_, err := im.creator.CreateCoupon(ctx, in)
	var verr *coupon.ValidationError
	switch {
	case err == nil:
		im.created.Add(1)
		im.settle(in.Code)
	case errors.Is(err, coupon.ErrDuplicateCode):
		im.duplicate.Add(1)
		im.settle(in.Code)
	case errors.As(err, &verr):
		im.invalid.Add(1)
		im.lg.Debug("Skipping invalid coupon", zap.String("code", in.Code), zap.Error(err))
	default:
		return errors.Wrapf(err, "create coupon %q", in.Code)
	}
	return nil
}
