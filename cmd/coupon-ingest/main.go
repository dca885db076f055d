// Command coupon-ingest loads coupon definitions from gzip-compressed NDJSON
// files into the catalog configured for coupon-api.
//
//	coupon-ingest [-workers N] [-expected N] file.ndjson.gz...
package main

import (
	"context"
	"flag"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	appkg "github.com/xenking/coupon-selector/internal/app"
	"github.com/xenking/coupon-selector/internal/domain/coupon"
	"github.com/xenking/coupon-selector/internal/ingest"
)

func main() {
	var cfg ingest.Config
	flag.IntVar(&cfg.Workers, "workers", 4, "concurrent coupon writers")
	flag.UintVar(&cfg.ExpectedCodes, "expected", 1_000_000, "expected number of distinct codes")
	flag.Parse()

	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		files := flag.Args()
		if len(files) == 0 {
			return errors.New("no input files")
		}

		appCfg, err := appkg.LoadConfig()
		if err != nil {
			return err
		}
		if appCfg.Storage.Driver != appkg.DriverPostgres {
			lg.Warn("Catalog storage is not persistent, imported coupons are discarded on exit",
				zap.String("driver", appCfg.Storage.Driver),
			)
		}

		storage, err := appkg.OpenStorage(ctx, lg, appCfg)
		if err != nil {
			return err
		}
		defer func() { _ = storage.Close() }()

		svc, err := coupon.NewService(coupon.ServiceConfig{
			TracerProvider: m.TracerProvider(),
			MeterProvider:  m.MeterProvider(),
		}, storage.Catalog, storage.Ledger, lg.Named("coupon"))
		if err != nil {
			return errors.Wrap(err, "create coupon service")
		}

		lg.Info("Importing", zap.Strings("files", files), zap.Int("workers", cfg.Workers))
		stats, err := ingest.New(svc, lg.Named("ingest"), cfg).ImportFiles(ctx, files...)
		lg.Info("Import finished",
			zap.Int64("lines", stats.Lines),
			zap.Int64("created", stats.Created),
			zap.Int64("duplicate", stats.Duplicate),
			zap.Int64("invalid", stats.Invalid),
		)
		if err != nil {
			return errors.Wrap(err, "import")
		}
		return nil
	})
}
