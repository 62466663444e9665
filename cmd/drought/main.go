// Command drought computes drought indices and sub-area alerts from the
// satellite archive and station feeds.
//
// Usage:
//
//	drought run [--mode AUTO|MANUAL|INDICES|DROUGHT] [--start 2024-01-01 --end 2024-04-01]
//	drought serve
//	drought masks
//	drought validate [--dir ./data/work]
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/couchcryptid/drought-monitor/internal/adapter/geotiff"
	httpadapter "github.com/couchcryptid/drought-monitor/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/drought-monitor/internal/adapter/kafka"
	"github.com/couchcryptid/drought-monitor/internal/config"
	"github.com/couchcryptid/drought-monitor/internal/domain"
	"github.com/couchcryptid/drought-monitor/internal/index"
	"github.com/couchcryptid/drought-monitor/internal/ledger"
	"github.com/couchcryptid/drought-monitor/internal/observability"
	"github.com/couchcryptid/drought-monitor/internal/pipeline"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not load .env file", "error", err)
	}

	app := &cli.App{
		Name:  "drought",
		Usage: "Drought indices and sub-area alerts",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Execute one processing run and exit",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "mode", Usage: "AUTO, MANUAL, INDICES or DROUGHT (overrides DROUGHT_MODE)"},
					&cli.StringFlag{Name: "start", Usage: "period start, YYYY-MM-DD (overrides PERIOD_START)"},
					&cli.StringFlag{Name: "end", Usage: "exclusive period end, YYYY-MM-DD (overrides PERIOD_END)"},
				},
				Action: runOnce,
			},
			{
				Name:   "serve",
				Usage:  "Run on a schedule with health, readiness and metrics endpoints",
				Action: serve,
			},
			{
				Name:   "masks",
				Usage:  "Rebuild the zone masks and look-up table from the latest index rasters",
				Action: buildMasks,
			},
			{
				Name:  "validate",
				Usage: "Check the alert and statistics ledgers for duplicate keys, ordering and unknown labels",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "dir", Usage: "ledger directory (defaults to WORK_DIR)"},
				},
				Action: validate,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("drought failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads the environment and applies command-line overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if c.IsSet("mode") {
		if cfg.Mode, err = domain.ParseMode(c.String("mode")); err != nil {
			return nil, err
		}
	}
	for _, o := range []struct {
		flag string
		dst  *time.Time
	}{{"start", &cfg.PeriodStart}, {"end", &cfg.PeriodEnd}} {
		if !c.IsSet(o.flag) {
			continue
		}
		t, err := time.Parse(config.DateLayout, c.String(o.flag))
		if err != nil {
			return nil, fmt.Errorf("invalid --%s: want YYYY-MM-DD", o.flag)
		}
		*o.dst = t
	}
	return cfg, nil
}

// app bundles what every command wires from configuration.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	metrics   *observability.Metrics
	runner    *pipeline.Runner
	publisher *kafkaadapter.Publisher
}

func newApp(c *cli.Context) (*app, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:     cfg,
		logger:  observability.NewLogger(cfg),
		metrics: observability.NewMetrics(),
	}
	deps := pipeline.Deps{
		Store:      geotiff.NewStore(a.logger),
		Rasterizer: geotiff.NewRasterizer(),
	}
	if cfg.KafkaEnabled() {
		a.publisher = kafkaadapter.NewPublisher(cfg, a.logger, a.metrics)
		deps.Sink = a.publisher
		a.logger.Info("kafka alert sink enabled", "topic", cfg.KafkaAlertTopic)
	} else {
		a.logger.Info("kafka alert sink disabled")
	}
	a.runner = pipeline.NewRunner(cfg, deps, a.logger, a.metrics)
	return a, nil
}

func (a *app) close() {
	if a.publisher == nil {
		return
	}
	if err := a.publisher.Close(); err != nil {
		a.logger.Error("kafka writer close error", "error", err)
	}
}

func runOnce(c *cli.Context) error {
	a, err := newApp(c)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := a.runner.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s (%d computed, %d skipped, %d failed, %d alerts)\n",
		res.Run, res.Outcome, res.Computed, res.Skipped, res.Failed, len(res.Alerts))
	return nil
}

func serve(c *cli.Context) error {
	a, err := newApp(c)
	if err != nil {
		return err
	}
	defer a.close()

	sched := pipeline.NewScheduler(a.runner, domain.Clock(), a.cfg.ScheduleInterval, a.logger)
	srv := httpadapter.NewServer(a.cfg.HTTPAddr, sched, a.logger)

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", "error", err)
		}
	}()

	// Start run scheduler.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := sched.Run(ctx); err != nil {
			a.logger.Error("scheduler error", "error", err)
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-done:
	case <-shutdownCtx.Done():
		a.logger.Warn("run still in progress at shutdown deadline")
	}

	a.logger.Info("shutdown complete")
	return nil
}

func buildMasks(c *cli.Context) error {
	a, err := newApp(c)
	if err != nil {
		return err
	}
	defer a.close()

	areas, err := a.runner.LoadAreas()
	if err != nil {
		return err
	}
	store := geotiff.NewStore(a.logger)
	arch := a.runner.Archive()
	for _, ind := range []string{index.ProductMAI, index.ProductVHI} {
		slot, ok, err := arch.Last(store, ind, "", domain.Monthly)
		if err != nil {
			return err
		}
		if !ok {
			a.logger.Warn("no raster to align mask with", "indicator", ind)
			continue
		}
		shape, err := store.Shape(arch.Path(ind, "", slot))
		if err != nil {
			return err
		}
		if _, err := a.runner.Masks().Build(ind, shape, areas); err != nil {
			return err
		}
		fmt.Printf("%s: %s (%dx%d, %d sub-areas)\n", ind, a.runner.Masks().Path(ind), shape.W, shape.H, len(areas))
	}
	return nil
}

func validate(c *cli.Context) error {
	dir := c.String("dir")
	if dir == "" {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		dir = cfg.WorkDir
	}

	checks, err := ledger.Validate(dir)
	if err != nil {
		return err
	}

	fmt.Println("=== Drought Ledger Validation ===")
	fmt.Println()
	allPassed := true
	for _, ch := range checks {
		status := "\033[32mPASS\033[0m"
		if !ch.Passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(ch.Errors))
			allPassed = false
		}
		fmt.Printf("  %-32s %6d rows  %s\n", ch.File, ch.Rows, status)
	}

	for _, ch := range checks {
		if ch.Passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", ch.File)
		for i, e := range ch.Errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if len(checks) == 0 {
		fmt.Println("No ledgers found in", dir)
	}
	if !allPassed {
		return cli.Exit("\nValidation FAILED.", 1)
	}
	fmt.Println("\nAll validations passed.")
	return nil
}
