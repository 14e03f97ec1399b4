// Command nhl-collector runs download batches against the configured
// statistics sources and records per-item progress in Postgres, making
// interrupted runs resumable.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/cooneycw/nhl-api-sub002/config"
	"github.com/cooneycw/nhl-api-sub002/internal/archive"
	"github.com/cooneycw/nhl-api-sub002/internal/database"
	"github.com/cooneycw/nhl-api-sub002/internal/download"
	"github.com/cooneycw/nhl-api-sub002/internal/httpclient"
	"github.com/cooneycw/nhl-api-sub002/internal/orchestrator"
	"github.com/cooneycw/nhl-api-sub002/internal/progress"
	"github.com/cooneycw/nhl-api-sub002/internal/publisher"
	"github.com/cooneycw/nhl-api-sub002/internal/ratelimit"
	"github.com/cooneycw/nhl-api-sub002/internal/retry"
	"github.com/cooneycw/nhl-api-sub002/internal/sources/external"
	"github.com/cooneycw/nhl-api-sub002/internal/sources/htmlreports"
	"github.com/cooneycw/nhl-api-sub002/internal/sources/nhlapi"
	"github.com/cooneycw/nhl-api-sub002/observability"
	"github.com/cooneycw/nhl-api-sub002/observability/types"
)

func main() {
	var (
		sourceFlag      = flag.String("source", "nhl_api", "sources to collect, comma separated (nhl_api, html_reports, external_stats) or 'all'")
		seasonFlag      = flag.String("season", "", "season to collect, e.g. 20232024")
		forceFlag       = flag.Bool("force", false, "re-download items already recorded as successful")
		skipHealthFlag  = flag.Bool("skip-health-check", false, "start batches without probing source reachability")
		resetFailedFlag = flag.Bool("reset-failed", false, "reset failed progress entries to pending before running")
	)
	flag.Parse()

	if err := run(*sourceFlag, *seasonFlag, *forceFlag, *skipHealthFlag, *resetFailedFlag); err != nil {
		fmt.Fprintf(os.Stderr, "nhl-collector: %v\n", err)
		os.Exit(1)
	}
}

func run(sourceFlag, seasonID string, force, skipHealth, resetFailed bool) error {
	provider := config.GetProvider()
	if err := provider.Load(); err != nil {
		return err
	}
	cfg := provider.MustGet()

	obs := observability.NewProvider(&observability.Config{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		LogLevel:    cfg.LogLevel,
		AdditionalFields: observability.Fields{
			"version": cfg.Version,
		},
	})
	defer obs.Close()

	logger := obs.Logger("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		startMetricsServer(ctx, cfg.Metrics.Addr, logger)
	}

	db, err := database.New(&cfg.Database, obs.Logger("database"), obs.Metrics("database"))
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	store := progress.NewPostgresStore(db, obs.Logger("progress"), obs.Metrics("progress"))

	limiter, err := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.BurstSize,
		PerDomain:         cfg.RateLimit.PerDomain,
	}, obs.Logger("ratelimit"))
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	policy, err := retry.NewPolicy(
		cfg.Retry.MaxRetries,
		cfg.Retry.BaseDelay,
		cfg.Retry.MaxDelay,
		cfg.Retry.ExponentialBase,
		cfg.Retry.JitterFactor,
		cfg.Retry.RetryableStatusCodes,
	)
	if err != nil {
		return fmt.Errorf("retry policy: %w", err)
	}
	retrier := retry.NewHandler(policy, obs.Logger("retry"), obs.Metrics("retry"))

	var archiver archive.Archiver
	if cfg.Archive.Enabled {
		s3, err := archive.NewS3Archiver(&cfg.Archive, obs.Logger("archive"), obs.Metrics("archive"))
		if err != nil {
			return fmt.Errorf("archive: %w", err)
		}
		archiver = s3
	}

	var pub publisher.Publisher
	if cfg.Publisher.Enabled {
		stream, err := publisher.NewStreamPublisher(&cfg.Publisher, obs.Logger("publisher"), obs.Metrics("publisher"))
		if err != nil {
			return fmt.Errorf("publisher: %w", err)
		}
		defer stream.Close()
		pub = stream
	}

	downloaders, err := buildSources(cfg, sourceFlag, obs)
	if err != nil {
		return err
	}
	defer func() {
		for _, d := range downloaders {
			d.Close()
		}
	}()

	if resetFailed {
		var season *string
		if seasonID != "" {
			season = &seasonID
		}
		for _, d := range downloaders {
			count, err := store.ResetFailed(ctx, d.SourceName(), season)
			if err != nil {
				return fmt.Errorf("reset failed for %s: %w", d.SourceName(), err)
			}
			logger.Info(ctx, "reset failed entries", types.Fields{
				"source": d.SourceName(),
				"count":  count,
			})
		}
	}

	// Sources live on distinct domains, so parallel batches do not
	// contend for rate permits. Batches are independent of each other:
	// a plain group never cancels siblings, so one source failing its
	// health check cannot abort another source mid-batch. The signal
	// context is the only shared cancellation.
	var g errgroup.Group
	for _, d := range downloaders {
		d := d
		g.Go(func() error {
			orch := orchestrator.New(d, limiter, retrier, store, orchestrator.Options{
				Archiver:   archiver,
				Publisher:  pub,
				OnProgress: progressLogger(ctx, logger, d.SourceName()),
				Logger:     obs.Logger("orchestrator"),
				Metrics:    obs.Metrics("orchestrator"),
			})

			summary, err := orch.Run(ctx, orchestrator.Request{
				SeasonID:        seasonID,
				Force:           force,
				SkipHealthCheck: skipHealth,
			})
			if err != nil {
				return fmt.Errorf("batch %s: %w", d.SourceName(), err)
			}

			logger.Info(ctx, "batch summary", types.Fields{
				"source":    summary.Source,
				"batch_id":  summary.BatchID,
				"total":     summary.Total,
				"completed": summary.Completed,
				"failed":    summary.Failed,
				"skipped":   summary.Skipped,
			})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn(ctx, "collection interrupted", nil)
		}
		return err
	}
	return nil
}

// buildSources instantiates the requested downloaders. The HTML report
// source enumerates games through the JSON API source, so requesting it
// always constructs an API client as well.
func buildSources(cfg *config.Config, sourceFlag string, obs observability.Provider) ([]download.Downloader, error) {
	requested := make(map[string]bool)
	for _, name := range strings.Split(sourceFlag, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if name == "all" {
			requested["nhl_api"] = true
			requested["html_reports"] = true
			requested["external_stats"] = true
			continue
		}
		requested[name] = true
	}
	if len(requested) == 0 {
		return nil, fmt.Errorf("no sources requested")
	}

	newClient := func(component string) *httpclient.Client {
		return httpclient.New(&cfg.HTTP, obs.Logger(component), obs.Metrics(component))
	}

	var downloaders []download.Downloader
	for name := range requested {
		switch name {
		case "nhl_api":
			downloaders = append(downloaders, nhlapi.New(cfg.Sources.APIBaseURL, newClient("nhl_api"), obs.Logger("nhl_api")))
		case "html_reports":
			// The report source and its schedule lister share one client;
			// the client is not bound to a base URL and the source closes
			// it for both.
			client := newClient("html_reports")
			lister := nhlapi.New(cfg.Sources.APIBaseURL, client, obs.Logger("nhl_api"))
			downloaders = append(downloaders, htmlreports.New(cfg.Sources.ReportsBaseURL, client, lister, nil, obs.Logger("html_reports")))
		case "external_stats":
			downloaders = append(downloaders, external.New(cfg.Sources.ExternalBaseURL, newClient("external_stats"), obs.Logger("external_stats")))
		default:
			return nil, fmt.Errorf("unknown source %q", name)
		}
	}
	return downloaders, nil
}

// progressLogger reports batch progress periodically and every failure
// immediately.
func progressLogger(ctx context.Context, logger types.Logger, source string) orchestrator.ProgressFunc {
	return func(current, total int, status download.Status, message string) {
		switch {
		case status == download.StatusFailed:
			logger.Warn(ctx, "item failed", types.Fields{
				"source":  source,
				"current": current,
				"total":   total,
				"error":   message,
			})
		case current%50 == 0 || current == total:
			logger.Info(ctx, "batch progress", types.Fields{
				"source":  source,
				"current": current,
				"total":   total,
			})
		}
	}
}

// startMetricsServer exposes the Prometheus scrape endpoint until the
// run context is cancelled.
func startMetricsServer(ctx context.Context, addr string, logger types.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "metrics server failed", err, nil)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info(ctx, "metrics server listening", types.Fields{"addr": addr})
}
