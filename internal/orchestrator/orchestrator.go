// Package orchestrator drives a download batch: it walks one source's
// item list sequentially, gating every request through the rate limiter
// and retry handler, persisting each outcome in the progress store, and
// emitting progress to the optional archiver, publisher and callback.
//
// Failure policy: an individual item failure is recorded and the batch
// moves on; only systemic failures (failed health check, unreachable
// progress store, cancellation) stop a batch.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cooneycw/nhl-api-sub002/internal/archive"
	"github.com/cooneycw/nhl-api-sub002/internal/download"
	"github.com/cooneycw/nhl-api-sub002/internal/progress"
	"github.com/cooneycw/nhl-api-sub002/internal/publisher"
	"github.com/cooneycw/nhl-api-sub002/internal/ratelimit"
	"github.com/cooneycw/nhl-api-sub002/internal/retry"
	"github.com/cooneycw/nhl-api-sub002/observability"
	obslogger "github.com/cooneycw/nhl-api-sub002/observability/logger"
	"github.com/cooneycw/nhl-api-sub002/observability/types"
)

// ProgressFunc is invoked synchronously after every finished item.
// current is 1-based and total is the batch size after filtering.
type ProgressFunc func(current, total int, status download.Status, message string)

// Request describes one batch run.
type Request struct {
	// SeasonID selects the season to enumerate. Empty for sources whose
	// items are not seasonal.
	SeasonID string
	// Filter, when non-nil, restricts the batch to item keys it accepts.
	Filter func(itemKey string) bool
	// Force re-fetches items the store already records as successful.
	Force bool
	// SkipHealthCheck starts the batch without probing the source.
	SkipHealthCheck bool
	// BatchID tags progress rows and events; generated when empty.
	BatchID string
}

// Summary is the outcome of a batch run.
type Summary struct {
	BatchID   string
	Source    string
	SeasonID  string
	Total     int
	Completed int
	Failed    int
	Skipped   int
	Duration  time.Duration
}

// Options carries the optional collaborators of an Orchestrator.
type Options struct {
	Archiver   archive.Archiver
	Publisher  publisher.Publisher
	OnProgress ProgressFunc
	Logger     types.Logger
	Metrics    types.Metrics
}

// Orchestrator runs batches against a single Downloader.
type Orchestrator struct {
	downloader download.Downloader
	limiter    *ratelimit.Limiter
	retrier    *retry.Handler
	store      progress.Store

	archiver   archive.Archiver
	publisher  publisher.Publisher
	onProgress ProgressFunc
	logger     types.Logger
	metrics    types.Metrics
}

// New wires an Orchestrator. downloader, limiter, retrier and store are
// required; everything in opts is optional.
func New(d download.Downloader, limiter *ratelimit.Limiter, retrier *retry.Handler, store progress.Store, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = observability.NopLogger{}
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.NopMetrics{}
	}
	return &Orchestrator{
		downloader: d,
		limiter:    limiter,
		retrier:    retrier,
		store:      store,
		archiver:   opts.Archiver,
		publisher:  opts.Publisher,
		onProgress: opts.OnProgress,
		logger:     logger,
		metrics:    metrics,
	}
}

// Run executes one batch. The returned Summary is valid even when err is
// non-nil: on cancellation it reflects the work done so far.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Summary, error) {
	start := time.Now()
	source := o.downloader.SourceName()

	batchID := req.BatchID
	if batchID == "" {
		batchID = uuid.NewString()
	}
	ctx = obslogger.WithBatchID(ctx, batchID)
	ctx = obslogger.WithSource(ctx, source)
	if req.SeasonID != "" {
		ctx = obslogger.WithSeasonID(ctx, req.SeasonID)
	}

	summary := &Summary{
		BatchID:  batchID,
		Source:   source,
		SeasonID: req.SeasonID,
	}

	o.metrics.StartOperation("batch_" + source)
	defer o.metrics.EndOperation("batch_" + source)

	if !req.SkipHealthCheck {
		if err := o.healthCheck(ctx); err != nil {
			return summary, err
		}
	}

	list, err := o.downloader.ListItems(ctx, req.SeasonID)
	if err != nil {
		return summary, fmt.Errorf("listing items for %s: %w", source, err)
	}
	keys, err := download.Collect(ctx, list, req.Filter)
	if err != nil {
		return summary, fmt.Errorf("enumerating items for %s: %w", source, err)
	}
	summary.Total = len(keys)

	o.logger.Info(ctx, "starting batch", types.Fields{
		"total": summary.Total,
		"force": req.Force,
	})

	var seasonID *string
	if req.SeasonID != "" {
		seasonID = &req.SeasonID
	}

	for i, itemKey := range keys {
		// Cancellation is honored at item boundaries only; an in-flight
		// item always reaches a terminal recorded state.
		if err := ctx.Err(); err != nil {
			summary.Duration = time.Since(start)
			return summary, err
		}

		current := i + 1
		status, message := o.runItem(ctx, req, seasonID, batchID, itemKey)

		switch status {
		case download.StatusCompleted:
			summary.Completed++
		case download.StatusSkipped:
			summary.Skipped++
		case download.StatusFailed:
			summary.Failed++
		}

		if o.onProgress != nil {
			o.onProgress(current, summary.Total, status, message)
		}
	}

	summary.Duration = time.Since(start)
	o.metrics.RecordDuration("batch_"+source, summary.Duration.Seconds())
	o.logger.Info(ctx, "batch finished", types.Fields{
		"total":       summary.Total,
		"completed":   summary.Completed,
		"failed":      summary.Failed,
		"skipped":     summary.Skipped,
		"duration_ms": summary.Duration.Milliseconds(),
	})
	return summary, nil
}

// runItem takes one item through its full lifecycle and returns the
// terminal status plus a message for the progress callback.
func (o *Orchestrator) runItem(ctx context.Context, req Request, seasonID *string, batchID, itemKey string) (download.Status, string) {
	source := o.downloader.SourceName()

	if !req.Force {
		entry, err := o.store.GetByKey(ctx, source, seasonID, itemKey)
		if err == nil && entry.IsComplete() {
			o.logger.Debug(ctx, "item already complete, skipping", types.Fields{
				"source":   source,
				"item_key": itemKey,
			})
			return download.StatusSkipped, "already downloaded"
		}
		if err != nil && !errors.Is(err, progress.ErrNotFound) {
			o.logger.Warn(ctx, "progress lookup failed, fetching anyway", types.Fields{
				"item_key": itemKey,
				"error":    err.Error(),
			})
		}
	}

	progressID, err := o.store.UpsertProgress(ctx, progress.UpsertParams{
		SourceID: source,
		SeasonID: seasonID,
		ItemKey:  itemKey,
		BatchID:  &batchID,
		Status:   progress.StatusPending,
	})
	if err != nil {
		o.logger.Error(ctx, "failed to record pending item", err, types.Fields{
			"source":   source,
			"item_key": itemKey,
		})
		return download.StatusFailed, fmt.Sprintf("progress store unavailable: %v", err)
	}

	fetchStart := time.Now()
	res := retry.ExecuteWithResult(ctx, o.retrier, "fetch_"+source, func(ctx context.Context) (*download.Result, error) {
		// Every attempt, including retries, takes a rate permit and bumps
		// the durable attempt counter.
		if _, err := o.limiter.Wait(ctx, o.downloader.BaseURL()); err != nil {
			return nil, err
		}
		if err := o.store.IncrementAttempts(ctx, progressID); err != nil {
			o.logger.Warn(ctx, "failed to increment attempts", types.Fields{
				"item_key": itemKey,
				"error":    err.Error(),
			})
		}
		return o.downloader.FetchItem(ctx, itemKey)
	})
	elapsed := time.Since(fetchStart)

	if !res.Succeeded() {
		result := download.NewFailedResult(source, req.SeasonID, itemKey, res.Err.Error())
		result.RetryCount = res.Attempts - 1
		o.persist(ctx, progressID, result, elapsed)
		o.publish(ctx, batchID, result)
		return download.StatusFailed, result.ErrorMessage
	}

	result := res.Value
	result.RetryCount = res.Attempts - 1
	o.persist(ctx, progressID, result, elapsed)

	if o.archiver != nil {
		// Best effort: the parsed payload is already persisted by the
		// caller's pipeline, losing the raw copy must not fail the item.
		if err := o.archiver.Archive(ctx, result); err != nil {
			o.logger.Warn(ctx, "failed to archive raw content", types.Fields{
				"item_key": itemKey,
				"error":    err.Error(),
			})
		}
	}
	o.publish(ctx, batchID, result)
	return download.StatusCompleted, ""
}

// persist records the terminal state of an item. When the batch context
// is already cancelled a short detached context is used so the outcome
// still reaches the store.
func (o *Orchestrator) persist(ctx context.Context, progressID int64, result *download.Result, elapsed time.Duration) {
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
	}

	var err error
	if result.IsSuccessful() {
		err = o.store.MarkSuccess(ctx, progressID, int64(len(result.RawContent)), elapsed.Milliseconds())
	} else {
		err = o.store.MarkFailed(ctx, progressID, result.ErrorMessage)
	}
	if err != nil {
		o.logger.Error(ctx, "failed to persist item outcome", err, types.Fields{
			"progress_id": progressID,
			"item_key":    result.ItemID,
			"status":      string(result.Status),
		})
	}
}

func (o *Orchestrator) publish(ctx context.Context, batchID string, result *download.Result) {
	if o.publisher == nil {
		return
	}
	event := publisher.Event{
		BatchID:      batchID,
		Source:       result.Source,
		SeasonID:     result.SeasonID,
		ItemKey:      result.ItemID,
		Status:       result.Status,
		ErrorMessage: result.ErrorMessage,
		RetryCount:   result.RetryCount,
		OccurredAt:   result.DownloadedAt,
	}
	if err := o.publisher.PublishProgress(ctx, event); err != nil {
		o.logger.Warn(ctx, "failed to publish progress event", types.Fields{
			"item_key": result.ItemID,
			"error":    err.Error(),
		})
	}
}

// healthCheck probes the source with retries; a source that cannot be
// reached aborts the batch before any item is attempted.
func (o *Orchestrator) healthCheck(ctx context.Context) error {
	source := o.downloader.SourceName()
	_, err := retry.Execute(ctx, o.retrier, "health_check_"+source, func(ctx context.Context) (struct{}, error) {
		if _, err := o.limiter.Wait(ctx, o.downloader.BaseURL()); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, o.downloader.HealthCheck(ctx)
	})
	if err != nil {
		o.metrics.RecordError("health_check_"+source, "unreachable")
		return &download.HealthCheckError{Source: source, Cause: err}
	}
	return nil
}

// Stats reports the store's view of a batch.
func (o *Orchestrator) Stats(ctx context.Context, batchID string) (*progress.BatchStats, error) {
	return o.store.GetBatchStats(ctx, batchID)
}
