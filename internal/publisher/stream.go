// Package publisher emits per-item progress events to Redis streams so
// downstream consumers (parsers, dashboards) can react to completed
// downloads without polling the database.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cooneycw/nhl-api-sub002/config"
	"github.com/cooneycw/nhl-api-sub002/internal/download"
	"github.com/cooneycw/nhl-api-sub002/observability"
	"github.com/cooneycw/nhl-api-sub002/observability/types"
)

// Event is the payload published for each finished item.
type Event struct {
	BatchID      string          `json:"batch_id"`
	Source       string          `json:"source"`
	SeasonID     string          `json:"season_id,omitempty"`
	ItemKey      string          `json:"item_key"`
	Status       download.Status `json:"status"`
	ErrorMessage string          `json:"error_message,omitempty"`
	RetryCount   int             `json:"retry_count"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

// Publisher emits progress events.
type Publisher interface {
	PublishProgress(ctx context.Context, event Event) error
	Close() error
}

// StreamPublisher publishes events to a per-source Redis stream, capped
// with approximate MAXLEN trimming.
type StreamPublisher struct {
	client    *redis.Client
	streamKey string
	maxLen    int64
	logger    types.Logger
	metrics   types.Metrics
}

// NewStreamPublisher connects to Redis and verifies it with a ping.
func NewStreamPublisher(cfg *config.PublisherConfig, logger types.Logger, metrics types.Metrics) (*StreamPublisher, error) {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	if metrics == nil {
		metrics = observability.NopMetrics{}
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &StreamPublisher{
		client:    client,
		streamKey: cfg.StreamKey,
		maxLen:    cfg.MaxLen,
		logger:    logger,
		metrics:   metrics,
	}, nil
}

// PublishProgress appends the event to the source's stream.
func (p *StreamPublisher) PublishProgress(ctx context.Context, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling progress event: %w", err)
	}

	stream := fmt.Sprintf("%s.%s", p.streamKey, event.Source)
	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data":     string(data),
			"item_key": event.ItemKey,
			"status":   string(event.Status),
		},
	}).Err()
	if err != nil {
		p.metrics.RecordError("publish_progress", "xadd_failed")
		p.logger.Error(ctx, "failed to publish progress event", err, types.Fields{
			"stream":   stream,
			"item_key": event.ItemKey,
		})
		return fmt.Errorf("publishing to %s: %w", stream, err)
	}

	p.metrics.RecordSuccess("publish_progress")
	return nil
}

// Close closes the Redis connection.
func (p *StreamPublisher) Close() error {
	return p.client.Close()
}
