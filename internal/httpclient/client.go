// Package httpclient wraps net/http with the error classification the
// retry handler expects: 429 and 5xx responses come back as retryable
// errors carrying any server-supplied Retry-After delay, everything else
// non-2xx is fatal for the item.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cooneycw/nhl-api-sub002/config"
	"github.com/cooneycw/nhl-api-sub002/internal/download"
	"github.com/cooneycw/nhl-api-sub002/observability"
	"github.com/cooneycw/nhl-api-sub002/observability/types"
)

// maxResponseBytes bounds response bodies; the largest payloads we fetch
// are boxscore JSON documents well under a megabyte.
const maxResponseBytes = 32 << 20

// Client is the shared HTTP client used by every download source.
type Client struct {
	httpClient *http.Client
	userAgent  string
	logger     types.Logger
	metrics    types.Metrics
}

// New builds a client from the HTTP configuration.
func New(cfg *config.HTTPConfig, logger types.Logger, metrics types.Metrics) *Client {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	if metrics == nil {
		metrics = observability.NopMetrics{}
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		userAgent:  cfg.UserAgent,
		logger:     logger,
		metrics:    metrics,
	}
}

// Get fetches url and returns the response body and headers. Transient
// failures (connection errors, 429, 5xx) are returned as
// *download.RetryableError; other non-2xx statuses as *download.Error.
// source and itemID only annotate errors.
func (c *Client) Get(ctx context.Context, url, source, itemID string) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, download.NewError(source, itemID, "invalid request", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Context errors propagate as-is so cancellation is not retried.
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		c.metrics.RecordError("http_get", "connection_error")
		return nil, nil, download.NewRetryableError(source, itemID, "request failed", 0, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.metrics.RecordError("http_get", "read_error")
		return nil, nil, download.NewRetryableError(source, itemID, "failed to read response body", 0, 0, err)
	}

	elapsed := time.Since(start)
	c.metrics.RecordDuration("http_get", elapsed.Seconds())

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		c.metrics.RecordSuccess("http_get")
		c.metrics.RecordFileSize("http_get", int64(len(body)))
		return body, resp.Header, nil

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		c.metrics.RecordError("http_get", fmt.Sprintf("status_%d", resp.StatusCode))
		c.logger.Warn(ctx, "transient http failure", types.Fields{
			"url":         url,
			"status":      resp.StatusCode,
			"retry_after": retryAfter.String(),
		})
		return nil, resp.Header, download.NewRetryableError(
			source, itemID,
			fmt.Sprintf("server returned %s", resp.Status),
			resp.StatusCode, retryAfter, nil,
		)

	default:
		c.metrics.RecordError("http_get", fmt.Sprintf("status_%d", resp.StatusCode))
		return nil, resp.Header, download.NewError(
			source, itemID,
			fmt.Sprintf("server returned %s", resp.Status),
			nil,
		)
	}
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// parseRetryAfter handles both forms of the header: delay seconds and an
// HTTP-date. Unparseable values yield zero, letting backoff decide.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
