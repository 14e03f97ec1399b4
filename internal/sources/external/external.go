// Package external implements the download source for a third-party
// statistics site. The season index page links every game's boxscore
// page; item keys are the site-relative boxscore paths found there.
//
// The site is shared infrastructure we do not control, so this source is
// always run behind the per-domain rate limiter.
package external

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cooneycw/nhl-api-sub002/internal/download"
	"github.com/cooneycw/nhl-api-sub002/internal/httpclient"
	"github.com/cooneycw/nhl-api-sub002/observability"
	"github.com/cooneycw/nhl-api-sub002/observability/types"
)

const sourceName = "external_stats"

// boxscoreLink matches anchor hrefs of game pages on the season index,
// e.g. /boxscores/202310100TOR.html.
var boxscoreLink = regexp.MustCompile(`href="(/boxscores/\d{9}[A-Z]{3}\.html)"`)

// Source downloads game pages from the third-party site.
type Source struct {
	baseURL string
	client  *httpclient.Client
	logger  types.Logger
}

// New creates the third-party site source.
func New(baseURL string, client *httpclient.Client, logger types.Logger) *Source {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	return &Source{
		baseURL: baseURL,
		client:  client,
		logger:  logger,
	}
}

func (s *Source) SourceName() string { return sourceName }

func (s *Source) BaseURL() string { return s.baseURL }

// FetchItem downloads one game page. The payload is the raw page bytes.
func (s *Source) FetchItem(ctx context.Context, itemID string) (*download.Result, error) {
	if !strings.HasPrefix(itemID, "/") {
		return nil, download.NewError(sourceName, itemID, "item key is not a site-relative path", nil)
	}

	body, _, err := s.client.Get(ctx, s.baseURL+itemID, sourceName, itemID)
	if err != nil {
		return nil, err
	}

	result := download.NewResult(sourceName, "", itemID, download.StatusCompleted, body)
	result.RawContent = body
	return result, nil
}

// ListItems scrapes the season index page for boxscore links. Duplicate
// links (the index lists each game in several tables) collapse to one
// key.
func (s *Source) ListItems(ctx context.Context, seasonID string) (download.ItemList, error) {
	year, err := seasonEndYear(seasonID)
	if err != nil {
		return nil, download.NewError(sourceName, "", "malformed season id", err)
	}

	url := fmt.Sprintf("%s/leagues/NHL_%d_games.html", s.baseURL, year)
	body, _, err := s.client.Get(ctx, url, sourceName, "")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var keys []string
	for _, match := range boxscoreLink.FindAllSubmatch(body, -1) {
		key := string(match[1])
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}

	s.logger.Debug(ctx, "scraped season index", types.Fields{
		"season_id": seasonID,
		"count":     len(keys),
	})
	return download.StaticItems(keys), nil
}

// HealthCheck probes the site root.
func (s *Source) HealthCheck(ctx context.Context) error {
	_, _, err := s.client.Get(ctx, s.baseURL+"/", sourceName, "")
	return err
}

// Close releases the HTTP connection pool.
func (s *Source) Close() error {
	return s.client.Close()
}

// seasonEndYear maps "20232024" to 2024, the year the site keys its
// season pages by.
func seasonEndYear(seasonID string) (int, error) {
	if len(seasonID) != 8 {
		return 0, fmt.Errorf("expected YYYYYYYY, got %q", seasonID)
	}
	return strconv.Atoi(seasonID[4:])
}
