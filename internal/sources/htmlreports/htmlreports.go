// Package htmlreports implements the download source for the official
// HTML game reports (game summary, event summary, play-by-play pages).
// Report pages carry no machine-readable index, so the item list is
// derived from the schedule of another source.
package htmlreports

import (
	"context"
	"fmt"
	"strings"

	"github.com/cooneycw/nhl-api-sub002/internal/download"
	"github.com/cooneycw/nhl-api-sub002/internal/httpclient"
	"github.com/cooneycw/nhl-api-sub002/observability"
	"github.com/cooneycw/nhl-api-sub002/observability/types"
)

const sourceName = "html_reports"

// Report type prefixes as they appear in report file names.
const (
	ReportGameSummary  = "GS"
	ReportEventSummary = "ES"
	ReportPlayByPlay   = "PL"
)

// GameLister supplies the game ids of a season. The JSON API source
// satisfies it, which is how report keys stay aligned with the schedule.
type GameLister interface {
	ListItems(ctx context.Context, seasonID string) (download.ItemList, error)
}

// Source downloads HTML game report pages. Item keys embed the season
// directory, e.g. "20232024/GS020500", because the report URL layout
// groups files by season.
type Source struct {
	baseURL     string
	client      *httpclient.Client
	games       GameLister
	reportTypes []string
	logger      types.Logger
}

// New creates the HTML report source. reportTypes defaults to game
// summary, event summary and play-by-play when empty.
func New(baseURL string, client *httpclient.Client, games GameLister, reportTypes []string, logger types.Logger) *Source {
	if len(reportTypes) == 0 {
		reportTypes = []string{ReportGameSummary, ReportEventSummary, ReportPlayByPlay}
	}
	if logger == nil {
		logger = observability.NopLogger{}
	}
	return &Source{
		baseURL:     baseURL,
		client:      client,
		games:       games,
		reportTypes: reportTypes,
		logger:      logger,
	}
}

func (s *Source) SourceName() string { return sourceName }

func (s *Source) BaseURL() string { return s.baseURL }

// FetchItem downloads one report page. The payload is the raw page; the
// reports are rendered HTML and parsing them is a downstream concern.
func (s *Source) FetchItem(ctx context.Context, itemID string) (*download.Result, error) {
	seasonID, _, ok := splitKey(itemID)
	if !ok {
		return nil, download.NewError(sourceName, itemID, "item key is not season/report", nil)
	}

	url := fmt.Sprintf("%s/%s.HTM", s.baseURL, itemID)
	body, _, err := s.client.Get(ctx, url, sourceName, itemID)
	if err != nil {
		return nil, err
	}

	result := download.NewResult(sourceName, seasonID, itemID, download.StatusCompleted, body)
	result.RawContent = body
	return result, nil
}

// ListItems expands the season's schedule into one key per game per
// report type. The report file name uses the last six digits of the game
// id, matching the upstream layout.
func (s *Source) ListItems(ctx context.Context, seasonID string) (download.ItemList, error) {
	games, err := s.games.ListItems(ctx, seasonID)
	if err != nil {
		return nil, fmt.Errorf("list season games: %w", err)
	}

	gameIDs, err := download.Collect(ctx, games, nil)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(gameIDs)*len(s.reportTypes))
	for _, gameID := range gameIDs {
		number, ok := gameNumber(gameID)
		if !ok {
			s.logger.Warn(ctx, "skipping malformed game id", types.Fields{"game_id": gameID})
			continue
		}
		for _, rt := range s.reportTypes {
			keys = append(keys, fmt.Sprintf("%s/%s%s", seasonID, rt, number))
		}
	}

	return download.StaticItems(keys), nil
}

// HealthCheck probes the report root.
func (s *Source) HealthCheck(ctx context.Context) error {
	_, _, err := s.client.Get(ctx, s.baseURL+"/", sourceName, "")
	return err
}

// Close releases the HTTP connection pool.
func (s *Source) Close() error {
	return s.client.Close()
}

func splitKey(itemID string) (seasonID, report string, ok bool) {
	parts := strings.SplitN(itemID, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// gameNumber extracts the six-digit report file number from a full game
// id, e.g. "2023020500" yields "020500".
func gameNumber(gameID string) (string, bool) {
	if len(gameID) < 6 {
		return "", false
	}
	return gameID[len(gameID)-6:], true
}
