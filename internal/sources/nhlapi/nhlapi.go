// Package nhlapi implements the download source for the league's JSON
// API: the season schedule feed enumerates game ids and the gamecenter
// boxscore feed supplies per-game statistics.
package nhlapi

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cooneycw/nhl-api-sub002/internal/download"
	"github.com/cooneycw/nhl-api-sub002/internal/httpclient"
	"github.com/cooneycw/nhl-api-sub002/observability"
	"github.com/cooneycw/nhl-api-sub002/observability/types"
)

const sourceName = "nhl_api"

// scheduleResponse is the subset of the schedule feed we consume; the
// rest of the document is ignored.
type scheduleResponse struct {
	Games []scheduledGame `json:"games"`
}

type scheduledGame struct {
	ID       int64  `json:"id"`
	GameType int    `json:"gameType"`
	GameDate string `json:"gameDate"`
}

// Source downloads schedule and boxscore documents from the JSON API.
type Source struct {
	baseURL string
	client  *httpclient.Client
	logger  types.Logger
}

// New creates the JSON API source. The source owns the client and
// releases it on Close.
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

// FetchItem downloads the boxscore for one game id. The decoded document
// is kept opaque; downstream consumers interpret it.
func (s *Source) FetchItem(ctx context.Context, itemID string) (*download.Result, error) {
	gameID, err := strconv.ParseInt(itemID, 10, 64)
	if err != nil {
		return nil, download.NewError(sourceName, itemID, "item key is not a game id", err)
	}

	url := fmt.Sprintf("%s/v1/gamecenter/%d/boxscore", s.baseURL, gameID)
	body, _, err := s.client.Get(ctx, url, sourceName, itemID)
	if err != nil {
		return nil, err
	}

	var boxscore map[string]interface{}
	if err := json.Unmarshal(body, &boxscore); err != nil {
		return nil, download.NewError(sourceName, itemID, "malformed boxscore document", err)
	}

	result := download.NewResult(sourceName, seasonOf(gameID), itemID, download.StatusCompleted, boxscore)
	result.RawContent = body
	return result, nil
}

// ListItems enumerates the game ids of a season from the schedule feed.
// Each call re-queries the feed, so a resumed batch sees games added
// since the previous run.
func (s *Source) ListItems(ctx context.Context, seasonID string) (download.ItemList, error) {
	url := fmt.Sprintf("%s/v1/schedule/season/%s", s.baseURL, seasonID)
	body, _, err := s.client.Get(ctx, url, sourceName, "")
	if err != nil {
		return nil, err
	}

	var schedule scheduleResponse
	if err := json.Unmarshal(body, &schedule); err != nil {
		return nil, download.NewError(sourceName, "", "malformed schedule document", err)
	}

	keys := make([]string, 0, len(schedule.Games))
	for _, game := range schedule.Games {
		keys = append(keys, strconv.FormatInt(game.ID, 10))
	}

	s.logger.Debug(ctx, "listed season games", types.Fields{
		"season_id": seasonID,
		"count":     len(keys),
	})
	return download.StaticItems(keys), nil
}

// HealthCheck probes the schedule endpoint for the current day.
func (s *Source) HealthCheck(ctx context.Context) error {
	_, _, err := s.client.Get(ctx, s.baseURL+"/v1/schedule/now", sourceName, "")
	return err
}

// Close releases the HTTP connection pool.
func (s *Source) Close() error {
	return s.client.Close()
}

// seasonOf derives the season id from a game id; the leading four digits
// are the season's starting year.
func seasonOf(gameID int64) string {
	id := strconv.FormatInt(gameID, 10)
	if len(id) < 4 {
		return ""
	}
	startYear, err := strconv.Atoi(id[:4])
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%d%d", startYear, startYear+1)
}
