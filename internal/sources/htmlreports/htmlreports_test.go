package htmlreports

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cooneycw/nhl-api-sub002/config"
	"github.com/cooneycw/nhl-api-sub002/internal/download"
	"github.com/cooneycw/nhl-api-sub002/internal/httpclient"
)

type staticLister struct {
	gameIDs []string
}

func (l staticLister) ListItems(ctx context.Context, seasonID string) (download.ItemList, error) {
	return download.StaticItems(l.gameIDs), nil
}

func newTestSource(t *testing.T, handler http.Handler, lister GameLister, reportTypes []string) *Source {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := httpclient.New(&config.HTTPConfig{Timeout: 5 * time.Second}, nil, nil)
	return New(srv.URL, client, lister, reportTypes, nil)
}

func TestListItems_ExpandsGamesIntoReports(t *testing.T) {
	s := newTestSource(t, http.NewServeMux(), staticLister{gameIDs: []string{"2023020001", "2023020500"}}, nil)
	defer s.Close()

	list, err := s.ListItems(context.Background(), "20232024")
	require.NoError(t, err)

	keys, err := download.Collect(context.Background(), list, nil)
	require.NoError(t, err)

	// Two games times the three default report types.
	assert.Len(t, keys, 6)
	assert.Contains(t, keys, "20232024/GS020001")
	assert.Contains(t, keys, "20232024/ES020001")
	assert.Contains(t, keys, "20232024/PL020500")
}

func TestListItems_CustomReportTypes(t *testing.T) {
	s := newTestSource(t, http.NewServeMux(), staticLister{gameIDs: []string{"2023020001"}}, []string{ReportGameSummary})
	defer s.Close()

	list, err := s.ListItems(context.Background(), "20232024")
	require.NoError(t, err)

	keys, err := download.Collect(context.Background(), list, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"20232024/GS020001"}, keys)
}

func TestFetchItem_DownloadsReportPage(t *testing.T) {
	page := []byte(`<html><body>GAME SUMMARY</body></html>`)
	mux := http.NewServeMux()
	mux.HandleFunc("/20232024/GS020001.HTM", func(w http.ResponseWriter, r *http.Request) {
		w.Write(page)
	})

	s := newTestSource(t, mux, staticLister{}, nil)
	defer s.Close()

	result, err := s.FetchItem(context.Background(), "20232024/GS020001")
	require.NoError(t, err)

	assert.Equal(t, "html_reports", result.Source)
	assert.Equal(t, "20232024", result.SeasonID)
	assert.True(t, result.IsSuccessful())
	assert.Equal(t, page, result.RawContent)
}

func TestFetchItem_RejectsMalformedKey(t *testing.T) {
	s := newTestSource(t, http.NewServeMux(), staticLister{}, nil)
	defer s.Close()

	_, err := s.FetchItem(context.Background(), "GS020001")
	var fatal *download.Error
	assert.ErrorAs(t, err, &fatal)
}

func TestGameNumber(t *testing.T) {
	number, ok := gameNumber("2023020500")
	assert.True(t, ok)
	assert.Equal(t, "020500", number)

	_, ok = gameNumber("123")
	assert.False(t, ok)
}

func TestSplitKey(t *testing.T) {
	season, report, ok := splitKey("20232024/GS020001")
	assert.True(t, ok)
	assert.Equal(t, "20232024", season)
	assert.Equal(t, "GS020001", report)

	_, _, ok = splitKey("noseparator")
	assert.False(t, ok)

	_, _, ok = splitKey("/GS020001")
	assert.False(t, ok)
}
