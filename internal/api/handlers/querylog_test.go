package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jroosing/odns/internal/api/handlers"
	"github.com/jroosing/odns/internal/api/models"
	"github.com/jroosing/odns/internal/config"
	"github.com/jroosing/odns/internal/database"
)

// queryLogFake is a fakeStore variant that records the filter it was last
// called with, so the handler's query-param parsing can be asserted on.
type queryLogFake struct {
	fakeStore
	lastFilter database.QueryLogFilter
	rows       []database.QueryLogRow
}

func (f *queryLogFake) ListQueryLogs(_ context.Context, filter database.QueryLogFilter) ([]database.QueryLogRow, error) {
	f.lastFilter = filter
	return f.rows, nil
}

func TestQueryLogDefaultsAndClamps(t *testing.T) {
	store := &queryLogFake{rows: []database.QueryLogRow{
		{ID: 1, Timestamp: 100, Domain: "example.com", QType: 1, ResponseCode: 0, ResponseDelayMs: 5},
	}}
	h := handlers.New(&config.Config{}, nil)
	h.SetStore(store)
	r := setupTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/querylog?limit=5000&offset=-3&order=asc", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 100, store.lastFilter.Limit, "out-of-range limit falls back to the default")
	assert.Equal(t, 0, store.lastFilter.Offset, "negative offset clamps to zero")
	assert.True(t, store.lastFilter.Ascending)

	var resp models.QueryLogListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, "example.com", resp.Entries[0].Domain)
}

func TestQueryLogStoreNotInitialized(t *testing.T) {
	h := handlers.New(&config.Config{}, nil)
	r := setupTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/querylog", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
