package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jroosing/odns/internal/api/models"
	"github.com/jroosing/odns/internal/database"
	"github.com/jroosing/odns/internal/resolver"
)

const (
	defaultQueryLogLimit = 100
	maxQueryLogLimit     = 1000
)

// QueryLog godoc
// @Summary Query the resolved-query history
// @Description Returns a page of the persisted query log, newest first
// @Description unless order=asc is given.
// @Tags querylog
// @Produce json
// @Param limit query int false "max rows to return (default 100, max 1000)"
// @Param offset query int false "rows to skip"
// @Param since query int false "only rows at or after this unix timestamp"
// @Param order query string false "asc or desc (default desc)"
// @Security ApiKeyAuth
// @Success 200 {object} models.QueryLogListResponse
// @Router /querylog [get]
func (h *Handler) QueryLog(c *gin.Context) {
	if h.queryLog == nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "store not initialized"})
		return
	}

	limit := queryInt(c, "limit", defaultQueryLogLimit)
	if limit <= 0 || limit > maxQueryLogLimit {
		limit = defaultQueryLogLimit
	}
	offset := queryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	since := int64(queryInt(c, "since", 0))

	filter := database.QueryLogFilter{
		Limit:         limit,
		Offset:        offset,
		FromTimestamp: since,
		Ascending:     c.Query("order") == "asc",
	}

	rows, err := h.queryLog.ListQueryLogs(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		return
	}

	entries := make([]models.QueryLogEntryResponse, 0, len(rows))
	for _, r := range rows {
		entry := models.QueryLogEntryResponse{
			ID:              r.ID,
			Timestamp:       r.Timestamp,
			Domain:          r.Domain,
			QType:           r.QType,
			Client:          r.Client.String,
			ResponseCode:    r.ResponseCode,
			ResponseDelayMs: r.ResponseDelayMs,
		}
		if r.Source.Valid {
			entry.Source = resolver.Source(r.Source.Int16).String()
		}
		entries = append(entries, entry)
	}

	c.JSON(http.StatusOK, models.QueryLogListResponse{Entries: entries, Limit: limit, Offset: offset})
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
