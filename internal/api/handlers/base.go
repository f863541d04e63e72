// Package handlers implements the REST API endpoint handlers for odns.
//
// @title odns Management API
// @version 1.0
// @description REST API for managing odns's access lists and observing server
// @description health, statistics, and resolved-query history.
//
// @contact.name odns
// @contact.url https://github.com/jroosing/odns
//
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
//
// @host localhost:8080
// @BasePath /api/v1
//
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/jroosing/odns/internal/config"
	"github.com/jroosing/odns/internal/database"
	"github.com/jroosing/odns/internal/server"
)

// ListStore is the subset of *database.DB the list-entry handlers need.
type ListStore interface {
	InsertListEntry(ctx context.Context, e database.ListEntryRow) (int64, error)
	DeleteListEntry(ctx context.Context, id int64) (database.ListEntryRow, bool, error)
	ListAllEntries(ctx context.Context) ([]database.ListEntryRow, error)
}

// QueryLogStore is the subset of *database.DB the query-log handler needs.
type QueryLogStore interface {
	ListQueryLogs(ctx context.Context, filter database.QueryLogFilter) ([]database.QueryLogRow, error)
	CountQueryLogs(ctx context.Context) (int64, error)
}

// Handler contains dependencies for API handlers.
type Handler struct {
	cfg       *config.Config
	logger    *slog.Logger
	startTime time.Time

	db       ListStore
	queryLog QueryLogStore
	commands chan<- server.Command
}

// New creates a new Handler with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) *Handler {
	return &Handler{
		cfg:       cfg,
		logger:    logger,
		startTime: time.Now(),
	}
}

// Store is satisfied by *database.DB; handlers depend on it through this
// narrower interface so tests can substitute a fake.
type Store interface {
	ListStore
	QueryLogStore
}

// SetStore wires the access-list and query-log store, normally a
// *database.DB.
func (h *Handler) SetStore(store Store) {
	h.db = store
	h.queryLog = store
}

// SetCommands wires the channel write handlers publish AddListEntry /
// RemoveListEntry mutations onto, consumed by the running server's command
// loop.
func (h *Handler) SetCommands(commands chan<- server.Command) {
	h.commands = commands
}
