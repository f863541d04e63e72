package handlers

import (
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jroosing/odns/internal/accesslist"
	"github.com/jroosing/odns/internal/api/models"
	"github.com/jroosing/odns/internal/database"
	"github.com/jroosing/odns/internal/resolver"
	"github.com/jroosing/odns/internal/server"
)

func kindFromString(s string) (database.EntryKind, resolver.EntryKind, bool) {
	switch s {
	case "deny":
		return database.KindDeny, resolver.KindDenyDomain, true
	case "deny_regex":
		return database.KindDenyRegex, resolver.KindDenyRegex, true
	case "allow_a":
		return database.KindAllowA, resolver.KindHosts, true
	case "allow_aaaa":
		return database.KindAllowAAAA, resolver.KindHosts, true
	default:
		return 0, 0, false
	}
}

func kindToString(k database.EntryKind) string {
	switch k {
	case database.KindDeny:
		return "deny"
	case database.KindDenyRegex:
		return "deny_regex"
	case database.KindAllowA:
		return "allow_a"
	case database.KindAllowAAAA:
		return "allow_aaaa"
	default:
		return "unknown"
	}
}

func rowToResponse(e database.ListEntryRow) models.ListEntryResponse {
	return models.ListEntryResponse{
		ID:        e.ID,
		Timestamp: e.Timestamp,
		Domain:    e.Domain,
		Kind:      kindToString(e.Kind),
		Data:      e.Data.String,
		Label:     e.Label.String,
	}
}

// ListEntries godoc
// @Summary List access-list entries
// @Description Returns every dynamically added denylist/hosts-list entry
// @Tags lists
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {array} models.ListEntryResponse
// @Router /lists [get]
func (h *Handler) ListEntries(c *gin.Context) {
	if h.db == nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "store not initialized"})
		return
	}
	rows, err := h.db.ListAllEntries(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		return
	}
	out := make([]models.ListEntryResponse, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToResponse(r))
	}
	c.JSON(http.StatusOK, out)
}

// AddEntry godoc
// @Summary Add an access-list entry
// @Description Adds a deny, deny_regex, allow_a, or allow_aaaa entry and
// @Description applies it to the running resolver immediately.
// @Tags lists
// @Accept json
// @Produce json
// @Param entry body models.AddListEntryRequest true "entry to add"
// @Security ApiKeyAuth
// @Success 201 {object} models.ListEntryResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /lists [post]
func (h *Handler) AddEntry(c *gin.Context) {
	var req models.AddListEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	dbKind, resolverKind, ok := kindFromString(req.Kind)
	if !ok {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "unknown kind: " + req.Kind})
		return
	}
	if req.Domain == "" && dbKind != database.KindDenyRegex {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "domain is required"})
		return
	}
	if err := validateEntryData(resolverKind, req.Data); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	label := req.Label
	if label == "" {
		// Give every entry a stable client-facing correlation token the
		// caller can reference before it ever learns the row's assigned
		// autoincrement id.
		label = uuid.NewString()
	}

	row := database.ListEntryRow{
		Timestamp: time.Now().Unix(),
		Domain:    req.Domain,
		Kind:      dbKind,
		Data:      nullableString(req.Data),
		Label:     nullableString(label),
	}

	if h.db == nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "store not initialized"})
		return
	}
	id, err := h.db.InsertListEntry(c.Request.Context(), row)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		return
	}
	row.ID = id

	if h.commands != nil {
		if cmd, err := buildResolverCommand(resolverKind, id, req.Domain, req.Data, true); err == nil {
			h.commands <- server.Command{Op: server.OpAdd, Cmd: cmd}
		}
	}

	c.JSON(http.StatusCreated, rowToResponse(row))
}

// DeleteEntry godoc
// @Summary Remove an access-list entry
// @Description Deletes the entry by its assigned id and removes it from the
// @Description running resolver.
// @Tags lists
// @Produce json
// @Param id path int true "entry id"
// @Security ApiKeyAuth
// @Success 204
// @Failure 404 {object} models.ErrorResponse
// @Router /lists/{id} [delete]
func (h *Handler) DeleteEntry(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid id"})
		return
	}

	if h.db == nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "store not initialized"})
		return
	}
	row, found, err := h.db.DeleteListEntry(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "no such entry"})
		return
	}

	if h.commands != nil {
		_, resolverKind, _ := kindFromString(kindToString(row.Kind))
		if cmd, err := buildResolverCommand(resolverKind, row.ID, row.Domain, row.Data.String, false); err == nil {
			h.commands <- server.Command{Op: server.OpRemove, Cmd: cmd}
		}
	}

	c.Status(http.StatusNoContent)
}

// validateEntryData rejects a request whose data field can't back the
// resolver command it implies, before anything is persisted.
func validateEntryData(kind resolver.EntryKind, data string) error {
	switch kind {
	case resolver.KindDenyRegex:
		if _, err := regexp.Compile(data); err != nil {
			return errInvalidRegex
		}
	case resolver.KindHosts:
		if parseIP(data) == nil {
			return errInvalidIP
		}
	}
	return nil
}

// buildResolverCommand translates a persisted entry into the command the
// running resolver consumes. id is the row's database-assigned id; regex
// entries use it as their removal key, so the same id removes exactly the
// regex it added. forAdd selects whether a DenyRegex command carries its
// compiled pattern (adds do, removals match by id alone).
func buildResolverCommand(kind resolver.EntryKind, id int64, domain, data string, forAdd bool) (resolver.Command, error) {
	switch kind {
	case resolver.KindDenyDomain:
		return resolver.Command{Kind: resolver.KindDenyDomain, Hash: accesslist.HashDomain(domain)}, nil
	case resolver.KindDenyRegex:
		cmd := resolver.Command{Kind: resolver.KindDenyRegex, RegexID: uint32(id)}
		if forAdd {
			re, err := regexp.Compile(data)
			if err != nil {
				return resolver.Command{}, errInvalidRegex
			}
			cmd.Regex = re
		}
		return cmd, nil
	case resolver.KindHosts:
		ip := parseIP(data)
		if ip == nil {
			return resolver.Command{}, errInvalidIP
		}
		return resolver.Command{Kind: resolver.KindHosts, Hash: accesslist.HashDomain(domain), IP: ip}, nil
	default:
		return resolver.Command{}, errInvalidIP
	}
}
