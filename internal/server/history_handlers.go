package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/envledger/envledger/internal/routing"
	"github.com/envledger/envledger/pkg/authz"
)

func (h *handler) history(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromRequest(w, r)
	if !ok {
		return
	}
	if !h.requireRelation(w, r, authz.RelationViewVariables, authz.ResourceEnvironment, scope.String()) {
		return
	}
	page := intQuery(r, "page", 1)
	perPage := intQuery(r, "per_page", 20)
	if page < 0 || perPage < 0 {
		routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusBadRequest, "PAGE_INVALID", "page and per_page must be integers")
		return
	}
	recs, total, err := h.ledger.Paginate(r.Context(), scope, page, perPage)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"records":  recs,
		"total":    total,
		"page":     page,
		"per_page": perPage,
	})
}

func intQuery(r *http.Request, name string, def int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return n
}

func (h *handler) stateAt(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromRequest(w, r)
	if !ok {
		return
	}
	if !h.requireRelation(w, r, authz.RelationViewVariables, authz.ResourceEnvironment, scope.String()) {
		return
	}
	cp, err := parseCheckpoint(r.URL.Query().Get("at"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	state, err := h.pit.StateAt(r.Context(), scope, cp)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"variables": sortedViews(state)})
}

func (h *handler) diff(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromRequest(w, r)
	if !ok {
		return
	}
	if !h.requireRelation(w, r, authz.RelationViewVariables, authz.ResourceEnvironment, scope.String()) {
		return
	}
	from, err := parseCheckpoint(r.URL.Query().Get("from"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	to, err := parseCheckpoint(r.URL.Query().Get("to"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	d, err := h.pit.Diff(r.Context(), scope, from, to)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *handler) timeline(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromRequest(w, r)
	if !ok {
		return
	}
	key := strings.TrimSpace(r.URL.Query().Get("key"))
	if key == "" {
		routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusBadRequest, "KEY_REQUIRED", "key query parameter is required")
		return
	}
	if !h.requireRelation(w, r, authz.RelationViewVariables, authz.ResourceEnvironment, scope.String()) {
		return
	}
	limit := intQuery(r, "limit", 0)
	entries, err := h.pit.Timeline(r.Context(), scope, key, limit)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "entries": entries})
}
