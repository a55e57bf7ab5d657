package server

import (
	"net/http"
	"strings"

	"github.com/envledger/envledger/internal/routing"
	"github.com/envledger/envledger/modules/ledger/domain/types"
)

const actorHeader = "X-Actor-Id"

// scopeFromRequest reads the (org, app, env) triple off the query string.
// Every ledger route is scoped; a partial triple is rejected before any
// store call.
func scopeFromRequest(w http.ResponseWriter, r *http.Request) (types.Scope, bool) {
	q := r.URL.Query()
	scope := types.Scope{
		OrgID:     strings.TrimSpace(q.Get("org")),
		AppID:     strings.TrimSpace(q.Get("app")),
		EnvTypeID: strings.TrimSpace(q.Get("env")),
	}
	if err := scope.Validate(); err != nil {
		routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusBadRequest, "SCOPE_INCOMPLETE", "org, app and env query parameters are required")
		return types.Scope{}, false
	}
	return scope, true
}

func orgFromRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	org := strings.TrimSpace(r.URL.Query().Get("org"))
	if org == "" {
		routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusBadRequest, "ORG_REQUIRED", "org query parameter is required")
		return "", false
	}
	return org, true
}

func actorFromRequest(r *http.Request) string {
	actor := strings.TrimSpace(r.Header.Get(actorHeader))
	if actor == "" {
		return "anonymous"
	}
	return actor
}
