package server

import (
	"net/http"
	"sort"
	"strings"

	"github.com/envledger/envledger/internal/routing"
	"github.com/envledger/envledger/modules/ledger/domain/types"
	"github.com/envledger/envledger/pkg/authz"
)

// writeRelation picks the relation a mutating call must hold. Protected
// environment types demand the elevated one. An environment type missing
// from the registry is treated as unprotected.
func (h *handler) writeRelation(r *http.Request, scope types.Scope, plain string, elevated string) string {
	et, err := h.registry.GetEnvironmentType(r.Context(), scope.OrgID, scope.EnvTypeID)
	if err == nil && et.IsProtected {
		return elevated
	}
	return plain
}

type variableView struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	Secret    bool   `json:"secret"`
	Version   int64  `json:"version"`
	UpdatedAt string `json:"updated_at"`
}

func viewOf(e types.Entry) variableView {
	return variableView{
		Key:       e.Key,
		Value:     e.Value,
		Secret:    e.Secret,
		Version:   e.Version,
		UpdatedAt: e.UpdatedAt.UTC().Format("2006-01-02T15:04:05.999999Z07:00"),
	}
}

func sortedViews(state map[string]types.Entry) []variableView {
	out := make([]variableView, 0, len(state))
	for _, e := range state {
		out = append(out, viewOf(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (h *handler) listVariables(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromRequest(w, r)
	if !ok {
		return
	}
	if !h.requireRelation(w, r, authz.RelationViewVariables, authz.ResourceEnvironment, scope.String()) {
		return
	}
	state, err := h.ledger.Snapshot(r.Context(), scope)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"variables": sortedViews(state)})
}

func (h *handler) getVariable(w http.ResponseWriter, r *http.Request) {
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
	entry, err := h.ledger.Get(r.Context(), scope, key)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(entry))
}

type applyVariablesRequest struct {
	Message    string `json:"message"`
	Operations []struct {
		Key   string `json:"key"`
		Value string `json:"value"`
		Kind  string `json:"kind"`
	} `json:"operations"`
}

func (h *handler) applyVariables(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromRequest(w, r)
	if !ok {
		return
	}
	var req applyVariablesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	relation := h.writeRelation(r, scope, authz.RelationWriteVariables, authz.RelationElevatedWrite)
	if !h.requireRelation(w, r, relation, authz.ResourceEnvironment, scope.String()) {
		return
	}

	ops := make([]types.Operation, 0, len(req.Operations))
	for _, op := range req.Operations {
		ops = append(ops, types.Operation{Key: op.Key, Value: op.Value, Kind: types.OpKind(op.Kind)})
	}
	actor := actorFromRequest(r)
	rec, err := h.write.ApplyVariables(r.Context(), scope, actor, req.Message, ops)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	h.audit.Emit(r.Context(), AuditEvent{Action: "variables.apply", Scope: scope, ActorID: actor, RecordID: rec.ID, Keys: opKeys(rec.Operations)})
	writeJSON(w, http.StatusOK, rec)
}

func opKeys(ops []types.Operation) []string {
	keys := make([]string, 0, len(ops))
	for _, op := range ops {
		keys = append(keys, op.Key)
	}
	return keys
}
