package server

import (
	"net/http"
	"strings"

	"github.com/envledger/envledger/internal/routing"
	"github.com/envledger/envledger/modules/ledger/domain/types"
	"github.com/envledger/envledger/modules/ledger/services"
	"github.com/envledger/envledger/pkg/authz"
)

type applySecretsRequest struct {
	Message string `json:"message"`
	Writes  []struct {
		Key       string `json:"key"`
		Plaintext string `json:"plaintext"`
		Kind      string `json:"kind"`
	} `json:"writes"`
}

func (h *handler) applySecrets(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromRequest(w, r)
	if !ok {
		return
	}
	var req applySecretsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	relation := h.writeRelation(r, scope, authz.RelationWriteVariables, authz.RelationElevatedWrite)
	if !h.requireRelation(w, r, relation, authz.ResourceEnvironment, scope.String()) {
		return
	}

	writes := make([]services.SecretWrite, 0, len(req.Writes))
	for _, sw := range req.Writes {
		writes = append(writes, services.SecretWrite{Key: sw.Key, Plaintext: sw.Plaintext, Kind: types.OpKind(sw.Kind)})
	}
	actor := actorFromRequest(r)
	rec, err := h.write.ApplySecrets(r.Context(), scope, actor, req.Message, writes)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	h.audit.Emit(r.Context(), AuditEvent{Action: "secrets.apply", Scope: scope, ActorID: actor, RecordID: rec.ID, Keys: opKeys(rec.Operations)})
	// Ciphertext, never plaintext, goes back over the wire.
	writeJSON(w, http.StatusOK, rec)
}

// getSecret returns the layer-2-unwrapped inner box. A BYOK client opens
// it locally; the plaintext never exists server-side on this path.
func (h *handler) getSecret(w http.ResponseWriter, r *http.Request) {
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
	inner, err := h.write.GetSecret(r.Context(), scope, key)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "sealed_value": inner})
}

type revealRequest struct {
	Keys []string `json:"keys"`
}

func (h *handler) revealSecrets(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromRequest(w, r)
	if !ok {
		return
	}
	var req revealRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Keys) == 0 {
		routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusBadRequest, "KEYS_REQUIRED", "keys is required")
		return
	}
	if !h.requireRelation(w, r, authz.RelationRevealSecrets, authz.ResourceEnvironment, scope.String()) {
		return
	}
	actor := actorFromRequest(r)
	values, err := h.write.RevealSecrets(r.Context(), scope, req.Keys)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	h.audit.Emit(r.Context(), AuditEvent{Action: "secrets.reveal", Scope: scope, ActorID: actor, Keys: req.Keys})
	writeJSON(w, http.StatusOK, map[string]any{"values": values})
}
