package server

import (
	"net/http"
	"strings"

	"github.com/envledger/envledger/modules/ledger/domain/types"
	"github.com/envledger/envledger/modules/ledger/services"
	"github.com/envledger/envledger/pkg/authz"
)

type rollbackRequest struct {
	Checkpoint string `json:"checkpoint"`
	Key        string `json:"key"`
	Message    string `json:"message"`
}

type rollbackResponse struct {
	NoOp       bool              `json:"noop"`
	RecordID   string            `json:"record_id,omitempty"`
	Operations []types.Operation `json:"operations"`
}

// rollbackHandler converges the scope (or one key of it, when Key is set)
// back to the requested checkpoint. An already-converged state is a 200
// with noop=true, not an error.
func (h *handler) rollbackHandler(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromRequest(w, r)
	if !ok {
		return
	}
	var req rollbackRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cp, err := requireCheckpoint(req.Checkpoint)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	relation := h.writeRelation(r, scope, authz.RelationRollback, authz.RelationElevatedRollback)
	if !h.requireRelation(w, r, relation, authz.ResourceEnvironment, scope.String()) {
		return
	}

	actor := actorFromRequest(r)
	key := strings.TrimSpace(req.Key)
	var result services.RollbackResult
	if key != "" {
		result, err = h.rollback.RollbackSingleKey(r.Context(), scope, actor, key, cp, req.Message)
	} else {
		result, err = h.rollback.RollbackToCheckpoint(r.Context(), scope, actor, cp, req.Message)
	}
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	h.audit.Emit(r.Context(), AuditEvent{Action: "rollback", Scope: scope, ActorID: actor, RecordID: result.Record.ID, Keys: opKeys(result.Operations)})
	writeJSON(w, http.StatusOK, rollbackResponse{NoOp: result.NoOp, RecordID: result.Record.ID, Operations: result.Operations})
}
