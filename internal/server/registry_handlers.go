package server

import (
	"net/http"

	"github.com/envledger/envledger/modules/ledger/domain/types"
	"github.com/envledger/envledger/pkg/authz"
	"github.com/envledger/envledger/pkg/envelope"
	"github.com/envledger/envledger/pkg/storeerr"
)

func (h *handler) listApps(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	if !h.requireRelation(w, r, authz.RelationManageRegistry, authz.ResourceOrg, orgID) {
		return
	}
	apps, err := h.registry.ListApps(r.Context(), orgID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"apps": apps})
}

type createAppRequest struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	EnableSecrets   bool   `json:"enable_secrets"`
	IsManagedSecret bool   `json:"is_managed_secret"`
	PublicKey       string `json:"public_key"`
}

// createApp registers an app. Managed-secret apps get a server-minted
// keypair; BYOK secrets apps must bring their own public key, which the
// store enforces.
func (h *handler) createApp(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	if !h.requireRelation(w, r, authz.RelationManageRegistry, authz.ResourceOrg, orgID) {
		return
	}
	var req createAppRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	app := types.App{
		OrgID:           orgID,
		ID:              req.ID,
		Name:            req.Name,
		EnableSecrets:   req.EnableSecrets,
		IsManagedSecret: req.IsManagedSecret,
		PublicKey:       req.PublicKey,
	}
	if app.IsManagedSecret {
		if app.PublicKey != "" {
			writeStoreError(w, r, storeerr.New(storeerr.KindValidation, "MANAGED_KEY_NOT_ACCEPTED"))
			return
		}
		pub, priv, err := envelope.GenerateKeyPair()
		if err != nil {
			writeStoreError(w, r, storeerr.Wrap(storeerr.KindUnavailable, "KEYGEN_FAILED", err))
			return
		}
		app.PublicKey = pub
		app.PrivateKey = priv
	}
	created, err := h.registry.CreateApp(r.Context(), app)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	h.audit.Emit(r.Context(), AuditEvent{Action: "registry.app.create", ActorID: actorFromRequest(r), Keys: []string{created.ID}})
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) listEnvironmentTypes(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	if !h.requireRelation(w, r, authz.RelationManageRegistry, authz.ResourceOrg, orgID) {
		return
	}
	envTypes, err := h.registry.ListEnvironmentTypes(r.Context(), orgID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"environment_types": envTypes})
}

type createEnvTypeRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IsProtected bool   `json:"is_protected"`
}

func (h *handler) createEnvironmentType(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	if !h.requireRelation(w, r, authz.RelationManageRegistry, authz.ResourceOrg, orgID) {
		return
	}
	var req createEnvTypeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	created, err := h.registry.CreateEnvironmentType(r.Context(), types.EnvironmentType{
		OrgID:       orgID,
		ID:          req.ID,
		Name:        req.Name,
		IsProtected: req.IsProtected,
	})
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	h.audit.Emit(r.Context(), AuditEvent{Action: "registry.envtype.create", ActorID: actorFromRequest(r), Keys: []string{created.ID}})
	writeJSON(w, http.StatusCreated, created)
}
