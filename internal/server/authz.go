package server

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/envledger/envledger/internal/routing"
	"github.com/envledger/envledger/pkg/authz"
)

func loadAuthorizer() (*authz.Authorizer, error) {
	modelPath := os.Getenv("AUTHZ_MODEL_PATH")
	if modelPath == "" {
		p, err := findConfigFile("config/access/model.conf")
		if err != nil {
			return nil, err
		}
		modelPath = p
	}

	policyPath := os.Getenv("AUTHZ_POLICY_PATH")
	if policyPath == "" {
		p, err := findConfigFile("config/access/policy.csv")
		if err != nil {
			return nil, err
		}
		policyPath = p
	}

	mode, err := authz.ModeFromEnv()
	if err != nil {
		return nil, err
	}
	return authz.NewAuthorizer(modelPath, policyPath, mode)
}

func findConfigFile(rel string) (string, error) {
	path := rel
	for range 8 {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		path = filepath.Join("..", path)
	}
	return "", errors.New("server: config file not found: " + rel)
}

// requireRelation runs the external authorization check and writes the
// refusal itself. Shadow mode evaluates but never blocks.
func (h *handler) requireRelation(w http.ResponseWriter, r *http.Request, relation string, resourceType string, resourceID string) bool {
	subject := authz.SubjectFromUserID(actorFromRequest(r))
	allowed, enforced, err := h.authz.Check(subject, relation, resourceType, resourceID)
	if err != nil {
		routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusInternalServerError, "authz_error", "authorization check failed")
		return false
	}
	if !allowed && enforced {
		routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusForbidden, "forbidden", "missing relation "+relation)
		return false
	}
	return true
}
