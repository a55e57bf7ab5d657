package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/envledger/envledger/internal/routing"
	"github.com/envledger/envledger/modules/ledger/domain/ports"
	"github.com/envledger/envledger/modules/ledger/infrastructure/persistence"
	"github.com/envledger/envledger/modules/ledger/services"
	"github.com/envledger/envledger/pkg/authz"
	"github.com/envledger/envledger/pkg/envelope"
	"github.com/envledger/envledger/pkg/kms"
	"github.com/envledger/envledger/pkg/kms/awskms"
)

// HandlerOptions carries explicit dependencies. Anything left nil is built
// from the environment: pg stores when a database is reachable by DSN,
// memory stores in tests.
type HandlerOptions struct {
	LedgerStore   ports.LedgerStore
	RegistryStore ports.RegistryStore
	KMS           kms.Service
	Authorizer    authz.Checker
	Audit         AuditSink
	MaxBatch      int
	AllowlistPath string
}

type handler struct {
	ledger   ports.LedgerStore
	registry ports.RegistryStore
	write    *services.WriteService
	pit      *services.PointInTimeEngine
	rollback *services.RollbackService
	authz    authz.Checker
	audit    AuditSink
}

func NewHandler() (http.Handler, error) {
	return NewHandlerWithOptions(HandlerOptions{})
}

func NewHandlerWithOptions(opts HandlerOptions) (http.Handler, error) {
	allowlistPath := opts.AllowlistPath
	if allowlistPath == "" {
		allowlistPath = os.Getenv("ALLOWLIST_PATH")
	}
	if allowlistPath == "" {
		p, err := findConfigFile("config/allowlist.yaml")
		if err != nil {
			return nil, err
		}
		allowlistPath = p
	}
	a, err := routing.LoadAllowlist(allowlistPath)
	if err != nil {
		return nil, err
	}
	classifier, err := routing.NewClassifier(a, "server")
	if err != nil {
		return nil, err
	}

	ledger := opts.LedgerStore
	registry := opts.RegistryStore
	if ledger == nil {
		pool, err := pgxpool.New(context.Background(), dbDSNFromEnv())
		if err != nil {
			return nil, err
		}
		ledger = persistence.NewLedgerPGStore(pool)
		if registry == nil {
			registry = persistence.NewRegistryPGStore(pool)
		}
	}
	if registry == nil {
		registry = persistence.NewRegistryMemoryStore()
	}

	kmsService := opts.KMS
	if kmsService == nil {
		kmsService, err = kmsFromEnv()
		if err != nil {
			return nil, err
		}
	}

	authorizer := opts.Authorizer
	if authorizer == nil {
		authorizer, err = loadAuthorizer()
		if err != nil {
			return nil, err
		}
	}

	audit := opts.Audit
	if audit == nil {
		audit = logAuditSink{}
	}

	crypto := envelope.New(kmsService)
	pit := services.NewPointInTimeEngine(ledger)
	h := &handler{
		ledger:   ledger,
		registry: registry,
		write:    services.NewWriteService(ledger, registry, crypto, opts.MaxBatch),
		pit:      pit,
		rollback: services.NewRollbackService(ledger, pit),
		authz:    authorizer,
		audit:    audit,
	}

	router := routing.NewRouter(classifier)
	api := routing.RouteClassPublicAPI

	router.Handle(routing.RouteClassOps, http.MethodGet, "/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))

	router.Handle(api, http.MethodGet, "/api/v1/variables", http.HandlerFunc(h.listVariables))
	router.Handle(api, http.MethodGet, "/api/v1/variables/get", http.HandlerFunc(h.getVariable))
	router.Handle(api, http.MethodPost, "/api/v1/variables", http.HandlerFunc(h.applyVariables))

	router.Handle(api, http.MethodPost, "/api/v1/secrets", http.HandlerFunc(h.applySecrets))
	router.Handle(api, http.MethodGet, "/api/v1/secrets/get", http.HandlerFunc(h.getSecret))
	router.Handle(api, http.MethodPost, "/api/v1/secrets:reveal", http.HandlerFunc(h.revealSecrets))

	router.Handle(api, http.MethodGet, "/api/v1/history", http.HandlerFunc(h.history))
	router.Handle(api, http.MethodGet, "/api/v1/state", http.HandlerFunc(h.stateAt))
	router.Handle(api, http.MethodGet, "/api/v1/diff", http.HandlerFunc(h.diff))
	router.Handle(api, http.MethodGet, "/api/v1/timeline", http.HandlerFunc(h.timeline))
	router.Handle(api, http.MethodPost, "/api/v1/rollback", http.HandlerFunc(h.rollbackHandler))

	router.Handle(api, http.MethodGet, "/api/v1/apps", http.HandlerFunc(h.listApps))
	router.Handle(api, http.MethodPost, "/api/v1/apps", http.HandlerFunc(h.createApp))
	router.Handle(api, http.MethodGet, "/api/v1/environment-types", http.HandlerFunc(h.listEnvironmentTypes))
	router.Handle(api, http.MethodPost, "/api/v1/environment-types", http.HandlerFunc(h.createEnvironmentType))

	return router, nil
}

var errInvalidRetryAttempts = errors.New("server: KMS_RETRY_ATTEMPTS must be a positive integer")

func kmsFromEnv() (kms.Service, error) {
	var backend kms.Service
	switch getenvDefault("KMS_BACKEND", "local") {
	case "aws":
		keyID := os.Getenv("KMS_AWS_KEY_ID")
		if keyID == "" {
			return nil, errors.New("server: KMS_BACKEND=aws requires KMS_AWS_KEY_ID")
		}
		b, err := awskms.NewFromEnv(context.Background(), keyID)
		if err != nil {
			return nil, err
		}
		backend = b
	default:
		backend = kms.NewLocal()
	}

	attempts := 3
	if v := os.Getenv("KMS_RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, errInvalidRetryAttempts
		}
		attempts = n
	}
	return kms.WithRetry(backend, attempts, 100*time.Millisecond), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusBadRequest, "INVALID_JSON", "request body is not valid JSON")
		return false
	}
	return true
}
