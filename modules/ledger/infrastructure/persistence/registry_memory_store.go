package persistence

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/envledger/envledger/modules/ledger/domain/ports"
	"github.com/envledger/envledger/modules/ledger/domain/types"
	"github.com/envledger/envledger/pkg/storeerr"
)

var (
	errAppIDRequired     = storeerr.New(storeerr.KindValidation, "APP_ID_REQUIRED")
	errEnvTypeIDRequired = storeerr.New(storeerr.KindValidation, "ENV_TYPE_ID_REQUIRED")
	errAppKeyRequired    = storeerr.New(storeerr.KindKeyNotConfigured, "APP_PUBLIC_KEY_REQUIRED")
)

func validateApp(app types.App) error {
	if strings.TrimSpace(app.OrgID) == "" || strings.TrimSpace(app.ID) == "" {
		return errAppIDRequired
	}
	// Secrets need key material: BYOK apps must register a public key up
	// front; managed apps must have been minted a pair.
	if app.EnableSecrets && app.PublicKey == "" {
		return errAppKeyRequired
	}
	return nil
}

func validateEnvType(et types.EnvironmentType) error {
	if strings.TrimSpace(et.OrgID) == "" || strings.TrimSpace(et.ID) == "" {
		return errEnvTypeIDRequired
	}
	return nil
}

type RegistryMemoryStore struct {
	mu       sync.Mutex
	apps     map[string]map[string]types.App
	envTypes map[string]map[string]types.EnvironmentType
}

func NewRegistryMemoryStore() *RegistryMemoryStore {
	return &RegistryMemoryStore{
		apps:     make(map[string]map[string]types.App),
		envTypes: make(map[string]map[string]types.EnvironmentType),
	}
}

var _ ports.RegistryStore = (*RegistryMemoryStore)(nil)

func (s *RegistryMemoryStore) CreateApp(_ context.Context, app types.App) (types.App, error) {
	if err := validateApp(app); err != nil {
		return types.App{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.apps[app.OrgID] == nil {
		s.apps[app.OrgID] = make(map[string]types.App)
	}
	if _, exists := s.apps[app.OrgID][app.ID]; exists {
		return types.App{}, errAppExists
	}
	s.apps[app.OrgID][app.ID] = app
	return app, nil
}

func (s *RegistryMemoryStore) GetApp(_ context.Context, orgID string, appID string) (types.App, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[orgID][appID]
	if !ok {
		return types.App{}, errAppNotFound
	}
	return app, nil
}

func (s *RegistryMemoryStore) ListApps(_ context.Context, orgID string) ([]types.App, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.App, 0, len(s.apps[orgID]))
	for _, app := range s.apps[orgID] {
		out = append(out, app)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *RegistryMemoryStore) CreateEnvironmentType(_ context.Context, et types.EnvironmentType) (types.EnvironmentType, error) {
	if err := validateEnvType(et); err != nil {
		return types.EnvironmentType{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.envTypes[et.OrgID] == nil {
		s.envTypes[et.OrgID] = make(map[string]types.EnvironmentType)
	}
	if _, exists := s.envTypes[et.OrgID][et.ID]; exists {
		return types.EnvironmentType{}, errEnvTypeExists
	}
	s.envTypes[et.OrgID][et.ID] = et
	return et, nil
}

func (s *RegistryMemoryStore) GetEnvironmentType(_ context.Context, orgID string, envTypeID string) (types.EnvironmentType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	et, ok := s.envTypes[orgID][envTypeID]
	if !ok {
		return types.EnvironmentType{}, errEnvTypeNotFound
	}
	return et, nil
}

func (s *RegistryMemoryStore) ListEnvironmentTypes(_ context.Context, orgID string) ([]types.EnvironmentType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.EnvironmentType, 0, len(s.envTypes[orgID]))
	for _, et := range s.envTypes[orgID] {
		out = append(out, et)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
