package ports

import (
	"context"

	"github.com/envledger/envledger/modules/ledger/domain/types"
)

// RegistryStore holds the org-scoped app and environment-type metadata the
// write path consults: whether an app may carry secrets, its key material,
// and whether an environment type is protected.
type RegistryStore interface {
	CreateApp(ctx context.Context, app types.App) (types.App, error)
	GetApp(ctx context.Context, orgID string, appID string) (types.App, error)
	ListApps(ctx context.Context, orgID string) ([]types.App, error)

	CreateEnvironmentType(ctx context.Context, et types.EnvironmentType) (types.EnvironmentType, error)
	GetEnvironmentType(ctx context.Context, orgID string, envTypeID string) (types.EnvironmentType, error)
	ListEnvironmentTypes(ctx context.Context, orgID string) ([]types.EnvironmentType, error)
}
