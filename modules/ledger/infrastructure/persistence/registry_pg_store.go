package persistence

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/envledger/envledger/modules/ledger/domain/ports"
	"github.com/envledger/envledger/modules/ledger/domain/types"
)

type RegistryPGStore struct {
	pool pgBeginner
}

func NewRegistryPGStore(pool pgBeginner) ports.RegistryStore {
	return &RegistryPGStore{pool: pool}
}

var _ ports.RegistryStore = (*RegistryPGStore)(nil)

func (s *RegistryPGStore) begin(ctx context.Context, orgID string) (pgx.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, mapPgError(err)
	}
	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_org', $1, true);`, orgID); err != nil {
		_ = tx.Rollback(context.Background())
		return nil, mapPgError(err)
	}
	return tx, nil
}

func (s *RegistryPGStore) CreateApp(ctx context.Context, app types.App) (types.App, error) {
	if err := validateApp(app); err != nil {
		return types.App{}, err
	}
	tx, err := s.begin(ctx, app.OrgID)
	if err != nil {
		return types.App{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	_, err = tx.Exec(ctx, `
	INSERT INTO ledger.apps (org_id, id, name, enable_secrets, is_managed_secret, public_key, private_key)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, app.OrgID, app.ID, app.Name, app.EnableSecrets, app.IsManagedSecret, app.PublicKey, app.PrivateKey)
	if err != nil {
		if pgErr, ok := errors.AsType[*pgconn.PgError](err); ok && pgErr.Code == "23505" {
			return types.App{}, errAppExists
		}
		return types.App{}, mapPgError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return types.App{}, mapPgError(err)
	}
	return app, nil
}

func (s *RegistryPGStore) GetApp(ctx context.Context, orgID string, appID string) (types.App, error) {
	tx, err := s.begin(ctx, orgID)
	if err != nil {
		return types.App{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	var app types.App
	err = tx.QueryRow(ctx, `
	SELECT org_id, id, name, enable_secrets, is_managed_secret, public_key, private_key
	FROM ledger.apps
	WHERE org_id = $1 AND id = $2
	`, orgID, appID).
		Scan(&app.OrgID, &app.ID, &app.Name, &app.EnableSecrets, &app.IsManagedSecret, &app.PublicKey, &app.PrivateKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.App{}, errAppNotFound
	}
	if err != nil {
		return types.App{}, mapPgError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return types.App{}, mapPgError(err)
	}
	return app, nil
}

func (s *RegistryPGStore) ListApps(ctx context.Context, orgID string) ([]types.App, error) {
	tx, err := s.begin(ctx, orgID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `
	SELECT org_id, id, name, enable_secrets, is_managed_secret, public_key, private_key
	FROM ledger.apps
	WHERE org_id = $1
	ORDER BY id ASC
	`, orgID)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	out := make([]types.App, 0)
	for rows.Next() {
		var app types.App
		if err := rows.Scan(&app.OrgID, &app.ID, &app.Name, &app.EnableSecrets, &app.IsManagedSecret, &app.PublicKey, &app.PrivateKey); err != nil {
			return nil, mapPgError(err)
		}
		out = append(out, app)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, mapPgError(err)
	}
	return out, nil
}

func (s *RegistryPGStore) CreateEnvironmentType(ctx context.Context, et types.EnvironmentType) (types.EnvironmentType, error) {
	if err := validateEnvType(et); err != nil {
		return types.EnvironmentType{}, err
	}
	tx, err := s.begin(ctx, et.OrgID)
	if err != nil {
		return types.EnvironmentType{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	_, err = tx.Exec(ctx, `
	INSERT INTO ledger.environment_types (org_id, id, name, is_protected)
	VALUES ($1, $2, $3, $4)
	`, et.OrgID, et.ID, et.Name, et.IsProtected)
	if err != nil {
		if pgErr, ok := errors.AsType[*pgconn.PgError](err); ok && pgErr.Code == "23505" {
			return types.EnvironmentType{}, errEnvTypeExists
		}
		return types.EnvironmentType{}, mapPgError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return types.EnvironmentType{}, mapPgError(err)
	}
	return et, nil
}

func (s *RegistryPGStore) GetEnvironmentType(ctx context.Context, orgID string, envTypeID string) (types.EnvironmentType, error) {
	tx, err := s.begin(ctx, orgID)
	if err != nil {
		return types.EnvironmentType{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	var et types.EnvironmentType
	err = tx.QueryRow(ctx, `
	SELECT org_id, id, name, is_protected
	FROM ledger.environment_types
	WHERE org_id = $1 AND id = $2
	`, orgID, envTypeID).Scan(&et.OrgID, &et.ID, &et.Name, &et.IsProtected)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.EnvironmentType{}, errEnvTypeNotFound
	}
	if err != nil {
		return types.EnvironmentType{}, mapPgError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return types.EnvironmentType{}, mapPgError(err)
	}
	return et, nil
}

func (s *RegistryPGStore) ListEnvironmentTypes(ctx context.Context, orgID string) ([]types.EnvironmentType, error) {
	tx, err := s.begin(ctx, orgID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `
	SELECT org_id, id, name, is_protected
	FROM ledger.environment_types
	WHERE org_id = $1
	ORDER BY id ASC
	`, orgID)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	out := make([]types.EnvironmentType, 0)
	for rows.Next() {
		var et types.EnvironmentType
		if err := rows.Scan(&et.OrgID, &et.ID, &et.Name, &et.IsProtected); err != nil {
			return nil, mapPgError(err)
		}
		out = append(out, et)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, mapPgError(err)
	}
	return out, nil
}
