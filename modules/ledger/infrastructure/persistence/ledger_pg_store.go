package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/envledger/envledger/modules/ledger/domain/ports"
	"github.com/envledger/envledger/modules/ledger/domain/types"
	"github.com/envledger/envledger/pkg/uuidv7"
)

type pgBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// LedgerPGStore keeps the live state and the append-only change log in
// Postgres. Every operation runs in its own transaction with the org id
// pinned via set_config, and Commit takes a per-scope advisory lock so the
// read-resolve-apply-append sequence is serialized per scope.
type LedgerPGStore struct {
	pool pgBeginner
}

func NewLedgerPGStore(pool pgBeginner) ports.LedgerStore {
	return &LedgerPGStore{pool: pool}
}

var _ ports.LedgerStore = (*LedgerPGStore)(nil)

// maxRecordID sorts after every UUIDv7, so a timestamp checkpoint includes
// all records created at that instant.
const maxRecordID = "ffffffff-ffff-ffff-ffff-ffffffffffff"

func (s *LedgerPGStore) begin(ctx context.Context, orgID string) (pgx.Tx, error) {
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

func (s *LedgerPGStore) Snapshot(ctx context.Context, scope types.Scope) (map[string]types.Entry, error) {
	if err := scope.Validate(); err != nil {
		return nil, errScopeIncomplete
	}
	tx, err := s.begin(ctx, scope.OrgID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	out, err := readLiveState(ctx, tx, scope, nil)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, mapPgError(err)
	}
	return out, nil
}

func (s *LedgerPGStore) Get(ctx context.Context, scope types.Scope, key string) (types.Entry, error) {
	if err := scope.Validate(); err != nil {
		return types.Entry{}, errScopeIncomplete
	}
	tx, err := s.begin(ctx, scope.OrgID)
	if err != nil {
		return types.Entry{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	var e types.Entry
	err = tx.QueryRow(ctx, `
	SELECT key, value, secret, version, updated_at
	FROM ledger.live_state
	WHERE org_id = $1 AND app_id = $2 AND env_type_id = $3 AND key = $4
	`, scope.OrgID, scope.AppID, scope.EnvTypeID, key).
		Scan(&e.Key, &e.Value, &e.Secret, &e.Version, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Entry{}, errVarNotFound
	}
	if err != nil {
		return types.Entry{}, mapPgError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return types.Entry{}, mapPgError(err)
	}
	return e, nil
}

func (s *LedgerPGStore) Commit(ctx context.Context, scope types.Scope, actorID string, message string, ops []types.Operation, base map[string]types.Entry) (types.ChangeRecord, error) {
	if err := validateCommit(scope, ops); err != nil {
		return types.ChangeRecord{}, err
	}
	tx, err := s.begin(ctx, scope.OrgID)
	if err != nil {
		return types.ChangeRecord{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1));`, scope.String()); err != nil {
		return types.ChangeRecord{}, mapPgError(err)
	}

	keys := make([]string, len(ops))
	for i, op := range ops {
		keys[i] = op.Key
	}
	current, err := readLiveState(ctx, tx, scope, keys)
	if err != nil {
		return types.ChangeRecord{}, err
	}

	resolved, err := resolveOperations(current, ops, base)
	if err != nil {
		return types.ChangeRecord{}, err
	}

	id, err := uuidv7.NewString()
	if err != nil {
		return types.ChangeRecord{}, err
	}
	// created_at never runs backwards within a scope, so (created_at, id)
	// stays a total order even when the wall clock steps.
	var last time.Time
	err = tx.QueryRow(ctx, `
	SELECT COALESCE(MAX(created_at), 'epoch'::timestamptz)
	FROM ledger.change_records
	WHERE org_id = $1 AND app_id = $2 AND env_type_id = $3
	`, scope.OrgID, scope.AppID, scope.EnvTypeID).Scan(&last)
	if err != nil {
		return types.ChangeRecord{}, mapPgError(err)
	}
	now := time.Now().UTC().Truncate(time.Microsecond)
	if now.Before(last) {
		now = last
	}

	for _, op := range resolved {
		switch op.Kind {
		case types.OpCreate:
			_, err = tx.Exec(ctx, `
			INSERT INTO ledger.live_state (org_id, app_id, env_type_id, key, value, secret, version, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, 1, $7)
			`, scope.OrgID, scope.AppID, scope.EnvTypeID, op.Key, op.Value, op.Secret, now)
		case types.OpUpdate:
			_, err = tx.Exec(ctx, `
			UPDATE ledger.live_state
			SET value = $5, secret = $6, version = version + 1, updated_at = $7
			WHERE org_id = $1 AND app_id = $2 AND env_type_id = $3 AND key = $4
			`, scope.OrgID, scope.AppID, scope.EnvTypeID, op.Key, op.Value, op.Secret, now)
		case types.OpDelete:
			_, err = tx.Exec(ctx, `
			DELETE FROM ledger.live_state
			WHERE org_id = $1 AND app_id = $2 AND env_type_id = $3 AND key = $4
			`, scope.OrgID, scope.AppID, scope.EnvTypeID, op.Key)
		}
		if err != nil {
			return types.ChangeRecord{}, mapPgError(err)
		}
	}

	opsJSON, err := json.Marshal(resolved)
	if err != nil {
		return types.ChangeRecord{}, err
	}
	if _, err := tx.Exec(ctx, `
	INSERT INTO ledger.change_records (id, org_id, app_id, env_type_id, actor_id, message, operations, created_at)
	VALUES ($1::uuid, $2, $3, $4, $5, $6, $7::jsonb, $8)
	`, id, scope.OrgID, scope.AppID, scope.EnvTypeID, actorID, message, opsJSON, now); err != nil {
		return types.ChangeRecord{}, mapPgError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return types.ChangeRecord{}, mapPgError(err)
	}
	return types.ChangeRecord{
		ID:         id,
		Scope:      scope,
		ActorID:    actorID,
		Message:    message,
		Operations: resolved,
		CreatedAt:  now,
	}, nil
}

// resolveCheckpoint turns a checkpoint into a comparable (created_at, id)
// pair. A record id unknown to the scope resolves to the epoch, which reads
// as "before the scope existed" everywhere downstream.
func resolveCheckpoint(ctx context.Context, tx pgx.Tx, scope types.Scope, cp types.Checkpoint) (time.Time, string, error) {
	if cp.At != nil {
		return cp.At.UTC(), maxRecordID, nil
	}
	if _, err := uuid.Parse(cp.RecordID); err != nil {
		return time.Time{}, uuid.Nil.String(), nil
	}
	var at time.Time
	err := tx.QueryRow(ctx, `
	SELECT created_at FROM ledger.change_records
	WHERE org_id = $1 AND app_id = $2 AND env_type_id = $3 AND id = $4::uuid
	`, scope.OrgID, scope.AppID, scope.EnvTypeID, cp.RecordID).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, uuid.Nil.String(), nil
	}
	if err != nil {
		return time.Time{}, "", mapPgError(err)
	}
	return at, cp.RecordID, nil
}

func (s *LedgerPGStore) ListBetween(ctx context.Context, scope types.Scope, from types.Checkpoint, to types.Checkpoint) ([]types.ChangeRecord, error) {
	if err := scope.Validate(); err != nil {
		return nil, errScopeIncomplete
	}
	tx, err := s.begin(ctx, scope.OrgID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	bounded := !from.IsZero()
	fromAt, fromID := time.Time{}, uuid.Nil.String()
	if bounded {
		fromAt, fromID, err = resolveCheckpoint(ctx, tx, scope, from)
		if err != nil {
			return nil, err
		}
	}
	capped := !to.IsZero()
	toAt, toID := time.Time{}, uuid.Nil.String()
	if capped {
		toAt, toID, err = resolveCheckpoint(ctx, tx, scope, to)
		if err != nil {
			return nil, err
		}
	}

	rows, err := tx.Query(ctx, `
	SELECT id::text, actor_id, message, operations, created_at
	FROM ledger.change_records
	WHERE org_id = $1 AND app_id = $2 AND env_type_id = $3
	  AND ($4::boolean IS FALSE OR (created_at, id) > ($5::timestamptz, $6::uuid))
	  AND ($7::boolean IS FALSE OR (created_at, id) <= ($8::timestamptz, $9::uuid))
	ORDER BY created_at ASC, id ASC
	`, scope.OrgID, scope.AppID, scope.EnvTypeID, bounded, fromAt, fromID, capped, toAt, toID)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	out, err := scanChangeRecords(rows, scope)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, mapPgError(err)
	}
	return out, nil
}

func (s *LedgerPGStore) Paginate(ctx context.Context, scope types.Scope, page int, perPage int) ([]types.ChangeRecord, int64, error) {
	if err := scope.Validate(); err != nil {
		return nil, 0, errScopeIncomplete
	}
	if page < 1 {
		return nil, 0, errPageInvalid
	}
	perPage = clampPerPage(perPage)

	tx, err := s.begin(ctx, scope.OrgID)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	var total int64
	err = tx.QueryRow(ctx, `
	SELECT COUNT(*) FROM ledger.change_records
	WHERE org_id = $1 AND app_id = $2 AND env_type_id = $3
	`, scope.OrgID, scope.AppID, scope.EnvTypeID).Scan(&total)
	if err != nil {
		return nil, 0, mapPgError(err)
	}

	rows, err := tx.Query(ctx, `
	SELECT id::text, actor_id, message, operations, created_at
	FROM ledger.change_records
	WHERE org_id = $1 AND app_id = $2 AND env_type_id = $3
	ORDER BY created_at DESC, id DESC
	LIMIT $4 OFFSET $5
	`, scope.OrgID, scope.AppID, scope.EnvTypeID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, mapPgError(err)
	}
	defer rows.Close()

	out, err := scanChangeRecords(rows, scope)
	if err != nil {
		return nil, 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, 0, mapPgError(err)
	}
	return out, total, nil
}

func readLiveState(ctx context.Context, tx pgx.Tx, scope types.Scope, keys []string) (map[string]types.Entry, error) {
	rows, err := tx.Query(ctx, `
	SELECT key, value, secret, version, updated_at
	FROM ledger.live_state
	WHERE org_id = $1 AND app_id = $2 AND env_type_id = $3
	  AND ($4::boolean IS FALSE OR key = ANY($5::text[]))
	`, scope.OrgID, scope.AppID, scope.EnvTypeID, keys != nil, keys)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	out := make(map[string]types.Entry)
	for rows.Next() {
		var e types.Entry
		if err := rows.Scan(&e.Key, &e.Value, &e.Secret, &e.Version, &e.UpdatedAt); err != nil {
			return nil, mapPgError(err)
		}
		out[e.Key] = e
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}
	return out, nil
}

func scanChangeRecords(rows pgx.Rows, scope types.Scope) ([]types.ChangeRecord, error) {
	out := make([]types.ChangeRecord, 0)
	for rows.Next() {
		var rec types.ChangeRecord
		var opsJSON []byte
		if err := rows.Scan(&rec.ID, &rec.ActorID, &rec.Message, &opsJSON, &rec.CreatedAt); err != nil {
			return nil, mapPgError(err)
		}
		if err := json.Unmarshal(opsJSON, &rec.Operations); err != nil {
			return nil, mapPgError(err)
		}
		rec.Scope = scope
		rec.CreatedAt = rec.CreatedAt.UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}
	return out, nil
}
