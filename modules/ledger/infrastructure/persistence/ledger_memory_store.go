package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/envledger/envledger/modules/ledger/domain/ports"
	"github.com/envledger/envledger/modules/ledger/domain/types"
	"github.com/envledger/envledger/pkg/uuidv7"
)

// LedgerMemoryStore mirrors the pg store's semantics in process memory. It
// backs tests and no-database dev mode. A single mutex serializes commits,
// which is the memory analogue of the pg store's per-scope advisory lock.
type LedgerMemoryStore struct {
	mu      sync.Mutex
	state   map[string]map[string]types.Entry
	records map[string][]types.ChangeRecord
}

func NewLedgerMemoryStore() *LedgerMemoryStore {
	return &LedgerMemoryStore{
		state:   make(map[string]map[string]types.Entry),
		records: make(map[string][]types.ChangeRecord),
	}
}

var _ ports.LedgerStore = (*LedgerMemoryStore)(nil)

func (s *LedgerMemoryStore) Snapshot(_ context.Context, scope types.Scope) (map[string]types.Entry, error) {
	if err := scope.Validate(); err != nil {
		return nil, errScopeIncomplete
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]types.Entry, len(s.state[scope.String()]))
	for k, e := range s.state[scope.String()] {
		out[k] = e
	}
	return out, nil
}

func (s *LedgerMemoryStore) Get(_ context.Context, scope types.Scope, key string) (types.Entry, error) {
	if err := scope.Validate(); err != nil {
		return types.Entry{}, errScopeIncomplete
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.state[scope.String()][key]
	if !ok {
		return types.Entry{}, errVarNotFound
	}
	return e, nil
}

func (s *LedgerMemoryStore) Commit(_ context.Context, scope types.Scope, actorID string, message string, ops []types.Operation, base map[string]types.Entry) (types.ChangeRecord, error) {
	if err := validateCommit(scope, ops); err != nil {
		return types.ChangeRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := scope.String()
	current := s.state[key]
	if current == nil {
		current = make(map[string]types.Entry)
		s.state[key] = current
	}

	resolved, err := resolveOperations(current, ops, base)
	if err != nil {
		return types.ChangeRecord{}, err
	}

	id, err := uuidv7.NewString()
	if err != nil {
		return types.ChangeRecord{}, err
	}
	now := time.Now().UTC()
	if recs := s.records[key]; len(recs) > 0 && now.Before(recs[len(recs)-1].CreatedAt) {
		now = recs[len(recs)-1].CreatedAt
	}

	for _, op := range resolved {
		switch op.Kind {
		case types.OpCreate:
			current[op.Key] = types.Entry{Key: op.Key, Value: op.Value, Secret: op.Secret, Version: 1, UpdatedAt: now}
		case types.OpUpdate:
			e := current[op.Key]
			e.Value = op.Value
			e.Secret = op.Secret
			e.Version++
			e.UpdatedAt = now
			current[op.Key] = e
		case types.OpDelete:
			delete(current, op.Key)
		}
	}

	rec := types.ChangeRecord{
		ID:         id,
		Scope:      scope,
		ActorID:    actorID,
		Message:    message,
		Operations: resolved,
		CreatedAt:  now,
	}
	s.records[key] = append(s.records[key], rec)
	return rec, nil
}

// position resolves a checkpoint to a comparable (created_at, id) pair.
// A record id that does not exist in the scope resolves to the epoch, which
// reads as "before the scope existed" everywhere downstream.
func (s *LedgerMemoryStore) position(scopeKey string, cp types.Checkpoint) (time.Time, string) {
	if cp.At != nil {
		// Timestamp checkpoints include every id at that instant.
		return cp.At.UTC(), "￿"
	}
	for _, rec := range s.records[scopeKey] {
		if rec.ID == cp.RecordID {
			return rec.CreatedAt, rec.ID
		}
	}
	return time.Time{}, ""
}

func atOrBefore(rec types.ChangeRecord, at time.Time, id string) bool {
	if rec.CreatedAt.Before(at) {
		return true
	}
	if rec.CreatedAt.Equal(at) {
		return rec.ID <= id
	}
	return false
}

func (s *LedgerMemoryStore) ListBetween(_ context.Context, scope types.Scope, from types.Checkpoint, to types.Checkpoint) ([]types.ChangeRecord, error) {
	if err := scope.Validate(); err != nil {
		return nil, errScopeIncomplete
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	scopeKey := scope.String()
	out := make([]types.ChangeRecord, 0)
	var fromAt time.Time
	var fromID string
	bounded := !from.IsZero()
	if bounded {
		fromAt, fromID = s.position(scopeKey, from)
	}
	var toAt time.Time
	var toID string
	capped := !to.IsZero()
	if capped {
		toAt, toID = s.position(scopeKey, to)
	}

	for _, rec := range s.records[scopeKey] {
		if bounded && atOrBefore(rec, fromAt, fromID) {
			continue
		}
		if capped && !atOrBefore(rec, toAt, toID) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *LedgerMemoryStore) Paginate(_ context.Context, scope types.Scope, page int, perPage int) ([]types.ChangeRecord, int64, error) {
	if err := scope.Validate(); err != nil {
		return nil, 0, errScopeIncomplete
	}
	if page < 1 {
		return nil, 0, errPageInvalid
	}
	perPage = clampPerPage(perPage)

	s.mu.Lock()
	defer s.mu.Unlock()

	recs := s.records[scope.String()]
	total := int64(len(recs))
	out := make([]types.ChangeRecord, 0, perPage)
	// Most-recent-first.
	start := len(recs) - (page-1)*perPage
	for i := start - 1; i >= 0 && len(out) < perPage; i-- {
		out = append(out, recs[i])
	}
	return out, total, nil
}
