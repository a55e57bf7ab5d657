package services

import (
	"context"
	"sort"

	"github.com/envledger/envledger/modules/ledger/domain/ports"
	"github.com/envledger/envledger/modules/ledger/domain/types"
)

// RollbackService converges live state back to a historical checkpoint.
// Rollback never edits history: it reconstructs the target state, computes
// the minimal operation set against the current state, and appends that set
// as one new change record. Rolling back to the current state is a no-op,
// not an error, so a second identical rollback always lands empty.
type RollbackService struct {
	log ports.LedgerStore
	pit *PointInTimeEngine
}

func NewRollbackService(log ports.LedgerStore, pit *PointInTimeEngine) *RollbackService {
	return &RollbackService{log: log, pit: pit}
}

// RollbackResult reports what a rollback did. NoOp is true when current
// state already matched the target and no record was appended.
type RollbackResult struct {
	NoOp       bool
	Record     types.ChangeRecord
	Operations []types.Operation
}

func (s *RollbackService) RollbackToCheckpoint(ctx context.Context, scope types.Scope, actorID string, cp types.Checkpoint, message string) (RollbackResult, error) {
	target, err := s.pit.StateAt(ctx, scope, cp)
	if err != nil {
		return RollbackResult{}, err
	}
	current, err := s.log.Snapshot(ctx, scope)
	if err != nil {
		return RollbackResult{}, err
	}
	ops := reconcile(current, target, "")
	return s.apply(ctx, scope, actorID, message, ops, current)
}

// RollbackSingleKey is the same reconciliation restricted to one key.
func (s *RollbackService) RollbackSingleKey(ctx context.Context, scope types.Scope, actorID string, key string, cp types.Checkpoint, message string) (RollbackResult, error) {
	target, err := s.pit.StateAt(ctx, scope, cp)
	if err != nil {
		return RollbackResult{}, err
	}
	current, err := s.log.Snapshot(ctx, scope)
	if err != nil {
		return RollbackResult{}, err
	}
	ops := reconcile(current, target, key)
	return s.apply(ctx, scope, actorID, message, ops, current)
}

func (s *RollbackService) apply(ctx context.Context, scope types.Scope, actorID string, message string, ops []types.Operation, base map[string]types.Entry) (RollbackResult, error) {
	if len(ops) == 0 {
		return RollbackResult{NoOp: true, Operations: []types.Operation{}}, nil
	}
	if message == "" {
		message = "rollback"
	}
	// The snapshot the diff was computed against rides along as the base,
	// so a concurrent write between snapshot and commit surfaces as a
	// conflict instead of being silently undone.
	rec, err := s.log.Commit(ctx, scope, actorID, message, ops, base)
	if err != nil {
		return RollbackResult{}, err
	}
	return RollbackResult{Record: rec, Operations: rec.Operations}, nil
}

// reconcile computes the minimal operation set that converges current onto
// target. Secret ciphertext from the target state is reused verbatim; no
// decrypt or re-encrypt happens during rollback, which is why the envelope
// AAD binds to (scope, key) and not to a record id.
func reconcile(current map[string]types.Entry, target map[string]types.Entry, onlyKey string) []types.Operation {
	keys := make([]string, 0, len(current)+len(target))
	seen := make(map[string]struct{})
	for k := range current {
		keys = append(keys, k)
		seen[k] = struct{}{}
	}
	for k := range target {
		if _, ok := seen[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	ops := make([]types.Operation, 0)
	for _, key := range keys {
		if onlyKey != "" && key != onlyKey {
			continue
		}
		cur, inCurrent := current[key]
		tgt, inTarget := target[key]
		switch {
		case inCurrent && !inTarget:
			ops = append(ops, types.Operation{Key: key, Kind: types.OpDelete})
		case !inCurrent && inTarget:
			ops = append(ops, types.Operation{Key: key, Value: tgt.Value, Secret: tgt.Secret, Kind: types.OpCreate})
		case cur.Value != tgt.Value:
			ops = append(ops, types.Operation{Key: key, Value: tgt.Value, Secret: tgt.Secret, Kind: types.OpUpdate})
		}
	}
	return ops
}
