package services

import (
	"context"
	"sort"

	"github.com/envledger/envledger/modules/ledger/domain/ports"
	"github.com/envledger/envledger/modules/ledger/domain/types"
)

// PointInTimeEngine reconstructs historical state by replaying the change
// log. Replay is the source of truth: for any checkpoint, folding every
// operation at or before it, last write per key wins, yields exactly the
// live state that existed at that instant.
type PointInTimeEngine struct {
	log ports.LedgerStore
}

func NewPointInTimeEngine(log ports.LedgerStore) *PointInTimeEngine {
	return &PointInTimeEngine{log: log}
}

// StateAt folds the log up to and including the checkpoint. A DELETE drops
// the key from the accumulating map; a later CREATE resurrects it with a
// fresh version. A checkpoint before the scope's first record yields an
// empty map, not an error.
func (e *PointInTimeEngine) StateAt(ctx context.Context, scope types.Scope, cp types.Checkpoint) (map[string]types.Entry, error) {
	recs, err := e.log.ListBetween(ctx, scope, types.Checkpoint{}, cp)
	if err != nil {
		return nil, err
	}
	return replay(recs), nil
}

func replay(recs []types.ChangeRecord) map[string]types.Entry {
	state := make(map[string]types.Entry)
	for _, rec := range recs {
		for _, op := range rec.Operations {
			switch op.Kind {
			case types.OpCreate:
				state[op.Key] = types.Entry{Key: op.Key, Value: op.Value, Secret: op.Secret, Version: 1, UpdatedAt: rec.CreatedAt}
			case types.OpUpdate:
				e := state[op.Key]
				e.Key = op.Key
				e.Value = op.Value
				e.Secret = op.Secret
				e.Version++
				e.UpdatedAt = rec.CreatedAt
				state[op.Key] = e
			case types.OpDelete:
				delete(state, op.Key)
			}
		}
	}
	return state
}

// Diff compares the reconstructed states at two checkpoints. Keys only in
// to are added, keys only in from are deleted, keys in both with differing
// values are modified. Diffing a checkpoint against itself is empty by
// construction.
func (e *PointInTimeEngine) Diff(ctx context.Context, scope types.Scope, from types.Checkpoint, to types.Checkpoint) (types.Diff, error) {
	fromState, err := e.StateAt(ctx, scope, from)
	if err != nil {
		return types.Diff{}, err
	}
	toState, err := e.StateAt(ctx, scope, to)
	if err != nil {
		return types.Diff{}, err
	}
	return diffStates(fromState, toState), nil
}

func diffStates(from map[string]types.Entry, to map[string]types.Entry) types.Diff {
	d := types.Diff{Added: []string{}, Modified: []string{}, Deleted: []string{}}
	for key, t := range to {
		f, ok := from[key]
		if !ok {
			d.Added = append(d.Added, key)
		} else if f.Value != t.Value {
			d.Modified = append(d.Modified, key)
		}
	}
	for key := range from {
		if _, ok := to[key]; !ok {
			d.Deleted = append(d.Deleted, key)
		}
	}
	sort.Strings(d.Added)
	sort.Strings(d.Modified)
	sort.Strings(d.Deleted)
	return d
}

// timelinePageSize bounds how much history one store round trip loads.
const timelinePageSize = 50

// Timeline returns the operations that touched one key, most recent first,
// bounded by limit. limit <= 0 means no bound. History is consumed page by
// page from the store's descending order, so a satisfied limit never loads
// the rest of the log.
func (e *PointInTimeEngine) Timeline(ctx context.Context, scope types.Scope, key string, limit int) ([]types.TimelineEntry, error) {
	out := make([]types.TimelineEntry, 0)
	for page := 1; ; page++ {
		recs, total, err := e.log.Paginate(ctx, scope, page, timelinePageSize)
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			for _, op := range rec.Operations {
				if op.Key != key {
					continue
				}
				out = append(out, types.TimelineEntry{
					RecordID:  rec.ID,
					ActorID:   rec.ActorID,
					Message:   rec.Message,
					CreatedAt: rec.CreatedAt,
					Operation: op,
				})
				if limit > 0 && len(out) >= limit {
					return out, nil
				}
			}
		}
		if len(recs) == 0 || int64(page)*timelinePageSize >= total {
			return out, nil
		}
	}
}
