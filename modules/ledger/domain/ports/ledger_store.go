package ports

import (
	"context"

	"github.com/envledger/envledger/modules/ledger/domain/types"
)

// LedgerStore persists a scope's live state together with its append-only
// change log. Commit is the only mutation: it applies a batch of operations
// to the live rows and appends exactly one change record describing them, in
// one transaction, so the two can never disagree.
//
// Commit validation, in order:
//   - empty or malformed operation lists are rejected (validation);
//   - CREATE of a present key fails already_exists, UPDATE/DELETE of an
//     absent key fails not_found, before anything is written;
//   - when base is non-nil, any touched key whose current entry no longer
//     matches base fails conflict. base is the snapshot the caller computed
//     its operations against; rollback passes it so a concurrent unrelated
//     write cannot be silently undone.
//
// On DELETE the store fills Operation.Value with the pre-deletion value
// before persisting the record.
type LedgerStore interface {
	Snapshot(ctx context.Context, scope types.Scope) (map[string]types.Entry, error)
	Get(ctx context.Context, scope types.Scope, key string) (types.Entry, error)
	Commit(ctx context.Context, scope types.Scope, actorID string, message string, ops []types.Operation, base map[string]types.Entry) (types.ChangeRecord, error)

	// ListBetween returns the scope's records ascending by (created_at, id).
	// Zero checkpoints mean unbounded on that side. from is exclusive, to is
	// inclusive, so replaying up to a checkpoint and replaying onward from it
	// partition the log cleanly.
	ListBetween(ctx context.Context, scope types.Scope, from types.Checkpoint, to types.Checkpoint) ([]types.ChangeRecord, error)

	// Paginate returns one page most-recent-first plus the total count.
	Paginate(ctx context.Context, scope types.Scope, page int, perPage int) ([]types.ChangeRecord, int64, error)
}
