package persistence

import (
	"strings"

	"github.com/envledger/envledger/modules/ledger/domain/types"
	"github.com/envledger/envledger/pkg/storeerr"
)

var (
	errScopeIncomplete = storeerr.New(storeerr.KindValidation, "SCOPE_INCOMPLETE")
	errOpsEmpty        = storeerr.New(storeerr.KindValidation, "OPERATIONS_EMPTY")
	errOpKeyRequired   = storeerr.New(storeerr.KindValidation, "OPERATION_KEY_REQUIRED")
	errOpKeyDuplicate  = storeerr.New(storeerr.KindValidation, "OPERATION_KEY_DUPLICATE")
	errOpKindInvalid   = storeerr.New(storeerr.KindValidation, "OPERATION_KIND_INVALID")
	errPageInvalid     = storeerr.New(storeerr.KindValidation, "PAGE_INVALID")

	errVarNotFound = storeerr.New(storeerr.KindNotFound, "VARIABLE_NOT_FOUND")
	errVarExists   = storeerr.New(storeerr.KindAlreadyExists, "VARIABLE_EXISTS")
	errStaleBase   = storeerr.New(storeerr.KindConflict, "LEDGER_STALE_BASE")

	errAppNotFound     = storeerr.New(storeerr.KindNotFound, "APP_NOT_FOUND")
	errAppExists       = storeerr.New(storeerr.KindAlreadyExists, "APP_EXISTS")
	errEnvTypeNotFound = storeerr.New(storeerr.KindNotFound, "ENV_TYPE_NOT_FOUND")
	errEnvTypeExists   = storeerr.New(storeerr.KindAlreadyExists, "ENV_TYPE_EXISTS")
)

// validateCommit rejects malformed operation lists before anything touches
// storage. Duplicate keys inside one batch are rejected rather than folded:
// a change record must read as simultaneous, and two operations on one key
// have no simultaneous interpretation.
func validateCommit(scope types.Scope, ops []types.Operation) error {
	if err := scope.Validate(); err != nil {
		return errScopeIncomplete
	}
	if len(ops) == 0 {
		return errOpsEmpty
	}
	seen := make(map[string]struct{}, len(ops))
	for _, op := range ops {
		if strings.TrimSpace(op.Key) == "" {
			return errOpKeyRequired
		}
		if !op.Kind.Valid() {
			return errOpKindInvalid
		}
		if _, dup := seen[op.Key]; dup {
			return errOpKeyDuplicate
		}
		seen[op.Key] = struct{}{}
	}
	return nil
}

// resolveOperations checks a validated operation list against the scope's
// current entries and returns the operations as they will be logged, with
// DELETE values filled from the pre-deletion entries. base, when non-nil, is
// the snapshot the caller computed against; any drift on a touched key is a
// conflict. Nothing may be mutated unless the whole list resolves.
func resolveOperations(current map[string]types.Entry, ops []types.Operation, base map[string]types.Entry) ([]types.Operation, error) {
	if base != nil {
		for _, op := range ops {
			cur, curOK := current[op.Key]
			b, baseOK := base[op.Key]
			if curOK != baseOK || (curOK && (cur.Value != b.Value || cur.Version != b.Version)) {
				return nil, errStaleBase
			}
		}
	}

	resolved := make([]types.Operation, len(ops))
	for i, op := range ops {
		cur, exists := current[op.Key]
		switch op.Kind {
		case types.OpCreate:
			if exists {
				return nil, errVarExists
			}
		case types.OpUpdate:
			if !exists {
				return nil, errVarNotFound
			}
		case types.OpDelete:
			if !exists {
				return nil, errVarNotFound
			}
			// DELETE carries the pre-deletion value in the log.
			op.Value = cur.Value
			op.Secret = cur.Secret
		}
		resolved[i] = op
	}
	return resolved, nil
}

func clampPerPage(perPage int) int {
	if perPage <= 0 {
		return 20
	}
	if perPage > 100 {
		return 100
	}
	return perPage
}
