package persistence

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/envledger/envledger/pkg/storeerr"
)

// mapPgError folds database failures into the store taxonomy so callers
// never branch on SQLSTATE. Anything unrecognized surfaces as unavailable,
// which is the only retryable kind.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if storeerr.KindOf(err) != "" {
		return err
	}
	pgErr, ok := errors.AsType[*pgconn.PgError](err)
	if !ok || pgErr == nil {
		return storeerr.Wrap(storeerr.KindUnavailable, "STORE_UNAVAILABLE", err)
	}
	switch pgErr.Code {
	case "23505": // unique_violation: two writers raced the same key
		return storeerr.Wrap(storeerr.KindConflict, "CONCURRENT_WRITE", err)
	case "40001", "40P01", "55P03": // serialization, deadlock, lock_not_available
		return storeerr.Wrap(storeerr.KindConflict, "CONCURRENT_WRITE", err)
	case "22P02", "22007", "22008": // invalid uuid / timestamp input
		return storeerr.Wrap(storeerr.KindValidation, "INVALID_INPUT", err)
	default:
		return storeerr.Wrap(storeerr.KindUnavailable, "STORE_UNAVAILABLE", err)
	}
}
