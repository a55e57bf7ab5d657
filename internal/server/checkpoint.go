package server

import (
	"strings"
	"time"

	"github.com/envledger/envledger/modules/ledger/domain/types"
	"github.com/envledger/envledger/pkg/storeerr"
)

var errCheckpointInvalid = storeerr.New(storeerr.KindValidation, "CHECKPOINT_INVALID")

// parseCheckpoint accepts a change-record id or an RFC 3339 timestamp.
// Empty means "no bound". Which one it is gets decided by shape: anything
// that parses as a timestamp is one, everything else is treated as an id.
func parseCheckpoint(raw string) (types.Checkpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return types.Checkpoint{}, nil
	}
	if at, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		at = at.UTC()
		return types.Checkpoint{At: &at}, nil
	}
	if at, err := time.Parse(time.RFC3339, raw); err == nil {
		at = at.UTC()
		return types.Checkpoint{At: &at}, nil
	}
	if strings.ContainsAny(raw, " \t/") {
		return types.Checkpoint{}, errCheckpointInvalid
	}
	return types.Checkpoint{RecordID: raw}, nil
}

// requireCheckpoint is parseCheckpoint for places where a bound is mandatory.
func requireCheckpoint(raw string) (types.Checkpoint, error) {
	cp, err := parseCheckpoint(raw)
	if err != nil {
		return types.Checkpoint{}, err
	}
	if cp.IsZero() {
		return types.Checkpoint{}, errCheckpointInvalid
	}
	return cp, nil
}
