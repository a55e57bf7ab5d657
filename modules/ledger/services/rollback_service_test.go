package services

import (
	"context"
	"reflect"
	"testing"

	"github.com/envledger/envledger/modules/ledger/domain/types"
	"github.com/envledger/envledger/modules/ledger/infrastructure/persistence"
)

func newRollbackFixture() (*persistence.LedgerMemoryStore, *RollbackService) {
	log := persistence.NewLedgerMemoryStore()
	pit := NewPointInTimeEngine(log)
	return log, NewRollbackService(log, pit)
}

func TestRollback_Scenario(t *testing.T) {
	log, rb := newRollbackFixture()
	ctx := context.Background()

	p1 := commit(t, log, types.Operation{Key: "DB_URL", Value: "postgres://a", Kind: types.OpCreate})
	commit(t, log, types.Operation{Key: "DB_URL", Value: "postgres://b", Kind: types.OpUpdate})
	commit(t, log, types.Operation{Key: "DB_URL", Kind: types.OpDelete})

	res, err := rb.RollbackToCheckpoint(ctx, testScope(), "u1", atRecord(p1.ID), "back to p1")
	if err != nil || res.NoOp {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	if len(res.Operations) != 1 || res.Operations[0].Kind != types.OpCreate || res.Operations[0].Key != "DB_URL" {
		t.Fatalf("ops=%+v", res.Operations)
	}
	e, err := log.Get(ctx, testScope(), "DB_URL")
	if err != nil || e.Value != "postgres://a" {
		t.Fatalf("entry=%+v err=%v", e, err)
	}

	// History only grew: the rollback is a fourth record, nothing was erased.
	recs, _ := log.ListBetween(ctx, testScope(), types.Checkpoint{}, types.Checkpoint{})
	if len(recs) != 4 {
		t.Fatalf("records=%d", len(recs))
	}
}

func TestRollback_Correctness(t *testing.T) {
	log, rb := newRollbackFixture()
	pit := NewPointInTimeEngine(log)
	ctx := context.Background()

	commit(t, log, types.Operation{Key: "A", Value: "1", Kind: types.OpCreate})
	cp := commit(t, log,
		types.Operation{Key: "B", Value: "2", Kind: types.OpCreate},
		types.Operation{Key: "A", Value: "1b", Kind: types.OpUpdate})
	commit(t, log, types.Operation{Key: "A", Kind: types.OpDelete})
	commit(t, log, types.Operation{Key: "C", Value: "3", Kind: types.OpCreate})
	commit(t, log, types.Operation{Key: "B", Value: "2b", Kind: types.OpUpdate})

	if _, err := rb.RollbackToCheckpoint(ctx, testScope(), "u1", atRecord(cp.ID), ""); err != nil {
		t.Fatalf("err=%v", err)
	}

	// After rollback the live state equals the reconstructed checkpoint
	// state, value for value.
	live, _ := log.Snapshot(ctx, testScope())
	target, _ := pit.StateAt(ctx, testScope(), atRecord(cp.ID))
	if len(live) != len(target) {
		t.Fatalf("live=%+v target=%+v", live, target)
	}
	for key, want := range target {
		if live[key].Value != want.Value {
			t.Fatalf("key %s: live=%q want %q", key, live[key].Value, want.Value)
		}
	}
}

func TestRollback_Idempotence(t *testing.T) {
	log, rb := newRollbackFixture()
	ctx := context.Background()

	p1 := commit(t, log, types.Operation{Key: "A", Value: "1", Kind: types.OpCreate})
	commit(t, log, types.Operation{Key: "A", Value: "2", Kind: types.OpUpdate})

	first, err := rb.RollbackToCheckpoint(ctx, testScope(), "u1", atRecord(p1.ID), "")
	if err != nil || first.NoOp || len(first.Operations) == 0 {
		t.Fatalf("first=%+v err=%v", first, err)
	}

	// The second identical rollback finds nothing to converge.
	second, err := rb.RollbackToCheckpoint(ctx, testScope(), "u1", atRecord(p1.ID), "")
	if err != nil || !second.NoOp || len(second.Operations) != 0 {
		t.Fatalf("second=%+v err=%v", second, err)
	}

	// No-op rollbacks append no record.
	recs, _ := log.ListBetween(ctx, testScope(), types.Checkpoint{}, types.Checkpoint{})
	if len(recs) != 3 {
		t.Fatalf("records=%d", len(recs))
	}
}

func TestRollback_SingleKey(t *testing.T) {
	log, rb := newRollbackFixture()
	ctx := context.Background()

	p1 := commit(t, log,
		types.Operation{Key: "A", Value: "1", Kind: types.OpCreate},
		types.Operation{Key: "B", Value: "x", Kind: types.OpCreate})
	commit(t, log,
		types.Operation{Key: "A", Value: "2", Kind: types.OpUpdate},
		types.Operation{Key: "B", Value: "y", Kind: types.OpUpdate})

	res, err := rb.RollbackSingleKey(ctx, testScope(), "u1", "A", atRecord(p1.ID), "")
	if err != nil || res.NoOp {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	if len(res.Operations) != 1 || res.Operations[0].Key != "A" {
		t.Fatalf("ops=%+v", res.Operations)
	}

	// Only A moved; B keeps its later value.
	a, _ := log.Get(ctx, testScope(), "A")
	b, _ := log.Get(ctx, testScope(), "B")
	if a.Value != "1" || b.Value != "y" {
		t.Fatalf("a=%q b=%q", a.Value, b.Value)
	}

	// Converged key rolls back to a no-op.
	again, err := rb.RollbackSingleKey(ctx, testScope(), "u1", "A", atRecord(p1.ID), "")
	if err != nil || !again.NoOp {
		t.Fatalf("again=%+v err=%v", again, err)
	}
}

func TestRollback_ToUnknownCheckpointDeletesEverything(t *testing.T) {
	log, rb := newRollbackFixture()
	ctx := context.Background()

	commit(t, log, types.Operation{Key: "A", Value: "1", Kind: types.OpCreate})

	// An unknown checkpoint reconstructs the empty pre-history state, so
	// the rollback deletes every live key.
	res, err := rb.RollbackToCheckpoint(ctx, testScope(), "u1", atRecord("missing"), "")
	if err != nil || res.NoOp {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	if !reflect.DeepEqual([]types.OpKind{res.Operations[0].Kind}, []types.OpKind{types.OpDelete}) {
		t.Fatalf("ops=%+v", res.Operations)
	}
	live, _ := log.Snapshot(ctx, testScope())
	if len(live) != 0 {
		t.Fatalf("live=%+v", live)
	}
}

func TestRollback_SecretCiphertextReplaysVerbatim(t *testing.T) {
	log, rb := newRollbackFixture()
	ctx := context.Background()

	p1 := commit(t, log, types.Operation{Key: "API_KEY", Value: "env.v1:ref:AAAA", Secret: true, Kind: types.OpCreate})
	commit(t, log, types.Operation{Key: "API_KEY", Value: "env.v1:ref:BBBB", Secret: true, Kind: types.OpUpdate})

	res, err := rb.RollbackToCheckpoint(ctx, testScope(), "u1", atRecord(p1.ID), "")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	// The stored ciphertext from the historical record is reused as-is.
	if res.Operations[0].Value != "env.v1:ref:AAAA" || !res.Operations[0].Secret {
		t.Fatalf("ops=%+v", res.Operations)
	}
}
