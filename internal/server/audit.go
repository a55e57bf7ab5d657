package server

import (
	"context"
	"log"

	"github.com/envledger/envledger/modules/ledger/domain/types"
)

// AuditEvent is a fire-and-forget notification about a completed mutation.
type AuditEvent struct {
	Action   string
	Scope    types.Scope
	ActorID  string
	RecordID string
	Keys     []string
}

// AuditSink receives audit events best-effort. Failures are the sink's
// problem: nothing a sink does may fail or roll back a store mutation.
type AuditSink interface {
	Emit(ctx context.Context, ev AuditEvent)
}

type logAuditSink struct{}

func (logAuditSink) Emit(_ context.Context, ev AuditEvent) {
	log.Printf("audit action=%s scope=%s actor=%s record=%s keys=%v",
		ev.Action, ev.Scope.String(), ev.ActorID, ev.RecordID, ev.Keys)
}
