package server

import (
	"testing"
	"time"

	"github.com/envledger/envledger/pkg/storeerr"
)

func TestParseCheckpoint_Empty(t *testing.T) {
	cp, err := parseCheckpoint("")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if !cp.IsZero() {
		t.Fatalf("cp=%+v", cp)
	}
}

func TestParseCheckpoint_Timestamp(t *testing.T) {
	for _, raw := range []string{
		"2026-03-01T10:00:00Z",
		"2026-03-01T10:00:00.123456Z",
		"2026-03-01T12:00:00+02:00",
	} {
		cp, err := parseCheckpoint(raw)
		if err != nil {
			t.Fatalf("%s: err=%v", raw, err)
		}
		if cp.At == nil || cp.RecordID != "" {
			t.Fatalf("%s: cp=%+v", raw, cp)
		}
		if cp.At.Location() != time.UTC {
			t.Fatalf("%s: not normalized to UTC", raw)
		}
	}
}

func TestParseCheckpoint_RecordID(t *testing.T) {
	cp, err := parseCheckpoint("0195f2a0-1111-7222-8333-444455556666")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if cp.RecordID != "0195f2a0-1111-7222-8333-444455556666" || cp.At != nil {
		t.Fatalf("cp=%+v", cp)
	}
}

func TestParseCheckpoint_Garbage(t *testing.T) {
	for _, raw := range []string{"not a checkpoint", "a/b"} {
		if _, err := parseCheckpoint(raw); !storeerr.IsKind(err, storeerr.KindValidation) {
			t.Fatalf("%s: err=%v", raw, err)
		}
	}
}

func TestRequireCheckpoint_RejectsEmpty(t *testing.T) {
	if _, err := requireCheckpoint(""); !storeerr.IsKind(err, storeerr.KindValidation) {
		t.Fatalf("err=%v", err)
	}
	if _, err := requireCheckpoint("  "); !storeerr.IsKind(err, storeerr.KindValidation) {
		t.Fatalf("err=%v", err)
	}
}
