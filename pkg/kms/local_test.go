package kms

import (
	"bytes"
	"context"
	"testing"

	"github.com/envledger/envledger/pkg/storeerr"
)

func TestLocalRoundTrip(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()

	ct, err := l.Encrypt(ctx, "org-o1.app-a1", []byte("hunter2"), []byte("secret:o1:a1:prod:DB_URL"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	pt, err := l.Decrypt(ctx, "org-o1.app-a1", ct, []byte("secret:o1:a1:prod:DB_URL"))
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(pt, []byte("hunter2")) {
		t.Fatalf("plaintext mismatch: %q", pt)
	}
}

func TestLocalAADMismatchIsUnseal(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()

	ct, err := l.Encrypt(ctx, "ref", []byte("v"), []byte("secret:o1:a1:prod:K"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	for _, aad := range []string{"secret:o2:a1:prod:K", "secret:o1:a1:prod:K2", ""} {
		if _, err := l.Decrypt(ctx, "ref", ct, []byte(aad)); storeerr.KindOf(err) != storeerr.KindUnseal {
			t.Fatalf("aad %q: expected unseal, got %v", aad, err)
		}
	}
}

func TestLocalTamperedCiphertextIsUnseal(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()

	ct, err := l.Encrypt(ctx, "ref", []byte("v"), []byte("aad"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	ct[len(ct)-1] ^= 0xff
	if _, err := l.Decrypt(ctx, "ref", ct, []byte("aad")); storeerr.KindOf(err) != storeerr.KindUnseal {
		t.Fatalf("expected unseal, got %v", err)
	}

	if _, err := l.Decrypt(ctx, "ref", []byte("short"), []byte("aad")); storeerr.KindOf(err) != storeerr.KindUnseal {
		t.Fatalf("expected unseal for truncated blob, got %v", err)
	}
}

func TestLocalDecryptUnknownKeyRef(t *testing.T) {
	l := NewLocal()
	_, err := l.Decrypt(context.Background(), "never-seen", []byte("0123456789abcdef"), []byte("aad"))
	if storeerr.KindOf(err) != storeerr.KindKeyNotConfigured {
		t.Fatalf("expected key_not_configured, got %v", err)
	}
}

func TestLocalBatchLengthMismatch(t *testing.T) {
	l := NewLocal()
	_, err := l.BatchEncrypt(context.Background(), "ref", [][]byte{[]byte("a")}, nil)
	if storeerr.KindOf(err) != storeerr.KindValidation {
		t.Fatalf("expected validation, got %v", err)
	}
}

func TestLocalBatchRoundTrip(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()

	plaintexts := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	aads := [][]byte{[]byte("k1"), []byte("k2"), []byte("k3")}
	cts, err := l.BatchEncrypt(ctx, "ref", plaintexts, aads)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(cts) != 3 {
		t.Fatalf("len=%d", len(cts))
	}
	for i := range cts {
		pt, err := l.Decrypt(ctx, "ref", cts[i], aads[i])
		if err != nil {
			t.Fatalf("decrypt %d: %v", i, err)
		}
		if !bytes.Equal(pt, plaintexts[i]) {
			t.Fatalf("item %d mismatch", i)
		}
	}
}
