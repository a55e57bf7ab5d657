package kms

import (
	"context"
	"time"

	"github.com/envledger/envledger/pkg/storeerr"
)

const (
	defaultRetryAttempts = 3
	defaultRetryBase     = 100 * time.Millisecond
)

type retrying struct {
	inner    Service
	attempts int
	base     time.Duration
}

// WithRetry retries unavailable-class failures with exponential backoff.
// Unseal and validation failures pass through on the first attempt; per the
// store's error policy they must never be retried.
func WithRetry(inner Service, attempts int, base time.Duration) Service {
	if attempts <= 0 {
		attempts = defaultRetryAttempts
	}
	if base <= 0 {
		base = defaultRetryBase
	}
	return &retrying{inner: inner, attempts: attempts, base: base}
}

func (r *retrying) do(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < r.attempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(r.base << (attempt - 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return storeerr.Wrap(storeerr.KindUnavailable, CodeUnavailable, ctx.Err())
			case <-timer.C:
			}
		}
		if err = fn(); err == nil || !storeerr.Retryable(err) {
			return err
		}
	}
	return err
}

func (r *retrying) Encrypt(ctx context.Context, keyRef string, plaintext []byte, aad []byte) ([]byte, error) {
	var out []byte
	err := r.do(ctx, func() error {
		var err error
		out, err = r.inner.Encrypt(ctx, keyRef, plaintext, aad)
		return err
	})
	return out, err
}

func (r *retrying) Decrypt(ctx context.Context, keyRef string, ciphertext []byte, aad []byte) ([]byte, error) {
	var out []byte
	err := r.do(ctx, func() error {
		var err error
		out, err = r.inner.Decrypt(ctx, keyRef, ciphertext, aad)
		return err
	})
	return out, err
}

func (r *retrying) BatchEncrypt(ctx context.Context, keyRef string, plaintexts [][]byte, aads [][]byte) ([][]byte, error) {
	var out [][]byte
	err := r.do(ctx, func() error {
		var err error
		out, err = r.inner.BatchEncrypt(ctx, keyRef, plaintexts, aads)
		return err
	})
	return out, err
}
