package kms

import (
	"context"
	"testing"
	"time"

	"github.com/envledger/envledger/pkg/storeerr"
)

type scriptedService struct {
	errs  []error
	calls int
}

func (s *scriptedService) next() error {
	var err error
	if s.calls < len(s.errs) {
		err = s.errs[s.calls]
	}
	s.calls++
	return err
}

func (s *scriptedService) Encrypt(context.Context, string, []byte, []byte) ([]byte, error) {
	if err := s.next(); err != nil {
		return nil, err
	}
	return []byte("ct"), nil
}

func (s *scriptedService) Decrypt(context.Context, string, []byte, []byte) ([]byte, error) {
	if err := s.next(); err != nil {
		return nil, err
	}
	return []byte("pt"), nil
}

func (s *scriptedService) BatchEncrypt(_ context.Context, _ string, pts [][]byte, _ [][]byte) ([][]byte, error) {
	if err := s.next(); err != nil {
		return nil, err
	}
	return make([][]byte, len(pts)), nil
}

func TestRetryRecoversFromUnavailable(t *testing.T) {
	inner := &scriptedService{errs: []error{
		storeerr.New(storeerr.KindUnavailable, CodeUnavailable),
		storeerr.New(storeerr.KindUnavailable, CodeUnavailable),
		nil,
	}}
	svc := WithRetry(inner, 3, time.Millisecond)

	if _, err := svc.Encrypt(context.Background(), "ref", []byte("v"), []byte("aad")); err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if inner.calls != 3 {
		t.Fatalf("calls=%d", inner.calls)
	}
}

func TestRetryGivesUpAfterAttempts(t *testing.T) {
	inner := &scriptedService{errs: []error{
		storeerr.New(storeerr.KindUnavailable, CodeUnavailable),
		storeerr.New(storeerr.KindUnavailable, CodeUnavailable),
		storeerr.New(storeerr.KindUnavailable, CodeUnavailable),
	}}
	svc := WithRetry(inner, 3, time.Millisecond)

	_, err := svc.Decrypt(context.Background(), "ref", []byte("ct"), []byte("aad"))
	if storeerr.KindOf(err) != storeerr.KindUnavailable {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if inner.calls != 3 {
		t.Fatalf("calls=%d", inner.calls)
	}
}

func TestRetryNeverRetriesUnseal(t *testing.T) {
	inner := &scriptedService{errs: []error{storeerr.New(storeerr.KindUnseal, CodeUnseal)}}
	svc := WithRetry(inner, 5, time.Millisecond)

	_, err := svc.Decrypt(context.Background(), "ref", []byte("ct"), []byte("aad"))
	if storeerr.KindOf(err) != storeerr.KindUnseal {
		t.Fatalf("expected unseal, got %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("calls=%d, unseal must not be retried", inner.calls)
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	inner := &scriptedService{errs: []error{
		storeerr.New(storeerr.KindUnavailable, CodeUnavailable),
		storeerr.New(storeerr.KindUnavailable, CodeUnavailable),
	}}
	svc := WithRetry(inner, 3, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.BatchEncrypt(ctx, "ref", [][]byte{[]byte("v")}, [][]byte{[]byte("aad")})
	if storeerr.KindOf(err) != storeerr.KindUnavailable {
		t.Fatalf("expected unavailable from cancel, got %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("calls=%d", inner.calls)
	}
}
