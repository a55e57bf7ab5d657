package kms

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"
	"sync"

	"github.com/envledger/envledger/pkg/storeerr"
)

// Local is an in-process keyring backend: AES-256-GCM under one key per
// keyRef, created on first encrypt. It backs tests and no-cloud dev mode.
type Local struct {
	mu   sync.Mutex
	keys map[string][]byte
}

func NewLocal() *Local {
	return &Local{keys: make(map[string][]byte)}
}

func (l *Local) keyForEncrypt(keyRef string) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if k, ok := l.keys[keyRef]; ok {
		return k, nil
	}
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		return nil, storeerr.Wrap(storeerr.KindUnavailable, CodeUnavailable, err)
	}
	l.keys[keyRef] = k
	return k, nil
}

func (l *Local) keyForDecrypt(keyRef string) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if k, ok := l.keys[keyRef]; ok {
		return k, nil
	}
	return nil, storeerr.New(storeerr.KindKeyNotConfigured, CodeKeyNotConfigured)
}

func gcmFor(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, storeerr.Wrap(storeerr.KindUnavailable, CodeUnavailable, err)
	}
	return cipher.NewGCM(block)
}

func (l *Local) Encrypt(ctx context.Context, keyRef string, plaintext []byte, aad []byte) ([]byte, error) {
	out, err := l.BatchEncrypt(ctx, keyRef, [][]byte{plaintext}, [][]byte{aad})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (l *Local) BatchEncrypt(ctx context.Context, keyRef string, plaintexts [][]byte, aads [][]byte) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeerr.Wrap(storeerr.KindUnavailable, CodeUnavailable, err)
	}
	if len(plaintexts) != len(aads) {
		return nil, storeerr.New(storeerr.KindValidation, CodeBatchMismatch)
	}
	key, err := l.keyForEncrypt(keyRef)
	if err != nil {
		return nil, err
	}
	aead, err := gcmFor(key)
	if err != nil {
		return nil, err
	}

	out := make([][]byte, 0, len(plaintexts))
	for i := range plaintexts {
		nonce := make([]byte, aead.NonceSize())
		if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
			return nil, storeerr.Wrap(storeerr.KindUnavailable, CodeUnavailable, err)
		}
		out = append(out, aead.Seal(nonce, nonce, plaintexts[i], aads[i]))
	}
	return out, nil
}

func (l *Local) Decrypt(ctx context.Context, keyRef string, ciphertext []byte, aad []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeerr.Wrap(storeerr.KindUnavailable, CodeUnavailable, err)
	}
	key, err := l.keyForDecrypt(keyRef)
	if err != nil {
		return nil, err
	}
	aead, err := gcmFor(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < aead.NonceSize() {
		return nil, storeerr.New(storeerr.KindUnseal, CodeUnseal)
	}
	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, aad)
	if err != nil {
		// Tampered ciphertext or AAD from another scope/key. Never retried.
		return nil, storeerr.Wrap(storeerr.KindUnseal, CodeUnseal, err)
	}
	return plaintext, nil
}
