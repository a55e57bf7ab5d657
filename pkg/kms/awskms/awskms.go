// Package awskms backs the kms.Service capability with AWS KMS. A batch is
// one GenerateDataKey round trip: the returned data key encrypts every item
// locally with AES-256-GCM, and each item carries its wrapped data key so
// single-item decrypts need exactly one KMS Decrypt call.
package awskms

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	sdkkms "github.com/aws/aws-sdk-go-v2/service/kms"
	sdktypes "github.com/aws/aws-sdk-go-v2/service/kms/types"

	"github.com/envledger/envledger/pkg/kms"
	"github.com/envledger/envledger/pkg/storeerr"
)

const defaultTimeout = 5 * time.Second

// Client is the slice of the AWS KMS API this backend touches.
type Client interface {
	GenerateDataKey(ctx context.Context, in *sdkkms.GenerateDataKeyInput, opts ...func(*sdkkms.Options)) (*sdkkms.GenerateDataKeyOutput, error)
	Decrypt(ctx context.Context, in *sdkkms.DecryptInput, opts ...func(*sdkkms.Options)) (*sdkkms.DecryptOutput, error)
}

type Service struct {
	client  Client
	keyID   string
	timeout time.Duration
}

// New wraps an AWS KMS client targeting one customer master key (id or
// alias). keyRef values travel in the encryption context, binding wrapped
// data keys to their (org, app).
func New(client Client, keyID string, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Service{client: client, keyID: keyID, timeout: timeout}
}

func NewFromEnv(ctx context.Context, keyID string) (*Service, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, storeerr.Wrap(storeerr.KindUnavailable, kms.CodeUnavailable, err)
	}
	return New(sdkkms.NewFromConfig(cfg), keyID, defaultTimeout), nil
}

func classify(err error) error {
	var nf *sdktypes.NotFoundException
	var dis *sdktypes.DisabledException
	var state *sdktypes.KMSInvalidStateException
	if errors.As(err, &nf) || errors.As(err, &dis) || errors.As(err, &state) {
		return storeerr.Wrap(storeerr.KindKeyNotConfigured, kms.CodeKeyNotConfigured, err)
	}
	var invalid *sdktypes.InvalidCiphertextException
	if errors.As(err, &invalid) {
		return storeerr.Wrap(storeerr.KindUnseal, kms.CodeUnseal, err)
	}
	return storeerr.Wrap(storeerr.KindUnavailable, kms.CodeUnavailable, err)
}

func (s *Service) Encrypt(ctx context.Context, keyRef string, plaintext []byte, aad []byte) ([]byte, error) {
	out, err := s.BatchEncrypt(ctx, keyRef, [][]byte{plaintext}, [][]byte{aad})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (s *Service) BatchEncrypt(ctx context.Context, keyRef string, plaintexts [][]byte, aads [][]byte) ([][]byte, error) {
	if len(plaintexts) != len(aads) {
		return nil, storeerr.New(storeerr.KindValidation, kms.CodeBatchMismatch)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	dk, err := s.client.GenerateDataKey(ctx, &sdkkms.GenerateDataKeyInput{
		KeyId:             aws.String(s.keyID),
		KeySpec:           sdktypes.DataKeySpecAes256,
		EncryptionContext: map[string]string{"key_ref": keyRef},
	})
	if err != nil {
		return nil, classify(err)
	}

	block, err := aes.NewCipher(dk.Plaintext)
	if err != nil {
		return nil, storeerr.Wrap(storeerr.KindUnavailable, kms.CodeUnavailable, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, storeerr.Wrap(storeerr.KindUnavailable, kms.CodeUnavailable, err)
	}

	out := make([][]byte, 0, len(plaintexts))
	for i := range plaintexts {
		nonce := make([]byte, aead.NonceSize())
		if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
			return nil, storeerr.Wrap(storeerr.KindUnavailable, kms.CodeUnavailable, err)
		}
		sealed := aead.Seal(nil, nonce, plaintexts[i], aads[i])
		out = append(out, encodeBlob(dk.CiphertextBlob, nonce, sealed))
	}
	return out, nil
}

func (s *Service) Decrypt(ctx context.Context, keyRef string, ciphertext []byte, aad []byte) ([]byte, error) {
	wrapped, nonce, sealed, err := decodeBlob(ciphertext)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	dek, err := s.client.Decrypt(ctx, &sdkkms.DecryptInput{
		CiphertextBlob:    wrapped,
		EncryptionContext: map[string]string{"key_ref": keyRef},
	})
	if err != nil {
		return nil, classify(err)
	}

	block, err := aes.NewCipher(dek.Plaintext)
	if err != nil {
		return nil, storeerr.Wrap(storeerr.KindUnavailable, kms.CodeUnavailable, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, storeerr.Wrap(storeerr.KindUnavailable, kms.CodeUnavailable, err)
	}
	plaintext, err := aead.Open(nil, nonce, sealed, aad)
	if err != nil {
		return nil, storeerr.Wrap(storeerr.KindUnseal, kms.CodeUnseal, err)
	}
	return plaintext, nil
}

const nonceSize = 12

// blob layout: u16 wrapped-key length, wrapped data key, 12-byte nonce, GCM
// ciphertext.
func encodeBlob(wrapped []byte, nonce []byte, sealed []byte) []byte {
	out := make([]byte, 0, 2+len(wrapped)+len(nonce)+len(sealed))
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(wrapped)))
	out = append(out, lenBuf[:]...)
	out = append(out, wrapped...)
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out
}

func decodeBlob(blob []byte) (wrapped []byte, nonce []byte, sealed []byte, err error) {
	if len(blob) < 2 {
		return nil, nil, nil, storeerr.New(storeerr.KindUnseal, kms.CodeUnseal)
	}
	wlen := int(binary.BigEndian.Uint16(blob[:2]))
	rest := blob[2:]
	if len(rest) < wlen+nonceSize+1 {
		return nil, nil, nil, storeerr.New(storeerr.KindUnseal, kms.CodeUnseal)
	}
	wrapped = rest[:wlen]
	nonce = rest[wlen : wlen+nonceSize]
	sealed = rest[wlen+nonceSize:]
	return wrapped, nonce, sealed, nil
}
