// Package envelope implements the two-layer at-rest protection for secret
// values. Layer 1 seals the plaintext to the app's public key (so a BYOK
// client, not the server, can open it); layer 2 envelope-encrypts the sealed
// box under the app's KMS data key with AAD binding the ciphertext to its
// (scope, key). Ciphertext copied into another scope or under another key
// must not decrypt.
package envelope

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"strings"

	"golang.org/x/crypto/nacl/box"

	"github.com/envledger/envledger/modules/ledger/domain/types"
	"github.com/envledger/envledger/pkg/kms"
	"github.com/envledger/envledger/pkg/storeerr"
)

// formatVersion tags stored ciphertext so key material behind a reference
// can rotate without rewriting rows.
const formatVersion = "env.v1"

const (
	CodeCiphertextFormat = "CIPHERTEXT_FORMAT"
	CodeInnerUnseal      = "INNER_LAYER_UNSEAL"
)

// AAD binds layer-2 ciphertext to its scope and key. Each field is length-
// prefixed: ids are not constrained to exclude any separator, so joining
// them raw would let (env="e:x", key="k") collide with (env="e", key="x:k").
// It deliberately does NOT include the change-record id: rollback replays
// stored ciphertext verbatim from historical records, so the binding must
// hold no matter which record the ciphertext is read back from.
func AAD(scope types.Scope, key string) []byte {
	fields := [...]string{scope.OrgID, scope.AppID, scope.EnvTypeID, key}
	b := make([]byte, 0, 6+4*len(fields)+len(fields[0])+len(fields[1])+len(fields[2])+len(fields[3]))
	b = append(b, "secret"...)
	for _, f := range fields {
		b = binary.BigEndian.AppendUint32(b, uint32(len(f)))
		b = append(b, f...)
	}
	return b
}

type Crypto struct {
	kms kms.Service
}

func New(svc kms.Service) *Crypto {
	return &Crypto{kms: svc}
}

// Item is one (key, plaintext) pair of a secret batch.
type Item struct {
	Key       string
	Plaintext string
}

func sealInner(plaintext string, appPublicKey string) ([]byte, error) {
	pub, err := decodeKey(appPublicKey)
	if err != nil {
		return nil, err
	}
	return box.SealAnonymous(nil, []byte(plaintext), pub, nil)
}

// DoubleLayerEncrypt produces the stored representation of one secret.
func (c *Crypto) DoubleLayerEncrypt(ctx context.Context, scope types.Scope, key string, plaintext string, appPublicKey string) (string, error) {
	out, err := c.BatchEncrypt(ctx, scope, []Item{{Key: key, Plaintext: plaintext}}, appPublicKey)
	if err != nil {
		return "", err
	}
	return out[0], nil
}

// BatchEncrypt seals every item's inner layer locally, then issues exactly
// one KMS call for the whole batch. A failed batch yields no ciphertexts,
// so nothing partial can ever reach the live state store.
func (c *Crypto) BatchEncrypt(ctx context.Context, scope types.Scope, items []Item, appPublicKey string) ([]string, error) {
	keyRef := kms.KeyRefForApp(scope.OrgID, scope.AppID)

	inner := make([][]byte, 0, len(items))
	aads := make([][]byte, 0, len(items))
	for _, it := range items {
		sealed, err := sealInner(it.Plaintext, appPublicKey)
		if err != nil {
			return nil, err
		}
		inner = append(inner, sealed)
		aads = append(aads, AAD(scope, it.Key))
	}

	blobs, err := c.kms.BatchEncrypt(ctx, keyRef, inner, aads)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(blobs))
	for _, blob := range blobs {
		out = append(out, encode(keyRef, blob))
	}
	return out, nil
}

// Unwrap reverses layer 2 only, returning the still-sealed inner box. This
// is the default read path: BYOK clients open the box locally with the
// private key the server never sees.
func (c *Crypto) Unwrap(ctx context.Context, scope types.Scope, key string, ciphertext string) ([]byte, error) {
	keyRef, blob, err := decode(ciphertext)
	if err != nil {
		return nil, err
	}
	return c.kms.Decrypt(ctx, keyRef, blob, AAD(scope, key))
}

// FullDecrypt unwraps layer 2 and opens the inner box. Only valid for
// managed apps, where the server custodies the private key.
func (c *Crypto) FullDecrypt(ctx context.Context, scope types.Scope, key string, ciphertext string, appPublicKey string, appPrivateKey string) (string, error) {
	sealed, err := c.Unwrap(ctx, scope, key, ciphertext)
	if err != nil {
		return "", err
	}
	pub, err := decodeKey(appPublicKey)
	if err != nil {
		return "", err
	}
	priv, err := decodeKey(appPrivateKey)
	if err != nil {
		return "", err
	}
	plaintext, ok := box.OpenAnonymous(nil, sealed, pub, priv)
	if !ok {
		return "", storeerr.New(storeerr.KindUnseal, CodeInnerUnseal)
	}
	return string(plaintext), nil
}

func encode(keyRef string, blob []byte) string {
	return formatVersion + ":" + keyRef + ":" + base64.StdEncoding.EncodeToString(blob)
}

func decode(ciphertext string) (keyRef string, blob []byte, err error) {
	parts := strings.SplitN(ciphertext, ":", 3)
	if len(parts) != 3 || parts[0] != formatVersion || parts[1] == "" {
		return "", nil, storeerr.New(storeerr.KindUnseal, CodeCiphertextFormat)
	}
	blob, decErr := base64.StdEncoding.DecodeString(parts[2])
	if decErr != nil {
		return "", nil, storeerr.New(storeerr.KindUnseal, CodeCiphertextFormat)
	}
	return parts[1], blob, nil
}
