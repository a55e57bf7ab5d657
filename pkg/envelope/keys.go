package envelope

import (
	"crypto/rand"
	"encoding/base64"

	"golang.org/x/crypto/nacl/box"

	"github.com/envledger/envledger/pkg/storeerr"
)

const CodeKeyInvalid = "APP_KEY_INVALID"

// GenerateKeyPair mints an app keypair for the inner (BYOK) layer. Managed
// apps store both halves server-side; BYOK apps register only the public
// half and keep the private key with the client.
func GenerateKeyPair() (publicKey string, privateKey string, err error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", err
	}
	return base64.StdEncoding.EncodeToString(pub[:]), base64.StdEncoding.EncodeToString(priv[:]), nil
}

func decodeKey(encoded string) (*[32]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) != 32 {
		return nil, storeerr.New(storeerr.KindKeyNotConfigured, CodeKeyInvalid)
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}
