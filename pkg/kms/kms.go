// Package kms narrows whatever key-management backend is configured down to
// the three calls the envelope layer needs: encrypt, decrypt, and
// batch-encrypt over an opaque key reference plus AAD. Store logic never
// sees a concrete KMS SDK.
package kms

import "context"

// Service is the key-management capability. Implementations must bind the
// AAD into the ciphertext so that decryption with a different AAD fails
// with an unseal error.
type Service interface {
	Encrypt(ctx context.Context, keyRef string, plaintext []byte, aad []byte) ([]byte, error)
	Decrypt(ctx context.Context, keyRef string, ciphertext []byte, aad []byte) ([]byte, error)

	// BatchEncrypt wraps all plaintexts in a single backend round trip.
	// len(aads) must equal len(plaintexts); output order matches input.
	// A failed batch yields no ciphertexts at all.
	BatchEncrypt(ctx context.Context, keyRef string, plaintexts [][]byte, aads [][]byte) ([][]byte, error)
}

// Stable error codes shared by backends.
const (
	CodeUnavailable      = "KMS_UNAVAILABLE"
	CodeUnseal           = "KMS_UNSEAL"
	CodeKeyNotConfigured = "KMS_KEY_NOT_CONFIGURED"
	CodeBatchMismatch    = "KMS_BATCH_MISMATCH"
)

// KeyRefForApp derives the per-(org, app) data-key reference. Every secret
// in an app shares one key reference; rotation swaps the material behind
// the reference, not the reference itself.
func KeyRefForApp(orgID string, appID string) string {
	return "org-" + orgID + ".app-" + appID
}
