package services

import (
	"context"
	"encoding/base64"

	"github.com/envledger/envledger/modules/ledger/domain/ports"
	"github.com/envledger/envledger/modules/ledger/domain/types"
	"github.com/envledger/envledger/pkg/envelope"
	"github.com/envledger/envledger/pkg/storeerr"
)

// DefaultMaxBatch bounds how many operations one change record may carry.
const DefaultMaxBatch = 100

var (
	errBatchTooLarge    = storeerr.New(storeerr.KindValidation, "BATCH_TOO_LARGE")
	errSecretsDisabled  = storeerr.New(storeerr.KindValidation, "SECRETS_DISABLED")
	errNotASecret       = storeerr.New(storeerr.KindValidation, "NOT_A_SECRET")
	errRevealNotManaged = storeerr.New(storeerr.KindValidation, "REVEAL_NOT_MANAGED")
	errAppKeyMissing    = storeerr.New(storeerr.KindKeyNotConfigured, "APP_KEY_NOT_CONFIGURED")
)

// WriteService is the single entry point for mutations. It bounds batch
// size, routes secret plaintext through the envelope crypto before anything
// touches storage, and commits each batch as one atomic change record.
type WriteService struct {
	log      ports.LedgerStore
	registry ports.RegistryStore
	crypto   *envelope.Crypto
	maxBatch int
}

func NewWriteService(log ports.LedgerStore, registry ports.RegistryStore, crypto *envelope.Crypto, maxBatch int) *WriteService {
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	return &WriteService{log: log, registry: registry, crypto: crypto, maxBatch: maxBatch}
}

// SecretWrite is one secret mutation. Plaintext is ignored for deletes.
type SecretWrite struct {
	Key       string
	Plaintext string
	Kind      types.OpKind
}

func (s *WriteService) checkBatch(n int) error {
	if n > s.maxBatch {
		return errBatchTooLarge
	}
	return nil
}

func (s *WriteService) CreateVariable(ctx context.Context, scope types.Scope, actorID string, message string, key string, value string) (types.ChangeRecord, error) {
	return s.ApplyVariables(ctx, scope, actorID, message, []types.Operation{{Key: key, Value: value, Kind: types.OpCreate}})
}

func (s *WriteService) UpdateVariable(ctx context.Context, scope types.Scope, actorID string, message string, key string, value string) (types.ChangeRecord, error) {
	return s.ApplyVariables(ctx, scope, actorID, message, []types.Operation{{Key: key, Value: value, Kind: types.OpUpdate}})
}

func (s *WriteService) DeleteVariable(ctx context.Context, scope types.Scope, actorID string, message string, key string) (types.ChangeRecord, error) {
	return s.ApplyVariables(ctx, scope, actorID, message, []types.Operation{{Key: key, Kind: types.OpDelete}})
}

// ApplyVariables commits a batch of plain-variable operations. The whole
// batch lands as one change record or not at all.
func (s *WriteService) ApplyVariables(ctx context.Context, scope types.Scope, actorID string, message string, ops []types.Operation) (types.ChangeRecord, error) {
	if err := s.checkBatch(len(ops)); err != nil {
		return types.ChangeRecord{}, err
	}
	for i := range ops {
		ops[i].Secret = false
	}
	return s.log.Commit(ctx, scope, actorID, message, ops, nil)
}

// requireSecretsApp resolves the app and checks it can carry secrets.
func (s *WriteService) requireSecretsApp(ctx context.Context, scope types.Scope) (types.App, error) {
	app, err := s.registry.GetApp(ctx, scope.OrgID, scope.AppID)
	if err != nil {
		return types.App{}, err
	}
	if !app.EnableSecrets {
		return types.App{}, errSecretsDisabled
	}
	if app.PublicKey == "" {
		return types.App{}, errAppKeyMissing
	}
	return app, nil
}

// ApplySecrets commits a batch of secret mutations. All plaintexts are
// sealed first, with exactly one KMS call for the whole batch; if that call
// fails nothing is written. Deletes ride in the same record untouched.
func (s *WriteService) ApplySecrets(ctx context.Context, scope types.Scope, actorID string, message string, writes []SecretWrite) (types.ChangeRecord, error) {
	if err := s.checkBatch(len(writes)); err != nil {
		return types.ChangeRecord{}, err
	}
	app, err := s.requireSecretsApp(ctx, scope)
	if err != nil {
		return types.ChangeRecord{}, err
	}

	items := make([]envelope.Item, 0, len(writes))
	for _, w := range writes {
		if w.Kind == types.OpDelete {
			continue
		}
		items = append(items, envelope.Item{Key: w.Key, Plaintext: w.Plaintext})
	}
	var ciphertexts []string
	if len(items) > 0 {
		ciphertexts, err = s.crypto.BatchEncrypt(ctx, scope, items, app.PublicKey)
		if err != nil {
			return types.ChangeRecord{}, err
		}
	}

	ops := make([]types.Operation, 0, len(writes))
	next := 0
	for _, w := range writes {
		op := types.Operation{Key: w.Key, Kind: w.Kind, Secret: true}
		if w.Kind != types.OpDelete {
			op.Value = ciphertexts[next]
			next++
		}
		ops = append(ops, op)
	}
	return s.log.Commit(ctx, scope, actorID, message, ops, nil)
}

// GetSecret returns the layer-2-unwrapped inner box, base64 encoded. BYOK
// clients open it locally; the server never needs the app private key here.
func (s *WriteService) GetSecret(ctx context.Context, scope types.Scope, key string) (string, error) {
	entry, err := s.log.Get(ctx, scope, key)
	if err != nil {
		return "", err
	}
	if !entry.Secret {
		return "", errNotASecret
	}
	inner, err := s.crypto.Unwrap(ctx, scope, key, entry.Value)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(inner), nil
}

// RevealSecrets fully decrypts secrets for a managed app. BYOK apps cannot
// reveal server-side; the server does not hold their private keys.
func (s *WriteService) RevealSecrets(ctx context.Context, scope types.Scope, keys []string) (map[string]string, error) {
	app, err := s.requireSecretsApp(ctx, scope)
	if err != nil {
		return nil, err
	}
	if !app.IsManagedSecret || app.PrivateKey == "" {
		return nil, errRevealNotManaged
	}

	out := make(map[string]string, len(keys))
	for _, key := range keys {
		entry, err := s.log.Get(ctx, scope, key)
		if err != nil {
			return nil, err
		}
		if !entry.Secret {
			return nil, errNotASecret
		}
		plaintext, err := s.crypto.FullDecrypt(ctx, scope, key, entry.Value, app.PublicKey, app.PrivateKey)
		if err != nil {
			return nil, err
		}
		out[key] = plaintext
	}
	return out, nil
}
