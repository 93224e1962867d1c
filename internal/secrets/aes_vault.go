package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/pbkdf2"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/rendis/flowgraph/pkg/schema"
)

const defaultKDFIterations = 100_000

// VaultConfig configures the AES vault key derivation.
// Provide either MasterKey (raw 32 bytes) or Passphrase + Salt.
type VaultConfig struct {
	MasterKey  []byte
	Passphrase string
	Salt       []byte
	Iterations int // PBKDF2 iterations (default 100_000)
}

// AESVault seals secrets with AES-256-GCM before handing them to a SecretStore.
// Stored layout is nonce || ciphertext.
type AESVault struct {
	store SecretStore
	aead  cipher.AEAD
}

// NewAESVault creates a vault over s.
func NewAESVault(s SecretStore, cfg VaultConfig) (*AESVault, error) {
	key, err := cfg.key()
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return &AESVault{store: s, aead: aead}, nil
}

func (c VaultConfig) key() ([]byte, error) {
	switch {
	case len(c.MasterKey) == 32:
		return c.MasterKey, nil
	case len(c.MasterKey) > 0:
		return nil, schema.NewErrorf(schema.ErrCodeSecret, "master key must be 32 bytes, got %d", len(c.MasterKey))
	case c.Passphrase == "":
		return nil, schema.NewError(schema.ErrCodeSecret, "either a master key or a passphrase is required")
	case len(c.Salt) == 0:
		return nil, schema.NewError(schema.ErrCodeSecret, "salt is required with passphrase")
	}
	iterations := c.Iterations
	if iterations <= 0 {
		iterations = defaultKDFIterations
	}
	return pbkdf2.Key(sha256.New, c.Passphrase, c.Salt, iterations, 32)
}

func (v *AESVault) seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return v.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (v *AESVault) open(sealed []byte) ([]byte, error) {
	n := v.aead.NonceSize()
	if len(sealed) < n {
		return nil, schema.NewError(schema.ErrCodeSecret, "ciphertext too short")
	}
	plaintext, err := v.aead.Open(nil, sealed[:n], sealed[n:], nil)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeSecret, "decrypt failed: %s", err.Error()).WithCause(err)
	}
	return plaintext, nil
}

// Store encrypts and persists value under key.
func (v *AESVault) Store(ctx context.Context, key string, value []byte) error {
	sealed, err := v.seal(value)
	if err != nil {
		return err
	}
	return v.store.StoreSecret(ctx, key, sealed)
}

// Resolve loads and decrypts key. Absent keys yield ErrSecretNotFound.
func (v *AESVault) Resolve(ctx context.Context, key string) ([]byte, error) {
	sealed, err := v.store.GetSecret(ctx, key)
	if err != nil {
		if schema.ErrorCode(err) == schema.ErrCodeNotFound {
			return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, key)
		}
		return nil, err
	}
	return v.open(sealed)
}

func (v *AESVault) Delete(ctx context.Context, key string) error {
	return v.store.DeleteSecret(ctx, key)
}

func (v *AESVault) List(ctx context.Context) ([]string, error) {
	return v.store.ListSecrets(ctx)
}
