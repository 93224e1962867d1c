package secrets

import (
	"context"
	"errors"
)

// ErrSecretNotFound is returned by Resolve when the key is absent.
var ErrSecretNotFound = errors.New("secret not found")

// Resolver is the read-only lookup consulted by the interpolator.
type Resolver interface {
	Resolve(ctx context.Context, key string) ([]byte, error)
}

// Vault stores and resolves secret values such as messaging channel tokens.
type Vault interface {
	Resolver
	Store(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]string, error)
}

// SecretStore is the minimal persistence interface needed by the AES vault.
// Satisfied by store.LibSQLStore.
type SecretStore interface {
	StoreSecret(ctx context.Context, key string, value []byte) error
	GetSecret(ctx context.Context, key string) ([]byte, error)
	DeleteSecret(ctx context.Context, key string) error
	ListSecrets(ctx context.Context) ([]string, error)
}
