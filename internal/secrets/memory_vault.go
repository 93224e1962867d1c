package secrets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
)

// MemoryVault is an in-process vault, used for tests and one-shot CLI runs.
type MemoryVault struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryVault creates a vault seeded with the given values.
func NewMemoryVault(seed map[string]string) *MemoryVault {
	v := &MemoryVault{data: make(map[string][]byte, len(seed))}
	for k, val := range seed {
		v.data[k] = []byte(val)
	}
	return v
}

func (v *MemoryVault) Resolve(_ context.Context, key string) ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	val, ok := v.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, key)
	}
	return bytes.Clone(val), nil
}

func (v *MemoryVault) Store(_ context.Context, key string, value []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.data[key] = bytes.Clone(value)
	return nil
}

func (v *MemoryVault) Delete(_ context.Context, key string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.data, key)
	return nil
}

func (v *MemoryVault) List(_ context.Context) ([]string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	keys := make([]string, 0, len(v.data))
	for k := range v.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// EnvResolver resolves secrets from environment variables named Prefix+key.
type EnvResolver struct {
	Prefix string
}

func (r EnvResolver) Resolve(_ context.Context, key string) ([]byte, error) {
	val, ok := os.LookupEnv(r.Prefix + key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, key)
	}
	return []byte(val), nil
}

// Chain consults resolvers in order and returns the first hit.
// Errors other than ErrSecretNotFound stop the chain.
type Chain []Resolver

func (c Chain) Resolve(ctx context.Context, key string) ([]byte, error) {
	for _, r := range c {
		if r == nil {
			continue
		}
		val, err := r.Resolve(ctx, key)
		if err == nil {
			return val, nil
		}
		if !errors.Is(err, ErrSecretNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, key)
}

var (
	_ Vault    = (*AESVault)(nil)
	_ Vault    = (*RedisVault)(nil)
	_ Vault    = (*MemoryVault)(nil)
	_ Resolver = EnvResolver{}
	_ Resolver = Chain(nil)
)
