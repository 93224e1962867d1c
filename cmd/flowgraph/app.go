package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/rendis/flowgraph/internal/actions"
	"github.com/rendis/flowgraph/internal/debugger"
	"github.com/rendis/flowgraph/internal/engine"
	"github.com/rendis/flowgraph/internal/secrets"
	"github.com/rendis/flowgraph/internal/store"
	"github.com/rendis/flowgraph/internal/streaming"
	"github.com/rendis/flowgraph/internal/validation"
)

// secretEnvPrefix names environment variables consulted as a last secret source.
const secretEnvPrefix = "FLOWGRAPH_SECRET_"

// app is the wired object graph shared by every command.
type app struct {
	cfg       Config
	logger    *slog.Logger
	store     store.Store
	workflows *store.ValidatingStore
	validator *validation.WorkflowValidator
	vault     secrets.Vault // nil when no vault key is configured
	hub       *streaming.MemoryHub
	engine    *engine.Engine
	debugger  *debugger.Manager
	closers   []func() error
}

// newApp wires the engine over st. The secret chain is the AES vault (when a
// vault key is set), then Redis (when configured), then FLOWGRAPH_SECRET_*
// environment variables.
func newApp(ctx context.Context, cfg Config, st store.Store, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, store: st, hub: streaming.NewMemoryHub()}

	chain, err := a.secretChain(ctx)
	if err != nil {
		return nil, err
	}

	v, err := validation.NewWorkflowValidator(st)
	if err != nil {
		return nil, fmt.Errorf("create validator: %w", err)
	}
	a.validator = v
	a.workflows = store.NewValidatingStore(st, v)

	a.engine, err = engine.New(engine.Config{
		Workflows: st,
		Runs:      st,
		Secrets:   chain,
		Inputs:    v,
		HTTP:      actions.HTTPConfig{MaxResponseBody: cfg.MaxResponseBytes},
		Messaging: actions.MessagingConfig{BaseURL: cfg.MessagingBaseURL},
		Hub:       a.hub,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	a.debugger, err = debugger.NewManager(debugger.Config{
		Engine: a.engine,
		Hub:    a.hub,
		TTL:    cfg.debugTTL(),
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create debugger: %w", err)
	}
	return a, nil
}

func (a *app) secretChain(ctx context.Context) (secrets.Chain, error) {
	var chain secrets.Chain

	if a.cfg.VaultKey != "" {
		salt, err := loadSalt(a.cfg.saltPath())
		if err != nil {
			return nil, err
		}
		vault, err := secrets.NewAESVault(a.store, secrets.VaultConfig{
			Passphrase: a.cfg.VaultKey,
			Salt:       salt,
		})
		if err != nil {
			return nil, fmt.Errorf("create vault: %w", err)
		}
		a.vault = vault
		chain = append(chain, vault)
	}

	if a.cfg.RedisURL != "" {
		rv, err := secrets.NewRedisVault(ctx, a.cfg.RedisURL, "flowgraph:secret:")
		if err != nil {
			return nil, fmt.Errorf("connect redis vault: %w", err)
		}
		a.closers = append(a.closers, rv.Close)
		chain = append(chain, rv)
	}

	return append(chain, secrets.EnvResolver{Prefix: secretEnvPrefix}), nil
}

// loadSalt reads the PBKDF2 salt, creating it on first use.
func loadSalt(path string) ([]byte, error) {
	salt, err := os.ReadFile(path)
	if err == nil && len(salt) > 0 {
		return salt, nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read vault salt: %w", err)
	}

	salt = make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate vault salt: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(path, salt, 0o600); err != nil {
		return nil, fmt.Errorf("write vault salt: %w", err)
	}
	return salt, nil
}

// openStore opens the libsql database at cfg.DBPath and applies migrations.
func openStore(ctx context.Context, cfg Config) (*store.LibSQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	dsn := cfg.DBPath
	if !strings.Contains(dsn, ":") || filepath.IsAbs(dsn) {
		dsn = "file:" + dsn
	}
	st, err := store.NewLibSQLStore(dsn)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return st, nil
}

func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	errs = append(errs, a.store.Close())
	return errors.Join(errs...)
}
