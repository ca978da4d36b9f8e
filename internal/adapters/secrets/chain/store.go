// Package chain keeps bot credentials in a primary secret store and falls back
// to a second one when the primary cannot serve a call.
package chain

import (
	"context"
	"errors"
	"fmt"

	filestore "github.com/bnema/botfleet/internal/adapters/secrets/file"
	passstore "github.com/bnema/botfleet/internal/adapters/secrets/pass"
	"github.com/bnema/botfleet/internal/ports"
	"github.com/rs/zerolog"
)

var _ ports.SecretStore = (*Store)(nil)

var (
	errNilPrimaryStore  = errors.New("primary secret store is nil")
	errNilFallbackStore = errors.New("fallback secret store is nil")
)

type Store struct {
	primary  ports.SecretStore
	fallback ports.SecretStore
	log      zerolog.Logger
}

type Option func(*Store)

// WithLogger reports every call served by the fallback store.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) { s.log = log }
}

func New(primary ports.SecretStore, fallback ports.SecretStore, opts ...Option) (*Store, error) {
	if primary == nil {
		return nil, errNilPrimaryStore
	}
	if fallback == nil {
		return nil, errNilFallbackStore
	}

	s := &Store{primary: primary, fallback: fallback, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewPassFirstWithFileFallback prefers pass and keeps a file copy when pass
// is missing or broken. An empty passDir uses the default password store.
func NewPassFirstWithFileFallback(fileRoot string, passDir string, opts ...Option) (*Store, error) {
	var passOpts []passstore.Option
	if passDir != "" {
		passOpts = append(passOpts, passstore.WithStoreDir(passDir))
	}
	return New(passstore.NewStore(passOpts...), filestore.NewStore(fileRoot), opts...)
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	value, err := s.primary.Get(ctx, key)
	if err == nil {
		return value, nil
	}

	err = s.fallBack(ctx, "get", key, err, func(ctx context.Context) error {
		value, err = s.fallback.Get(ctx, key)
		return err
	})
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *Store) Put(ctx context.Context, key string, value string) error {
	err := s.primary.Put(ctx, key, value)
	if err == nil {
		return nil
	}

	return s.fallBack(ctx, "put", key, err, func(ctx context.Context) error {
		return s.fallback.Put(ctx, key, value)
	})
}

// Delete removes the credential from both stores, so that a copy written to
// the fallback while the primary was down cannot be served later.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.primary.Delete(ctx, key)
	if err == nil {
		if fallbackErr := s.fallback.Delete(ctx, key); fallbackErr != nil {
			return fmt.Errorf("fallback backend delete failed: %w", fallbackErr)
		}
		return nil
	}

	return s.fallBack(ctx, "delete", key, err, func(ctx context.Context) error {
		return s.fallback.Delete(ctx, key)
	})
}

// fallBack runs call on the fallback store after the primary failed with
// primaryErr. Context errors are returned as they are.
func (s *Store) fallBack(ctx context.Context, op string, key string, primaryErr error, call func(context.Context) error) error {
	if errors.Is(primaryErr, context.Canceled) || errors.Is(primaryErr, context.DeadlineExceeded) {
		return primaryErr
	}

	if err := call(ctx); err != nil {
		return fmt.Errorf("primary backend %s failed: %w; fallback backend %s failed: %w", op, primaryErr, op, err)
	}

	s.log.Debug().Err(primaryErr).Str("op", op).Str("key", key).Msg("secret served by fallback store")
	return nil
}
