// Package redis shares user cooldowns between fleet processes through Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bnema/botfleet/internal/ports"
	goredis "github.com/redis/go-redis/v9"
)

const (
	connectionTimeout = 2 * time.Second
	defaultKeyPrefix  = "botfleet:cooldown:"
)

var _ ports.CooldownStore = (*Store)(nil)

type Options struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

// NewClient connects to Redis and pings it once.
func NewClient(ctx context.Context, opts Options) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Address, err)
	}

	return client, nil
}

// Store keeps one string key per user holding the cooldown end.
type Store struct {
	client goredis.UniversalClient
	prefix string
}

func NewStore(client goredis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) key(userID string) string {
	return s.prefix + userID
}

func (s *Store) Get(ctx context.Context, userID string) (time.Time, bool, error) {
	raw, err := s.client.Get(ctx, s.key(userID)).Result()
	if errors.Is(err, goredis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get cooldown of %s: %w", userID, err)
	}

	until, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse cooldown of %s: %w", userID, err)
	}
	return until, true, nil
}

// Set stores until without expiry. Past values written by a cooldown reset
// must stay readable.
func (s *Store) Set(ctx context.Context, userID string, until time.Time) error {
	if err := s.client.Set(ctx, s.key(userID), until.UTC().Format(time.RFC3339Nano), 0).Err(); err != nil {
		return fmt.Errorf("set cooldown of %s: %w", userID, err)
	}
	return nil
}
