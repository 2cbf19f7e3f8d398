// Package redisstore keeps the ticket counter in Redis so several
// processes can share one daily sequence.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Veraticus/the-trucks-must-roll/internal/common"
	"github.com/Veraticus/the-trucks-must-roll/internal/service"
)

// Optimistic transaction retries under contention. Losers back off with
// jitter so gates hammering the same counter take turns.
const (
	defaultMaxRetries = 50
	contentionDelay   = 2 * time.Millisecond
	contentionMaxWait = 100 * time.Millisecond
)

// ErrContention is returned when an update keeps losing its WATCH race.
var ErrContention = errors.New("redis key under contention")

// Store is a service.KeyValueStore backed by Redis.
type Store struct {
	client     redis.UniversalClient
	prefix     string
	maxRetries int
}

var _ service.KeyValueStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithPrefix namespaces every key, e.g. "trucks:".
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithMaxRetries bounds how often a contended update is retried.
func WithMaxRetries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// New wraps an existing client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, maxRetries: defaultMaxRetries}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial connects to addr and checks the connection.
func Dial(ctx context.Context, addr, password string, db int, opts ...Option) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return New(client, opts...), nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Load returns the value stored under key.
func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, service.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", key, err)
	}
	return value, nil
}

// Update applies fn under WATCH/MULTI and retries, backing off, when another
// client changed the key in between.
func (s *Store) Update(ctx context.Context, key string, fn service.UpdateFunc) error {
	if fn == nil {
		return errors.New("update function cannot be nil")
	}
	fullKey := s.prefix + key

	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, fullKey).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("failed to read %s: %w", key, err)
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, fullKey, next, 0)
			return nil
		})
		return err
	}

	err := common.WithRetry(ctx, func() error {
		return s.client.Watch(ctx, txf, fullKey)
	}, service.RetryOptions{
		Retryable:    func(err error) bool { return errors.Is(err, redis.TxFailedErr) },
		MaxAttempts:  s.maxRetries,
		InitialDelay: contentionDelay,
		MaxDelay:     contentionMaxWait,
		Multiplier:   1.5,
	})
	if errors.Is(err, common.ErrMaxRetries) {
		return fmt.Errorf("%w: %s", ErrContention, key)
	}
	return err
}
