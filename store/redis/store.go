// Package redis provides a Redis-backed implementation of store.Store.
//
// It wraps redis.UniversalClient, which supports Redis standalone,
// Redis Cluster, and Redis Sentinel out of the box. Every increment is a
// MULTI/EXEC transaction of INCR followed by EXPIREAT, so all processes that
// share the Redis instance share the same counters.
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//
//	// Or with Redis Cluster:
//	client := redis.NewClusterClient(&redis.ClusterOptions{
//	    Addrs: []string{"node1:6379", "node2:6379", "node3:6379"},
//	})
//	s := redisstore.New(client)
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/krishna-kudari/windowlimit/clock"
)

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the wall clock used to compute EXPIREAT deadlines.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// Store implements store.Store backed by Redis. It keeps no local state.
type Store struct {
	client goredis.UniversalClient
	clock  clock.Clock
}

// New creates a Redis-backed Store from an already connected UniversalClient
// (standalone *redis.Client, *redis.ClusterClient, or *redis.Ring).
// The caller keeps ownership of the client.
func New(client goredis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client: client,
		clock:  clock.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() goredis.UniversalClient {
	return s.client
}

// Increment implements store.Store. The window end is truncated to whole
// seconds, the resolution of EXPIREAT.
//
// Windows shorter than a second are not useful here: the truncated deadline
// is often already past, Redis deletes the key on the spot, and every call
// returns 1. Use a window of at least one second, or the memory store.
func (s *Store) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	expireAt := time.Unix(s.clock.Now().Add(window).Unix(), 0)

	var incr *goredis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireAt(ctx, key, expireAt)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis store: increment %q: %w", key, err)
	}
	return incr.Val(), nil
}

// Reset deletes the counter for key. Implements store.Resetter.
func (s *Store) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis store: reset %q: %w", key, err)
	}
	return nil
}
