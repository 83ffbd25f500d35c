// Package store defines the counter backend contract for the fixed-window
// limiter.
//
// A Store tracks one integer counter per key together with the instant that
// counter's window ends. Two implementations ship with the module:
//
//   - store/memory: process-local map guarded by a mutex, lazily expired.
//   - store/redis: INCR + EXPIREAT inside a MULTI/EXEC transaction, shared by
//     every process pointed at the same Redis.
package store

import (
	"context"
	"time"
)

// Store counts requests per key inside a fixed window.
// Implementations must be safe for concurrent use.
type Store interface {
	// Increment records one request for key and returns the number of
	// requests seen in the current window, including this one. The first
	// call in a fresh window returns 1. Concurrent calls for the same key
	// must never lose an increment.
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Resetter is implemented by stores that can forget a single key.
type Resetter interface {
	Reset(ctx context.Context, key string) error
}
