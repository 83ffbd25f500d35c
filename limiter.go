package windowlimit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/krishna-kudari/windowlimit/store"
	"github.com/krishna-kudari/windowlimit/store/memory"
	redisstore "github.com/krishna-kudari/windowlimit/store/redis"
)

// Decision is the outcome of a successful check.
type Decision struct {
	// Allowed reports whether the request may continue downstream.
	Allowed bool

	// Count is the number of requests seen for the key in the current
	// window, including this one.
	Count int64

	// Limit is the configured per-window budget.
	Limit int64

	// Remaining is Limit-Count on accept and 0 on reject.
	Remaining int64

	// StatusCode is 200 on accept and 429 on reject.
	StatusCode int

	// Message is the configured rejection message. Empty on accept.
	Message string
}

// Observer is notified after every check. Exactly one of d and err is non-nil.
// Implementations must be safe for concurrent use and should not block.
type Observer interface {
	Observe(ctx context.Context, key string, d *Decision, err error)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, key string, d *Decision, err error)

// Observe calls f(ctx, key, d, err).
func (f ObserverFunc) Observe(ctx context.Context, key string, d *Decision, err error) {
	f(ctx, key, d, err)
}

// Limiter turns per-key counts into accept/reject decisions.
// It holds no mutable state and is safe to share across goroutines.
type Limiter struct {
	opts *Options
}

// New validates the options and returns a Limiter.
func New(opts ...Option) (*Limiter, error) {
	o := applyOptions(opts)
	if o.Window <= 0 {
		return nil, fmt.Errorf("%w: window must be positive, got %s", ErrInvalidConfig, o.Window)
	}
	if o.Max <= 0 {
		return nil, fmt.Errorf("%w: max must be positive, got %d", ErrInvalidConfig, o.Max)
	}
	if o.Store == nil {
		o.Store = memory.New()
	}
	if _, ok := o.Store.(*redisstore.Store); ok && o.Window < time.Second {
		o.Logger.Warn("redis store truncates expiry to whole seconds; sub-second windows will not limit",
			zap.Duration("window", o.Window),
		)
	}
	return &Limiter{opts: o}, nil
}

// Allow counts one request for key and decides whether it may proceed.
//
// A store failure yields an error wrapping ErrStoreUnavailable and no
// Decision. Exceeding the budget is not an error.
func (l *Limiter) Allow(ctx context.Context, key string) (*Decision, error) {
	if key == "" {
		l.notify(ctx, key, nil, ErrEmptyKey)
		return nil, ErrEmptyKey
	}

	count, err := l.opts.Store.Increment(ctx, l.opts.FormatKey(key), l.opts.Window)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		l.opts.Logger.Warn("rate limit store failed", zap.String("key", key), zap.Error(err))
		l.notify(ctx, key, nil, err)
		return nil, err
	}

	var d *Decision
	if count > l.opts.Max {
		d = &Decision{
			Allowed:    false,
			Count:      count,
			Limit:      l.opts.Max,
			StatusCode: http.StatusTooManyRequests,
			Message:    l.opts.Message,
		}
		l.opts.Logger.Debug("rate limit exceeded",
			zap.String("key", key),
			zap.Int64("count", count),
			zap.Int64("max", l.opts.Max),
		)
	} else {
		d = &Decision{
			Allowed:    true,
			Count:      count,
			Limit:      l.opts.Max,
			Remaining:  l.opts.Max - count,
			StatusCode: http.StatusOK,
		}
	}
	l.notify(ctx, key, d, nil)
	return d, nil
}

// Reset forgets key if the store supports it.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	r, ok := l.opts.Store.(store.Resetter)
	if !ok {
		return ErrResetNotSupported
	}
	return r.Reset(ctx, l.opts.FormatKey(key))
}

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration { return l.opts.Window }

// Max returns the per-window budget.
func (l *Limiter) Max() int64 { return l.opts.Max }

// Message returns the rejection message.
func (l *Limiter) Message() string { return l.opts.Message }

// Store returns the counter backend.
func (l *Limiter) Store() store.Store { return l.opts.Store }

func (l *Limiter) notify(ctx context.Context, key string, d *Decision, err error) {
	for _, obs := range l.opts.Observers {
		obs.Observe(ctx, key, d, err)
	}
}
