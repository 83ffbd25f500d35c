package windowlimit

import (
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/krishna-kudari/windowlimit/store"
)

// Builder provides a fluent API for constructing a Limiter.
//
//	limiter, err := windowlimit.NewBuilder().
//	    Window(time.Minute).
//	    Max(100).
//	    Redis(client).
//	    Build()
type Builder struct {
	opts []Option
}

// NewBuilder returns a new Builder with default options.
func NewBuilder() *Builder {
	return &Builder{}
}

// Window sets the fixed window length.
func (b *Builder) Window(d time.Duration) *Builder {
	b.opts = append(b.opts, WithWindow(d))
	return b
}

// Max sets the per-window request budget.
func (b *Builder) Max(n int64) *Builder {
	b.opts = append(b.opts, WithMax(n))
	return b
}

// Message sets the rejection message.
func (b *Builder) Message(msg string) *Builder {
	b.opts = append(b.opts, WithMessage(msg))
	return b
}

// Redis sets the Redis backend. Accepts any redis.UniversalClient.
func (b *Builder) Redis(client redis.UniversalClient) *Builder {
	b.opts = append(b.opts, WithRedis(client))
	return b
}

// Store sets a custom store.Store backend.
func (b *Builder) Store(s store.Store) *Builder {
	b.opts = append(b.opts, WithStore(s))
	return b
}

// KeyPrefix sets the prefix prepended to all storage keys.
func (b *Builder) KeyPrefix(prefix string) *Builder {
	b.opts = append(b.opts, WithKeyPrefix(prefix))
	return b
}

// Logger sets the structured logger.
func (b *Builder) Logger(l *zap.Logger) *Builder {
	b.opts = append(b.opts, WithLogger(l))
	return b
}

// Observer registers an Observer.
func (b *Builder) Observer(o Observer) *Builder {
	b.opts = append(b.opts, WithObserver(o))
	return b
}

// Build validates the configuration and returns the configured Limiter.
func (b *Builder) Build() (*Limiter, error) {
	return New(b.opts...)
}
