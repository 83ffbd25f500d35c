package windowlimit

import (
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/krishna-kudari/windowlimit/store"
	redisstore "github.com/krishna-kudari/windowlimit/store/redis"
)

const (
	// DefaultWindow is the window length used when WithWindow is not given.
	DefaultWindow = 60 * time.Second

	// DefaultMax is the per-window request budget used when WithMax is not given.
	DefaultMax int64 = 100

	// DefaultMessage is the rejection body used when WithMessage is not given.
	DefaultMessage = "Too many requests, please try again later."

	// DefaultKeyPrefix namespaces store keys.
	DefaultKeyPrefix = "ratelimit"
)

// Options holds Limiter configuration. Build it through Option values.
type Options struct {
	Window    time.Duration
	Max       int64
	Message   string
	Store     store.Store
	KeyPrefix string
	Logger    *zap.Logger
	Observers []Observer
}

// Option configures a Limiter.
type Option func(*Options)

// WithWindow sets the fixed window length. Must be positive.
func WithWindow(d time.Duration) Option {
	return func(o *Options) { o.Window = d }
}

// WithMax sets how many requests a key may make per window. Must be positive.
func WithMax(n int64) Option {
	return func(o *Options) { o.Max = n }
}

// WithMessage sets the body returned with a 429. Empty keeps the default.
func WithMessage(msg string) Option {
	return func(o *Options) {
		if msg != "" {
			o.Message = msg
		}
	}
}

// WithStore sets the counter backend. The default is a fresh memory store.
func WithStore(s store.Store) Option {
	return func(o *Options) { o.Store = s }
}

// WithRedis uses a Redis counter store over client.
// Accepts any redis.UniversalClient.
func WithRedis(client redis.UniversalClient) Option {
	return func(o *Options) { o.Store = redisstore.New(client) }
}

// WithKeyPrefix sets the prefix prepended to all store keys.
// An empty prefix stores keys verbatim.
func WithKeyPrefix(prefix string) Option {
	return func(o *Options) { o.KeyPrefix = prefix }
}

// WithLogger sets the structured logger. Nil keeps the no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

// WithObserver registers an Observer notified after every check.
func WithObserver(obs Observer) Option {
	return func(o *Options) {
		if obs != nil {
			o.Observers = append(o.Observers, obs)
		}
	}
}

func defaultOptions() *Options {
	return &Options{
		Window:    DefaultWindow,
		Max:       DefaultMax,
		Message:   DefaultMessage,
		KeyPrefix: DefaultKeyPrefix,
		Logger:    zap.NewNop(),
	}
}

func applyOptions(opts []Option) *Options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// FormatKey returns the store key for a client key.
func (o *Options) FormatKey(key string) string {
	if o.KeyPrefix == "" {
		return key
	}
	return o.KeyPrefix + ":" + key
}
