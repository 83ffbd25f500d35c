// Package container wires the daemon's components with samber/do.
package container

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"go.uber.org/zap"

	"github.com/krishna-kudari/windowlimit"
	"github.com/krishna-kudari/windowlimit/clock"
	"github.com/krishna-kudari/windowlimit/internal/api"
	"github.com/krishna-kudari/windowlimit/internal/events"
	"github.com/krishna-kudari/windowlimit/metrics"
	"github.com/krishna-kudari/windowlimit/middleware/humamw"
	"github.com/krishna-kudari/windowlimit/store"
	"github.com/krishna-kudari/windowlimit/store/memory"
	redisstore "github.com/krishna-kudari/windowlimit/store/redis"
)

// Backend names accepted by Options.Backend.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Options struct {
	Port      int    `default:"8080"                                       help:"Port to listen on"                          short:"p"`
	Backend   string `default:"memory"                                     help:"Counter store: memory or redis"             short:"b"`
	RedisAddr string `default:"localhost:6379"                             help:"Redis server address"                       short:"r"`
	WindowMs  int    `default:"60000"                                      help:"Window length in milliseconds"              short:"w"`
	Max       int    `default:"100"                                        help:"Requests allowed per key per window"        short:"m"`
	Message   string `default:"Too many requests, please try again later." help:"Body returned with 429 responses"`
	KeyPrefix string `default:"ratelimit"                                  help:"Prefix for store keys"`
	MaxKeys   int    `default:"0"                                          help:"Bound on in-memory keys, 0 for unbounded"`
	LogFormat string `default:"json"                                       help:"Log encoding: json, console or none"`

	// Comma separated IPs or CIDR blocks. Empty keys every request by its
	// socket address.
	TrustedProxies string `default:"" help:"Proxies whose X-Forwarded-For is trusted (IPs or CIDRs, comma separated)"`
}

// LoggerPackage provides the *zap.Logger.
func LoggerPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*zap.Logger, error) {
		opts := do.MustInvoke[*Options](i)
		switch opts.LogFormat {
		case "console":
			return zap.NewDevelopment()
		case "none":
			return zap.NewNop(), nil
		default:
			return zap.NewProduction()
		}
	})
}

// RedisPackage provides the Redis client. It is only invoked for the redis backend.
func RedisPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (redis.UniversalClient, error) {
		opts := do.MustInvoke[*Options](i)
		return redis.NewClient(&redis.Options{Addr: opts.RedisAddr}), nil
	})
}

// MetricsPackage provides a private Prometheus registry and the Collector
// registered on it.
func MetricsPackage(i *do.Injector) {
	do.Provide(i, func(_ *do.Injector) (*prometheus.Registry, error) {
		return prometheus.NewRegistry(), nil
	})
	do.Provide(i, func(i *do.Injector) (*metrics.Collector, error) {
		reg := do.MustInvoke[*prometheus.Registry](i)
		return metrics.NewCollector(metrics.WithRegistry(reg)), nil
	})
}

// StorePackage provides the instrumented counter store for the chosen backend.
func StorePackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (store.Store, error) {
		opts := do.MustInvoke[*Options](i)
		collector := do.MustInvoke[*metrics.Collector](i)

		switch opts.Backend {
		case BackendMemory:
			s := memory.New(memory.WithMaxKeys(opts.MaxKeys))
			return metrics.WrapStore(s, metrics.Memory, collector), nil
		case BackendRedis:
			client := do.MustInvoke[redis.UniversalClient](i)
			return metrics.WrapStore(redisstore.New(client), metrics.Redis, collector), nil
		default:
			return nil, fmt.Errorf("unknown backend %q", opts.Backend)
		}
	})
}

// EventsPackage provides the event publisher. Events go to Redis streams with
// the redis backend and to an in-process channel otherwise.
func EventsPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*events.Publisher, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)

		if opts.Backend == BackendRedis {
			pub, err := events.NewRedisStreamPublisher(do.MustInvoke[redis.UniversalClient](i), logger)
			if err != nil {
				return nil, err
			}
			return events.NewPublisher(pub, clock.New(), logger), nil
		}

		return events.NewPublisher(events.NewGoChannel(logger), clock.New(), logger), nil
	})
}

// LimiterPackage provides the *windowlimit.Limiter.
func LimiterPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*windowlimit.Limiter, error) {
		opts := do.MustInvoke[*Options](i)

		s, err := do.Invoke[store.Store](i)
		if err != nil {
			return nil, err
		}
		publisher, err := do.Invoke[*events.Publisher](i)
		if err != nil {
			return nil, err
		}

		return windowlimit.New(
			windowlimit.WithWindow(time.Duration(opts.WindowMs)*time.Millisecond),
			windowlimit.WithMax(int64(opts.Max)),
			windowlimit.WithMessage(opts.Message),
			windowlimit.WithKeyPrefix(opts.KeyPrefix),
			windowlimit.WithStore(s),
			windowlimit.WithLogger(do.MustInvoke[*zap.Logger](i)),
			windowlimit.WithObserver(do.MustInvoke[*metrics.Collector](i)),
			windowlimit.WithObserver(publisher),
		)
	})
}

// HTTPPackage provides the router and the Huma API with routes registered.
func HTTPPackage(i *do.Injector) {
	do.Provide(i, func(_ *do.Injector) (*chi.Mux, error) {
		return chi.NewMux(), nil
	})
	do.Provide(i, func(i *do.Injector) (huma.API, error) {
		opts := do.MustInvoke[*Options](i)
		router := do.MustInvoke[*chi.Mux](i)
		limiter, err := do.Invoke[*windowlimit.Limiter](i)
		if err != nil {
			return nil, err
		}
		reg := do.MustInvoke[*prometheus.Registry](i)

		keyFunc, err := clientKeyFunc(opts.TrustedProxies)
		if err != nil {
			return nil, err
		}

		humaAPI := humachi.New(router, huma.DefaultConfig("windowlimit", "1.0.0"))
		humaAPI.UseMiddleware(humamw.RateLimitWithConfig(humaAPI, humamw.Config{
			Limiter:           limiter,
			KeyFunc:           keyFunc,
			ExcludeOperations: map[string]bool{api.OpHealth: true},
		}))

		var checker api.Checker
		if opts.Backend == BackendRedis {
			checker = api.NewRedisChecker(do.MustInvoke[redis.UniversalClient](i))
		}
		api.RegisterRoutes(humaAPI, api.NewHandler(opts.Backend, checker))

		router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

		return humaAPI, nil
	})
}

func clientKeyFunc(trustedProxies string) (humamw.KeyFunc, error) {
	if strings.TrimSpace(trustedProxies) == "" {
		return humamw.KeyByIP, nil
	}
	var proxies []string
	for _, p := range strings.Split(trustedProxies, ",") {
		if p = strings.TrimSpace(p); p != "" {
			proxies = append(proxies, p)
		}
	}
	return humamw.TrustedIPKeyFunc(proxies)
}

// Router resolves the HTTP stack. Invalid options come back as an error
// rather than a panic.
func Router(injector *do.Injector) (*chi.Mux, error) {
	if _, err := do.Invoke[huma.API](injector); err != nil {
		return nil, err
	}
	return do.Invoke[*chi.Mux](injector)
}

// New builds an injector with every package registered.
func New(options *Options) *do.Injector {
	injector := do.New()
	do.ProvideValue(injector, options)
	LoggerPackage(injector)
	RedisPackage(injector)
	MetricsPackage(injector)
	StorePackage(injector)
	EventsPackage(injector)
	LimiterPackage(injector)
	HTTPPackage(injector)
	return injector
}
