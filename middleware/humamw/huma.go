// Package humamw provides Huma middleware for fixed-window rate limiting.
//
// Huma middleware runs after routing, so it sees the matched operation and
// writes errors through the API's configured error model.
//
// Usage:
//
//	api := humachi.New(router, huma.DefaultConfig("API", "1.0.0"))
//	api.UseMiddleware(humamw.RateLimit(api, limiter))
package humamw

import (
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"github.com/krishna-kudari/windowlimit"
	"github.com/krishna-kudari/windowlimit/middleware"
)

// KeyFunc extracts the rate limiting key from a Huma context.
type KeyFunc func(ctx huma.Context) string

// DeniedHandler is called when a request is rate limited.
type DeniedHandler func(api huma.API, ctx huma.Context, d *windowlimit.Decision)

// ErrorHandler is called when the store fails.
type ErrorHandler func(api huma.API, ctx huma.Context, err error)

// Config holds the rate limit middleware configuration.
type Config struct {
	// Limiter is the rate limiter instance (required).
	Limiter *windowlimit.Limiter

	// KeyFunc extracts the rate limit key. Default: KeyByIP.
	KeyFunc KeyFunc

	// DeniedHandler is called on denial. Default: huma.WriteErr with the
	// decision's status and message.
	DeniedHandler DeniedHandler

	// ErrorHandler is called on store error. Default: huma.WriteErr 500
	// with the error attached.
	ErrorHandler ErrorHandler

	// ExcludeOperations are operation IDs that bypass rate limiting.
	ExcludeOperations map[string]bool

	// Headers controls whether X-RateLimit-* headers are set.
	// Default: true.
	Headers *bool
}

// RateLimit returns Huma middleware keyed by client IP.
func RateLimit(api huma.API, limiter *windowlimit.Limiter) func(ctx huma.Context, next func(huma.Context)) {
	return RateLimitWithConfig(api, Config{Limiter: limiter})
}

// RateLimitWithConfig returns Huma middleware with full configuration control.
func RateLimitWithConfig(api huma.API, cfg Config) func(ctx huma.Context, next func(huma.Context)) {
	if cfg.Limiter == nil {
		panic("humamw: Limiter is required")
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = KeyByIP
	}
	if cfg.DeniedHandler == nil {
		cfg.DeniedHandler = defaultDeniedHandler
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = defaultErrorHandler
	}
	sendHeaders := cfg.Headers == nil || *cfg.Headers

	return func(ctx huma.Context, next func(huma.Context)) {
		if op := ctx.Operation(); op != nil && cfg.ExcludeOperations[op.OperationID] {
			next(ctx)
			return
		}

		d, err := cfg.Limiter.Allow(ctx.Context(), cfg.KeyFunc(ctx))
		if err != nil {
			cfg.ErrorHandler(api, ctx, err)
			return
		}

		if !d.Allowed {
			cfg.DeniedHandler(api, ctx, d)
			return
		}

		if sendHeaders {
			ctx.SetHeader("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
			ctx.SetHeader("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
		}
		next(ctx)
	}
}

// ─── Built-in Key Extractors ─────────────────────────────────────────────────

// KeyByIP uses the socket peer address. Forwarding headers are client
// controlled and are ignored; behind a proxy use TrustedIPKeyFunc.
func KeyByIP(ctx huma.Context) string {
	return middleware.RemoteIP(ctx.RemoteAddr())
}

// TrustedIPKeyFunc returns a KeyFunc that honors X-Forwarded-For only when
// the request comes from one of trustedProxies (IPs or CIDR blocks).
func TrustedIPKeyFunc(trustedProxies []string) (KeyFunc, error) {
	proxies, err := middleware.ParseTrustedProxies(trustedProxies)
	if err != nil {
		return nil, err
	}
	return func(ctx huma.Context) string {
		return proxies.ClientIP(ctx.RemoteAddr(), ctx.Header("X-Forwarded-For"))
	}, nil
}

// KeyByHeader returns a KeyFunc that extracts from a request header.
func KeyByHeader(header string) KeyFunc {
	return func(ctx huma.Context) string {
		return ctx.Header(header)
	}
}

// KeyByOperationAndIP combines the operation ID and client IP, giving each
// operation its own budget.
func KeyByOperationAndIP(ctx huma.Context) string {
	if op := ctx.Operation(); op != nil {
		return op.OperationID + ":" + KeyByIP(ctx)
	}
	return KeyByIP(ctx)
}

// ─── Internals ───────────────────────────────────────────────────────────────

func defaultDeniedHandler(api huma.API, ctx huma.Context, d *windowlimit.Decision) {
	_ = huma.WriteErr(api, ctx, d.StatusCode, d.Message)
}

func defaultErrorHandler(api huma.API, ctx huma.Context, err error) {
	_ = huma.WriteErr(api, ctx, http.StatusInternalServerError, "internal server error", err)
}
