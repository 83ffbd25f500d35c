package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/krishna-kudari/windowlimit"
)

// KeyFunc extracts the rate limiting key from an HTTP request.
// The returned string identifies the caller (e.g. IP, API key, user ID).
type KeyFunc func(r *http.Request) string

// ErrorHandler receives store failures. It is the host's error channel:
// whether to fail open or closed is its decision.
// Default behavior: 500 Internal Server Error.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// DeniedHandler is called when a request is over its limit.
// Default behavior: 429 with the limiter's message as a plain-text body.
type DeniedHandler func(w http.ResponseWriter, r *http.Request, d *windowlimit.Decision)

// Config holds the rate limit middleware configuration.
type Config struct {
	// Limiter is the rate limiter instance (required).
	Limiter *windowlimit.Limiter

	// KeyFunc extracts the rate limit key from the request.
	// Default: KeyByIP.
	KeyFunc KeyFunc

	// ErrorHandler is called when the store fails.
	// Default: responds with 500.
	ErrorHandler ErrorHandler

	// DeniedHandler is called when a request is denied.
	// Default: responds with 429 and the limiter's message.
	DeniedHandler DeniedHandler

	// ExcludePaths are request paths that bypass rate limiting.
	ExcludePaths map[string]bool

	// Headers controls whether X-RateLimit-* headers are set on accepted
	// responses. Default: true.
	Headers *bool
}

// RateLimit creates HTTP middleware keyed by client IP.
//
// Usage with net/http:
//
//	mux := http.NewServeMux()
//	mux.Handle("/api/", middleware.RateLimit(limiter)(handler))
//
// Usage with chi:
//
//	r := chi.NewRouter()
//	r.Use(middleware.RateLimit(limiter))
func RateLimit(limiter *windowlimit.Limiter) func(http.Handler) http.Handler {
	return RateLimitWithConfig(Config{Limiter: limiter})
}

// RateLimitWithConfig creates HTTP middleware with full configuration control.
func RateLimitWithConfig(cfg Config) func(http.Handler) http.Handler {
	if cfg.Limiter == nil {
		panic("windowlimit/middleware: Limiter is required")
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = KeyByIP
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = defaultErrorHandler
	}
	if cfg.DeniedHandler == nil {
		cfg.DeniedHandler = defaultDeniedHandler
	}
	sendHeaders := cfg.Headers == nil || *cfg.Headers

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.ExcludePaths != nil && cfg.ExcludePaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			d, err := cfg.Limiter.Allow(r.Context(), cfg.KeyFunc(r))
			if err != nil {
				cfg.ErrorHandler(w, r, err)
				return
			}

			if !d.Allowed {
				cfg.DeniedHandler(w, r, d)
				return
			}

			if sendHeaders {
				SetHeaders(w.Header(), d)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SetHeaders writes X-RateLimit-Limit and X-RateLimit-Remaining for d.
func SetHeaders(h http.Header, d *windowlimit.Decision) {
	h.Set(HeaderLimit, strconv.FormatInt(d.Limit, 10))
	h.Set(HeaderRemaining, strconv.FormatInt(d.Remaining, 10))
}

// Header names set on accepted responses.
const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
)

// ─── Built-in Key Extractors ─────────────────────────────────────────────────

// KeyByIP uses the socket peer address as the rate limit key. Client
// supplied headers such as X-Forwarded-For are ignored; behind a proxy use
// TrustedIPKeyFunc.
func KeyByIP(r *http.Request) string {
	return RemoteIP(r.RemoteAddr)
}

// KeyByHeader returns a KeyFunc that uses the value of the given header.
// Useful for API key-based rate limiting.
func KeyByHeader(header string) KeyFunc {
	return func(r *http.Request) string {
		return r.Header.Get(header)
	}
}

// KeyByPathAndIP combines the request path and client IP.
// Useful for per-endpoint rate limiting.
func KeyByPathAndIP(r *http.Request) string {
	return r.URL.Path + ":" + KeyByIP(r)
}

// ─── Default Handlers ────────────────────────────────────────────────────────

func defaultErrorHandler(w http.ResponseWriter, _ *http.Request, _ error) {
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}

func defaultDeniedHandler(w http.ResponseWriter, _ *http.Request, d *windowlimit.Decision) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(d.StatusCode)
	fmt.Fprint(w, d.Message)
}
