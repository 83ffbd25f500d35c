// Package echomw provides Echo middleware for fixed-window rate limiting.
//
// Separated from the middleware package so that importing the HTTP middleware
// does not pull in github.com/labstack/echo.
//
// Usage:
//
//	limiter, _ := windowlimit.New(windowlimit.WithRedis(client))
//	e := echo.New()
//	e.Use(echomw.RateLimit(limiter))
package echomw

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/krishna-kudari/windowlimit"
	"github.com/krishna-kudari/windowlimit/middleware"
)

// KeyFunc extracts the rate limiting key from an Echo context.
type KeyFunc func(c echo.Context) string

// DeniedHandler is called when a request is rate limited.
type DeniedHandler func(c echo.Context, d *windowlimit.Decision) error

// ErrorHandler is called when the store fails. The returned error goes to
// Echo's HTTPErrorHandler.
type ErrorHandler func(c echo.Context, err error) error

// Config holds the rate limit middleware configuration.
type Config struct {
	// Limiter is the rate limiter instance (required).
	Limiter *windowlimit.Limiter

	// KeyFunc extracts the rate limit key. Default: KeyByRemoteIP.
	KeyFunc KeyFunc

	// DeniedHandler is called on denial. Default: 429 with the limiter's
	// message as plain text.
	DeniedHandler DeniedHandler

	// ErrorHandler is called on store error. Default: returns the error.
	ErrorHandler ErrorHandler

	// ExcludePaths are request paths that bypass rate limiting.
	ExcludePaths map[string]bool

	// Headers controls whether X-RateLimit-* headers are set.
	// Default: true.
	Headers *bool
}

// RateLimit creates Echo middleware keyed by real IP.
func RateLimit(limiter *windowlimit.Limiter) echo.MiddlewareFunc {
	return RateLimitWithConfig(Config{Limiter: limiter})
}

// RateLimitWithConfig creates Echo middleware with full configuration control.
func RateLimitWithConfig(cfg Config) echo.MiddlewareFunc {
	if cfg.Limiter == nil {
		panic("echomw: Limiter is required")
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = KeyByRemoteIP
	}
	if cfg.DeniedHandler == nil {
		cfg.DeniedHandler = defaultDeniedHandler
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = defaultErrorHandler
	}
	sendHeaders := cfg.Headers == nil || *cfg.Headers

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.ExcludePaths != nil && cfg.ExcludePaths[c.Request().URL.Path] {
				return next(c)
			}

			d, err := cfg.Limiter.Allow(c.Request().Context(), cfg.KeyFunc(c))
			if err != nil {
				return cfg.ErrorHandler(c, err)
			}

			if !d.Allowed {
				return cfg.DeniedHandler(c, d)
			}

			if sendHeaders {
				h := c.Response().Header()
				h.Set("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
				h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
			}
			return next(c)
		}
	}
}

// ─── Built-in Key Extractors ─────────────────────────────────────────────────

// KeyByRemoteIP uses the socket peer address, ignoring forwarding headers.
func KeyByRemoteIP(c echo.Context) string {
	return middleware.RemoteIP(c.Request().RemoteAddr)
}

// KeyByRealIP uses Echo's RealIP(). Without an IPExtractor on the Echo
// instance it believes X-Forwarded-For and X-Real-IP from any client, so set
// one (e.g. echo.ExtractIPFromXFFHeader with trust options) before using it.
func KeyByRealIP(c echo.Context) string {
	return c.RealIP()
}

// KeyByHeader returns a KeyFunc that extracts from a request header.
func KeyByHeader(header string) KeyFunc {
	return func(c echo.Context) string {
		return c.Request().Header.Get(header)
	}
}

// KeyByParam returns a KeyFunc that extracts from a path parameter.
func KeyByParam(param string) KeyFunc {
	return func(c echo.Context) string {
		return c.Param(param)
	}
}

// KeyByPathAndIP combines the route path and peer IP.
func KeyByPathAndIP(c echo.Context) string {
	return c.Path() + ":" + KeyByRemoteIP(c)
}

// ─── Internals ───────────────────────────────────────────────────────────────

func defaultDeniedHandler(c echo.Context, d *windowlimit.Decision) error {
	return c.String(d.StatusCode, d.Message)
}

func defaultErrorHandler(_ echo.Context, err error) error {
	return echo.NewHTTPError(http.StatusInternalServerError).SetInternal(err)
}
