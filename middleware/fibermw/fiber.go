// Package fibermw provides Fiber middleware for fixed-window rate limiting.
//
// Separated from the middleware package so that importing the HTTP middleware
// does not pull in github.com/gofiber/fiber. Fiber uses fasthttp (not net/http),
// so a dedicated adapter is required.
//
// Usage:
//
//	limiter, _ := windowlimit.New(windowlimit.WithRedis(client))
//	app := fiber.New()
//	app.Use(fibermw.RateLimit(limiter))
package fibermw

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/krishna-kudari/windowlimit"
)

// KeyFunc extracts the rate limiting key from a Fiber context.
type KeyFunc func(c *fiber.Ctx) string

// DeniedHandler is called when a request is rate limited.
type DeniedHandler func(c *fiber.Ctx, d *windowlimit.Decision) error

// ErrorHandler is called when the store fails. The returned error goes to
// the app's ErrorHandler.
type ErrorHandler func(c *fiber.Ctx, err error) error

// Config holds the rate limit middleware configuration.
type Config struct {
	// Limiter is the rate limiter instance (required).
	Limiter *windowlimit.Limiter

	// KeyFunc extracts the rate limit key. Default: KeyByIP.
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

// RateLimit creates Fiber middleware keyed by client IP.
func RateLimit(limiter *windowlimit.Limiter) fiber.Handler {
	return RateLimitWithConfig(Config{Limiter: limiter})
}

// RateLimitWithConfig creates Fiber middleware with full configuration control.
func RateLimitWithConfig(cfg Config) fiber.Handler {
	if cfg.Limiter == nil {
		panic("fibermw: Limiter is required")
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

	return func(c *fiber.Ctx) error {
		if cfg.ExcludePaths != nil && cfg.ExcludePaths[c.Path()] {
			return c.Next()
		}

		d, err := cfg.Limiter.Allow(c.UserContext(), cfg.KeyFunc(c))
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}

		if !d.Allowed {
			return cfg.DeniedHandler(c, d)
		}

		if sendHeaders {
			c.Set("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
			c.Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
		}
		return c.Next()
	}
}

// ─── Built-in Key Extractors ─────────────────────────────────────────────────

// KeyByIP uses Fiber's IP() method which respects proxy headers.
func KeyByIP(c *fiber.Ctx) string {
	return c.IP()
}

// KeyByHeader returns a KeyFunc that extracts from a request header.
func KeyByHeader(header string) KeyFunc {
	return func(c *fiber.Ctx) string {
		return c.Get(header)
	}
}

// KeyByParam returns a KeyFunc that extracts from a route parameter.
func KeyByParam(param string) KeyFunc {
	return func(c *fiber.Ctx) string {
		return c.Params(param)
	}
}

// KeyByPathAndIP combines the request path and client IP.
func KeyByPathAndIP(c *fiber.Ctx) string {
	return c.Path() + ":" + c.IP()
}

// ─── Internals ───────────────────────────────────────────────────────────────

func defaultDeniedHandler(c *fiber.Ctx, d *windowlimit.Decision) error {
	return c.Status(d.StatusCode).SendString(d.Message)
}

func defaultErrorHandler(_ *fiber.Ctx, err error) error {
	return err
}
