// Package ginmw provides Gin middleware for fixed-window rate limiting.
//
// Separated from the middleware package so that importing the HTTP middleware
// does not pull in github.com/gin-gonic/gin.
//
// Usage:
//
//	limiter, _ := windowlimit.New(windowlimit.WithRedis(client))
//	r := gin.Default()
//	r.Use(ginmw.RateLimit(limiter))
package ginmw

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/krishna-kudari/windowlimit"
)

// KeyFunc extracts the rate limiting key from a Gin context.
type KeyFunc func(c *gin.Context) string

// DeniedHandler is called when a request is rate limited.
type DeniedHandler func(c *gin.Context, d *windowlimit.Decision)

// ErrorHandler is called when the store fails.
type ErrorHandler func(c *gin.Context, err error)

// Config holds the rate limit middleware configuration.
type Config struct {
	// Limiter is the rate limiter instance (required).
	Limiter *windowlimit.Limiter

	// KeyFunc extracts the rate limit key. Default: KeyByRemoteIP.
	KeyFunc KeyFunc

	// DeniedHandler is called on denial. Default: 429 with the limiter's
	// message as plain text.
	DeniedHandler DeniedHandler

	// ErrorHandler is called on store error. Default: the error is attached
	// to the context with c.AbortWithError(500) so error-reporting middleware
	// further up the chain sees it in c.Errors.
	ErrorHandler ErrorHandler

	// ExcludePaths are request paths that bypass rate limiting.
	ExcludePaths map[string]bool

	// Headers controls whether X-RateLimit-* headers are set.
	// Default: true.
	Headers *bool
}

// RateLimit creates Gin middleware keyed by client IP.
func RateLimit(limiter *windowlimit.Limiter) gin.HandlerFunc {
	return RateLimitWithConfig(Config{Limiter: limiter})
}

// RateLimitWithConfig creates Gin middleware with full configuration control.
func RateLimitWithConfig(cfg Config) gin.HandlerFunc {
	if cfg.Limiter == nil {
		panic("ginmw: Limiter is required")
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

	return func(c *gin.Context) {
		if cfg.ExcludePaths != nil && cfg.ExcludePaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		d, err := cfg.Limiter.Allow(c.Request.Context(), cfg.KeyFunc(c))
		if err != nil {
			cfg.ErrorHandler(c, err)
			return
		}

		if !d.Allowed {
			cfg.DeniedHandler(c, d)
			return
		}

		if sendHeaders {
			c.Header("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
			c.Header("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
		}
		c.Next()
	}
}

// ─── Built-in Key Extractors ─────────────────────────────────────────────────

// KeyByRemoteIP uses the socket peer address, ignoring forwarding headers.
func KeyByRemoteIP(c *gin.Context) string {
	return c.RemoteIP()
}

// KeyByClientIP uses Gin's ClientIP(). Gin trusts every proxy unless the
// engine is configured with SetTrustedProxies, so only use this after doing so.
func KeyByClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// KeyByHeader returns a KeyFunc that extracts from a request header.
func KeyByHeader(header string) KeyFunc {
	return func(c *gin.Context) string {
		return c.GetHeader(header)
	}
}

// KeyByParam returns a KeyFunc that extracts from a URL parameter.
func KeyByParam(param string) KeyFunc {
	return func(c *gin.Context) string {
		return c.Param(param)
	}
}

// KeyByPathAndIP combines the route template and peer IP.
func KeyByPathAndIP(c *gin.Context) string {
	return c.FullPath() + ":" + c.RemoteIP()
}

// ─── Internals ───────────────────────────────────────────────────────────────

func defaultDeniedHandler(c *gin.Context, d *windowlimit.Decision) {
	c.Abort()
	c.String(d.StatusCode, d.Message)
}

func defaultErrorHandler(c *gin.Context, err error) {
	_ = c.AbortWithError(http.StatusInternalServerError, err)
}
