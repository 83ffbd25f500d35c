// Package grpcmw provides gRPC server interceptors for fixed-window rate limiting.
//
// Separated from the middleware package so that importing the HTTP middleware
// does not pull in google.golang.org/grpc.
//
// Usage:
//
//	limiter, _ := windowlimit.New(windowlimit.WithRedis(client))
//	server := grpc.NewServer(
//	    grpc.ChainUnaryInterceptor(grpcmw.UnaryServerInterceptor(limiter)),
//	    grpc.ChainStreamInterceptor(grpcmw.StreamServerInterceptor(limiter)),
//	)
package grpcmw

import (
	"context"
	"net"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/krishna-kudari/windowlimit"
)

// KeyFunc extracts the rate limiting key from a unary RPC context.
type KeyFunc func(ctx context.Context, info *grpc.UnaryServerInfo) string

// StreamKeyFunc extracts the rate limiting key from a streaming RPC context.
type StreamKeyFunc func(ctx context.Context, info *grpc.StreamServerInfo) string

// DeniedHandler produces the gRPC error returned when a request is rate limited.
// Default: codes.ResourceExhausted carrying the limiter's message.
type DeniedHandler func(ctx context.Context, d *windowlimit.Decision) error

// ErrorHandler produces the gRPC error returned when the store fails.
// Default: codes.Unavailable.
type ErrorHandler func(ctx context.Context, err error) error

// Config holds full configuration for gRPC rate limit interceptors.
type Config struct {
	// Limiter is the rate limiter instance (required).
	Limiter *windowlimit.Limiter

	// KeyFunc extracts the rate limit key for unary RPCs. Default: KeyByPeer.
	KeyFunc KeyFunc

	// StreamKeyFunc extracts the rate limit key for streaming RPCs.
	// Default: StreamKeyByPeer.
	StreamKeyFunc StreamKeyFunc

	// DeniedHandler produces the error returned on denial.
	DeniedHandler DeniedHandler

	// ErrorHandler produces the error returned on store failure.
	ErrorHandler ErrorHandler

	// ExcludeMethods are full method names (e.g. "/pkg.Service/Method")
	// that bypass rate limiting.
	ExcludeMethods map[string]bool

	// Headers controls whether rate limit metadata is sent in response headers
	// of accepted calls. Default: true.
	Headers *bool
}

// ─── Unary Interceptors ──────────────────────────────────────────────────────

// UnaryServerInterceptor creates a unary server interceptor keyed by peer IP.
func UnaryServerInterceptor(limiter *windowlimit.Limiter) grpc.UnaryServerInterceptor {
	return UnaryServerInterceptorWithConfig(Config{Limiter: limiter})
}

// UnaryServerInterceptorWithConfig creates a unary server interceptor with full
// configuration control.
func UnaryServerInterceptorWithConfig(cfg Config) grpc.UnaryServerInterceptor {
	cfg = withDefaults(cfg)
	sendHeaders := cfg.Headers == nil || *cfg.Headers

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if cfg.ExcludeMethods != nil && cfg.ExcludeMethods[info.FullMethod] {
			return handler(ctx, req)
		}

		if err := check(ctx, cfg, cfg.KeyFunc(ctx, info), sendHeaders); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// ─── Stream Interceptors ─────────────────────────────────────────────────────

// StreamServerInterceptor creates a stream server interceptor keyed by peer IP.
func StreamServerInterceptor(limiter *windowlimit.Limiter) grpc.StreamServerInterceptor {
	return StreamServerInterceptorWithConfig(Config{Limiter: limiter})
}

// StreamServerInterceptorWithConfig creates a stream server interceptor with full
// configuration control. One stream counts as one request.
func StreamServerInterceptorWithConfig(cfg Config) grpc.StreamServerInterceptor {
	cfg = withDefaults(cfg)
	sendHeaders := cfg.Headers == nil || *cfg.Headers

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx := ss.Context()

		if cfg.ExcludeMethods != nil && cfg.ExcludeMethods[info.FullMethod] {
			return handler(srv, ss)
		}

		if err := check(ctx, cfg, cfg.StreamKeyFunc(ctx, info), sendHeaders); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

// ─── Built-in Key Extractors ─────────────────────────────────────────────────

// KeyByPeer uses the remote peer IP as the rate limit key.
func KeyByPeer(ctx context.Context, _ *grpc.UnaryServerInfo) string {
	return peerIP(ctx)
}

// StreamKeyByPeer uses the remote peer IP as the rate limit key for streams.
func StreamKeyByPeer(ctx context.Context, _ *grpc.StreamServerInfo) string {
	return peerIP(ctx)
}

// KeyByMetadata returns a KeyFunc that uses a value from incoming gRPC metadata.
func KeyByMetadata(header string) KeyFunc {
	return func(ctx context.Context, _ *grpc.UnaryServerInfo) string {
		return metadataValue(ctx, header)
	}
}

// StreamKeyByMetadata returns a StreamKeyFunc that uses a value from incoming gRPC metadata.
func StreamKeyByMetadata(header string) StreamKeyFunc {
	return func(ctx context.Context, _ *grpc.StreamServerInfo) string {
		return metadataValue(ctx, header)
	}
}

// KeyByMethod uses "method:peer" as the key, enabling per-method rate limits.
func KeyByMethod(ctx context.Context, info *grpc.UnaryServerInfo) string {
	return info.FullMethod + ":" + peerIP(ctx)
}

// StreamKeyByMethod uses "method:peer" as the key for streams.
func StreamKeyByMethod(ctx context.Context, info *grpc.StreamServerInfo) string {
	return info.FullMethod + ":" + peerIP(ctx)
}

// ─── Internals ───────────────────────────────────────────────────────────────

func withDefaults(cfg Config) Config {
	if cfg.Limiter == nil {
		panic("grpcmw: Limiter is required")
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = KeyByPeer
	}
	if cfg.StreamKeyFunc == nil {
		cfg.StreamKeyFunc = StreamKeyByPeer
	}
	if cfg.DeniedHandler == nil {
		cfg.DeniedHandler = defaultDeniedHandler
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = defaultErrorHandler
	}
	return cfg
}

func check(ctx context.Context, cfg Config, key string, sendHeaders bool) error {
	d, err := cfg.Limiter.Allow(ctx, key)
	if err != nil {
		return cfg.ErrorHandler(ctx, err)
	}
	if !d.Allowed {
		return cfg.DeniedHandler(ctx, d)
	}
	if sendHeaders {
		_ = grpc.SetHeader(ctx, metadata.Pairs(
			"x-ratelimit-limit", strconv.FormatInt(d.Limit, 10),
			"x-ratelimit-remaining", strconv.FormatInt(d.Remaining, 10),
		))
	}
	return nil
}

func peerIP(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return "unknown"
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func metadataValue(ctx context.Context, header string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if ok {
		if vals := md.Get(header); len(vals) > 0 {
			return vals[0]
		}
	}
	return "unknown"
}

func defaultDeniedHandler(_ context.Context, d *windowlimit.Decision) error {
	return status.Error(codes.ResourceExhausted, d.Message)
}

func defaultErrorHandler(_ context.Context, err error) error {
	return status.Errorf(codes.Unavailable, "rate limit check failed: %v", err)
}
