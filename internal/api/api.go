// Package api holds the demo daemon's HTTP operations.
package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/redis/go-redis/v9"
)

// Operation IDs. The health check is excluded from rate limiting.
const (
	OpHello  = "hello"
	OpHealth = "healthz"
)

// Checker reports whether the counter store is reachable.
type Checker interface {
	Ping(ctx context.Context) error
}

// RedisChecker adapts a Redis client to Checker.
type RedisChecker struct {
	client redis.UniversalClient
}

// NewRedisChecker creates a new Redis health checker.
func NewRedisChecker(client redis.UniversalClient) *RedisChecker {
	return &RedisChecker{client: client}
}

// Ping checks Redis connectivity.
func (r *RedisChecker) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Handler serves the daemon's operations.
type Handler struct {
	backend string
	checker Checker
}

// NewHandler creates a new handler. A nil checker reports the store as
// always healthy, which is right for the in-memory backend.
func NewHandler(backend string, checker Checker) *Handler {
	return &Handler{backend: backend, checker: checker}
}

// HelloResponse is the response for the rate limited hello operation.
type HelloResponse struct {
	Body struct {
		Message string `json:"message"`
	}
}

// Hello answers every request that got past the limiter.
func (h *Handler) Hello(_ context.Context, _ *struct{}) (*HelloResponse, error) {
	resp := &HelloResponse{}
	resp.Body.Message = "hello"

	return resp, nil
}

// HealthResponse is the response for the health check operation.
type HealthResponse struct {
	Body struct {
		Status  string `json:"status"`
		Backend string `json:"backend"`
		Store   string `json:"store"`
	}
}

// Health reports the daemon's status and the counter store's reachability.
func (h *Handler) Health(ctx context.Context, _ *struct{}) (*HealthResponse, error) {
	resp := &HealthResponse{}
	resp.Body.Status = "ok"
	resp.Body.Backend = h.backend
	resp.Body.Store = "healthy"

	if h.checker != nil {
		if err := h.checker.Ping(ctx); err != nil {
			resp.Body.Store = "unhealthy"
			resp.Body.Status = "degraded"
		}
	}

	return resp, nil
}

// RegisterRoutes registers the daemon's operations. Middleware must already
// be installed on api.
func RegisterRoutes(api huma.API, h *Handler) {
	huma.Register(api, huma.Operation{
		OperationID: OpHello,
		Method:      http.MethodGet,
		Path:        "/hello",
		Summary:     "Rate limited greeting",
		Tags:        []string{"Demo"},
	}, h.Hello)

	huma.Register(api, huma.Operation{
		OperationID: OpHealth,
		Method:      http.MethodGet,
		Path:        "/healthz",
		Summary:     "Health check",
		Tags:        []string{"Health"},
	}, h.Health)
}
