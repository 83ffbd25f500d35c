package ginmw_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/krishna-kudari/windowlimit"
	"github.com/krishna-kudari/windowlimit/middleware/ginmw"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type failStore struct{}

func (failStore) Increment(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("backend down")
}

func newRouter(mw gin.HandlerFunc, pre ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(pre...)
	r.Use(mw)
	r.GET("/api/data", func(c *gin.Context) { c.String(200, "ok") })
	r.GET("/health", func(c *gin.Context) { c.String(200, "ok") })
	return r
}

func do(r http.Handler, path, remote string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", path, nil)
	req.RemoteAddr = remote
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimit_AllowsWithinLimit(t *testing.T) {
	router := newRouter(ginmw.RateLimit(must(windowlimit.New(windowlimit.WithMax(5)))))

	for i := 0; i < 5; i++ {
		w := do(router, "/api/data", "1.2.3.4:1234", nil)
		if w.Code != 200 {
			t.Fatalf("request %d: expected 200, got %d", i+1, w.Code)
		}
		if w.Header().Get("X-RateLimit-Limit") != "5" {
			t.Errorf("request %d: expected limit=5, got %s", i+1, w.Header().Get("X-RateLimit-Limit"))
		}
	}
}

func TestRateLimit_DeniesExceedingLimit(t *testing.T) {
	router := newRouter(ginmw.RateLimit(must(windowlimit.New(windowlimit.WithMax(2), windowlimit.WithMessage("slow down")))))

	for i := 0; i < 2; i++ {
		do(router, "/api/data", "5.6.7.8:1234", nil)
	}

	w := do(router, "/api/data", "5.6.7.8:1234", nil)
	if w.Code != 429 {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Body.String() != "slow down" {
		t.Errorf("expected message body, got %q", w.Body.String())
	}
}

func TestRateLimit_StoreErrorReachesHostPipeline(t *testing.T) {
	var seen error
	reporter := func(c *gin.Context) {
		c.Next()
		if len(c.Errors) > 0 {
			seen = c.Errors.Last().Err
		}
	}
	router := newRouter(ginmw.RateLimit(must(windowlimit.New(windowlimit.WithStore(failStore{})))), reporter)

	w := do(router, "/api/data", "9.9.9.9:1", nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
	if !errors.Is(seen, windowlimit.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable in c.Errors, got %v", seen)
	}
}

func TestRateLimit_ExcludePaths(t *testing.T) {
	router := newRouter(ginmw.RateLimitWithConfig(ginmw.Config{
		Limiter:      must(windowlimit.New(windowlimit.WithMax(1))),
		ExcludePaths: map[string]bool{"/health": true},
	}))

	do(router, "/api/data", "10.0.0.1:1234", nil)

	if w := do(router, "/health", "10.0.0.1:1234", nil); w.Code != 200 {
		t.Errorf("health should bypass, got %d", w.Code)
	}
}

func TestRateLimit_CustomDeniedHandler(t *testing.T) {
	customCalled := false
	router := newRouter(ginmw.RateLimitWithConfig(ginmw.Config{
		Limiter: must(windowlimit.New(windowlimit.WithMax(1))),
		DeniedHandler: func(c *gin.Context, d *windowlimit.Decision) {
			customCalled = true
			c.AbortWithStatusJSON(d.StatusCode, gin.H{"error": d.Message})
		},
	}))

	do(router, "/api/data", "11.0.0.1:1234", nil)
	do(router, "/api/data", "11.0.0.1:1234", nil)

	if !customCalled {
		t.Error("custom denied handler should be called")
	}
}

func TestRateLimit_HeadersDisabled(t *testing.T) {
	noHeaders := false
	router := newRouter(ginmw.RateLimitWithConfig(ginmw.Config{
		Limiter: must(windowlimit.New(windowlimit.WithMax(5))),
		Headers: &noHeaders,
	}))

	if w := do(router, "/api/data", "12.0.0.1:1234", nil); w.Header().Get("X-RateLimit-Limit") != "" {
		t.Error("headers should not be set")
	}
}

func TestKeyByHeader(t *testing.T) {
	router := newRouter(ginmw.RateLimitWithConfig(ginmw.Config{
		Limiter: must(windowlimit.New(windowlimit.WithMax(1))),
		KeyFunc: ginmw.KeyByHeader("X-API-Key"),
	}))

	if w := do(router, "/api/data", "", map[string]string{"X-API-Key": "key-A"}); w.Code != 200 {
		t.Fatal("key-A should be allowed")
	}
	if w := do(router, "/api/data", "", map[string]string{"X-API-Key": "key-A"}); w.Code != 429 {
		t.Fatal("key-A should be denied")
	}
	if w := do(router, "/api/data", "", map[string]string{"X-API-Key": "key-B"}); w.Code != 200 {
		t.Fatal("key-B should be allowed")
	}
}

func must(l *windowlimit.Limiter, err error) *windowlimit.Limiter {
	if err != nil {
		panic(err)
	}
	return l
}

func TestRateLimit_DefaultKeyIgnoresForwardedFor(t *testing.T) {
	router := newRouter(ginmw.RateLimit(must(windowlimit.New(windowlimit.WithMax(1)))))

	if w := do(router, "/api/data", "198.51.100.7:4000", map[string]string{"X-Forwarded-For": "10.0.0.1"}); w.Code != 200 {
		t.Fatalf("first request: expected 200, got %d", w.Code)
	}
	for _, xff := range []string{"10.0.0.2", "10.0.0.3", "203.0.113.9"} {
		if w := do(router, "/api/data", "198.51.100.7:4000", map[string]string{"X-Forwarded-For": xff}); w.Code != 429 {
			t.Errorf("XFF %s: expected 429, got %d", xff, w.Code)
		}
	}
	if w := do(router, "/api/data", "198.51.100.8:4000", nil); w.Code != 200 {
		t.Errorf("other peer: expected 200, got %d", w.Code)
	}
}
