// Package windowlimit provides fixed-window request rate limiting for Go with
// in-memory and Redis counter stores and drop-in middleware for net/http,
// Gin, Echo, Fiber, Huma, and gRPC.
//
// # Model
//
// Each client key gets one counter per window. The first request opens the
// window; the counter resets entirely once the window has passed. A request
// is rejected when its count exceeds the budget. Across a window boundary up
// to twice the budget can pass, in exchange for O(1) state per key.
//
// # Quick Start
//
//	limiter, err := windowlimit.New(
//	    windowlimit.WithWindow(time.Minute),
//	    windowlimit.WithMax(100),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	d, err := limiter.Allow(ctx, "10.0.0.1")
//	if err != nil {
//	    // store failure: fail open or closed, your call
//	}
//	if !d.Allowed {
//	    // 429 with d.Message
//	}
//
// # With Redis
//
//	limiter, _ := windowlimit.New(windowlimit.WithRedis(redisClient))
//
// # Builder API
//
//	limiter, _ := windowlimit.NewBuilder().
//	    Window(time.Minute).
//	    Max(100).
//	    Redis(client).
//	    Build()
//
// Store failures are returned as errors wrapping [ErrStoreUnavailable];
// over-limit requests are a normal [Decision] with Allowed set to false.
package windowlimit
