// Package middleware provides net/http rate limiting middleware for
// windowlimit. It also works with chi and any router built on http.Handler.
//
// Framework adapters live in sub-packages so that each framework is only a
// dependency when imported:
//
//	middleware/ginmw    Gin
//	middleware/echomw   Echo
//	middleware/fibermw  Fiber (fasthttp)
//	middleware/humamw   Huma
//	middleware/grpcmw   gRPC unary and stream interceptors
//
// Every adapter behaves the same way. A request over its budget gets the
// limiter's status and message and never reaches the next handler. An
// accepted request gets X-RateLimit-Limit and X-RateLimit-Remaining. A store
// failure goes to the adapter's ErrorHandler, which by default hands it to
// the framework's own error path.
package middleware
