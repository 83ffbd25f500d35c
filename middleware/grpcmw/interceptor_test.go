package grpcmw_test

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/krishna-kudari/windowlimit"
	"github.com/krishna-kudari/windowlimit/middleware/grpcmw"

	testgrpc "google.golang.org/grpc/interop/grpc_testing"
)

// ─── Test Service ────────────────────────────────────────────────────────────

type testServer struct {
	testgrpc.UnimplementedTestServiceServer
}

func (s *testServer) EmptyCall(_ context.Context, _ *testgrpc.Empty) (*testgrpc.Empty, error) {
	return &testgrpc.Empty{}, nil
}

func (s *testServer) UnaryCall(_ context.Context, _ *testgrpc.SimpleRequest) (*testgrpc.SimpleResponse, error) {
	return &testgrpc.SimpleResponse{}, nil
}

type failStore struct{}

func (failStore) Increment(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("backend down")
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func startServer(t *testing.T, opts ...grpc.ServerOption) (testgrpc.TestServiceClient, func()) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	srv := grpc.NewServer(opts...)
	testgrpc.RegisterTestServiceServer(srv, &testServer{})

	go func() { _ = srv.Serve(lis) }()

	conn, err := grpc.NewClient(lis.Addr().String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		srv.Stop()
		t.Fatal(err)
	}

	client := testgrpc.NewTestServiceClient(conn)
	cleanup := func() {
		conn.Close()
		srv.Stop()
	}
	return client, cleanup
}

func newLimiter(t *testing.T, opts ...windowlimit.Option) *windowlimit.Limiter {
	t.Helper()
	l, err := windowlimit.New(opts...)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

// ─── Unary Tests ─────────────────────────────────────────────────────────────

func TestUnaryServerInterceptor_AllowsWithinLimit(t *testing.T) {
	client, cleanup := startServer(t,
		grpc.ChainUnaryInterceptor(grpcmw.UnaryServerInterceptor(newLimiter(t, windowlimit.WithMax(5)))),
	)
	defer cleanup()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		var header metadata.MD
		_, err := client.EmptyCall(ctx, &testgrpc.Empty{}, grpc.Header(&header))
		if err != nil {
			t.Fatalf("request %d: unexpected error: %v", i+1, err)
		}

		limit := header.Get("x-ratelimit-limit")
		if len(limit) == 0 || limit[0] != "5" {
			t.Errorf("request %d: expected x-ratelimit-limit=5, got %v", i+1, limit)
		}
	}
}

func TestUnaryServerInterceptor_DeniesExceedingLimit(t *testing.T) {
	client, cleanup := startServer(t,
		grpc.ChainUnaryInterceptor(grpcmw.UnaryServerInterceptor(newLimiter(t, windowlimit.WithMax(3)))),
	)
	defer cleanup()

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := client.EmptyCall(ctx, &testgrpc.Empty{}); err != nil {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	_, err := client.EmptyCall(ctx, &testgrpc.Empty{})
	if err == nil {
		t.Fatal("expected error on 4th request")
	}
	st, ok := status.FromError(err)
	if !ok {
		t.Fatalf("expected gRPC status error, got %v", err)
	}
	if st.Code() != codes.ResourceExhausted {
		t.Errorf("expected ResourceExhausted, got %v", st.Code())
	}
	if st.Message() != windowlimit.DefaultMessage {
		t.Errorf("expected default message, got %q", st.Message())
	}
}

func TestUnaryServerInterceptor_RemainingHeader(t *testing.T) {
	client, cleanup := startServer(t,
		grpc.ChainUnaryInterceptor(grpcmw.UnaryServerInterceptor(newLimiter(t, windowlimit.WithMax(10)))),
	)
	defer cleanup()

	var header metadata.MD
	for i := 0; i < 3; i++ {
		header = nil
		if _, err := client.EmptyCall(context.Background(), &testgrpc.Empty{}, grpc.Header(&header)); err != nil {
			t.Fatal(err)
		}
	}

	if vals := header.Get("x-ratelimit-remaining"); len(vals) == 0 || vals[0] != "7" {
		t.Errorf("expected x-ratelimit-remaining=7, got %v", vals)
	}
}

func TestUnaryServerInterceptor_StoreErrorIsUnavailable(t *testing.T) {
	client, cleanup := startServer(t,
		grpc.ChainUnaryInterceptor(grpcmw.UnaryServerInterceptor(newLimiter(t, windowlimit.WithStore(failStore{})))),
	)
	defer cleanup()

	_, err := client.EmptyCall(context.Background(), &testgrpc.Empty{})
	if st, _ := status.FromError(err); st.Code() != codes.Unavailable {
		t.Errorf("expected Unavailable, got %v", st.Code())
	}
}

func TestUnaryServerInterceptor_HeadersDisabled(t *testing.T) {
	noHeaders := false
	client, cleanup := startServer(t,
		grpc.ChainUnaryInterceptor(grpcmw.UnaryServerInterceptorWithConfig(grpcmw.Config{
			Limiter: newLimiter(t, windowlimit.WithMax(10)),
			Headers: &noHeaders,
		})),
	)
	defer cleanup()

	var header metadata.MD
	if _, err := client.EmptyCall(context.Background(), &testgrpc.Empty{}, grpc.Header(&header)); err != nil {
		t.Fatal(err)
	}

	if vals := header.Get("x-ratelimit-limit"); len(vals) > 0 {
		t.Error("headers should not be set when disabled")
	}
}

func TestUnaryServerInterceptor_ExcludeMethods(t *testing.T) {
	client, cleanup := startServer(t,
		grpc.ChainUnaryInterceptor(grpcmw.UnaryServerInterceptorWithConfig(grpcmw.Config{
			Limiter: newLimiter(t, windowlimit.WithMax(1)),
			ExcludeMethods: map[string]bool{
				"/grpc.testing.TestService/EmptyCall": true,
			},
		})),
	)
	defer cleanup()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := client.EmptyCall(ctx, &testgrpc.Empty{}); err != nil {
			t.Fatalf("excluded method should not be rate limited, request %d: %v", i+1, err)
		}
	}
}

func TestUnaryServerInterceptor_CustomDeniedHandler(t *testing.T) {
	var customCalled atomic.Bool
	client, cleanup := startServer(t,
		grpc.ChainUnaryInterceptor(grpcmw.UnaryServerInterceptorWithConfig(grpcmw.Config{
			Limiter: newLimiter(t, windowlimit.WithMax(1)),
			DeniedHandler: func(_ context.Context, d *windowlimit.Decision) error {
				customCalled.Store(true)
				return status.Errorf(codes.Unavailable, "custom: %d over", d.Count-d.Limit)
			},
		})),
	)
	defer cleanup()

	ctx := context.Background()
	_, _ = client.EmptyCall(ctx, &testgrpc.Empty{})

	_, err := client.EmptyCall(ctx, &testgrpc.Empty{})
	if err == nil {
		t.Fatal("expected denial")
	}
	st, _ := status.FromError(err)
	if st.Code() != codes.Unavailable {
		t.Errorf("expected Unavailable from custom handler, got %v", st.Code())
	}
	if !customCalled.Load() {
		t.Error("custom denied handler should have been called")
	}
}

func TestUnaryServerInterceptor_KeyByMetadata(t *testing.T) {
	client, cleanup := startServer(t,
		grpc.ChainUnaryInterceptor(grpcmw.UnaryServerInterceptorWithConfig(grpcmw.Config{
			Limiter: newLimiter(t, windowlimit.WithMax(2)),
			KeyFunc: grpcmw.KeyByMetadata("x-api-key"),
		})),
	)
	defer cleanup()

	ctxA := metadata.AppendToOutgoingContext(context.Background(), "x-api-key", "key-A")
	for i := 0; i < 2; i++ {
		if _, err := client.EmptyCall(ctxA, &testgrpc.Empty{}); err != nil {
			t.Fatalf("key-A request %d should succeed: %v", i+1, err)
		}
	}

	if _, err := client.EmptyCall(ctxA, &testgrpc.Empty{}); err == nil {
		t.Fatal("key-A 3rd request should be denied")
	}

	ctxB := metadata.AppendToOutgoingContext(context.Background(), "x-api-key", "key-B")
	if _, err := client.EmptyCall(ctxB, &testgrpc.Empty{}); err != nil {
		t.Fatalf("key-B should be allowed: %v", err)
	}
}

func TestUnaryServerInterceptor_KeyByMethod(t *testing.T) {
	client, cleanup := startServer(t,
		grpc.ChainUnaryInterceptor(grpcmw.UnaryServerInterceptorWithConfig(grpcmw.Config{
			Limiter: newLimiter(t, windowlimit.WithMax(1)),
			KeyFunc: grpcmw.KeyByMethod,
		})),
	)
	defer cleanup()

	ctx := context.Background()

	if _, err := client.EmptyCall(ctx, &testgrpc.Empty{}); err != nil {
		t.Fatal(err)
	}
	if _, err := client.EmptyCall(ctx, &testgrpc.Empty{}); err == nil {
		t.Fatal("2nd EmptyCall should be denied")
	}
	if _, err := client.UnaryCall(ctx, &testgrpc.SimpleRequest{}); err != nil {
		t.Fatalf("UnaryCall should be allowed (different method key): %v", err)
	}
}

func TestUnaryServerInterceptorWithConfig_PanicsWithoutLimiter(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic without Limiter")
		}
	}()
	grpcmw.UnaryServerInterceptorWithConfig(grpcmw.Config{})
}
