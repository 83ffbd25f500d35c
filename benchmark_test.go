package windowlimit

import (
	"context"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

// ─── Single-key (serial) ─────────────────────────────────────────────────────

func BenchmarkAllow(b *testing.B) {
	l, _ := New(WithMax(int64(b.N)+1), WithWindow(time.Hour))
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = l.Allow(ctx, "bench")
	}
}

// ─── Parallel (contended single key) ─────────────────────────────────────────

func BenchmarkAllow_Parallel(b *testing.B) {
	l, _ := New(WithMax(1<<62), WithWindow(time.Hour))
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = l.Allow(ctx, "bench")
		}
	})
}

// ─── Parallel (distinct keys) ────────────────────────────────────────────────

func BenchmarkAllow_ParallelKeys(b *testing.B) {
	l, _ := New(WithMax(1<<62), WithWindow(time.Hour))
	ctx := context.Background()
	var id atomic.Int64
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		key := "k" + strconv.FormatInt(id.Add(1), 10)
		for pb.Next() {
			_, _ = l.Allow(ctx, key)
		}
	})
}
