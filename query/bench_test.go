package query

import (
	"context"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

// benchmarkGet exercises one-shot reads against warm, fresh entries.
func benchmarkGet(b *testing.B, keys int) {
	r := New(Options[string, string]{})
	b.Cleanup(func() { _ = r.Close() })
	q := newEcho()
	ctx := context.Background()
	fresh := WithStaleTime(time.Hour)

	names := make([]string, keys)
	for i := range names {
		names[i] = "k:" + strconv.Itoa(i)
		if _, err := r.Get(ctx, q, names[i], fresh); err != nil {
			b.Fatal(err)
		}
	}

	b.ReportAllocs()
	b.ResetTimer()

	var seed atomic.Int64
	b.RunParallel(func(pb *testing.PB) {
		i := int(seed.Add(7919))
		for pb.Next() {
			_, _ = r.Get(ctx, q, names[i%keys], fresh)
			i++
		}
	})
}

func BenchmarkRegistry_Get_1key(b *testing.B)   { benchmarkGet(b, 1) }
func BenchmarkRegistry_Get_1kKeys(b *testing.B) { benchmarkGet(b, 1_000) }

// Subscribe/Close churn on fresh entries: attach, idle and re-attach.
func BenchmarkRegistry_SubscribeClose(b *testing.B) {
	r := New(Options[int, string]{})
	b.Cleanup(func() { _ = r.Close() })
	fresh := WithStaleTime(time.Hour)
	if _, err := r.Get(context.Background(), getUser{}, 0, fresh); err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()

	var ids atomic.Uint64
	b.RunParallel(func(pb *testing.PB) {
		id := SubscriberID(ids.Add(1))
		for pb.Next() {
			s := r.Subscribe(id, getUser{}, 0, fresh)
			_ = s.Read()
			_ = s.Close()
		}
	})
}

// Invalidation of a registry holding many subscribed entries.
func BenchmarkRegistry_InvalidateAll(b *testing.B) {
	r := New(Options[string, string]{})
	b.Cleanup(func() { _ = r.Close() })
	q := newEcho()
	ctx := context.Background()

	for i := 0; i < 256; i++ {
		s := r.Subscribe(SubscriberID(i+1), q, "k:"+strconv.Itoa(i))
		b.Cleanup(func() { _ = s.Close() })
		if _, err := s.Await(ctx); err != nil {
			b.Fatal(err)
		}
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := r.InvalidateAll(ctx); err != nil {
			b.Fatal(err)
		}
	}
}
