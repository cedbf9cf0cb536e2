// Command bench runs a synthetic subscribe/read/invalidate workload against a
// query registry and exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.trai.ch/zerr"
	"golang.org/x/time/rate"

	pmet "github.com/IvanBrykalov/querycache/metrics/prom"
	"github.com/IvanBrykalov/querycache/policy"
	"github.com/IvanBrykalov/querycache/policy/lru"
	"github.com/IvanBrykalov/querycache/policy/twoq"
	"github.com/IvanBrykalov/querycache/query"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// zerr prints metadata when using %+v
		_, _ = fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}

type options struct {
	shards  int
	maxIdle int
	policy  string

	workers    int
	duration   time.Duration
	readPct    int
	invPct     int
	runLatency time.Duration
	staleTime  time.Duration
	rps        float64

	keys  int
	zipfS float64
	zipfV float64
	seed  int64

	pprofAddr   string
	metricsAddr string
}

func newRootCmd() *cobra.Command {
	var o options
	cmd := &cobra.Command{
		Use:           "bench",
		Short:         "Synthetic workload for the query registry",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), o, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.IntVar(&o.shards, "shards", 0, "number of shards (0=auto)")
	f.IntVar(&o.maxIdle, "max-idle", 10_000, "idle entry cap (0=unbounded)")
	f.StringVar(&o.policy, "policy", "lru", "idle policy: lru | 2q")

	f.IntVar(&o.workers, "workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
	f.DurationVar(&o.duration, "duration", 10*time.Second, "benchmark duration")
	f.IntVar(&o.readPct, "reads", 80, "one-shot Get percentage [0..100]")
	f.IntVar(&o.invPct, "invalidations", 1, "invalidation percentage [0..100]")
	f.DurationVar(&o.runLatency, "latency", time.Millisecond, "simulated capability latency")
	f.DurationVar(&o.staleTime, "stale", time.Second, "stale time of every registration")
	f.Float64Var(&o.rps, "rps", 0, "capability runs per second (0=unlimited)")

	f.IntVar(&o.keys, "keys", 100_000, "keyspace size")
	f.Float64Var(&o.zipfS, "zipf-s", 1.1, "Zipf s > 1 (skew)")
	f.Float64Var(&o.zipfV, "zipf-v", 1.0, "Zipf v")
	f.Int64Var(&o.seed, "seed", time.Now().UnixNano(), "random seed")

	f.StringVar(&o.pprofAddr, "pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
	f.StringVar(&o.metricsAddr, "http", ":8080", "serve Prometheus metrics at addr; empty = disabled")
	return cmd
}

// sleeper simulates a backend call of fixed latency.
type sleeper struct{ d time.Duration }

func (s sleeper) Run(ctx context.Context, key string) (string, error) {
	if s.d > 0 {
		t := time.NewTimer(s.d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "v:" + key, nil
}

func run(ctx context.Context, o options, out io.Writer) error {
	if o.keys < 2 {
		return zerr.With(zerr.New("keyspace too small"), "keys", o.keys)
	}
	if o.workers <= 0 {
		o.workers = 1
	}

	var pol policy.Policy[query.CacheKey[string]]
	switch o.policy {
	case "lru":
		pol = lru.New[query.CacheKey[string]]()
	case "2q":
		// split 2Q queues per shard as a simple default
		per := o.maxIdle / max(1, o.shards)
		pol = twoq.New[query.CacheKey[string]](per/4, per/2)
	default:
		return zerr.With(zerr.New("unknown policy"), "policy", o.policy)
	}

	// ---- pprof server (on DefaultServeMux) ----
	if o.pprofAddr != "" {
		go func() { _ = http.ListenAndServe(o.pprofAddr, nil) }()
	}

	// ---- Prometheus metrics on a private registry ----
	reg := prometheus.NewRegistry()
	metrics := pmet.New(reg, "querycache", "bench", nil)
	if o.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() { _ = http.ListenAndServe(o.metricsAddr, mux) }()
	}

	cfg := query.Config{
		Shards:  o.shards,
		MaxIdle: o.maxIdle,
		Metrics: metrics,
	}
	if o.rps > 0 {
		cfg.Limiter = rate.NewLimiter(rate.Limit(o.rps), max(1, int(o.rps)))
	}
	r := query.New(query.Options[string, string]{Config: cfg, IdlePolicy: pol})
	defer func() { _ = r.Close() }()

	// ---- Load generation ----
	var gets, subs, invs, total atomic.Uint64
	ctx, cancel := context.WithTimeout(ctx, o.duration)
	defer cancel()

	q := sleeper{d: o.runLatency}
	stale := query.WithStaleTime(o.staleTime)
	keysMax := uint64(o.keys - 1)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(o.workers)
	for w := 0; w < o.workers; w++ {
		go func(id int) {
			defer wg.Done()

			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			rnd := rand.New(rand.NewSource(o.seed + int64(id)*9973))
			zipf := rand.NewZipf(rnd, o.zipfS, o.zipfV, keysMax)
			key := func() string { return "k:" + strconv.FormatUint(zipf.Uint64(), 10) }

			for ctx.Err() == nil {
				total.Add(1)
				p := int(rnd.Int31n(100))
				switch {
				case p < o.invPct:
					invs.Add(1)
					_ = r.InvalidateKeys(ctx, key())
				case p < o.invPct+o.readPct:
					gets.Add(1)
					_, _ = r.Get(ctx, q, key(), stale)
				default:
					subs.Add(1)
					s := r.Subscribe(query.SubscriberID(id+1), q, key(), stale)
					_, _ = s.Await(ctx)
					_ = s.Close()
				}
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	// ---- Report ----
	st := r.Stats()
	ops := total.Load()
	_, _ = fmt.Fprintf(out, "policy=%s maxIdle=%d shards=%d workers=%d keys=%d rps=%g dur=%v seed=%d\n",
		o.policy, o.maxIdle, o.shards, o.workers, o.keys, o.rps, elapsed, o.seed)
	_, _ = fmt.Fprintf(out, "ops=%d (%.0f ops/s)  gets=%d  subscribes=%d  invalidations=%d\n",
		ops, float64(ops)/elapsed.Seconds(), gets.Load(), subs.Load(), invs.Load())
	_, _ = fmt.Fprintf(out, "runs=%d  dedups=%d  evictions=%d  entries=%d  idle=%d\n",
		st.Runs, st.Dedups, st.Evictions, st.Entries, st.Idle)
	return nil
}
