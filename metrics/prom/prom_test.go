package prom

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/querycache/query"
)

func TestAdapter_Counters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewPedanticRegistry()
	a := New(reg, "qc", "test", nil)

	a.RunStarted(query.RunMount)
	a.RunStarted(query.RunInvalidate)
	a.RunSettled(query.RunMount, 10*time.Millisecond, nil)
	a.RunSettled(query.RunInvalidate, time.Millisecond, errors.New("boom"))
	a.Deduplicated()
	a.Evict(query.EvictCleanup)
	a.Evict(query.EvictCleanup)
	a.Size("users", 5, 2)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.started.WithLabelValues("mount")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.settled.WithLabelValues("invalidate", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.dedups))
	assert.Equal(t, 2.0, testutil.ToFloat64(a.evicts.WithLabelValues("cleanup")))
	assert.Equal(t, 5.0, testutil.ToFloat64(a.entries.WithLabelValues("users")))
	assert.Equal(t, 2.0, testutil.ToFloat64(a.idle.WithLabelValues("users")))
	assert.Equal(t, 2, testutil.CollectAndCount(a.duration))
}

type hello struct{}

func (hello) Run(_ context.Context, name string) (string, error) { return "hello " + name, nil }

func TestAdapter_WithRegistry(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewPedanticRegistry()
	a := New(reg, "qc", "users", prometheus.Labels{"app": "test"})

	r := query.New(query.Options[string, string]{Config: query.Config{Metrics: a}})
	ctx := context.Background()
	for range 3 {
		_, err := r.Get(ctx, hello{}, "marc", query.WithStaleTime(time.Hour))
		require.NoError(t, err)
	}
	require.NoError(t, r.Close())

	expected := `
# HELP qc_users_runs_settled_total Capability runs settled, by trigger and outcome
# TYPE qc_users_runs_settled_total counter
qc_users_runs_settled_total{app="test",kind="mount",outcome="ok"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "qc_users_runs_settled_total"))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.evicts.WithLabelValues("closed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(a.entries.WithLabelValues("query")))
}

type bye struct{}

func (bye) Run(_ context.Context, name string) (string, error) { return "bye " + name, nil }

// Registries of one client share the adapter without clobbering each
// other's size gauges.
func TestAdapter_SharedByClient(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewPedanticRegistry()
	a := New(reg, "qc", "client", nil)
	c := query.NewClient(query.Config{Metrics: a})
	ctx := context.Background()

	hellos := query.QueriesFor[string, string](c, hello{})
	byes := query.QueriesFor[string, string](c, bye{})
	_, err := hellos.Get(ctx, hello{}, "marc")
	require.NoError(t, err)
	for _, name := range []string{"marc", "ada"} {
		_, err := byes.Get(ctx, bye{}, name)
		require.NoError(t, err)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(a.entries.WithLabelValues("query/prom.hello")))
	assert.Equal(t, 2.0, testutil.ToFloat64(a.entries.WithLabelValues("query/prom.bye")))
	assert.Equal(t, 2.0, testutil.ToFloat64(a.idle.WithLabelValues("query/prom.bye")))
	assert.Equal(t, 2, testutil.CollectAndCount(a.entries))

	require.NoError(t, c.Close())
	assert.Zero(t, testutil.ToFloat64(a.entries.WithLabelValues("query/prom.bye")))
}
