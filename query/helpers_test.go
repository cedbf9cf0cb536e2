package query

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	waitFor = 2 * time.Second
	tick    = time.Millisecond
)

var errNotFound = errors.New("user not found")

// getUser resolves user 0 to "Marc". calls and gate are payload: they never
// take part in the cache identity.
type getUser struct {
	calls *atomic.Int32
	gate  <-chan struct{}
}

func (q getUser) Run(ctx context.Context, id int) (string, error) {
	if q.calls != nil {
		q.calls.Add(1)
	}
	if q.gate != nil {
		select {
		case <-q.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if id == 0 {
		return "Marc", nil
	}
	return "", errNotFound
}

// echo returns "v:<key>" and counts runs per key.
type echo struct {
	mu     *sync.Mutex
	counts map[string]int
}

func newEcho() echo { return echo{mu: &sync.Mutex{}, counts: make(map[string]int)} }

func (q echo) Run(_ context.Context, key string) (string, error) {
	q.mu.Lock()
	q.counts[key]++
	q.mu.Unlock()
	return "v:" + key, nil
}

func (q echo) runs(key string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.counts[key]
}

// versioned declares its identity explicitly.
type versioned struct {
	version int
	note    string
}

func (q versioned) Identity() any { return q.version }

func (q versioned) Run(_ context.Context, key string) (string, error) {
	return fmt.Sprintf("%d:%s", q.version, key), nil
}

// notifications records every Notify call.
type notifications struct {
	mu  sync.Mutex
	ids []SubscriberID
	on  func(SubscriberID)
}

func (n *notifications) Notify(id SubscriberID) {
	n.mu.Lock()
	n.ids = append(n.ids, id)
	on := n.on
	n.mu.Unlock()
	if on != nil {
		on(id)
	}
}

func (n *notifications) count(id SubscriberID) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, x := range n.ids {
		if x == id {
			c++
		}
	}
	return c
}

func (n *notifications) reset() {
	n.mu.Lock()
	n.ids = nil
	n.mu.Unlock()
}

// gateLimiter admits runs once open is closed.
type gateLimiter struct{ open <-chan struct{} }

func (l gateLimiter) Wait(ctx context.Context) error {
	select {
	case <-l.open:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// newTestRegistry builds a registry on a fake clock and closes it on cleanup.
func newTestRegistry[K comparable, T any](t testing.TB, opt Options[K, T]) (*Registry[K, T], clockwork.FakeClock) {
	t.Helper()
	clk, ok := opt.Clock.(clockwork.FakeClock)
	if !ok {
		clk = clockwork.NewFakeClock()
		opt.Clock = clk
	}
	r := New(opt)
	t.Cleanup(func() { require.NoError(t, r.Close()) })
	return r, clk
}

func testContext(t testing.TB) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
