package query_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/IvanBrykalov/querycache/query"
	"github.com/IvanBrykalov/querycache/query/mocks"
)

type lookup struct{}

func (lookup) Run(_ context.Context, id int) (string, error) {
	if id < 0 {
		return "", errors.New("negative id")
	}
	return "user", nil
}

func TestNotifier_LoadingThenSettled(t *testing.T) {
	ctrl := gomock.NewController(t)
	n := mocks.NewMockNotifier(ctrl)

	r := query.New(query.Options[int, string]{Config: query.Config{Notifier: n, Clock: clockwork.NewFakeClock()}})
	t.Cleanup(func() { require.NoError(t, r.Close()) })
	ctx := context.Background()

	s := r.Subscribe(1, lookup{}, 7)
	t.Cleanup(func() { _ = s.Close() })
	_, err := s.Await(ctx)
	require.NoError(t, err)
	s.Read()

	var mu sync.Mutex
	var seen []query.Status
	n.EXPECT().Notify(query.SubscriberID(1)).Times(2).Do(func(query.SubscriberID) {
		mu.Lock()
		seen = append(seen, s.Peek().Status())
		mu.Unlock()
	})

	st, err := s.InvalidateWait(ctx)
	require.NoError(t, err)
	assert.True(t, st.IsOK())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []query.Status{query.StatusLoading, query.StatusSettled}, seen)
}

func TestMetrics_RunLifecycle(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := mocks.NewMockMetrics(ctrl)

	m.EXPECT().Size("query", gomock.Any(), gomock.Any()).AnyTimes()
	gomock.InOrder(
		m.EXPECT().RunStarted(query.RunMount),
		m.EXPECT().RunSettled(query.RunMount, gomock.Any(), gomock.Nil()),
	)
	m.EXPECT().RunStarted(query.RunMount)
	m.EXPECT().RunSettled(query.RunMount, gomock.Any(), gomock.Not(gomock.Nil()))
	m.EXPECT().Evict(query.EvictClosed).Times(2)

	r := query.New(query.Options[int, string]{Config: query.Config{Metrics: m, Clock: clockwork.NewFakeClock()}})
	ctx := context.Background()

	st, err := r.Get(ctx, lookup{}, 1)
	require.NoError(t, err)
	assert.True(t, st.IsOK())

	st, err = r.Get(ctx, lookup{}, -1)
	require.NoError(t, err)
	assert.True(t, st.IsErr())

	require.NoError(t, r.Close())
}

func TestMetrics_Deduplicated(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := mocks.NewMockMetrics(ctrl)
	m.EXPECT().Size("query", gomock.Any(), gomock.Any()).AnyTimes()
	m.EXPECT().RunStarted(gomock.Any()).AnyTimes()
	m.EXPECT().RunSettled(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()
	m.EXPECT().Evict(gomock.Any()).AnyTimes()
	m.EXPECT().Deduplicated().Times(1)

	r := query.New(query.Options[int, string]{Config: query.Config{Metrics: m}})
	t.Cleanup(func() { require.NoError(t, r.Close()) })

	gate := make(chan struct{})
	c := gated{gate: gate}
	a := r.Subscribe(1, c, 0)
	b := r.Subscribe(2, c, 0)
	t.Cleanup(func() { _ = a.Close(); _ = b.Close() })

	close(gate)
	_, err := b.Await(context.Background())
	require.NoError(t, err)
}

type gated struct{ gate <-chan struct{} }

func (q gated) Run(ctx context.Context, _ int) (string, error) {
	select {
	case <-q.gate:
		return "ok", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
