package singleflight

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestGroup_Coalesces(t *testing.T) {
	t.Parallel()

	var g Group[string, int]
	var calls atomic.Int64
	release := make(chan struct{})

	var eg errgroup.Group
	var sharedCount atomic.Int64
	for i := 0; i < 16; i++ {
		eg.Go(func() error {
			v, shared, err := g.Do(context.Background(), "k", func() int {
				calls.Add(1)
				<-release
				return 7
			})
			if shared {
				sharedCount.Add(1)
			}
			assert.Equal(t, 7, v)
			return err
		})
	}

	// release the leader only once every follower has joined
	require.Eventually(t, func() bool { return g.waiters("k") == 15 }, time.Second, time.Millisecond)
	close(release)
	require.NoError(t, eg.Wait())

	assert.Equal(t, int64(1), calls.Load())
	assert.Equal(t, int64(15), sharedCount.Load())
	assert.False(t, g.inFlight("k"))
	assert.Zero(t, g.waiters("k"))
}

func TestGroup_FollowerCancel(t *testing.T) {
	t.Parallel()

	var g Group[string, int]
	release := make(chan struct{})
	started := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		v, shared, err := g.Do(context.Background(), "k", func() int {
			close(started)
			<-release
			return 1
		})
		assert.NoError(t, err)
		assert.False(t, shared)
		assert.Equal(t, 1, v)
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, shared, err := g.Do(ctx, "k", func() int { return 2 })
	assert.True(t, shared)
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	wg.Wait()
}

func TestGroup_PanicReleasesKey(t *testing.T) {
	t.Parallel()

	var g Group[string, int]
	assert.Panics(t, func() {
		_, _, _ = g.Do(context.Background(), "k", func() int { panic("boom") })
	})
	assert.False(t, g.inFlight("k"))

	v, _, err := g.Do(context.Background(), "k", func() int { return 3 })
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestGroup_OnJoin(t *testing.T) {
	t.Parallel()

	var joined atomic.Int64
	g := Group[string, int]{OnJoin: func(key string) {
		assert.Equal(t, "k", key)
		joined.Add(1)
	}}
	release := make(chan struct{})

	var eg errgroup.Group
	for i := 0; i < 4; i++ {
		eg.Go(func() error {
			_, _, err := g.Do(context.Background(), "k", func() int {
				<-release
				return 1
			})
			return err
		})
	}
	require.Eventually(t, func() bool { return joined.Load() == 3 }, time.Second, time.Millisecond)
	close(release)
	require.NoError(t, eg.Wait())

	_, _, err := g.Do(context.Background(), "k", func() int { return 2 })
	require.NoError(t, err)
	assert.Equal(t, int64(3), joined.Load(), "a leader never joins")
}
