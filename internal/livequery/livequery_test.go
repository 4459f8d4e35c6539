package livequery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type countingWatcher struct {
	inner Watcher
	stops atomic.Int32
}

func (w *countingWatcher) Watch(ctx context.Context, collection string) (<-chan struct{}, func(), error) {
	ch, stop, err := w.inner.Watch(ctx, collection)
	if err != nil {
		return nil, nil, err
	}
	return ch, func() {
		w.stops.Add(1)
		stop()
	}, nil
}

type gauge struct{ n atomic.Int32 }

func (g *gauge) Inc() { g.n.Add(1) }
func (g *gauge) Dec() { g.n.Add(-1) }

func next[T any](t *testing.T, s *Subscription[T]) Snapshot[T] {
	t.Helper()
	select {
	case snap, ok := <-s.Snapshots():
		require.True(t, ok, "subscription closed")
		return snap
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}
	return Snapshot[T]{}
}

func TestSubscriptionReloadsOnChange(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	feed := NewLocalFeed()
	var mu sync.Mutex
	titles := []string{"first"}
	load := func(context.Context) ([]string, error) {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), titles...), nil
	}

	g := &gauge{}
	sub, err := Subscribe(context.Background(), feed, CollectionArticles, load, WithGauge(g))
	require.NoError(t, err)

	assert.Equal(t, []string{"first"}, next(t, sub).Items)
	assert.Equal(t, int32(1), g.n.Load())

	mu.Lock()
	titles = append(titles, "second")
	mu.Unlock()
	require.NoError(t, feed.Notify(context.Background(), CollectionArticles))
	assert.Equal(t, []string{"first", "second"}, next(t, sub).Items)

	// Other collections do not wake the subscription.
	require.NoError(t, feed.Notify(context.Background(), CollectionSections))
	select {
	case snap := <-sub.Snapshots():
		t.Fatalf("unexpected snapshot %v", snap.Items)
	case <-time.After(30 * time.Millisecond):
	}

	latest, ok := sub.Latest()
	require.True(t, ok)
	assert.Len(t, latest.Items, 2)

	sub.Close()
	assert.Equal(t, int32(0), g.n.Load())
	assert.Equal(t, 0, feed.Watchers(CollectionArticles))
}

func TestSubscriptionUnsubscribesExactlyOnce(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	w := &countingWatcher{inner: NewLocalFeed()}
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := Subscribe(ctx, w, CollectionSections, func(context.Context) ([]int, error) { return []int{1}, nil })
	require.NoError(t, err)
	next(t, sub)

	cancel()
	<-sub.Done()
	sub.Close()
	sub.Close()

	assert.Equal(t, int32(1), w.stops.Load())
	_, open := <-sub.Snapshots()
	assert.False(t, open)
}

func TestSubscriptionReportsLoadErrors(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	feed := NewLocalFeed()
	boom := errors.New("database unavailable")
	var fail atomic.Bool
	fail.Store(true)
	sub, err := Subscribe(context.Background(), feed, CollectionArticles, func(context.Context) ([]string, error) {
		if fail.Load() {
			return nil, boom
		}
		return []string{"ok"}, nil
	})
	require.NoError(t, err)
	defer sub.Close()

	snap := next(t, sub)
	assert.ErrorIs(t, snap.Err, boom)

	fail.Store(false)
	require.NoError(t, feed.Notify(context.Background(), CollectionArticles))
	snap = next(t, sub)
	assert.NoError(t, snap.Err)
	assert.Equal(t, []string{"ok"}, snap.Items)
}

func TestRedisFeedDeliversNotifications(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	feed := NewRedisFeed(client, "", nil)
	ctx := context.Background()
	changes, stop, err := feed.Watch(ctx, CollectionArticles)
	require.NoError(t, err)

	require.NoError(t, feed.Notify(ctx, CollectionArticles))
	select {
	case _, ok := <-changes:
		require.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("notification not delivered")
	}

	stop()
	stop()
	_, open := <-changes
	assert.False(t, open)
}

func TestRedisFeedBacksSubscription(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	feed := NewRedisFeed(client, "test:", nil)
	var version atomic.Int32
	sub, err := Subscribe(context.Background(), feed, CollectionSections, func(context.Context) ([]int32, error) {
		return []int32{version.Load()}, nil
	})
	require.NoError(t, err)
	defer sub.Close()

	assert.Equal(t, []int32{0}, next(t, sub).Items)
	version.Store(7)
	require.NoError(t, feed.Notify(context.Background(), CollectionSections))
	assert.Equal(t, []int32{7}, next(t, sub).Items)
}
