// Package livequery turns change notifications on a collection into a stream
// of fresh snapshots of a query over that collection.
package livequery

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Collection names used by the newsroom stores.
const (
	CollectionArticles = "articles"
	CollectionSections = "sections"
	CollectionProfiles = "profiles"
)

// Notifier announces that a collection changed.
type Notifier interface {
	Notify(ctx context.Context, collection string) error
}

// Watcher delivers a signal each time a collection changes. Signals coalesce:
// several changes between two reads arrive as one. The returned stop func
// releases the watch and must be called exactly once.
type Watcher interface {
	Watch(ctx context.Context, collection string) (<-chan struct{}, func(), error)
}

// Feed is both ends of a change notification transport.
type Feed interface {
	Notifier
	Watcher
}

// LocalFeed fans change notifications out within the process.
type LocalFeed struct {
	mu       sync.Mutex
	nextID   int
	watchers map[string]map[int]chan struct{}
}

// NewLocalFeed returns an empty in-process feed.
func NewLocalFeed() *LocalFeed {
	return &LocalFeed{watchers: make(map[string]map[int]chan struct{})}
}

// Notify signals every watcher of collection.
func (f *LocalFeed) Notify(_ context.Context, collection string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.watchers[collection] {
		signal(ch)
	}
	return nil
}

// Watch registers a watcher on collection.
func (f *LocalFeed) Watch(_ context.Context, collection string) (<-chan struct{}, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	ch := make(chan struct{}, 1)
	if f.watchers[collection] == nil {
		f.watchers[collection] = make(map[int]chan struct{})
	}
	f.watchers[collection][id] = ch

	var once sync.Once
	stop := func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.watchers[collection], id)
			if len(f.watchers[collection]) == 0 {
				delete(f.watchers, collection)
			}
			close(ch)
		})
	}
	return ch, stop, nil
}

// Watchers returns the number of active watchers on collection.
func (f *LocalFeed) Watchers(collection string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.watchers[collection])
}

// RedisFeed carries change notifications over Redis pub/sub so every API
// replica sees writes made by the others.
type RedisFeed struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisFeed returns a feed publishing on "<prefix><collection>" channels.
func NewRedisFeed(client *redis.Client, prefix string, logger *zap.Logger) *RedisFeed {
	if prefix == "" {
		prefix = "newsdesk:changes:"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisFeed{client: client, prefix: prefix, logger: logger}
}

// Notify publishes a change marker for collection.
func (f *RedisFeed) Notify(ctx context.Context, collection string) error {
	if err := f.client.Publish(ctx, f.prefix+collection, collection).Err(); err != nil {
		return fmt.Errorf("publish change %s: %w", collection, err)
	}
	return nil
}

// Watch subscribes to collection's channel. The subscription is confirmed
// before Watch returns so no later Notify is missed.
func (f *RedisFeed) Watch(ctx context.Context, collection string) (<-chan struct{}, func(), error) {
	pubsub := f.client.Subscribe(ctx, f.prefix+collection)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", collection, err)
	}

	out := make(chan struct{}, 1)
	done := make(chan struct{})
	messages := pubsub.Channel()
	go func() {
		defer close(done)
		defer close(out)
		for range messages {
			signal(out)
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			if err := pubsub.Close(); err != nil {
				f.logger.Warn("close change subscription", zap.String("collection", collection), zap.Error(err))
			}
			<-done
		})
	}
	return out, stop, nil
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
