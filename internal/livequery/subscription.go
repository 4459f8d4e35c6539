package livequery

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrFeedClosed is reported in a snapshot when the change feed went away.
var ErrFeedClosed = errors.New("livequery: change feed closed")

// Snapshot is a point in time result of a live query.
type Snapshot[T any] struct {
	Items []T
	Err   error
	At    time.Time
}

// Loader runs the query a subscription keeps fresh.
type Loader[T any] func(ctx context.Context) ([]T, error)

// Gauge tracks open subscriptions. prometheus.Gauge satisfies it.
type Gauge interface {
	Inc()
	Dec()
}

// Option configures a subscription.
type Option func(*options)

type options struct {
	logger *zap.Logger
	gauge  Gauge
	now    func() time.Time
}

// WithLogger logs failed reloads.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithGauge counts the subscription while it is open.
func WithGauge(g Gauge) Option {
	return func(o *options) { o.gauge = g }
}

// Subscription re-runs a query each time its collection changes and delivers
// the results. Snapshots are latest-wins: a slow reader skips stale ones.
type Subscription[T any] struct {
	collection string
	out        chan Snapshot[T]
	cancel     context.CancelFunc
	done       chan struct{}
	closeOnce  sync.Once

	mu     sync.Mutex
	latest Snapshot[T]
	loaded bool
}

// Subscribe starts a live query over collection. The first snapshot is
// delivered as soon as the initial load completes.
func Subscribe[T any](ctx context.Context, w Watcher, collection string, load Loader[T], opts ...Option) (*Subscription[T], error) {
	o := options{logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(ctx)
	changes, stop, err := w.Watch(ctx, collection)
	if err != nil {
		cancel()
		return nil, err
	}

	s := &Subscription[T]{
		collection: collection,
		out:        make(chan Snapshot[T], 1),
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	if o.gauge != nil {
		o.gauge.Inc()
	}
	go s.run(ctx, changes, stop, load, o)
	return s, nil
}

// Snapshots delivers fresh results. It is closed once the subscription ends.
func (s *Subscription[T]) Snapshots() <-chan Snapshot[T] {
	return s.out
}

// Latest returns the most recent snapshot and whether one was produced yet.
func (s *Subscription[T]) Latest() (Snapshot[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.loaded
}

// Done is closed when the subscription has fully stopped.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// Close ends the subscription and waits for it to release its watch. It is
// safe to call more than once.
func (s *Subscription[T]) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
	})
}

func (s *Subscription[T]) run(ctx context.Context, changes <-chan struct{}, stop func(), load Loader[T], o options) {
	defer close(s.done)
	defer close(s.out)
	defer func() {
		stop()
		if o.gauge != nil {
			o.gauge.Dec()
		}
	}()

	s.reload(ctx, load, o)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				s.publish(Snapshot[T]{Err: ErrFeedClosed, At: o.now()})
				return
			}
			s.reload(ctx, load, o)
		}
	}
}

func (s *Subscription[T]) reload(ctx context.Context, load Loader[T], o options) {
	items, err := load(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		o.logger.Warn("live query reload failed", zap.String("collection", s.collection), zap.Error(err))
	}
	s.publish(Snapshot[T]{Items: items, Err: err, At: o.now()})
}

func (s *Subscription[T]) publish(snap Snapshot[T]) {
	s.mu.Lock()
	s.latest = snap
	s.loaded = true
	s.mu.Unlock()

	select {
	case <-s.out:
	default:
	}
	s.out <- snap
}
