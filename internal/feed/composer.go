package feed

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/newsdesk/internal/livequery"
	"github.com/noah-isme/newsdesk/internal/models"
	"github.com/noah-isme/newsdesk/pkg/debounce"
)

// ErrSourceClosed is returned by Run when an input stream ends.
var ErrSourceClosed = errors.New("feed: source stream closed")

// Recorder counts compositions. *service.MetricsService satisfies it.
type Recorder interface {
	RecordComposition()
}

// ComposerOption configures a Composer.
type ComposerOption func(*Composer)

// WithRecorder counts every emitted view.
func WithRecorder(r Recorder) ComposerOption {
	return func(c *Composer) { c.recorder = r }
}

// WithLogger sets the composer logger.
func WithLogger(l *zap.Logger) ComposerOption {
	return func(c *Composer) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithInitialTerm applies term from the first view on, without waiting for
// the debounce delay.
func WithInitialTerm(term string) ComposerOption {
	return func(c *Composer) { c.initialTerm = strings.TrimSpace(term) }
}

// Composer keeps a View current as articles, the catalog, the selected
// section and the search term change. The term only reaches the view once it
// has been stable for the debounce delay.
type Composer struct {
	articles <-chan livequery.Snapshot[models.Article]
	sections <-chan livequery.Snapshot[models.Section]
	term     *debounce.Debouncer[string]
	section  chan string
	out      chan View
	recorder Recorder
	logger   *zap.Logger

	initialTerm string

	sectionMu sync.Mutex
	mu        sync.Mutex
	latest    View
	ready     bool
}

// NewComposer combines the two live streams. The caller keeps ownership of
// the subscriptions behind them.
func NewComposer(articles <-chan livequery.Snapshot[models.Article], sections <-chan livequery.Snapshot[models.Section], delay time.Duration, opts ...ComposerOption) *Composer {
	c := &Composer{
		articles: articles,
		sections: sections,
		term:     debounce.New[string](delay),
		section:  make(chan string, 1),
		out:      make(chan View, 1),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetTerm feeds a raw search term. Intermediate values typed within the
// debounce delay are discarded.
func (c *Composer) SetTerm(term string) {
	c.term.Set(term)
}

// SetSection selects the section filter. Blank selects AllSections.
func (c *Composer) SetSection(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = AllSections
	}
	c.sectionMu.Lock()
	defer c.sectionMu.Unlock()
	select {
	case <-c.section:
	default:
	}
	c.section <- name
}

// Views delivers recomposed views, newest only. It is closed when Run returns.
func (c *Composer) Views() <-chan View {
	return c.out
}

// Latest returns the last emitted view.
func (c *Composer) Latest() (View, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest, c.ready
}

// Run recomposes until ctx is done or an input stream closes. It must be
// called once.
func (c *Composer) Run(ctx context.Context) error {
	defer close(c.out)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		c.term.Stop()
		return nil
	})
	g.Go(func() error {
		return c.loop(gctx)
	})

	err := g.Wait()
	if ctx.Err() != nil {
		// Sources close as a side effect of the caller's cancellation.
		return nil
	}
	return err
}

type composerState struct {
	articles     []models.Article
	sections     []models.Section
	articlesErr  error
	sectionsErr  error
	haveArticles bool
	haveSections bool
	section      string
	term         string
}

func (c *Composer) loop(ctx context.Context) error {
	st := composerState{section: AllSections, term: c.initialTerm}
	settled := c.term.Settled()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-c.articles:
			if !ok {
				return ErrSourceClosed
			}
			st.haveArticles = true
			st.articlesErr = snap.Err
			if snap.Err == nil {
				st.articles = snap.Items
			}
		case snap, ok := <-c.sections:
			if !ok {
				return ErrSourceClosed
			}
			st.haveSections = true
			st.sectionsErr = snap.Err
			if snap.Err == nil {
				st.sections = snap.Items
			}
		case name := <-c.section:
			if name == st.section {
				continue
			}
			st.section = name
		case term, ok := <-settled:
			if !ok {
				return ctx.Err()
			}
			term = strings.TrimSpace(term)
			if term == st.term {
				continue
			}
			st.term = term
		}

		if st.haveArticles && st.haveSections {
			c.emit(st)
		}
	}
}

func (c *Composer) emit(st composerState) {
	view := Compose(st.articles, st.sections, st.section, st.term)
	view.Err = errors.Join(st.articlesErr, st.sectionsErr)
	if view.Err != nil {
		c.logger.Warn("feed composed from stale input", zap.Error(view.Err))
	}

	c.mu.Lock()
	c.latest = view
	c.ready = true
	c.mu.Unlock()

	if c.recorder != nil {
		c.recorder.RecordComposition()
	}
	select {
	case <-c.out:
	default:
	}
	c.out <- view
}
