package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/newsdesk/internal/feed"
	"github.com/noah-isme/newsdesk/internal/models"
)

// Engine answers full-text queries. *Meili implements it.
type Engine interface {
	Healthy() bool
	Search(ctx context.Context, term string, limit int) ([]Hit, int, error)
}

// PublishedLister loads the public article set for in-memory matching.
type PublishedLister interface {
	ListPublished(ctx context.Context) ([]models.Article, error)
}

// Cache keeps engine results for a short while. *service.CacheService
// implements it.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) bool
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)
	Invalidate(ctx context.Context, pattern string) error
}

const cachePattern = "search:*"

// Response is the public search result.
type Response struct {
	Query   string `json:"query"`
	Hits    []Hit  `json:"hits"`
	Total   int    `json:"total"`
	Backend string `json:"backend"`
	Cached  bool   `json:"cached"`
}

// Option configures a Service.
type Option func(*Service)

// WithCache caches engine responses for ttl.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// Service tries the search engine first and falls back to matching titles
// and subtitles of published articles in memory.
type Service struct {
	engine   Engine
	fallback PublishedLister
	logger   *zap.Logger
	cache    Cache
	cacheTTL time.Duration
}

// NewService creates a search service. engine may be nil.
func NewService(engine Engine, fallback PublishedLister, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{engine: engine, fallback: fallback, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Invalidate drops cached responses. It runs after the index changes.
func (s *Service) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx, cachePattern)
}

// Search looks up term. A blank term yields no hits.
func (s *Service) Search(ctx context.Context, term string, limit int) (Response, error) {
	term = strings.TrimSpace(term)
	resp := Response{Query: term, Hits: []Hit{}}
	if term == "" {
		return resp, nil
	}
	if limit <= 0 {
		limit = 20
	}

	if s.engine != nil && s.engine.Healthy() {
		key := fmt.Sprintf("search:%d:%s", limit, strings.ToLower(term))
		if s.cache != nil {
			var cached Response
			if s.cache.Get(ctx, key, &cached) {
				cached.Cached = true
				return cached, nil
			}
		}
		hits, total, err := s.engine.Search(ctx, term, limit)
		if err == nil {
			resp.Hits, resp.Total, resp.Backend = hits, total, "meilisearch"
			if s.cache != nil {
				s.cache.Set(ctx, key, resp, s.cacheTTL)
			}
			return resp, nil
		}
		s.logger.Warn("search engine failed, falling back to memory", zap.Error(err))
	}

	articles, err := s.fallback.ListPublished(ctx)
	if err != nil {
		return resp, err
	}
	resp.Backend = "memory"
	for _, a := range articles {
		if !feed.Matches(a, term) {
			continue
		}
		resp.Total++
		if len(resp.Hits) < limit {
			resp.Hits = append(resp.Hits, Hit{ID: a.ID, Title: a.Title, Subtitle: a.Subtitle, Category: a.Category, ImageURL: a.ImageURL})
		}
	}
	return resp, nil
}
