// Package search mirrors published articles into Meilisearch and answers
// public search queries from it.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"

	"github.com/noah-isme/newsdesk/internal/models"
)

const idxArticles = "newsdesk_articles"

// ErrUnavailable is returned while Meilisearch cannot be reached.
var ErrUnavailable = errors.New("search: meilisearch unavailable")

// ArticleRecord is the indexed form of a published article.
type ArticleRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Subtitle    string `json:"subtitle"`
	Category    string `json:"category"`
	AuthorName  string `json:"authorName"`
	ImageURL    string `json:"imageUrl"`
	PublishedAt int64  `json:"publishedAt"`
}

// Hit is a search result.
type Hit struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Subtitle  string `json:"subtitle"`
	Category  string `json:"category"`
	ImageURL  string `json:"image_url"`
	Highlight string `json:"highlight,omitempty"`
}

// Meili indexes articles in Meilisearch.
type Meili struct {
	client   meili.ServiceManager
	logger   *zap.Logger
	interval time.Duration
	healthy  atomic.Bool
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// NewMeili connects to Meilisearch and configures the article index. An
// unreachable server is not an error: the client reports itself unhealthy
// and reconfigures the index once the server comes back.
func NewMeili(url, apiKey string, interval time.Duration, logger *zap.Logger) *Meili {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	m := &Meili{
		client:   meili.New(url, meili.WithAPIKey(apiKey)),
		logger:   logger.With(zap.String("component", "search")),
		interval: interval,
		done:     make(chan struct{}),
	}

	if _, err := m.client.Health(); err != nil {
		m.logger.Warn("meilisearch unavailable", zap.String("url", url), zap.Error(err))
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	m.wg.Add(1)
	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: idxArticles, PrimaryKey: "id"}); err != nil {
		m.logger.Debug("create index (may already exist)", zap.String("index", idxArticles), zap.Error(err))
	}

	index := m.client.Index(idxArticles)
	filterable := []interface{}{"category"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.logger.Warn("update filterable attributes", zap.Error(err))
	}
	searchable := []string{"title", "subtitle"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.logger.Warn("update searchable attributes", zap.Error(err))
	}
}

func (m *Meili) healthLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			switch {
			case err == nil && !wasHealthy:
				m.logger.Info("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			case err != nil && wasHealthy:
				m.logger.Warn("meilisearch lost", zap.Error(err))
			}
		}
	}
}

// Close stops the health monitor.
func (m *Meili) Close() {
	m.once.Do(func() {
		close(m.done)
		m.wg.Wait()
	})
}

// Healthy reports whether Meilisearch answered the last health check.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// IndexArticle adds or replaces an article in the index.
func (m *Meili) IndexArticle(_ context.Context, article models.Article) error {
	if !m.Healthy() {
		return ErrUnavailable
	}
	if _, err := m.client.Index(idxArticles).AddDocuments([]ArticleRecord{RecordFromArticle(article)}, nil); err != nil {
		return fmt.Errorf("index article %s: %w", article.ID, err)
	}
	return nil
}

// RemoveArticle drops an article from the index.
func (m *Meili) RemoveArticle(_ context.Context, id string) error {
	if !m.Healthy() {
		return ErrUnavailable
	}
	if _, err := m.client.Index(idxArticles).DeleteDocument(id, nil); err != nil {
		return fmt.Errorf("remove article %s: %w", id, err)
	}
	return nil
}

// ReplaceAll indexes every given article.
func (m *Meili) ReplaceAll(_ context.Context, articles []models.Article) error {
	if !m.Healthy() {
		return ErrUnavailable
	}
	if len(articles) == 0 {
		return nil
	}
	records := make([]ArticleRecord, len(articles))
	for i, a := range articles {
		records[i] = RecordFromArticle(a)
	}
	if _, err := m.client.Index(idxArticles).AddDocuments(records, nil); err != nil {
		return fmt.Errorf("reindex articles: %w", err)
	}
	return nil
}

// Search runs term against the article index.
func (m *Meili) Search(_ context.Context, term string, limit int) ([]Hit, int, error) {
	if !m.Healthy() {
		return nil, 0, ErrUnavailable
	}
	if limit <= 0 {
		limit = 20
	}
	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{{
			IndexUID:              idxArticles,
			Query:                 term,
			Limit:                 int64(limit),
			AttributesToHighlight: []string{"title", "subtitle"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
		}},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	hits := make([]Hit, 0)
	total := 0
	for _, res := range resp.Results {
		total += int(res.EstimatedTotalHits)
		for _, h := range res.Hits {
			hits = append(hits, hitFromMeili(h))
		}
	}
	return hits, total, nil
}

// RecordFromArticle maps an article to its index record.
func RecordFromArticle(a models.Article) ArticleRecord {
	return ArticleRecord{
		ID:          a.ID,
		Title:       a.Title,
		Subtitle:    a.Subtitle,
		Category:    a.Category,
		AuthorName:  a.AuthorName,
		ImageURL:    a.ImageURL,
		PublishedAt: a.UpdatedAt.Unix(),
	}
}

func hitFromMeili(hit meili.Hit) Hit {
	h := Hit{
		ID:       decodeString(hit, "id"),
		Title:    decodeString(hit, "title"),
		Subtitle: decodeString(hit, "subtitle"),
		Category: decodeString(hit, "category"),
		ImageURL: decodeString(hit, "imageUrl"),
	}
	h.Highlight = firstNonBlank(decodeFormatted(hit, "title"), decodeFormatted(hit, "subtitle"))
	return h
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func decodeFormatted(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]json.RawMessage
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(formatted[key], &s); err != nil {
		return ""
	}
	if !strings.Contains(s, "<mark>") {
		return ""
	}
	return strings.TrimSpace(s)
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
