package handler

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/newsdesk/internal/livequery"
	"github.com/noah-isme/newsdesk/internal/models"
	"github.com/noah-isme/newsdesk/internal/repository"
)

type memIdentities struct {
	mu   sync.Mutex
	byID map[string]models.Identity
}

func newMemIdentities() *memIdentities {
	return &memIdentities{byID: make(map[string]models.Identity)}
}

func (m *memIdentities) Create(_ context.Context, identity *models.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Email == identity.Email {
			return repository.ErrDuplicateEmail
		}
	}
	m.byID[identity.ID] = *identity
	return nil
}

func (m *memIdentities) FindByEmail(_ context.Context, email string) (*models.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, identity := range m.byID {
		if identity.Email == email {
			found := identity
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memIdentities) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
	return nil
}

type memProfiles struct {
	mu       sync.Mutex
	profiles map[string]models.Profile
}

func newMemProfiles() *memProfiles {
	return &memProfiles{profiles: make(map[string]models.Profile)}
}

func (m *memProfiles) Save(_ context.Context, profile *models.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[profile.IdentityID] = *profile
	return nil
}

func (m *memProfiles) FindByID(_ context.Context, id string) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	profile, ok := m.profiles[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &profile, nil
}

type memArticles struct {
	mu       sync.Mutex
	articles map[string]models.Article
	feed     *livequery.LocalFeed
}

func newMemArticles(feed *livequery.LocalFeed) *memArticles {
	return &memArticles{articles: make(map[string]models.Article), feed: feed}
}

func (m *memArticles) changed(ctx context.Context) {
	if m.feed != nil {
		_ = m.feed.Notify(ctx, livequery.CollectionArticles)
	}
}

func (m *memArticles) Create(ctx context.Context, article *models.Article) error {
	m.mu.Lock()
	article.CreatedAt = time.Now()
	article.UpdatedAt = article.CreatedAt
	m.articles[article.ID] = *article
	m.mu.Unlock()
	m.changed(ctx)
	return nil
}

func (m *memArticles) FindByID(_ context.Context, id string) (*models.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	article, ok := m.articles[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &article, nil
}

func (m *memArticles) List(_ context.Context, filter models.ArticleFilter) ([]models.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Article, 0, len(m.articles))
	for _, a := range m.articles {
		if filter.AuthorID != "" && a.AuthorID != filter.AuthorID {
			continue
		}
		if len(filter.Status) > 0 && !hasStatus(filter.Status, a.Status) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memArticles) Update(ctx context.Context, article *models.Article, from models.ArticleStatus) error {
	m.mu.Lock()
	current, ok := m.articles[article.ID]
	if !ok {
		m.mu.Unlock()
		return sql.ErrNoRows
	}
	if current.Status != from {
		m.mu.Unlock()
		return models.ErrStaleStatus
	}
	article.UpdatedAt = time.Now()
	m.articles[article.ID] = *article
	m.mu.Unlock()
	m.changed(ctx)
	return nil
}

func (m *memArticles) UpdateStatus(ctx context.Context, id string, from, to models.ArticleStatus) error {
	m.mu.Lock()
	article, ok := m.articles[id]
	if !ok {
		m.mu.Unlock()
		return sql.ErrNoRows
	}
	if article.Status != from {
		m.mu.Unlock()
		return models.ErrStaleStatus
	}
	article.Status = to
	m.articles[id] = article
	m.mu.Unlock()
	m.changed(ctx)
	return nil
}

func (m *memArticles) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	if _, ok := m.articles[id]; !ok {
		m.mu.Unlock()
		return sql.ErrNoRows
	}
	delete(m.articles, id)
	m.mu.Unlock()
	m.changed(ctx)
	return nil
}

func hasStatus(statuses []models.ArticleStatus, s models.ArticleStatus) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

type memSections struct {
	mu       sync.Mutex
	sections []models.Section
}

func (m *memSections) List(_ context.Context) ([]models.Section, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]models.Section(nil), m.sections...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memSections) Create(_ context.Context, section *models.Section) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sections = append(m.sections, *section)
	return nil
}

func (m *memSections) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.sections {
		if s.ID == id {
			m.sections = append(m.sections[:i], m.sections[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}
