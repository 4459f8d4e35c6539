package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/newsdesk/internal/livequery"
	"github.com/noah-isme/newsdesk/internal/models"
	appErrors "github.com/noah-isme/newsdesk/pkg/errors"
	"github.com/noah-isme/newsdesk/pkg/jobs"
	"github.com/noah-isme/newsdesk/pkg/storage"
)

type mockArticleStore struct {
	mu        sync.Mutex
	articles  map[string]*models.Article
	seq       int
	statusErr error
	updateErr error
	createErr error
	writes    int
}

func newMockArticleStore(articles ...models.Article) *mockArticleStore {
	m := &mockArticleStore{articles: make(map[string]*models.Article)}
	for i := range articles {
		a := articles[i]
		m.articles[a.ID] = &a
	}
	return m
}

func (m *mockArticleStore) Create(ctx context.Context, article *models.Article) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.seq++
	article.CreatedAt = time.Unix(int64(m.seq), 0)
	article.UpdatedAt = article.CreatedAt
	copy := *article
	m.articles[article.ID] = &copy
	m.writes++
	return nil
}

func (m *mockArticleStore) FindByID(ctx context.Context, id string) (*models.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.articles[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *a
	return &copy, nil
}

func (m *mockArticleStore) List(ctx context.Context, filter models.ArticleFilter) ([]models.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Article, 0)
	for _, a := range m.articles {
		if filter.AuthorID != "" && a.AuthorID != filter.AuthorID {
			continue
		}
		if len(filter.Status) > 0 {
			match := false
			for _, s := range filter.Status {
				match = match || a.Status == s
			}
			if !match {
				continue
			}
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *mockArticleStore) Update(ctx context.Context, article *models.Article, from models.ArticleStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	current, ok := m.articles[article.ID]
	if !ok {
		return sql.ErrNoRows
	}
	if current.Status != from {
		return models.ErrStaleStatus
	}
	copy := *article
	m.articles[article.ID] = &copy
	m.writes++
	return nil
}

func (m *mockArticleStore) UpdateStatus(ctx context.Context, id string, from, to models.ArticleStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statusErr != nil {
		return m.statusErr
	}
	a, ok := m.articles[id]
	if !ok {
		return sql.ErrNoRows
	}
	if a.Status != from {
		return models.ErrStaleStatus
	}
	a.Status = to
	m.writes++
	return nil
}

func (m *mockArticleStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.articles[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.articles, id)
	m.writes++
	return nil
}

func (m *mockArticleStore) get(id string) (models.Article, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.articles[id]
	if !ok {
		return models.Article{}, false
	}
	return *a, true
}

type stubCatalog struct {
	sections []models.Section
	err      error
}

func (s *stubCatalog) List(ctx context.Context) ([]models.Section, error) {
	return s.sections, s.err
}

type stubBlobStore struct {
	mu        sync.Mutex
	uploads   map[string]string
	deleted   []string
	uploadErr error
	deleteErr error
}

func newStubBlobStore() *stubBlobStore {
	return &stubBlobStore{uploads: make(map[string]string)}
}

func (s *stubBlobStore) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (storage.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploadErr != nil {
		return storage.Object{}, s.uploadErr
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return storage.Object{}, err
	}
	s.uploads[key] = string(body)
	return storage.Object{Key: key, URL: "https://cdn.test/" + key, Size: size, ContentType: contentType}, nil
}

func (s *stubBlobStore) URL(ctx context.Context, key string) (string, error) {
	return "https://cdn.test/" + key, nil
}

func (s *stubBlobStore) Delete(ctx context.Context, keyOrURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, keyOrURL)
	return s.deleteErr
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []jobs.Job
	err  error
}

func (q *recordingQueue) TryEnqueue(job jobs.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) payloads() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.jobs))
	for i, j := range q.jobs {
		out[i], _ = j.Payload.(string)
	}
	return out
}

var (
	reporterSession = models.Session{State: models.SessionAuthenticated, IdentityID: "r1", Email: "rita@news.test", Role: models.RoleReporter, DisplayName: "Rita"}
	otherReporter   = models.Session{State: models.SessionAuthenticated, IdentityID: "r2", Email: "raul@news.test", Role: models.RoleReporter, DisplayName: "Raúl"}
	editorSession   = models.Session{State: models.SessionAuthenticated, IdentityID: "e1", Email: "ed@news.test", Role: models.RoleEditor, DisplayName: "Eddie"}
	techCatalog     = &stubCatalog{sections: []models.Section{{ID: "s1", Name: "Tech"}, {ID: "s2", Name: "Deportes"}}}
)

func always(answer bool) Confirmer {
	return ConfirmerFunc(func(context.Context, Confirmation) (bool, error) { return answer, nil })
}

type workflowFixture struct {
	store   *mockArticleStore
	blobs   *stubBlobStore
	queue   *recordingQueue
	metrics *MetricsService
	svc     *WorkflowService
}

func newWorkflowFixture(catalog catalogReader, articles ...models.Article) *workflowFixture {
	f := &workflowFixture{
		store:   newMockArticleStore(articles...),
		blobs:   newStubBlobStore(),
		queue:   &recordingQueue{},
		metrics: NewMetricsService(),
	}
	f.svc = NewWorkflowService(f.store, catalog, f.blobs, livequery.NewLocalFeed(), nil, nil,
		WithSearchIndexQueue(f.queue),
		WithWorkflowMetrics(f.metrics),
		WithWorkflowConfig(WorkflowConfig{MaxImageBytes: 1 << 20, AllowedMIMEs: []string{"image/png", "image/jpeg"}}),
	)
	f.svc.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return f
}

func png(name string) *models.ImageUpload {
	return &models.ImageUpload{Filename: name, ContentType: "image/png", Size: 4, Body: strings.NewReader("\x89PNG")}
}

func TestCreateArticleForcesDraft(t *testing.T) {
	f := newWorkflowFixture(techCatalog)
	fields := models.ArticleFields{Title: " T1 ", Content: "body", Category: "Tech", Status: models.StatusPublished}

	article, err := f.svc.CreateArticle(context.Background(), reporterSession, fields, png("cover.png"))
	require.NoError(t, err)

	assert.Equal(t, models.StatusDraft, article.Status)
	assert.Equal(t, "T1", article.Title)
	assert.Equal(t, "r1", article.AuthorID)
	assert.Equal(t, "Rita", article.AuthorName)
	assert.Equal(t, "rita@news.test", article.AuthorEmail)
	assert.Regexp(t, `^news-images/1700000000000_[0-9a-f]{8}_cover\.png$`, article.ImageKey)
	assert.Equal(t, "https://cdn.test/"+article.ImageKey, article.ImageURL)
	assert.False(t, article.CreatedAt.IsZero())

	stored, ok := f.store.get(article.ID)
	require.True(t, ok)
	assert.Equal(t, models.StatusDraft, stored.Status)
	assert.Empty(t, f.queue.payloads(), "drafts are not indexed")
}

func TestCreateArticleBlockedWithoutCatalog(t *testing.T) {
	f := newWorkflowFixture(&stubCatalog{})
	fields := models.ArticleFields{Title: "T1", Content: "body", Category: "Tech"}

	_, err := f.svc.CreateArticle(context.Background(), reporterSession, fields, png("a.png"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, f.blobs.uploads)
	assert.Zero(t, f.store.writes)
}

func TestCreateArticleValidation(t *testing.T) {
	f := newWorkflowFixture(techCatalog)
	ctx := context.Background()

	cases := map[string]struct {
		fields models.ArticleFields
		image  *models.ImageUpload
	}{
		"missing title":    {models.ArticleFields{Content: "b", Category: "Tech"}, png("a.png")},
		"missing category": {models.ArticleFields{Title: "T", Content: "b"}, png("a.png")},
		"unknown category": {models.ArticleFields{Title: "T", Content: "b", Category: "Cocina"}, png("a.png")},
		"missing image":    {models.ArticleFields{Title: "T", Content: "b", Category: "Tech"}, nil},
		"wrong mime":       {models.ArticleFields{Title: "T", Content: "b", Category: "Tech"}, &models.ImageUpload{Filename: "a.gif", ContentType: "image/gif", Size: 1, Body: strings.NewReader("x")}},
		"too large":        {models.ArticleFields{Title: "T", Content: "b", Category: "Tech"}, &models.ImageUpload{Filename: "a.png", ContentType: "image/png", Size: 2 << 20, Body: strings.NewReader("x")}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.CreateArticle(ctx, reporterSession, tc.fields, tc.image)
			assert.True(t, errors.Is(err, appErrors.ErrValidation), "got %v", err)
		})
	}
	assert.Empty(t, f.blobs.uploads)
	assert.Zero(t, f.store.writes)
}

func TestCreateArticleUploadFailureAbortsCreate(t *testing.T) {
	f := newWorkflowFixture(techCatalog)
	f.blobs.uploadErr = errors.New("bucket offline")

	_, err := f.svc.CreateArticle(context.Background(), reporterSession, models.ArticleFields{Title: "T", Content: "b", Category: "Tech"}, png("a.png"))
	assert.True(t, errors.Is(err, appErrors.ErrBackendFailure))
	assert.Zero(t, f.store.writes)
}

func TestCreateArticleStoreFailureRemovesUpload(t *testing.T) {
	f := newWorkflowFixture(techCatalog)
	f.store.createErr = errors.New("db down")

	_, err := f.svc.CreateArticle(context.Background(), reporterSession, models.ArticleFields{Title: "T", Content: "b", Category: "Tech"}, png("a.png"))
	assert.True(t, errors.Is(err, appErrors.ErrBackendFailure))
	require.Len(t, f.blobs.deleted, 1)
	assert.Regexp(t, `^news-images/1700000000000_[0-9a-f]{8}_a\.png$`, f.blobs.deleted[0])
}

func TestCreateArticleRequiresSession(t *testing.T) {
	f := newWorkflowFixture(techCatalog)
	_, err := f.svc.CreateArticle(context.Background(), models.Session{}, models.ArticleFields{Title: "T", Content: "b", Category: "Tech"}, png("a.png"))
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestChangeStatusFollowsTable(t *testing.T) {
	f := newWorkflowFixture(techCatalog, models.Article{ID: "a1", AuthorID: "r1", Status: models.StatusDraft, Title: "T1"})
	ctx := context.Background()

	res, err := f.svc.ChangeStatus(ctx, reporterSession, ChangeStatusRequest{ArticleID: "a1", Target: models.StatusReview}, always(true))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	require.NotNil(t, res.EditHint)
	assert.Equal(t, "a1", res.EditHint.ArticleID)

	res, err = f.svc.ChangeStatus(ctx, editorSession, ChangeStatusRequest{ArticleID: "a1", Target: models.StatusPublished}, always(true))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Nil(t, res.EditHint)

	stored, _ := f.store.get("a1")
	assert.Equal(t, models.StatusPublished, stored.Status)
	assert.Equal(t, []string{"a1"}, f.queue.payloads())
	assert.Equal(t, uint64(2), f.metrics.Snapshot().TransitionsApplied)
}

func TestChangeStatusOutsideTableIsNoOp(t *testing.T) {
	f := newWorkflowFixture(techCatalog, models.Article{ID: "a1", AuthorID: "r1", Status: models.StatusDraft})
	ctx := context.Background()

	cases := []struct {
		session models.Session
		target  models.ArticleStatus
	}{
		{editorSession, models.StatusPublished},
		{otherReporter, models.StatusReview},
		{editorSession, models.StatusReview},
		{reporterSession, models.StatusSuspended},
	}
	for _, tc := range cases {
		res, err := f.svc.ChangeStatus(ctx, tc.session, ChangeStatusRequest{ArticleID: "a1", Target: tc.target, SkipConfirmation: true}, nil)
		require.NoError(t, err)
		assert.Equal(t, OutcomeIgnored, res.Outcome)
	}
	stored, _ := f.store.get("a1")
	assert.Equal(t, models.StatusDraft, stored.Status)
	assert.Zero(t, f.store.writes)
}

func TestChangeStatusDeclined(t *testing.T) {
	f := newWorkflowFixture(techCatalog, models.Article{ID: "a1", AuthorID: "r1", Status: models.StatusReview, Title: "T1"})
	ctx := context.Background()

	var asked Confirmation
	confirmer := ConfirmerFunc(func(_ context.Context, c Confirmation) (bool, error) {
		asked = c
		return false, nil
	})
	res, err := f.svc.ChangeStatus(ctx, editorSession, ChangeStatusRequest{ArticleID: "a1", Target: models.StatusPublished}, confirmer)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeclined, res.Outcome)
	assert.Equal(t, Confirmation{ArticleID: "a1", Title: "T1", From: models.StatusReview, To: models.StatusPublished}, asked)

	// no confirmer at all counts as a decline
	res, err = f.svc.ChangeStatus(ctx, editorSession, ChangeStatusRequest{ArticleID: "a1", Target: models.StatusPublished}, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeclined, res.Outcome)

	res, err = f.svc.ChangeStatus(ctx, editorSession, ChangeStatusRequest{ArticleID: "a1", Target: models.StatusPublished},
		ConfirmerFunc(func(context.Context, Confirmation) (bool, error) { return true, errors.New("prompt closed") }))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeclined, res.Outcome)

	assert.Zero(t, f.store.writes)
}

func TestChangeStatusBackendFailureIsNotRetried(t *testing.T) {
	f := newWorkflowFixture(techCatalog, models.Article{ID: "a1", AuthorID: "r1", Status: models.StatusReview})
	f.store.statusErr = errors.New("write rejected")

	res, err := f.svc.ChangeStatus(context.Background(), editorSession, ChangeStatusRequest{ArticleID: "a1", Target: models.StatusPublished, SkipConfirmation: true}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrBackendFailure))
	assert.Equal(t, OutcomeFailed, res.Outcome)
	stored, _ := f.store.get("a1")
	assert.Equal(t, models.StatusReview, stored.Status)
	assert.Empty(t, f.queue.payloads())
}

// racingStore lets another writer move the article right after it is read.
type racingStore struct {
	*mockArticleStore
	race func()
}

func (s *racingStore) FindByID(ctx context.Context, id string) (*models.Article, error) {
	a, err := s.mockArticleStore.FindByID(ctx, id)
	if err == nil && s.race != nil {
		s.race()
		s.race = nil
	}
	return a, err
}

func (f *workflowFixture) setStatus(id string, status models.ArticleStatus) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.store.articles[id].Status = status
}

func TestChangeStatusIgnoredWhenStatusMovedDuringConfirmation(t *testing.T) {
	f := newWorkflowFixture(techCatalog, models.Article{ID: "a1", AuthorID: "r1", Status: models.StatusReview, Title: "T1"})

	// another editor publishes while this one is still looking at the prompt
	confirmer := ConfirmerFunc(func(context.Context, Confirmation) (bool, error) {
		f.setStatus("a1", models.StatusPublished)
		return true, nil
	})
	res, err := f.svc.ChangeStatus(context.Background(), editorSession, ChangeStatusRequest{ArticleID: "a1", Target: models.StatusDraft}, confirmer)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)
	stored, _ := f.store.get("a1")
	assert.Equal(t, models.StatusPublished, stored.Status)
	assert.Zero(t, f.store.writes)
	assert.Empty(t, f.queue.payloads())
}

func TestUpdateArticleConflictWhenStatusMoved(t *testing.T) {
	f := newWorkflowFixture(techCatalog, models.Article{ID: "a1", AuthorID: "r1", Status: models.StatusReview, Title: "Old", Content: "x", Category: "Tech"})
	f.svc.articles = &racingStore{mockArticleStore: f.store, race: func() { f.setStatus("a1", models.StatusPublished) }}

	_, err := f.svc.UpdateArticle(context.Background(), editorSession, "a1", models.ArticleFields{Title: "New", Content: "y", Category: "Tech"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
	stored, _ := f.store.get("a1")
	assert.Equal(t, models.StatusPublished, stored.Status)
	assert.Equal(t, "Old", stored.Title)
}

func TestChangeStatusByAction(t *testing.T) {
	f := newWorkflowFixture(techCatalog, models.Article{ID: "a1", AuthorID: "r1", Status: models.StatusPublished})
	ctx := context.Background()

	res, err := f.svc.ChangeStatus(ctx, editorSession, ChangeStatusRequest{ArticleID: "a1", Action: models.ActionDeactivate, SkipConfirmation: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, models.StatusSuspended, res.To)

	// submit does not apply to a suspended article
	res, err = f.svc.ChangeStatus(ctx, editorSession, ChangeStatusRequest{ArticleID: "a1", Action: models.ActionSubmit, SkipConfirmation: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)
	stored, _ := f.store.get("a1")
	assert.Equal(t, models.StatusSuspended, stored.Status)
}

func TestChangeStatusMissingArticle(t *testing.T) {
	f := newWorkflowFixture(techCatalog)
	_, err := f.svc.ChangeStatus(context.Background(), editorSession, ChangeStatusRequest{ArticleID: "nope", Target: models.StatusPublished}, always(true))
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestUpdateArticleRevertsReviewToDraft(t *testing.T) {
	f := newWorkflowFixture(techCatalog, models.Article{ID: "a1", AuthorID: "r1", AuthorName: "Rita", Status: models.StatusReview, Title: "Old", Content: "x", Category: "Tech", ImageKey: "news-images/1_old.png", ImageURL: "https://cdn.test/news-images/1_old.png"})

	updated, err := f.svc.UpdateArticle(context.Background(), editorSession, "a1", models.ArticleFields{Title: "New", Content: "y", Category: "Tech"}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, updated.Status)
	assert.Equal(t, "r1", updated.AuthorID, "author is immutable")
	assert.Equal(t, "Rita", updated.AuthorName)
	assert.Equal(t, "news-images/1_old.png", updated.ImageKey)
}

func TestUpdateArticlePreservesOtherStatuses(t *testing.T) {
	for _, status := range []models.ArticleStatus{models.StatusDraft, models.StatusPublished, models.StatusSuspended} {
		f := newWorkflowFixture(techCatalog, models.Article{ID: "a1", AuthorID: "r1", Status: status, Title: "Old", Content: "x", Category: "Tech"})
		updated, err := f.svc.UpdateArticle(context.Background(), editorSession, "a1", models.ArticleFields{Title: "New", Content: "y", Category: "Tech"}, nil)
		require.NoError(t, err)
		assert.Equal(t, status, updated.Status)
	}
}

func TestUpdateArticleReplacesImageWithoutDeletingOld(t *testing.T) {
	f := newWorkflowFixture(techCatalog, models.Article{ID: "a1", AuthorID: "r1", Status: models.StatusPublished, Title: "Old", Content: "x", Category: "Tech", ImageKey: "news-images/1_old.png"})

	updated, err := f.svc.UpdateArticle(context.Background(), editorSession, "a1", models.ArticleFields{Title: "Old", Content: "x", Category: "Tech"}, png("new.png"))
	require.NoError(t, err)
	assert.Regexp(t, `^news-images/1700000000000_[0-9a-f]{8}_new\.png$`, updated.ImageKey)
	assert.Empty(t, f.blobs.deleted)
	assert.Equal(t, []string{"a1"}, f.queue.payloads(), "published edits are reindexed")
}

func TestUpdateArticlePermissionDeniedBeforeAnyWrite(t *testing.T) {
	f := newWorkflowFixture(techCatalog,
		models.Article{ID: "own-review", AuthorID: "r1", Status: models.StatusReview, Title: "T", Content: "x", Category: "Tech"},
		models.Article{ID: "foreign", AuthorID: "r2", Status: models.StatusDraft, Title: "T", Content: "x", Category: "Tech"},
		models.Article{ID: "own-published", AuthorID: "r1", Status: models.StatusPublished, Title: "T", Content: "x", Category: "Tech"},
	)
	for _, id := range []string{"own-review", "foreign", "own-published"} {
		_, err := f.svc.UpdateArticle(context.Background(), reporterSession, id, models.ArticleFields{Title: "X", Content: "y", Category: "Tech"}, png("x.png"))
		assert.True(t, errors.Is(err, appErrors.ErrPermissionDenied), "article %s", id)
	}
	assert.Empty(t, f.blobs.uploads)
	assert.Zero(t, f.store.writes)
}

func TestUpdateArticleKeepsDeletedSectionCategory(t *testing.T) {
	f := newWorkflowFixture(techCatalog, models.Article{ID: "a1", AuthorID: "r1", Status: models.StatusDraft, Title: "T", Content: "x", Category: "Cocina"})

	_, err := f.svc.UpdateArticle(context.Background(), reporterSession, "a1", models.ArticleFields{Title: "T2", Content: "x", Category: "Cocina"}, nil)
	require.NoError(t, err)

	_, err = f.svc.UpdateArticle(context.Background(), reporterSession, "a1", models.ArticleFields{Title: "T2", Content: "x", Category: "Moda"}, nil)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestDeleteArticleBestEffortBlobRemoval(t *testing.T) {
	f := newWorkflowFixture(techCatalog,
		models.Article{ID: "a1", AuthorID: "r1", Status: models.StatusDraft, ImageKey: "news-images/1_a.png"},
		models.Article{ID: "a2", AuthorID: "r1", Status: models.StatusPublished, ImageURL: "https://cdn.test/news-images/2_b.png"},
	)
	f.blobs.deleteErr = storage.ErrObjectNotFound

	require.NoError(t, f.svc.DeleteArticle(context.Background(), reporterSession, "a1"))
	_, ok := f.store.get("a1")
	assert.False(t, ok)

	f.blobs.deleteErr = errors.New("bucket offline")
	require.NoError(t, f.svc.DeleteArticle(context.Background(), editorSession, "a2"))
	_, ok = f.store.get("a2")
	assert.False(t, ok)

	assert.Equal(t, []string{"news-images/1_a.png", "https://cdn.test/news-images/2_b.png"}, f.blobs.deleted)
	assert.Equal(t, []string{"a2"}, f.queue.payloads())
}

func TestDeleteArticlePermissions(t *testing.T) {
	f := newWorkflowFixture(techCatalog,
		models.Article{ID: "foreign", AuthorID: "r2", Status: models.StatusDraft},
		models.Article{ID: "published", AuthorID: "r1", Status: models.StatusPublished},
	)
	for _, id := range []string{"foreign", "published"} {
		err := f.svc.DeleteArticle(context.Background(), reporterSession, id)
		assert.True(t, errors.Is(err, appErrors.ErrPermissionDenied), "article %s", id)
	}
	assert.Zero(t, f.store.writes)
	assert.Empty(t, f.blobs.deleted)
}

func TestDashboardScopesByRole(t *testing.T) {
	f := newWorkflowFixture(techCatalog)
	ctx := context.Background()
	for i, s := range []models.Session{reporterSession, otherReporter, reporterSession} {
		_, err := f.svc.CreateArticle(ctx, s, models.ArticleFields{Title: "T", Content: "b", Category: "Tech"}, png("a.png"))
		require.NoError(t, err, "article %d", i)
	}

	mine, err := f.svc.Dashboard(ctx, reporterSession)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
	assert.True(t, mine[0].CreatedAt.After(mine[1].CreatedAt), "newest first")

	all, err := f.svc.Dashboard(ctx, editorSession)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = f.svc.Dashboard(ctx, models.Session{})
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestGetPublishedArticleHidesUnpublished(t *testing.T) {
	f := newWorkflowFixture(techCatalog,
		models.Article{ID: "pub", Status: models.StatusPublished},
		models.Article{ID: "draft", Status: models.StatusDraft},
	)
	_, err := f.svc.GetPublishedArticle(context.Background(), "pub")
	require.NoError(t, err)
	_, err = f.svc.GetPublishedArticle(context.Background(), "draft")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestSubscribePublishedFollowsStatusChanges(t *testing.T) {
	feed := livequery.NewLocalFeed()
	store := newMockArticleStore(models.Article{ID: "a1", AuthorID: "r1", Status: models.StatusReview})
	svc := NewWorkflowService(&notifyingStore{mockArticleStore: store, feed: feed}, techCatalog, newStubBlobStore(), feed, nil, nil)
	ctx := context.Background()

	sub, err := svc.SubscribePublished(ctx)
	require.NoError(t, err)
	defer sub.Close()

	snap := <-sub.Snapshots()
	require.NoError(t, snap.Err)
	assert.Empty(t, snap.Items)

	_, err = svc.ChangeStatus(ctx, editorSession, ChangeStatusRequest{ArticleID: "a1", Target: models.StatusPublished, SkipConfirmation: true}, nil)
	require.NoError(t, err)
	snap = <-sub.Snapshots()
	require.Len(t, snap.Items, 1)

	_, err = svc.ChangeStatus(ctx, editorSession, ChangeStatusRequest{ArticleID: "a1", Target: models.StatusSuspended, SkipConfirmation: true}, nil)
	require.NoError(t, err)
	snap = <-sub.Snapshots()
	assert.Empty(t, snap.Items)
}

type notifyingStore struct {
	*mockArticleStore
	feed *livequery.LocalFeed
}

func (s *notifyingStore) UpdateStatus(ctx context.Context, id string, from, to models.ArticleStatus) error {
	if err := s.mockArticleStore.UpdateStatus(ctx, id, from, to); err != nil {
		return err
	}
	return s.feed.Notify(ctx, livequery.CollectionArticles)
}
