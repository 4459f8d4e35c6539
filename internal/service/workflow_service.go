package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/newsdesk/internal/livequery"
	"github.com/noah-isme/newsdesk/internal/models"
	appErrors "github.com/noah-isme/newsdesk/pkg/errors"
	"github.com/noah-isme/newsdesk/pkg/jobs"
	"github.com/noah-isme/newsdesk/pkg/storage"
)

type articleStore interface {
	Create(ctx context.Context, article *models.Article) error
	FindByID(ctx context.Context, id string) (*models.Article, error)
	List(ctx context.Context, filter models.ArticleFilter) ([]models.Article, error)
	// Update and UpdateStatus only write while the article is still in
	// status from, failing with models.ErrStaleStatus otherwise.
	Update(ctx context.Context, article *models.Article, from models.ArticleStatus) error
	UpdateStatus(ctx context.Context, id string, from, to models.ArticleStatus) error
	Delete(ctx context.Context, id string) error
}

type catalogReader interface {
	List(ctx context.Context) ([]models.Section, error)
}

type jobEnqueuer interface {
	TryEnqueue(job jobs.Job) error
}

// Confirmation describes a pending status change shown to the user.
type Confirmation struct {
	ArticleID string
	Title     string
	From      models.ArticleStatus
	To        models.ArticleStatus
}

// Confirmer asks the user to approve a status change. Returning false
// cancels it.
type Confirmer interface {
	Confirm(ctx context.Context, c Confirmation) (bool, error)
}

// ConfirmerFunc allows using plain functions.
type ConfirmerFunc func(ctx context.Context, c Confirmation) (bool, error)

// Confirm implements Confirmer.
func (f ConfirmerFunc) Confirm(ctx context.Context, c Confirmation) (bool, error) {
	return f(ctx, c)
}

// ChangeStatusRequest asks to move an article to Target. When Target is
// empty, Action names the transition instead.
type ChangeStatusRequest struct {
	ArticleID        string
	Target           models.ArticleStatus
	Action           models.ArticleAction
	SkipConfirmation bool
}

// EditHint points the caller at the edit view of an article.
type EditHint struct {
	ArticleID string `json:"article_id"`
}

// StatusChange reports what ChangeStatus did.
type StatusChange struct {
	Outcome  string               `json:"outcome"`
	From     models.ArticleStatus `json:"from"`
	To       models.ArticleStatus `json:"to"`
	EditHint *EditHint            `json:"edit_hint,omitempty"`
}

// WorkflowConfig bounds accepted images.
type WorkflowConfig struct {
	MaxImageBytes int64
	AllowedMIMEs  []string
}

// WorkflowService runs the editorial workflow: authoring, edits, deletion and
// status transitions.
type WorkflowService struct {
	articles  articleStore
	catalog   catalogReader
	blobs     storage.BlobStore
	watcher   livequery.Watcher
	index     jobEnqueuer
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	config    WorkflowConfig
	now       func() time.Time
}

// WorkflowOption configures the service.
type WorkflowOption func(*WorkflowService)

// WithSearchIndexQueue mirrors published articles into the search index.
func WithSearchIndexQueue(q jobEnqueuer) WorkflowOption {
	return func(s *WorkflowService) { s.index = q }
}

// WithWorkflowMetrics records transitions and blob cleanup failures.
func WithWorkflowMetrics(m *MetricsService) WorkflowOption {
	return func(s *WorkflowService) { s.metrics = m }
}

// WithWorkflowConfig overrides image limits.
func WithWorkflowConfig(cfg WorkflowConfig) WorkflowOption {
	return func(s *WorkflowService) { s.config = cfg }
}

// NewWorkflowService constructs the workflow engine.
func NewWorkflowService(articles articleStore, catalog catalogReader, blobs storage.BlobStore, watcher livequery.Watcher, validate *validator.Validate, logger *zap.Logger, opts ...WorkflowOption) *WorkflowService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	svc := &WorkflowService{
		articles:  articles,
		catalog:   catalog,
		blobs:     blobs,
		watcher:   watcher,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// ChangeStatus applies a transition from the workflow table. Transitions the
// session may not perform and declined confirmations leave the article
// untouched and report an outcome instead of an error. So does a write that
// finds the status moved since it was read. A rejected write is
// logged and returned as a backend failure; it is not retried.
func (s *WorkflowService) ChangeStatus(ctx context.Context, session models.Session, req ChangeStatusRequest, confirmer Confirmer) (*StatusChange, error) {
	if !session.Authenticated() {
		return nil, appErrors.ErrUnauthorized
	}
	article, err := s.load(ctx, req.ArticleID)
	if err != nil {
		return nil, err
	}
	if req.Target == "" && req.Action != "" {
		req.Target, _ = models.ActionTarget(article.Status, req.Action)
	}

	result := &StatusChange{From: article.Status, To: req.Target}
	logFields := []zap.Field{
		zap.String("article_id", article.ID),
		zap.String("from", string(article.Status)),
		zap.String("to", string(req.Target)),
		zap.String("identity_id", session.IdentityID),
	}

	if !models.CanTransition(session, *article, req.Target) {
		result.Outcome = OutcomeIgnored
		s.metrics.RecordTransition(article.Status, req.Target, OutcomeIgnored)
		s.logger.Debug("status change not permitted", logFields...)
		return result, nil
	}

	if !req.SkipConfirmation && !s.confirm(ctx, confirmer, article, req.Target) {
		result.Outcome = OutcomeDeclined
		s.metrics.RecordTransition(article.Status, req.Target, OutcomeDeclined)
		return result, nil
	}

	if err := s.articles.UpdateStatus(ctx, article.ID, article.Status, req.Target); err != nil {
		if errors.Is(err, models.ErrStaleStatus) {
			result.Outcome = OutcomeIgnored
			s.metrics.RecordTransition(article.Status, req.Target, OutcomeIgnored)
			s.logger.Info("status changed before write", logFields...)
			return result, nil
		}
		result.Outcome = OutcomeFailed
		s.metrics.RecordTransition(article.Status, req.Target, OutcomeFailed)
		s.logger.Error("status change rejected", append(logFields, zap.Error(err))...)
		if errors.Is(err, sql.ErrNoRows) {
			return result, appErrors.Clone(appErrors.ErrNotFound, "article not found")
		}
		return result, appErrors.Backend(err, "failed to change article status")
	}

	result.Outcome = OutcomeApplied
	s.metrics.RecordTransition(article.Status, req.Target, OutcomeApplied)
	s.logger.Info("article status changed", logFields...)
	if article.Status == models.StatusDraft && req.Target == models.StatusReview {
		result.EditHint = &EditHint{ArticleID: article.ID}
	}
	if article.Status == models.StatusPublished || req.Target == models.StatusPublished {
		s.reindex(article.ID)
	}
	return result, nil
}

func (s *WorkflowService) confirm(ctx context.Context, confirmer Confirmer, article *models.Article, to models.ArticleStatus) bool {
	if confirmer == nil {
		return false
	}
	ok, err := confirmer.Confirm(ctx, Confirmation{ArticleID: article.ID, Title: article.Title, From: article.Status, To: to})
	if err != nil {
		s.logger.Warn("confirmation failed", zap.String("article_id", article.ID), zap.Error(err))
		return false
	}
	return ok
}

// CreateArticle uploads the image and stores a new draft authored by session.
func (s *WorkflowService) CreateArticle(ctx context.Context, session models.Session, fields models.ArticleFields, image *models.ImageUpload) (*models.Article, error) {
	if !session.Authenticated() {
		return nil, appErrors.ErrUnauthorized
	}
	fields = trimFields(fields)
	if err := s.validator.Struct(fields); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid article payload")
	}
	if err := s.checkCategory(ctx, fields.Category, ""); err != nil {
		return nil, err
	}
	if image == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "image is required")
	}

	obj, err := s.upload(ctx, image)
	if err != nil {
		return nil, err
	}

	article := &models.Article{
		ID:          uuid.NewString(),
		Title:       fields.Title,
		Subtitle:    fields.Subtitle,
		Content:     fields.Content,
		Category:    fields.Category,
		ImageURL:    obj.URL,
		ImageKey:    obj.Key,
		AuthorID:    session.IdentityID,
		AuthorName:  session.DisplayName,
		AuthorEmail: session.Email,
		Status:      models.StatusDraft,
	}
	if err := s.articles.Create(ctx, article); err != nil {
		s.removeBlob(ctx, obj.Key)
		return nil, appErrors.Backend(err, "failed to create article")
	}
	s.logger.Info("article created", zap.String("article_id", article.ID), zap.String("identity_id", session.IdentityID))
	return article, nil
}

// UpdateArticle edits an article's content. Permissions are checked against
// the stored article before anything is uploaded or written. A replaced
// image is left in the blob store.
func (s *WorkflowService) UpdateArticle(ctx context.Context, session models.Session, id string, fields models.ArticleFields, image *models.ImageUpload) (*models.Article, error) {
	if !session.Authenticated() {
		return nil, appErrors.ErrUnauthorized
	}
	original, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !models.CanEdit(session, *original) {
		return nil, appErrors.Clone(appErrors.ErrPermissionDenied, "you may not edit this article")
	}

	fields = trimFields(fields)
	if err := s.validator.Struct(fields); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid article payload")
	}
	if err := s.checkCategory(ctx, fields.Category, original.Category); err != nil {
		return nil, err
	}

	updated := *original
	updated.Title = fields.Title
	updated.Subtitle = fields.Subtitle
	updated.Content = fields.Content
	updated.Category = fields.Category
	updated.Status = models.NextStatusOnEdit(original.Status)

	if image != nil {
		obj, err := s.upload(ctx, image)
		if err != nil {
			return nil, err
		}
		updated.ImageURL = obj.URL
		updated.ImageKey = obj.Key
	}

	if err := s.articles.Update(ctx, &updated, original.Status); err != nil {
		if errors.Is(err, models.ErrStaleStatus) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "article status changed while editing")
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "article not found")
		}
		return nil, appErrors.Backend(err, "failed to update article")
	}
	if original.Status != updated.Status {
		s.metrics.RecordTransition(original.Status, updated.Status, OutcomeApplied)
	}
	if updated.Status == models.StatusPublished {
		s.reindex(updated.ID)
	}
	return &updated, nil
}

// DeleteArticle removes the article and then, best effort, its image.
func (s *WorkflowService) DeleteArticle(ctx context.Context, session models.Session, id string) error {
	if !session.Authenticated() {
		return appErrors.ErrUnauthorized
	}
	article, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !models.CanDelete(session, *article) {
		return appErrors.Clone(appErrors.ErrPermissionDenied, "you may not delete this article")
	}

	if err := s.articles.Delete(ctx, article.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "article not found")
		}
		return appErrors.Backend(err, "failed to delete article")
	}

	ref := article.ImageKey
	if ref == "" {
		ref = article.ImageURL
	}
	s.removeBlob(ctx, ref)
	if article.Status == models.StatusPublished {
		s.reindex(article.ID)
	}
	s.logger.Info("article deleted", zap.String("article_id", article.ID), zap.String("identity_id", session.IdentityID))
	return nil
}

// Dashboard lists the articles a session works on, newest first: a
// reporter's own articles, or every article for an editor.
func (s *WorkflowService) Dashboard(ctx context.Context, session models.Session) ([]models.Article, error) {
	filter, err := dashboardFilter(session)
	if err != nil {
		return nil, err
	}
	articles, err := s.articles.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Backend(err, "failed to list articles")
	}
	return articles, nil
}

// SubscribeDashboard is the live form of Dashboard.
func (s *WorkflowService) SubscribeDashboard(ctx context.Context, session models.Session) (*livequery.Subscription[models.Article], error) {
	filter, err := dashboardFilter(session)
	if err != nil {
		return nil, err
	}
	return s.subscribe(ctx, filter)
}

// ListPublished returns every published article, newest first.
func (s *WorkflowService) ListPublished(ctx context.Context) ([]models.Article, error) {
	articles, err := s.articles.List(ctx, publishedFilter())
	if err != nil {
		return nil, appErrors.Backend(err, "failed to list articles")
	}
	return articles, nil
}

// SubscribePublished streams the public article set.
func (s *WorkflowService) SubscribePublished(ctx context.Context) (*livequery.Subscription[models.Article], error) {
	return s.subscribe(ctx, publishedFilter())
}

func (s *WorkflowService) subscribe(ctx context.Context, filter models.ArticleFilter) (*livequery.Subscription[models.Article], error) {
	if s.watcher == nil {
		return nil, appErrors.Clone(appErrors.ErrBackendFailure, "live queries are not configured")
	}
	sub, err := livequery.Subscribe(ctx, s.watcher, livequery.CollectionArticles, func(ctx context.Context) ([]models.Article, error) {
		return s.articles.List(ctx, filter)
	}, livequery.WithLogger(s.logger), livequery.WithGauge(s.metrics.SubscriptionGauge()))
	if err != nil {
		return nil, appErrors.Backend(err, "failed to subscribe to articles")
	}
	return sub, nil
}

// GetArticleForEdit loads an article for its edit view.
func (s *WorkflowService) GetArticleForEdit(ctx context.Context, session models.Session, id string) (*models.Article, error) {
	if !session.Authenticated() {
		return nil, appErrors.ErrUnauthorized
	}
	article, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !models.CanEdit(session, *article) {
		return nil, appErrors.Clone(appErrors.ErrPermissionDenied, "you may not edit this article")
	}
	return article, nil
}

// GetPublishedArticle returns a published article. Unpublished ones are
// reported as missing.
func (s *WorkflowService) GetPublishedArticle(ctx context.Context, id string) (*models.Article, error) {
	article, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if article.Status != models.StatusPublished {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "article not found")
	}
	return article, nil
}

// Actions lists what session may do with the article.
func (s *WorkflowService) Actions(ctx context.Context, session models.Session, id string) ([]models.ArticleAction, error) {
	if !session.Authenticated() {
		return nil, appErrors.ErrUnauthorized
	}
	article, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return models.AvailableActions(session, *article), nil
}

func (s *WorkflowService) load(ctx context.Context, id string) (*models.Article, error) {
	if strings.TrimSpace(id) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "article id is required")
	}
	article, err := s.articles.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "article not found")
		}
		return nil, appErrors.Backend(err, "failed to load article")
	}
	return article, nil
}

// checkCategory requires category to be in the catalog. An edit may keep the
// category it already had even if that section was deleted since.
func (s *WorkflowService) checkCategory(ctx context.Context, category, current string) error {
	if current != "" && category == current {
		return nil
	}
	sections, err := s.catalog.List(ctx)
	if err != nil {
		return appErrors.Backend(err, "failed to load sections")
	}
	if len(sections) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "create a section before writing articles")
	}
	for _, section := range sections {
		if section.Name == category {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown section %q", category))
}

func (s *WorkflowService) upload(ctx context.Context, image *models.ImageUpload) (storage.Object, error) {
	if image.Body == nil {
		return storage.Object{}, appErrors.Clone(appErrors.ErrValidation, "image is required")
	}
	if s.config.MaxImageBytes > 0 && image.Size > s.config.MaxImageBytes {
		return storage.Object{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("image exceeds %d bytes", s.config.MaxImageBytes))
	}
	if len(s.config.AllowedMIMEs) > 0 && !containsFold(s.config.AllowedMIMEs, image.ContentType) {
		return storage.Object{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported image type %q", image.ContentType))
	}

	key := storage.ImageKey(image.Filename, s.now())
	obj, err := s.blobs.Upload(ctx, key, image.Body, image.Size, image.ContentType)
	if err != nil {
		s.logger.Error("image upload failed", zap.String("key", key), zap.Error(err))
		return storage.Object{}, appErrors.Backend(err, "failed to upload image")
	}
	return obj, nil
}

func (s *WorkflowService) removeBlob(ctx context.Context, ref string) {
	if ref == "" {
		return
	}
	if err := s.blobs.Delete(ctx, ref); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			s.logger.Info("image already gone", zap.String("ref", ref))
			return
		}
		s.metrics.RecordBlobDeleteFailure()
		s.logger.Warn("image cleanup failed", zap.String("ref", ref), zap.Error(err))
	}
}

func (s *WorkflowService) reindex(articleID string) {
	if s.index == nil {
		return
	}
	if err := s.index.TryEnqueue(jobs.Job{ID: uuid.NewString(), Type: JobTypeSyncArticle, Payload: articleID}); err != nil {
		s.logger.Warn("search index job dropped", zap.String("article_id", articleID), zap.Error(err))
	}
}

func dashboardFilter(session models.Session) (models.ArticleFilter, error) {
	switch {
	case session.IsEditor():
		return models.ArticleFilter{}, nil
	case session.IsReporter():
		return models.ArticleFilter{AuthorID: session.IdentityID}, nil
	case session.Authenticated():
		return models.ArticleFilter{}, appErrors.Clone(appErrors.ErrPermissionDenied, "session has no role")
	}
	return models.ArticleFilter{}, appErrors.ErrUnauthorized
}

func publishedFilter() models.ArticleFilter {
	return models.ArticleFilter{Status: []models.ArticleStatus{models.StatusPublished}}
}

func trimFields(f models.ArticleFields) models.ArticleFields {
	f.Title = strings.TrimSpace(f.Title)
	f.Subtitle = strings.TrimSpace(f.Subtitle)
	f.Content = strings.TrimSpace(f.Content)
	f.Category = strings.TrimSpace(f.Category)
	return f
}

func containsFold(values []string, v string) bool {
	for _, candidate := range values {
		if strings.EqualFold(strings.TrimSpace(candidate), v) {
			return true
		}
	}
	return false
}
