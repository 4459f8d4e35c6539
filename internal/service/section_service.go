package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/newsdesk/internal/livequery"
	"github.com/noah-isme/newsdesk/internal/models"
	appErrors "github.com/noah-isme/newsdesk/pkg/errors"
)

type sectionStore interface {
	List(ctx context.Context) ([]models.Section, error)
	Create(ctx context.Context, section *models.Section) error
	Delete(ctx context.Context, id string) error
}

// SectionService manages the section catalog. Only editors change it.
type SectionService struct {
	store     sectionStore
	watcher   livequery.Watcher
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSectionService constructs a SectionService. metrics may be nil.
func NewSectionService(store sectionStore, watcher livequery.Watcher, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *SectionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &SectionService{store: store, watcher: watcher, metrics: metrics, validator: validate, logger: logger}
}

// List returns the catalog ordered by name.
func (s *SectionService) List(ctx context.Context) ([]models.Section, error) {
	sections, err := s.store.List(ctx)
	if err != nil {
		return nil, appErrors.Backend(err, "failed to list sections")
	}
	return sections, nil
}

// Subscribe streams the catalog.
func (s *SectionService) Subscribe(ctx context.Context) (*livequery.Subscription[models.Section], error) {
	if s.watcher == nil {
		return nil, appErrors.Clone(appErrors.ErrBackendFailure, "live queries are not configured")
	}
	sub, err := livequery.Subscribe(ctx, s.watcher, livequery.CollectionSections, s.store.List,
		livequery.WithLogger(s.logger), livequery.WithGauge(s.metrics.SubscriptionGauge()))
	if err != nil {
		return nil, appErrors.Backend(err, "failed to subscribe to sections")
	}
	return sub, nil
}

// Create adds a section. Names are trimmed; duplicates are allowed.
func (s *SectionService) Create(ctx context.Context, session models.Session, req models.CreateSectionRequest) (*models.Section, error) {
	if err := requireEditor(session); err != nil {
		return nil, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "section name is required")
	}

	section := &models.Section{ID: uuid.NewString(), Name: req.Name}
	if err := s.store.Create(ctx, section); err != nil {
		return nil, appErrors.Backend(err, "failed to create section")
	}
	s.logger.Info("section created", zap.String("section_id", section.ID), zap.String("name", section.Name))
	return section, nil
}

// Delete removes a section. Articles filed under it keep their category.
func (s *SectionService) Delete(ctx context.Context, session models.Session, id string) error {
	if err := requireEditor(session); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return appErrors.Backend(err, "failed to delete section")
	}
	s.logger.Info("section deleted", zap.String("section_id", id))
	return nil
}

func requireEditor(session models.Session) error {
	if !session.Authenticated() {
		return appErrors.ErrUnauthorized
	}
	if !session.IsEditor() {
		return appErrors.Clone(appErrors.ErrPermissionDenied, "only editors manage sections")
	}
	return nil
}
