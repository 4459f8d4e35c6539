package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/newsdesk/internal/livequery"
	"github.com/noah-isme/newsdesk/internal/models"
)

// SectionRepository persists the section catalog.
type SectionRepository struct {
	db       *sqlx.DB
	notifier livequery.Notifier
	logger   *zap.Logger
}

// NewSectionRepository creates a new SectionRepository. notifier may be nil.
func NewSectionRepository(db *sqlx.DB, notifier livequery.Notifier, logger *zap.Logger) *SectionRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SectionRepository{db: db, notifier: notifier, logger: logger}
}

// List returns the catalog ordered by name.
func (r *SectionRepository) List(ctx context.Context) ([]models.Section, error) {
	const query = `SELECT id, name, created_at FROM sections ORDER BY name ASC, created_at ASC`
	sections := make([]models.Section, 0)
	if err := r.db.SelectContext(ctx, &sections, query); err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	return sections, nil
}

// Create inserts a section.
func (r *SectionRepository) Create(ctx context.Context, section *models.Section) error {
	const query = `INSERT INTO sections (id, name, created_at) VALUES ($1, $2, NOW()) RETURNING created_at`
	if err := r.db.QueryRowxContext(ctx, query, section.ID, section.Name).Scan(&section.CreatedAt); err != nil {
		return fmt.Errorf("insert section: %w", err)
	}
	notify(ctx, r.notifier, r.logger, livequery.CollectionSections)
	return nil
}

// Delete removes a section. Articles filed under its name are left as is.
func (r *SectionRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM sections WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete section: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	notify(ctx, r.notifier, r.logger, livequery.CollectionSections)
	return nil
}
