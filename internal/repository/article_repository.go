package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/newsdesk/internal/livequery"
	"github.com/noah-isme/newsdesk/internal/models"
)

const articleColumns = `id, title, subtitle, content, category, image_url, image_key, author_id, author_name, author_email, status, created_at, updated_at`

// ArticleRepository persists articles and announces every write on the
// change feed so live queries refresh.
type ArticleRepository struct {
	db       *sqlx.DB
	notifier livequery.Notifier
	logger   *zap.Logger
}

// NewArticleRepository creates a new ArticleRepository. notifier may be nil.
func NewArticleRepository(db *sqlx.DB, notifier livequery.Notifier, logger *zap.Logger) *ArticleRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArticleRepository{db: db, notifier: notifier, logger: logger}
}

// Create inserts an article. Timestamps are assigned by the database.
func (r *ArticleRepository) Create(ctx context.Context, article *models.Article) error {
	const query = `INSERT INTO articles (id, title, subtitle, content, category, image_url, image_key, author_id, author_name, author_email, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
RETURNING created_at, updated_at`
	row := r.db.QueryRowxContext(ctx, query,
		article.ID, article.Title, article.Subtitle, article.Content, article.Category,
		article.ImageURL, article.ImageKey, article.AuthorID, article.AuthorName, article.AuthorEmail, article.Status,
	)
	if err := row.Scan(&article.CreatedAt, &article.UpdatedAt); err != nil {
		return fmt.Errorf("insert article: %w", err)
	}
	r.changed(ctx)
	return nil
}

// FindByID returns an article or sql.ErrNoRows.
func (r *ArticleRepository) FindByID(ctx context.Context, id string) (*models.Article, error) {
	query := `SELECT ` + articleColumns + ` FROM articles WHERE id = $1`
	var article models.Article
	if err := r.db.GetContext(ctx, &article, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find article: %w", err)
	}
	return &article, nil
}

// List returns articles newest first.
func (r *ArticleRepository) List(ctx context.Context, filter models.ArticleFilter) ([]models.Article, error) {
	var conditions []string
	var args []interface{}

	if filter.AuthorID != "" {
		args = append(args, filter.AuthorID)
		conditions = append(conditions, fmt.Sprintf("author_id = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		statuses := make([]string, len(filter.Status))
		for i, s := range filter.Status {
			statuses[i] = string(s)
		}
		args = append(args, pq.Array(statuses))
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)))
	}

	query := `SELECT ` + articleColumns + ` FROM articles`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	articles := make([]models.Article, 0)
	if err := r.db.SelectContext(ctx, &articles, query, args...); err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	return articles, nil
}

// Update writes the editable fields and status of an article, provided it
// is still in status from. The author columns are never touched.
func (r *ArticleRepository) Update(ctx context.Context, article *models.Article, from models.ArticleStatus) error {
	const query = `UPDATE articles
SET title = $2, subtitle = $3, content = $4, category = $5, image_url = $6, image_key = $7, status = $8, updated_at = NOW()
WHERE id = $1 AND status = $9
RETURNING updated_at`
	row := r.db.QueryRowxContext(ctx, query,
		article.ID, article.Title, article.Subtitle, article.Content, article.Category,
		article.ImageURL, article.ImageKey, article.Status, from,
	)
	if err := row.Scan(&article.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r.missOrStale(ctx, article.ID)
		}
		return fmt.Errorf("update article: %w", err)
	}
	r.changed(ctx)
	return nil
}

// UpdateStatus moves an article from one status to another. It fails with
// models.ErrStaleStatus when the article is no longer in from.
func (r *ArticleRepository) UpdateStatus(ctx context.Context, id string, from, to models.ArticleStatus) error {
	const query = `UPDATE articles SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`
	res, err := r.db.ExecContext(ctx, query, id, from, to)
	if err != nil {
		return fmt.Errorf("update article status: %w", err)
	}
	if err := requireAffected(res); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r.missOrStale(ctx, id)
		}
		return err
	}
	r.changed(ctx)
	return nil
}

// missOrStale tells a deleted article from one whose status moved.
func (r *ArticleRepository) missOrStale(ctx context.Context, id string) error {
	const query = `SELECT EXISTS(SELECT 1 FROM articles WHERE id = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, id); err != nil {
		return fmt.Errorf("check article: %w", err)
	}
	if exists {
		return models.ErrStaleStatus
	}
	return sql.ErrNoRows
}

// Delete removes an article record.
func (r *ArticleRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM articles WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete article: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	r.changed(ctx)
	return nil
}

func (r *ArticleRepository) changed(ctx context.Context) {
	notify(ctx, r.notifier, r.logger, livequery.CollectionArticles)
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// notify announces a write. The write already committed, so a failed
// announcement is only logged; subscribers catch up on the next change.
func notify(ctx context.Context, n livequery.Notifier, logger *zap.Logger, collection string) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, collection); err != nil {
		logger.Warn("change notification failed", zap.String("collection", collection), zap.Error(err))
	}
}
