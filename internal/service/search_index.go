package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/newsdesk/internal/models"
	"github.com/noah-isme/newsdesk/pkg/jobs"
)

// JobTypeSyncArticle brings one article's search entry in line with the
// database. The payload is the article id.
const JobTypeSyncArticle = "search.sync_article"

type searchIndexer interface {
	IndexArticle(ctx context.Context, article models.Article) error
	RemoveArticle(ctx context.Context, id string) error
}

type articleFinder interface {
	FindByID(ctx context.Context, id string) (*models.Article, error)
}

// NewSearchIndexHandler returns the job handler that mirrors articles into
// the search index: published articles are upserted, anything else is
// removed. The article is re-read when the job runs, so late jobs never
// resurrect stale content.
func NewSearchIndexHandler(articles articleFinder, indexer searchIndexer, metrics *MetricsService, logger *zap.Logger) jobs.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, job jobs.Job) (err error) {
		defer func() { metrics.RecordSearchIndexJob(job.Type, err) }()

		if job.Type != JobTypeSyncArticle {
			logger.Warn("unknown search job", zap.String("type", job.Type))
			return nil
		}
		id, ok := job.Payload.(string)
		if !ok || id == "" {
			return fmt.Errorf("search job %s: invalid payload %T", job.ID, job.Payload)
		}

		article, err := articles.FindByID(ctx, id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return indexer.RemoveArticle(ctx, id)
		case err != nil:
			return fmt.Errorf("load article %s: %w", id, err)
		case article.Status == models.StatusPublished:
			return indexer.IndexArticle(ctx, *article)
		default:
			return indexer.RemoveArticle(ctx, id)
		}
	}
}

// InvalidatingHandler runs next and then drops cached search results. The
// index is already current at that point, so a failed invalidation is only
// logged and the job still succeeds.
func InvalidatingHandler(next jobs.Handler, invalidate func(context.Context) error, logger *zap.Logger) jobs.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, job jobs.Job) error {
		if err := next(ctx, job); err != nil {
			return err
		}
		if err := invalidate(ctx); err != nil {
			logger.Warn("search cache invalidation failed",
				zap.String("job_id", job.ID),
				zap.Any("article_id", job.Payload),
				zap.Error(err),
			)
		}
		return nil
	}
}
