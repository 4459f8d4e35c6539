package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/newsdesk/internal/feed"
	"github.com/noah-isme/newsdesk/internal/livequery"
	"github.com/noah-isme/newsdesk/internal/middleware"
	"github.com/noah-isme/newsdesk/internal/models"
	"github.com/noah-isme/newsdesk/internal/search"
	appErrors "github.com/noah-isme/newsdesk/pkg/errors"
	"github.com/noah-isme/newsdesk/pkg/response"
)

const maxSearchLimit = 50

type publishedArticles interface {
	ListPublished(ctx context.Context) ([]models.Article, error)
	SubscribePublished(ctx context.Context) (*livequery.Subscription[models.Article], error)
	GetPublishedArticle(ctx context.Context, id string) (*models.Article, error)
}

type sectionFeed interface {
	List(ctx context.Context) ([]models.Section, error)
	Subscribe(ctx context.Context) (*livequery.Subscription[models.Section], error)
}

type articleSearcher interface {
	Search(ctx context.Context, term string, limit int) (search.Response, error)
}

// PublicHandler serves the reader facing feed. It needs no session.
type PublicHandler struct {
	articles publishedArticles
	sections sectionFeed
	search   articleSearcher
	recorder feed.Recorder
	debounce time.Duration
	logger   *zap.Logger
}

// NewPublicHandler constructs the handler. recorder may be nil.
func NewPublicHandler(articles publishedArticles, sections sectionFeed, searcher articleSearcher, recorder feed.Recorder, debounce time.Duration, logger *zap.Logger) *PublicHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublicHandler{articles: articles, sections: sections, search: searcher, recorder: recorder, debounce: debounce, logger: logger}
}

// Feed composes published articles into section groups. Query parameters
// section and q select the section and search term.
//
// @Summary Public feed
// @Tags Public
// @Produce json
// @Param section query string false "Section filter"
// @Param q query string false "Search term"
// @Success 200 {object} response.Envelope
// @Router /public/feed [get]
func (h *PublicHandler) Feed(c *gin.Context) {
	ctx := c.Request.Context()
	articles, err := h.articles.ListPublished(ctx)
	if err != nil {
		response.Error(c, err)
		return
	}
	sections, err := h.sections.List(ctx)
	if err != nil {
		response.Error(c, err)
		return
	}

	view := feed.Compose(articles, sections, c.Query("section"), c.Query("q"))
	if h.recorder != nil {
		h.recorder.RecordComposition()
	}
	response.JSON(c, http.StatusOK, view, middleware.ExtractMeta(c))
}

// FeedStream keeps the composed feed live over server-sent events. Every
// article or catalog change produces a new "view" event.
//
// @Summary Stream public feed
// @Tags Public
// @Produce text/event-stream
// @Param section query string false "Section filter"
// @Param q query string false "Search term"
// @Success 200 {string} string "server-sent events"
// @Router /public/feed/stream [get]
func (h *PublicHandler) FeedStream(c *gin.Context) {
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	articleSub, err := h.articles.SubscribePublished(ctx)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer articleSub.Close()
	sectionSub, err := h.sections.Subscribe(ctx)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer sectionSub.Close()

	opts := []feed.ComposerOption{feed.WithLogger(h.logger), feed.WithInitialTerm(c.Query("q"))}
	if h.recorder != nil {
		opts = append(opts, feed.WithRecorder(h.recorder))
	}
	composer := feed.NewComposer(articleSub.Snapshots(), sectionSub.Snapshots(), h.debounce, opts...)
	composer.SetSection(c.Query("section"))

	done := make(chan error, 1)
	go func() { done <- composer.Run(ctx) }()

	c.Header("Cache-Control", "no-store")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(io.Writer) bool {
		view, ok := <-composer.Views()
		if !ok {
			return false
		}
		if view.Err != nil {
			c.SSEvent("error", gin.H{"message": view.Err.Error()})
		}
		c.SSEvent("view", view)
		return true
	})

	cancel()
	if err := <-done; err != nil {
		h.logger.Warn("feed stream ended", zap.Error(err))
	}
}

// Article returns one published article.
//
// @Summary Get published article
// @Tags Public
// @Produce json
// @Param id path string true "Article ID"
// @Success 200 {object} response.Envelope
// @Router /public/articles/{id} [get]
func (h *PublicHandler) Article(c *gin.Context) {
	article, err := h.articles.GetPublishedArticle(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, article)
}

// Search runs a full-text query over published articles.
//
// @Summary Search published articles
// @Tags Public
// @Produce json
// @Param q query string true "Query"
// @Param limit query int false "Maximum hits"
// @Success 200 {object} response.Envelope
// @Router /public/search [get]
func (h *PublicHandler) Search(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	result, err := h.search.Search(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, result.Cached)
	response.JSON(c, http.StatusOK, result, middleware.ExtractMeta(c))
}
