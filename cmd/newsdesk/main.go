package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "github.com/noah-isme/newsdesk/api/swagger"
	"github.com/noah-isme/newsdesk/internal/handler"
	"github.com/noah-isme/newsdesk/internal/livequery"
	"github.com/noah-isme/newsdesk/internal/middleware"
	"github.com/noah-isme/newsdesk/internal/repository"
	"github.com/noah-isme/newsdesk/internal/search"
	"github.com/noah-isme/newsdesk/internal/service"
	"github.com/noah-isme/newsdesk/pkg/cache"
	"github.com/noah-isme/newsdesk/pkg/config"
	"github.com/noah-isme/newsdesk/pkg/database"
	"github.com/noah-isme/newsdesk/pkg/jobs"
	"github.com/noah-isme/newsdesk/pkg/logger"
	corsmiddleware "github.com/noah-isme/newsdesk/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/newsdesk/pkg/middleware/requestid"
	"github.com/noah-isme/newsdesk/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := database.Migrate(ctx, db, os.DirFS(cfg.Database.MigrationsDir), logr)
	if err != nil {
		return err
	}
	logr.Info("migrations applied", zap.Strings("versions", applied))

	rdb, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	var changes livequery.Feed
	if cfg.Feed.Driver == config.FeedLocal {
		changes = livequery.NewLocalFeed()
	} else {
		changes = livequery.NewRedisFeed(rdb, "", logr)
	}

	blobs, local, err := newBlobStore(ctx, cfg)
	if err != nil {
		return err
	}

	var metrics *service.MetricsService
	if cfg.Metrics.Enabled {
		metrics = service.NewMetricsService()
	}
	validate := validator.New()

	identityRepo := repository.NewIdentityRepository(db)
	profileRepo := repository.NewProfileRepository(db, changes, logr)
	articleRepo := repository.NewArticleRepository(db, changes, logr)
	sectionRepo := repository.NewSectionRepository(db, changes, logr)

	identities := service.NewIdentityService(identityRepo, repository.NewTokenRevocationRepository(rdb), logr, service.IdentityConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
	})
	sessions := func() *service.SessionProvider {
		return service.NewSessionProvider(identities, profileRepo, validate, logr)
	}

	workflowOpts := []service.WorkflowOption{
		service.WithWorkflowMetrics(metrics),
		service.WithWorkflowConfig(service.WorkflowConfig{
			MaxImageBytes: cfg.Storage.MaxImageBytes,
			AllowedMIMEs:  cfg.Storage.AllowedMIMEs,
		}),
	}

	var (
		engine    search.Engine
		meili     *search.Meili
		searchSvc *search.Service
	)
	if cfg.Search.MeiliURL != "" {
		meili = search.NewMeili(cfg.Search.MeiliURL, cfg.Search.MeiliAPIKey, cfg.Search.HealthInterval, logr)
		defer meili.Close()
		engine = meili

		syncArticle := service.NewSearchIndexHandler(articleRepo, meili, metrics, logr)
		invalidate := func(ctx context.Context) error { return searchSvc.Invalidate(ctx) }
		indexQueue := jobs.NewQueue("search-index", service.InvalidatingHandler(syncArticle, invalidate, logr), jobs.QueueConfig{
			Workers:    cfg.Search.IndexWorkers,
			MaxRetries: cfg.Search.IndexRetries,
			Logger:     logr,
		})
		indexQueue.Start(ctx)
		defer indexQueue.Stop()
		workflowOpts = append(workflowOpts, service.WithSearchIndexQueue(indexQueue))
	}

	workflow := service.NewWorkflowService(articleRepo, sectionRepo, blobs, changes, validate, logr, workflowOpts...)
	sections := service.NewSectionService(sectionRepo, changes, metrics, validate, logr)
	searchCache := service.NewCacheService(repository.NewCacheRepository(rdb, "newsdesk:cache:"), metrics, cfg.Search.CacheTTL, logr, true)
	searchSvc = search.NewService(engine, workflow, logr, search.WithCache(searchCache, cfg.Search.CacheTTL))

	if meili != nil {
		go reindexPublished(ctx, workflow, meili, logr)
	}

	handlers := handler.Handlers{
		Auth:     handler.NewAuthHandler(sessions, cfg.JWT.Expiration),
		Articles: handler.NewArticleHandler(workflow),
		Sections: handler.NewSectionHandler(sections),
		Public:   handler.NewPublicHandler(workflow, sections, searchSvc, metrics, cfg.Search.DebounceDelay, logr),
		Metrics:  handler.NewMetricsHandler(metrics, healthChecks(db, rdb, meili)),
		Reports:  handler.NewReportHandler(service.NewExportService(workflow, nil, nil, logr)),
	}
	mediaPath := ""
	if local != nil {
		handlers.Media = handler.NewMediaHandler(local)
		if u, err := url.Parse(cfg.Storage.PublicBaseURL); err == nil {
			mediaPath = u.Path
		}
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))
	handler.RegisterRoutes(r, handlers, handler.RouteConfig{
		Prefix:      cfg.APIPrefix,
		MediaPath:   mediaPath,
		Sessions:    sessions,
		AuditLogger: logr.Named("audit"),
		Docs:        cfg.Env != config.EnvProduction,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// Requests inherit ctx so live streams end on shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		logr.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newBlobStore returns the configured image store. The local store is also
// returned on its own because the media handler serves its files.
func newBlobStore(ctx context.Context, cfg *config.Config) (storage.BlobStore, *storage.LocalStorage, error) {
	if cfg.Storage.Driver == config.StorageMinio {
		store, err := storage.NewMinioStore(ctx, cfg.Minio)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	}
	signer := storage.NewSignedURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL)
	local, err := storage.NewLocalStorage(cfg.Storage.LocalDir, cfg.Storage.PublicBaseURL, signer)
	if err != nil {
		return nil, nil, err
	}
	return local, local, nil
}

func reindexPublished(ctx context.Context, workflow *service.WorkflowService, meili *search.Meili, logr *zap.Logger) {
	published, err := workflow.ListPublished(ctx)
	if err != nil {
		logr.Warn("initial search reindex skipped", zap.Error(err))
		return
	}
	if err := meili.ReplaceAll(ctx, published); err != nil {
		logr.Warn("initial search reindex failed", zap.Error(err))
		return
	}
	logr.Info("search index rebuilt", zap.Int("articles", len(published)))
}

func healthChecks(db *sqlx.DB, rdb *redis.Client, meili *search.Meili) map[string]handler.HealthCheck {
	checks := map[string]handler.HealthCheck{
		"postgres": db.PingContext,
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}
	if meili != nil {
		checks["meilisearch"] = func(context.Context) error {
			if !meili.Healthy() {
				return search.ErrUnavailable
			}
			return nil
		}
	}
	return checks
}
