package handler

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/newsdesk/internal/middleware"
	"github.com/noah-isme/newsdesk/internal/models"
)

// Handlers groups every HTTP handler of the API. Media is nil when images
// are served by the object store directly.
type Handlers struct {
	Auth     *AuthHandler
	Articles *ArticleHandler
	Sections *SectionHandler
	Public   *PublicHandler
	Media    *MediaHandler
	Metrics  *MetricsHandler
	Reports  *ReportHandler
}

// RouteConfig carries what route registration needs besides the handlers.
type RouteConfig struct {
	Prefix      string
	MediaPath   string
	Sessions    middleware.ProviderFactory
	AuditLogger *zap.Logger
	// Docs mounts the Swagger UI under /docs. The document itself is
	// registered by importing api/swagger.
	Docs bool
}

// RegisterRoutes mounts the API on r.
func RegisterRoutes(r *gin.Engine, h Handlers, cfg RouteConfig) {
	auditLogger := cfg.AuditLogger
	if auditLogger == nil {
		auditLogger = zap.NewNop()
	}
	session := middleware.Session(cfg.Sessions)
	editorOnly := middleware.RequireRoles(models.RoleEditor)

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)
	if cfg.Docs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	if h.Media != nil {
		mediaPath := cfg.MediaPath
		if mediaPath == "" {
			mediaPath = "/media"
		}
		r.GET(mediaPath+"/:token", h.Media.Serve)
	}

	api := r.Group(cfg.Prefix)

	auth := api.Group("/auth")
	auth.POST("/signup", h.Auth.SignUp)
	auth.POST("/signin", h.Auth.SignIn)
	auth.POST("/signout", session, h.Auth.SignOut)
	auth.GET("/me", session, h.Auth.Me)

	articles := api.Group("/articles", session)
	articles.GET("", h.Articles.Dashboard)
	articles.GET("/stream", h.Articles.DashboardStream)
	if h.Reports != nil {
		articles.GET("/export", middleware.Audit(auditLogger, "export", "article"), h.Reports.DeskReport)
	}
	articles.POST("", middleware.Audit(auditLogger, "create", "article"), h.Articles.Create)
	articles.GET("/:id", h.Articles.Get)
	articles.PUT("/:id", middleware.Audit(auditLogger, "update", "article"), h.Articles.Update)
	articles.DELETE("/:id", middleware.Audit(auditLogger, "delete", "article"), h.Articles.Delete)
	articles.POST("/:id/status", middleware.Audit(auditLogger, "change_status", "article"), h.Articles.ChangeStatus)
	articles.GET("/:id/actions", h.Articles.Actions)

	sections := api.Group("/sections")
	sections.GET("", h.Sections.List)
	sections.POST("", session, editorOnly, middleware.Audit(auditLogger, "create", "section"), h.Sections.Create)
	sections.DELETE("/:id", session, editorOnly, middleware.Audit(auditLogger, "delete", "section"), h.Sections.Delete)

	public := api.Group("/public", middleware.WithResponseMeta())
	public.GET("/feed", h.Public.Feed)
	public.GET("/feed/stream", h.Public.FeedStream)
	public.GET("/articles/:id", h.Public.Article)
	public.GET("/search", h.Public.Search)

	admin := api.Group("/admin", session, editorOnly)
	admin.GET("/metrics", h.Metrics.Summary)
}
