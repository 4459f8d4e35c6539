package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/newsdesk/internal/livequery"
	"github.com/noah-isme/newsdesk/internal/models"
	"github.com/noah-isme/newsdesk/internal/service"
	appErrors "github.com/noah-isme/newsdesk/pkg/errors"
	"github.com/noah-isme/newsdesk/pkg/response"
)

type articleWorkflow interface {
	Dashboard(ctx context.Context, session models.Session) ([]models.Article, error)
	SubscribeDashboard(ctx context.Context, session models.Session) (*livequery.Subscription[models.Article], error)
	GetArticleForEdit(ctx context.Context, session models.Session, id string) (*models.Article, error)
	CreateArticle(ctx context.Context, session models.Session, fields models.ArticleFields, image *models.ImageUpload) (*models.Article, error)
	UpdateArticle(ctx context.Context, session models.Session, id string, fields models.ArticleFields, image *models.ImageUpload) (*models.Article, error)
	DeleteArticle(ctx context.Context, session models.Session, id string) error
	ChangeStatus(ctx context.Context, session models.Session, req service.ChangeStatusRequest, confirmer service.Confirmer) (*service.StatusChange, error)
	Actions(ctx context.Context, session models.Session, id string) ([]models.ArticleAction, error)
}

// statusChangeRequest names the target either by status or by action.
// Confirm answers the confirmation prompt up front.
type statusChangeRequest struct {
	Status  models.ArticleStatus `json:"status"`
	Action  models.ArticleAction `json:"action"`
	Confirm bool                 `json:"confirm"`
}

// ArticleHandler serves the newsroom dashboard.
type ArticleHandler struct {
	workflow articleWorkflow
}

// NewArticleHandler constructs the handler.
func NewArticleHandler(workflow articleWorkflow) *ArticleHandler {
	return &ArticleHandler{workflow: workflow}
}

// Dashboard lists the caller's articles, or all of them for editors.
//
// @Summary List dashboard articles
// @Tags Articles
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /articles [get]
func (h *ArticleHandler) Dashboard(c *gin.Context) {
	articles, err := h.workflow.Dashboard(c.Request.Context(), sessionFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, articles, map[string]interface{}{"count": len(articles)})
}

// DashboardStream pushes the dashboard listing as server-sent events
// whenever it changes. The stream ends when the session is signed out
// elsewhere.
//
// @Summary Stream dashboard articles
// @Tags Articles
// @Produce text/event-stream
// @Security BearerAuth
// @Success 200 {string} string "server-sent events"
// @Router /articles/stream [get]
func (h *ArticleHandler) DashboardStream(c *gin.Context) {
	ctx, cancel := untilSignedOut(c)
	defer cancel()
	sub, err := h.workflow.SubscribeDashboard(ctx, sessionFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer sub.Close()
	streamSnapshots(ctx, c, "articles", sub.Snapshots())
}

// Get returns an article for its edit view.
//
// @Summary Get article for editing
// @Tags Articles
// @Produce json
// @Security BearerAuth
// @Param id path string true "Article ID"
// @Success 200 {object} response.Envelope
// @Router /articles/{id} [get]
func (h *ArticleHandler) Get(c *gin.Context) {
	article, err := h.workflow.GetArticleForEdit(c.Request.Context(), sessionFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, article)
}

// Create stores a new draft from a multipart form carrying an image file.
//
// @Summary Create draft article
// @Tags Articles
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param title formData string true "Title"
// @Param subtitle formData string false "Subtitle"
// @Param content formData string true "Content"
// @Param category formData string true "Section name"
// @Param image formData file true "Cover image"
// @Success 201 {object} response.Envelope
// @Router /articles [post]
func (h *ArticleHandler) Create(c *gin.Context) {
	var fields models.ArticleFields
	if err := c.ShouldBind(&fields); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid article payload"))
		return
	}
	image, closeImage, err := imageFromRequest(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer closeImage()

	article, err := h.workflow.CreateArticle(c.Request.Context(), sessionFromContext(c), fields, image)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, article)
}

// Update edits an article. The image part is optional.
//
// @Summary Update article
// @Tags Articles
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path string true "Article ID"
// @Param title formData string true "Title"
// @Param subtitle formData string false "Subtitle"
// @Param content formData string true "Content"
// @Param category formData string true "Section name"
// @Param image formData file false "Replacement image"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /articles/{id} [put]
func (h *ArticleHandler) Update(c *gin.Context) {
	var fields models.ArticleFields
	if err := c.ShouldBind(&fields); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid article payload"))
		return
	}
	image, closeImage, err := imageFromRequest(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer closeImage()

	article, err := h.workflow.UpdateArticle(c.Request.Context(), sessionFromContext(c), c.Param("id"), fields, image)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, article)
}

// Delete removes an article and its image.
//
// @Summary Delete article
// @Tags Articles
// @Security BearerAuth
// @Param id path string true "Article ID"
// @Success 204
// @Router /articles/{id} [delete]
func (h *ArticleHandler) Delete(c *gin.Context) {
	if err := h.workflow.DeleteArticle(c.Request.Context(), sessionFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ChangeStatus moves an article along the workflow. Ignored and declined
// requests are reported in the body with status 200.
//
// @Summary Change article status
// @Tags Articles
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Article ID"
// @Param payload body statusChangeRequest true "Target status or action"
// @Success 200 {object} response.Envelope
// @Router /articles/{id}/status [post]
func (h *ArticleHandler) ChangeStatus(c *gin.Context) {
	var req statusChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid status payload"))
		return
	}
	if req.Status == "" && req.Action == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "status or action is required"))
		return
	}

	confirmer := service.ConfirmerFunc(func(context.Context, service.Confirmation) (bool, error) {
		return req.Confirm, nil
	})
	change, err := h.workflow.ChangeStatus(c.Request.Context(), sessionFromContext(c), service.ChangeStatusRequest{
		ArticleID: c.Param("id"),
		Target:    req.Status,
		Action:    req.Action,
	}, confirmer)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, change)
}

// Actions lists what the caller may do with an article.
//
// @Summary List available actions
// @Tags Articles
// @Produce json
// @Security BearerAuth
// @Param id path string true "Article ID"
// @Success 200 {object} response.Envelope
// @Router /articles/{id}/actions [get]
func (h *ArticleHandler) Actions(c *gin.Context) {
	actions, err := h.workflow.Actions(c.Request.Context(), sessionFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, actions)
}

// imageFromRequest returns the "image" part of a multipart form, or nil when
// the request carries none. The returned func closes the part.
func imageFromRequest(c *gin.Context) (*models.ImageUpload, func(), error) {
	header, err := c.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, func() {}, nil
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid image upload")
	}
	file, err := header.Open()
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid image upload")
	}
	return &models.ImageUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	}, func() { _ = file.Close() }, nil
}
