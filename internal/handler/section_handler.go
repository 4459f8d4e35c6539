package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/newsdesk/internal/models"
	appErrors "github.com/noah-isme/newsdesk/pkg/errors"
	"github.com/noah-isme/newsdesk/pkg/response"
)

type sectionCatalog interface {
	List(ctx context.Context) ([]models.Section, error)
	Create(ctx context.Context, session models.Session, req models.CreateSectionRequest) (*models.Section, error)
	Delete(ctx context.Context, session models.Session, id string) error
}

// SectionHandler manages the section catalog.
type SectionHandler struct {
	sections sectionCatalog
}

// NewSectionHandler constructs the handler.
func NewSectionHandler(sections sectionCatalog) *SectionHandler {
	return &SectionHandler{sections: sections}
}

// List returns every section ordered by name.
//
// @Summary List sections
// @Tags Sections
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /sections [get]
func (h *SectionHandler) List(c *gin.Context) {
	sections, err := h.sections.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sections)
}

// Create adds a section.
//
// @Summary Create section
// @Tags Sections
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.CreateSectionRequest true "Section payload"
// @Success 201 {object} response.Envelope
// @Router /sections [post]
func (h *SectionHandler) Create(c *gin.Context) {
	var req models.CreateSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid section payload"))
		return
	}
	section, err := h.sections.Create(c.Request.Context(), sessionFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, section)
}

// Delete removes a section.
//
// @Summary Delete section
// @Tags Sections
// @Security BearerAuth
// @Param id path string true "Section ID"
// @Success 204
// @Router /sections/{id} [delete]
func (h *SectionHandler) Delete(c *gin.Context) {
	if err := h.sections.Delete(c.Request.Context(), sessionFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
