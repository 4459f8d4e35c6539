package handler

import (
	"errors"
	"net/http"
	"os"
	"path"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/newsdesk/pkg/errors"
	"github.com/noah-isme/newsdesk/pkg/response"
	"github.com/noah-isme/newsdesk/pkg/storage"
)

type mediaOpener interface {
	Open(token string) (*os.File, string, error)
}

// MediaHandler serves images kept in local storage through signed tokens.
type MediaHandler struct {
	media mediaOpener
}

// NewMediaHandler constructs the handler.
func NewMediaHandler(media mediaOpener) *MediaHandler {
	return &MediaHandler{media: media}
}

// Serve streams the file behind the :token path parameter.
func (h *MediaHandler) Serve(c *gin.Context) {
	file, key, err := h.media.Open(c.Param("token"))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "image not found"))
			return
		}
		response.Error(c, appErrors.Wrap(err, appErrors.ErrNotFound.Code, http.StatusNotFound, "image not found"))
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read image"))
		return
	}
	c.Header("Cache-Control", "public, max-age=86400")
	http.ServeContent(c.Writer, c.Request, path.Base(key), info.ModTime(), file)
}
