package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/newsdesk/internal/middleware"
	"github.com/noah-isme/newsdesk/internal/models"
	appErrors "github.com/noah-isme/newsdesk/pkg/errors"
	"github.com/noah-isme/newsdesk/pkg/response"
)

// AuthHandler exposes sign-up, sign-in and sign-out. Each call works on a
// fresh session provider.
type AuthHandler struct {
	newProvider middleware.ProviderFactory
	tokenTTL    time.Duration
}

// NewAuthHandler creates a new handler. tokenTTL is reported to clients as
// expires_in.
func NewAuthHandler(newProvider middleware.ProviderFactory, tokenTTL time.Duration) *AuthHandler {
	return &AuthHandler{newProvider: newProvider, tokenTTL: tokenTTL}
}

// SignUp registers a reporter or editor and signs them in.
//
// @Summary Sign up
// @Tags Auth
// @Accept json
// @Produce json
// @Param payload body models.SignUpRequest true "Sign-up payload"
// @Success 201 {object} response.Envelope
// @Router /auth/signup [post]
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req models.SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid sign-up payload"))
		return
	}

	session, err := h.newProvider().SignUp(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, h.authResponse(session))
}

// SignIn authenticates with email and password.
//
// @Summary Sign in
// @Tags Auth
// @Accept json
// @Produce json
// @Param payload body models.SignInRequest true "Credentials"
// @Success 200 {object} response.Envelope
// @Router /auth/signin [post]
func (h *AuthHandler) SignIn(c *gin.Context) {
	var req models.SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid sign-in payload"))
		return
	}

	session, err := h.newProvider().SignIn(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, h.authResponse(session))
}

// SignOut revokes the bearer token of the current session.
//
// @Summary Sign out
// @Tags Auth
// @Security BearerAuth
// @Success 204
// @Router /auth/signout [post]
func (h *AuthHandler) SignOut(c *gin.Context) {
	provider := providerFromContext(c)
	if provider == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := provider.SignOut(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Me returns the current session's identity and role.
//
// @Summary Current session
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	session := sessionFromContext(c)
	if !session.Authenticated() {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	response.JSON(c, http.StatusOK, session.Info())
}

func (h *AuthHandler) authResponse(session models.Session) models.AuthResponse {
	return models.AuthResponse{
		AccessToken: session.Token,
		ExpiresIn:   int64(h.tokenTTL.Seconds()),
		IssuedAt:    time.Now().UTC(),
		User:        session.Info(),
	}
}
