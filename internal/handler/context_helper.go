package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/newsdesk/internal/middleware"
	"github.com/noah-isme/newsdesk/internal/models"
	"github.com/noah-isme/newsdesk/internal/service"
)

// sessionFromContext returns the restored session, or an unauthenticated
// one when the session middleware did not run.
func sessionFromContext(c *gin.Context) models.Session {
	if session, ok := c.Value(middleware.ContextSessionKey).(models.Session); ok {
		return session
	}
	return models.Session{State: models.SessionUnauthenticated}
}

func providerFromContext(c *gin.Context) *service.SessionProvider {
	provider, _ := c.Value(middleware.ContextProviderKey).(*service.SessionProvider)
	return provider
}
