package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/newsdesk/internal/service"
	appErrors "github.com/noah-isme/newsdesk/pkg/errors"
	"github.com/noah-isme/newsdesk/pkg/response"
)

// Context keys populated by Session.
const (
	ContextSessionKey  = "session"
	ContextProviderKey = "sessionProvider"
)

// ProviderFactory returns a fresh, unauthenticated session provider. Every
// request gets its own provider.
type ProviderFactory func() *service.SessionProvider

// Session restores the caller's session from the bearer token and rejects
// the request when it cannot.
func Session(newProvider ProviderFactory) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		provider := newProvider()
		session, err := provider.Restore(c.Request.Context(), token)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextSessionKey, session)
		c.Set(ContextProviderKey, provider)
		c.Next()
	}
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", appErrors.ErrUnauthorized
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}
