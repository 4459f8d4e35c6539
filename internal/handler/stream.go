package handler

import (
	"context"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/newsdesk/internal/livequery"
	"github.com/noah-isme/newsdesk/internal/models"
)

// untilSignedOut derives a context from the request that is also cancelled
// when the caller's identity is signed out elsewhere while it is open.
func untilSignedOut(c *gin.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(c.Request.Context())
	provider := providerFromContext(c)
	if provider == nil {
		return ctx, cancel
	}
	provider.Listen()
	stop := provider.OnChange(func(s models.Session) {
		if !s.Authenticated() {
			cancel()
		}
	})
	return ctx, func() {
		stop()
		provider.Close()
		cancel()
	}
}

// streamSnapshots relays snapshots as server-sent events until the client
// goes away or the source closes. Failed reloads are sent as "error" events.
func streamSnapshots[T any](ctx context.Context, c *gin.Context, event string, snapshots <-chan livequery.Snapshot[T]) {
	c.Header("Cache-Control", "no-store")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case snap, ok := <-snapshots:
			if !ok {
				return false
			}
			if snap.Err != nil {
				c.SSEvent("error", gin.H{"message": snap.Err.Error()})
				return true
			}
			c.SSEvent(event, snap.Items)
			return true
		}
	})
}
