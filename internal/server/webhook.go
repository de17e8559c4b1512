package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/embywatch/embywatch/internal/notifier"
	"github.com/gin-gonic/gin"
)

// webhookHandleTimeout bounds the background event handling, which includes
// the new-item grace wait and the image fetch.
const webhookHandleTimeout = 60 * time.Second

// handleWebhook accepts media server event payloads. Emby posts either raw
// JSON or a multipart/url-encoded form with the JSON in a "data" field.
// Responses are always 200 with a status envelope so the sender never
// retries a payload we could not use.
func handleWebhook(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg := opts.Store.Snapshot()
		if cfg.Webhook.Token != "" {
			token := c.Query("token")
			if subtle.ConstantTimeCompare([]byte(token), []byte(cfg.Webhook.Token)) != 1 {
				c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "message": "bad token"})
				return
			}
		}

		payload, err := webhookPayload(c)
		if err != nil {
			opts.Log.Warn().Err(err).Msg("webhook payload unreadable")
			softError(c, "unreadable payload")
			return
		}

		var ev notifier.Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			opts.Log.Warn().Err(err).Msg("webhook payload is not valid JSON")
			softError(c, "invalid payload")
			return
		}
		if ev.Event == "" {
			softError(c, "missing event field")
			return
		}

		if opts.Relay != nil {
			// Detach from the request: item.added handling sleeps through
			// the metadata grace period before notifying.
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), webhookHandleTimeout)
				defer cancel()
				opts.Relay.HandleEvent(ctx, ev)
			}()
		}
		softOK(c)
	}
}

// webhookPayload extracts the JSON event body from the request.
func webhookPayload(c *gin.Context) ([]byte, error) {
	ct := c.ContentType()
	if strings.Contains(ct, "multipart/form-data") || strings.Contains(ct, "x-www-form-urlencoded") {
		return []byte(c.PostForm("data")), nil
	}
	return io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
}
