package server

import (
	"errors"
	"net/http"

	"github.com/embywatch/embywatch/internal/emby"
	"github.com/gin-gonic/gin"
)

// handleImage proxies the item's primary image from the media server so
// browsers never need direct access to Emby or its API key.
func handleImage(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		if opts.Emby == nil {
			c.Status(http.StatusNotFound)
			return
		}
		data, contentType, err := opts.Emby.Image(c.Request.Context(), c.Param("itemID"))
		if err != nil {
			if errors.Is(err, emby.ErrNotConfigured) {
				c.Status(http.StatusServiceUnavailable)
				return
			}
			opts.Log.Warn().Err(err).Str("item", c.Param("itemID")).Msg("image proxy fetch failed")
			c.Status(http.StatusNotFound)
			return
		}
		if contentType == "" {
			contentType = "image/jpeg"
		}
		c.Header("Cache-Control", "public, max-age=3600")
		c.Data(http.StatusOK, contentType, data)
	}
}
