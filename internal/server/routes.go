package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// registerRoutes sets up all routes on the gin router.
func registerRoutes(router *gin.Engine, opts StartOpts) {
	// Inbound webhook from the media server (shared-secret query token).
	router.POST("/webhook", handleWebhook(opts))

	// Public image proxy.
	router.GET("/image/:itemID", handleImage(opts))

	// Session login.
	router.POST("/api/login", handleLogin(opts))

	// Admin API behind the signed-cookie session.
	api := router.Group("/api", requireSession(opts.Store))
	{
		api.GET("/settings", handleSettingsGet(opts))
		api.PUT("/settings", handleSettingsPut(opts))

		api.GET("/pushes", handlePushList(opts))
		api.POST("/pushes", handlePushAdd(opts))
		api.DELETE("/pushes/:id", handlePushDelete(opts))

		api.GET("/users", handleUserList(opts))
		api.PUT("/users/:userID/meta", handleUserMetaPut(opts))
		api.DELETE("/users/:userID/meta", handleUserMetaDelete(opts))
		api.POST("/users/:userID/disabled", handleUserDisabled(opts))
		api.DELETE("/users/:userID", handleUserDelete(opts))

		api.GET("/tasks", handleTaskList(opts))
		api.POST("/tasks/:taskID/run", handleTaskRun(opts))

		api.GET("/stats/days", handleStatsDays(opts))
		api.GET("/stats/users", handleStatsUsers(opts))
		api.GET("/stats/items", handleStatsItems(opts))
		api.GET("/stats/recent", handleStatsRecent(opts))
		api.GET("/stats/user/:userID", handleStatsUser(opts))

		api.GET("/events", handleSSE(opts))
	}
}

// softError writes the soft error envelope used across the API: HTTP 200
// with a status field, so webhook senders and the dashboard never retry.
func softError(c *gin.Context, msg string) {
	c.JSON(http.StatusOK, gin.H{"status": "error", "message": msg})
}

func softOK(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
