package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/embywatch/embywatch/internal/config"
	"github.com/embywatch/embywatch/internal/db"
	"github.com/embywatch/embywatch/internal/models"
	"github.com/embywatch/embywatch/internal/stats"
	"github.com/gin-gonic/gin"
)

// settingsDoc is the administrative view of the mutable settings. The
// API key, tokens, and password are write-only: GET returns whether they
// are set, PUT overwrites them only when a non-empty value arrives.
type settingsDoc struct {
	EmbyHost        string                 `json:"emby_host"`
	EmbyAPIKey      string                 `json:"emby_api_key,omitempty"`
	EmbyAPIKeySet   bool                   `json:"emby_api_key_set"`
	TelegramToken   string                 `json:"telegram_token,omitempty"`
	TelegramSet     bool                   `json:"telegram_token_set"`
	TelegramChatID  string                 `json:"telegram_chat_id"`
	TelegramProxy   string                 `json:"telegram_proxy"`
	WebhookToken    string                 `json:"webhook_token,omitempty"`
	WebhookTokenSet bool                   `json:"webhook_token_set"`
	NotifyOnPlay    bool                   `json:"notify_on_play"`
	NotifyOnNewItem bool                   `json:"notify_on_new_item"`
	HiddenUsers     []string               `json:"hidden_users"`
	Pushes          []config.ScheduledPush `json:"scheduled_pushes,omitempty"`
}

func handleSettingsGet(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg := opts.Store.Snapshot()
		c.JSON(http.StatusOK, settingsDoc{
			EmbyHost:        cfg.Emby.Host,
			EmbyAPIKeySet:   cfg.Emby.APIKey != "",
			TelegramSet:     cfg.Telegram.Token != "",
			TelegramChatID:  cfg.Telegram.ChatID,
			TelegramProxy:   cfg.Telegram.Proxy,
			WebhookTokenSet: cfg.Webhook.Token != "",
			NotifyOnPlay:    cfg.Notify.OnPlay,
			NotifyOnNewItem: cfg.Notify.OnNewItem,
			HiddenUsers:     cfg.HiddenUsers,
			Pushes:          cfg.ScheduledPushes,
		})
	}
}

func handleSettingsPut(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		var doc settingsDoc
		if err := c.ShouldBindJSON(&doc); err != nil {
			softError(c, "invalid settings payload")
			return
		}
		err := opts.Store.Update(func(cfg *config.Config) {
			cfg.Emby.Host = doc.EmbyHost
			if doc.EmbyAPIKey != "" {
				cfg.Emby.APIKey = doc.EmbyAPIKey
			}
			if doc.TelegramToken != "" {
				cfg.Telegram.Token = doc.TelegramToken
			}
			cfg.Telegram.ChatID = doc.TelegramChatID
			cfg.Telegram.Proxy = doc.TelegramProxy
			if doc.WebhookToken != "" {
				cfg.Webhook.Token = doc.WebhookToken
			}
			cfg.Notify.OnPlay = doc.NotifyOnPlay
			cfg.Notify.OnNewItem = doc.NotifyOnNewItem
			cfg.HiddenUsers = doc.HiddenUsers
		})
		if err != nil {
			opts.Log.Error().Err(err).Msg("settings persist failed")
			softError(c, "could not persist settings")
			return
		}
		softOK(c)
	}
}

func handlePushList(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg := opts.Store.Snapshot()
		pushes := cfg.ScheduledPushes
		if pushes == nil {
			pushes = []config.ScheduledPush{}
		}
		c.JSON(http.StatusOK, pushes)
	}
}

func handlePushAdd(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		var push config.ScheduledPush
		if err := c.ShouldBindJSON(&push); err != nil {
			softError(c, "invalid push payload")
			return
		}
		if push.ID == "" {
			softError(c, "push id is required")
			return
		}
		push.Period = config.NormalizePeriod(push.Period)
		if push.Period == "" {
			softError(c, "push period is required")
			return
		}
		if push.Theme == "" {
			push.Theme = "daily"
		}
		if err := opts.Store.AddPush(push); err != nil {
			opts.Log.Error().Err(err).Str("push", push.ID).Msg("push persist failed")
			softError(c, "could not persist push")
			return
		}
		softOK(c)
	}
}

func handlePushDelete(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := opts.Store.RemovePush(c.Param("id")); err != nil {
			opts.Log.Error().Err(err).Str("push", c.Param("id")).Msg("push removal failed")
			softError(c, "could not remove push")
			return
		}
		softOK(c)
	}
}

// userRow merges the media server account with the local metadata row.
type userRow struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Admin      bool   `json:"admin"`
	Disabled   bool   `json:"disabled"`
	Hidden     bool   `json:"hidden"`
	LastSeen   string `json:"last_seen,omitempty"`
	ExpireDate string `json:"expire_date,omitempty"`
	Note       string `json:"note,omitempty"`
}

func handleUserList(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := opts.Emby.Users(c.Request.Context())
		if err != nil {
			opts.Log.Warn().Err(err).Msg("user list fetch failed")
			softError(c, "media server is unreachable")
			return
		}

		var metas []models.UserMetadata
		if err := opts.DB.Find(&metas).Error; err != nil {
			softError(c, "metadata query failed")
			return
		}
		byUser := make(map[string]models.UserMetadata, len(metas))
		for _, m := range metas {
			byUser[m.UserID] = m
		}

		rows := make([]userRow, 0, len(users))
		for _, u := range users {
			row := userRow{
				ID:       u.ID,
				Name:     u.Name,
				Admin:    u.Policy.IsAdministrator,
				Disabled: u.Policy.IsDisabled,
				Hidden:   u.Policy.IsHidden,
				LastSeen: u.LastSeen,
			}
			if m, ok := byUser[u.ID]; ok {
				row.ExpireDate = m.ExpireDate
				row.Note = m.Note
			}
			rows = append(rows, row)
		}
		c.JSON(http.StatusOK, rows)
	}
}

func handleUserMetaPut(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			ExpireDate string `json:"expire_date"`
			Note       string `json:"note"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			softError(c, "invalid metadata payload")
			return
		}
		if req.ExpireDate != "" {
			if _, err := time.Parse("2006-01-02", req.ExpireDate); err != nil {
				softError(c, "expire_date must be YYYY-MM-DD")
				return
			}
		}
		meta := models.UserMetadata{
			UserID:     c.Param("userID"),
			ExpireDate: req.ExpireDate,
			Note:       req.Note,
		}
		if err := db.UpsertUserMetadata(opts.DB, meta); err != nil {
			opts.Log.Error().Err(err).Str("user", meta.UserID).Msg("metadata upsert failed")
			softError(c, "could not save metadata")
			return
		}
		softOK(c)
	}
}

func handleUserMetaDelete(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.DeleteUserMetadata(opts.DB, c.Param("userID")); err != nil {
			softError(c, "could not delete metadata")
			return
		}
		softOK(c)
	}
}

func handleUserDisabled(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Disabled bool `json:"disabled"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			softError(c, "invalid payload")
			return
		}
		if err := opts.Emby.SetUserDisabled(c.Request.Context(), c.Param("userID"), req.Disabled); err != nil {
			opts.Log.Warn().Err(err).Str("user", c.Param("userID")).Msg("policy update failed")
			softError(c, "media server rejected the policy update")
			return
		}
		softOK(c)
	}
}

func handleUserDelete(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userID")
		if err := opts.Emby.DeleteUser(c.Request.Context(), userID); err != nil {
			opts.Log.Warn().Err(err).Str("user", userID).Msg("user deletion failed")
			softError(c, "media server rejected the deletion")
			return
		}
		// Local metadata goes with the account.
		if err := db.DeleteUserMetadata(opts.DB, userID); err != nil {
			opts.Log.Warn().Err(err).Str("user", userID).Msg("metadata cleanup failed")
		}
		softOK(c)
	}
}

func handleTaskList(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		tasks, err := opts.Emby.Tasks(c.Request.Context())
		if err != nil {
			softError(c, "media server is unreachable")
			return
		}
		c.JSON(http.StatusOK, tasks)
	}
}

func handleTaskRun(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := opts.Emby.RunTask(c.Request.Context(), c.Param("taskID")); err != nil {
			opts.Log.Warn().Err(err).Str("task", c.Param("taskID")).Msg("task trigger failed")
			softError(c, "media server rejected the task trigger")
			return
		}
		softOK(c)
	}
}

// statsQuery builds a hidden-user-aware query from current settings.
func statsQuery(opts StartOpts) *stats.Query {
	return stats.NewQuery(opts.DB, opts.Store.Snapshot().HiddenUsers)
}

func intQuery(c *gin.Context, name string, def int) int {
	if v, err := strconv.Atoi(c.Query(name)); err == nil && v > 0 {
		return v
	}
	return def
}

func handleStatsDays(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := statsQuery(opts).PlaysPerDay(intQuery(c, "days", 14))
		if err != nil {
			softError(c, "stats query failed")
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}

func handleStatsUsers(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := statsQuery(opts).TopUsers(intQuery(c, "days", 14), intQuery(c, "limit", 10))
		if err != nil {
			softError(c, "stats query failed")
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}

func handleStatsItems(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := statsQuery(opts).TopItems(intQuery(c, "days", 14), intQuery(c, "limit", 10))
		if err != nil {
			softError(c, "stats query failed")
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}

func handleStatsRecent(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := statsQuery(opts).Recent(intQuery(c, "limit", 20))
		if err != nil {
			softError(c, "stats query failed")
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}

func handleStatsUser(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := statsQuery(opts).UserActivity(c.Param("userID"), intQuery(c, "days", 14))
		if err != nil {
			softError(c, "stats query failed")
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}
