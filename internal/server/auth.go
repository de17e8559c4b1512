package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/embywatch/embywatch/internal/config"
	"github.com/gin-gonic/gin"
)

const (
	sessionCookie = "embywatch_session"
	sessionTTL    = 24 * time.Hour
)

// signSession produces "expiry.hmac" where the HMAC is keyed on the admin
// password. Changing the password invalidates every outstanding session.
func signSession(password string, expiry time.Time) string {
	ts := strconv.FormatInt(expiry.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(password))
	mac.Write([]byte(ts))
	return ts + "." + hex.EncodeToString(mac.Sum(nil))
}

// verifySession checks the cookie signature and expiry.
func verifySession(password, value string) bool {
	if password == "" {
		return false
	}
	ts, sig, ok := strings.Cut(value, ".")
	if !ok {
		return false
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || time.Now().Unix() > unix {
		return false
	}
	mac := hmac.New(sha256.New, []byte(password))
	mac.Write([]byte(ts))
	want := hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(sig), []byte(want)) == 1
}

// handleLogin exchanges the admin password for a signed session cookie.
func handleLogin(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Password string `json:"password"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			softError(c, "invalid request body")
			return
		}
		cfg := opts.Store.Snapshot()
		if cfg.Admin.Password == "" {
			softError(c, "admin password is not configured")
			return
		}
		if subtle.ConstantTimeCompare([]byte(req.Password), []byte(cfg.Admin.Password)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "message": "wrong password"})
			return
		}
		expiry := time.Now().Add(sessionTTL)
		c.SetCookie(sessionCookie, signSession(cfg.Admin.Password, expiry),
			int(sessionTTL.Seconds()), "/", "", false, true)
		softOK(c)
	}
}

// requireSession rejects requests without a valid session cookie.
func requireSession(store *config.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		value, err := c.Cookie(sessionCookie)
		if err != nil || !verifySession(store.Snapshot().Admin.Password, value) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status":  "error",
				"message": "authentication required",
			})
			return
		}
		c.Next()
	}
}

// sessionCookieFor builds a valid cookie value, used by tests.
func sessionCookieFor(password string) string {
	return signSession(password, time.Now().Add(time.Hour))
}
