package server

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/embywatch/embywatch/internal/emby"
	"github.com/gin-gonic/gin"
)

// nowPlayingEvent holds one active session for the SSE stream.
type nowPlayingEvent struct {
	SessionID string `json:"session_id"`
	UserName  string `json:"user_name"`
	ItemName  string `json:"item_name"`
	ItemID    string `json:"item_id"`
	Client    string `json:"client"`
	Device    string `json:"device"`
}

// handleSSE streams the now-playing session list. It polls the media
// server every 3 seconds and sends an event whenever the set of playing
// sessions changes, with 15-second heartbeats to keep proxies from
// closing the connection.
func handleSSE(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		writeSSE(c.Writer, "connected", map[string]string{"type": "connected"})
		c.Writer.Flush()

		if opts.Emby == nil {
			return
		}

		ctx := c.Request.Context()
		ticker := time.NewTicker(3 * time.Second)
		heartbeat := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		defer heartbeat.Stop()

		var lastKey string
		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				writeSSE(c.Writer, "heartbeat", map[string]string{
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
				c.Writer.Flush()
			case <-ticker.C:
				sessions, err := opts.Emby.Sessions(ctx)
				if err != nil {
					continue
				}
				events := playingEvents(sessions)
				key := playingKey(events)
				if key == lastKey {
					continue
				}
				lastKey = key
				writeSSE(c.Writer, "now_playing", events)
				c.Writer.Flush()
			}
		}
	}
}

// playingEvents filters to sessions with something playing.
func playingEvents(sessions []emby.Session) []nowPlayingEvent {
	events := make([]nowPlayingEvent, 0, len(sessions))
	for _, s := range sessions {
		if s.NowPlayingItem == nil {
			continue
		}
		events = append(events, nowPlayingEvent{
			SessionID: s.ID,
			UserName:  s.UserName,
			ItemName:  s.NowPlayingItem.Name,
			ItemID:    s.NowPlayingItem.ID,
			Client:    s.Client,
			Device:    s.DeviceName,
		})
	}
	return events
}

// playingKey builds a change-detection key from session and item ids.
func playingKey(events []nowPlayingEvent) string {
	key := ""
	for _, e := range events {
		key += e.SessionID + ":" + e.ItemID + ";"
	}
	return key
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
