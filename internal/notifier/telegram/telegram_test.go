package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/embywatch/embywatch/internal/config"
	"github.com/embywatch/embywatch/internal/notifier"
)

// botServer fakes the Telegram Bot API, recording calls per method.
type botServer struct {
	mu       sync.Mutex
	calls    map[string]int
	bodies   map[string][]string
	updates  []map[string]any
	photoErr bool
}

func newBotServer() *botServer {
	return &botServer{calls: map[string]int{}, bodies: map[string][]string{}}
}

func (b *botServer) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		method := parts[len(parts)-1]

		var body []byte
		if r.Body != nil {
			buf := make([]byte, 1<<16)
			n, _ := r.Body.Read(buf)
			body = buf[:n]
		}

		b.mu.Lock()
		b.calls[method]++
		b.bodies[method] = append(b.bodies[method], string(body))
		photoErr := b.photoErr
		updates := b.updates
		b.updates = nil
		b.mu.Unlock()

		switch method {
		case "getUpdates":
			json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": updates})
		case "sendPhoto":
			if photoErr {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"ok": true})
		default:
			json.NewEncoder(w).Encode(map[string]any{"ok": true})
		}
	})
}

func (b *botServer) count(method string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[method]
}

func (b *botServer) lastBody(method string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	bodies := b.bodies[method]
	if len(bodies) == 0 {
		return ""
	}
	return bodies[len(bodies)-1]
}

func newTestAdapter(t *testing.T, bot *botServer) *Adapter {
	t.Helper()
	srv := httptest.NewServer(bot.handler())
	t.Cleanup(srv.Close)
	store := config.NewStoreWith("", &config.Config{
		Telegram: config.TelegramConfig{Token: "12345:token", ChatID: "42"},
	})
	a, err := New(AdapterOpts{Store: store, BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return a
}

func TestConnect_RegistersCommands(t *testing.T) {
	bot := newBotServer()
	a := newTestAdapter(t, bot)

	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bot.count("setMyCommands") != 1 {
		t.Errorf("setMyCommands calls = %d, want 1", bot.count("setMyCommands"))
	}
}

func TestConnect_NoToken(t *testing.T) {
	a, err := New(AdapterOpts{Store: config.NewStoreWith("", nil)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := a.Connect(context.Background()); err == nil {
		t.Fatal("expected error without token")
	}
}

func TestListen_DeliversUpdatesAndAdvancesOffset(t *testing.T) {
	bot := newBotServer()
	bot.updates = []map[string]any{
		{
			"update_id": 7,
			"message": map[string]any{
				"chat": map[string]any{"id": 42},
				"from": map[string]any{"username": "alice"},
				"text": "/stats",
				"date": time.Now().Unix(),
			},
		},
	}
	a := newTestAdapter(t, bot)
	if err := a.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	inbound, err := a.Listen(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case msg := <-inbound:
		if msg.ChatID != "42" || msg.Text != "/stats" || msg.UserName != "alice" {
			t.Errorf("msg = %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no inbound message before deadline")
	}

	if a.offset != 8 {
		t.Errorf("offset = %d, want 8 (past the received update)", a.offset)
	}
}

func TestSend_Text(t *testing.T) {
	bot := newBotServer()
	a := newTestAdapter(t, bot)

	if err := a.Send(context.Background(), notifier.OutboundMessage{Text: "hello"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bot.count("sendMessage") != 1 {
		t.Fatalf("sendMessage calls = %d, want 1", bot.count("sendMessage"))
	}
	body := bot.lastBody("sendMessage")
	if !strings.Contains(body, `"chat_id":"42"`) {
		t.Errorf("body = %s, want default chat target", body)
	}
	if !strings.Contains(body, `"parse_mode":"Markdown"`) {
		t.Errorf("body = %s, want Markdown parse mode", body)
	}
}

func TestSend_PhotoByURL(t *testing.T) {
	bot := newBotServer()
	a := newTestAdapter(t, bot)

	err := a.Send(context.Background(), notifier.OutboundMessage{
		Text:     "caption",
		PhotoURL: "http://example.com/poster.jpg",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bot.count("sendPhoto") != 1 {
		t.Errorf("sendPhoto calls = %d, want 1", bot.count("sendPhoto"))
	}
	if bot.count("sendMessage") != 0 {
		t.Errorf("sendMessage calls = %d, want 0", bot.count("sendMessage"))
	}
}

func TestSend_PhotoUploadMultipart(t *testing.T) {
	bot := newBotServer()
	a := newTestAdapter(t, bot)

	err := a.Send(context.Background(), notifier.OutboundMessage{
		Text:      "caption",
		PhotoData: []byte{0xff, 0xd8, 0xff},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := bot.lastBody("sendPhoto")
	if !strings.Contains(body, "multipart") && !strings.Contains(body, "Content-Disposition") {
		t.Errorf("body does not look like multipart content: %q", body[:min(len(body), 100)])
	}
}

func TestSend_PhotoFailureFallsBackToText(t *testing.T) {
	bot := newBotServer()
	bot.photoErr = true
	a := newTestAdapter(t, bot)

	err := a.Send(context.Background(), notifier.OutboundMessage{
		Text:     "caption text",
		PhotoURL: "http://example.com/poster.jpg",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bot.count("sendPhoto") != 1 {
		t.Errorf("sendPhoto calls = %d, want 1", bot.count("sendPhoto"))
	}
	if bot.count("sendMessage") != 1 {
		t.Fatalf("sendMessage calls = %d, want 1 (fallback)", bot.count("sendMessage"))
	}
	if !strings.Contains(bot.lastBody("sendMessage"), "caption text") {
		t.Errorf("fallback body = %s, want original caption", bot.lastBody("sendMessage"))
	}
}

func TestSend_NoChatTarget(t *testing.T) {
	store := config.NewStoreWith("", &config.Config{
		Telegram: config.TelegramConfig{Token: "12345:token"},
	})
	a, err := New(AdapterOpts{Store: store})
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Send(context.Background(), notifier.OutboundMessage{Text: "x"}); err == nil {
		t.Fatal("expected error without chat target")
	}
}
