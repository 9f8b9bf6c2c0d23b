package webhook

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradwatch-trading/gradwatch/internal/engine"
	"github.com/gradwatch-trading/gradwatch/internal/notify"
	"github.com/gradwatch-trading/gradwatch/internal/scheduler"
	"github.com/gradwatch-trading/gradwatch/internal/state"
	"github.com/gradwatch-trading/gradwatch/internal/wallets"
)

type sentMessage struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type webhookFixture struct {
	server *Server
	store  *state.Store
	sent   chan sentMessage
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	f := &webhookFixture{sent: make(chan sentMessage, 8)}

	telegramSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload sentMessage
		_ = json.NewDecoder(r.Body).Decode(&payload)
		f.sent <- payload
		w.Write([]byte(`{"ok": true}`))
	}))
	t.Cleanup(telegramSrv.Close)

	f.store = state.New(t.TempDir())
	walletTracker := wallets.NewTracker(wallets.DefaultConfig(), f.store)
	eng := engine.New(engine.Config{}, engine.Clients{}, f.store, walletTracker)

	client := notify.NewClient(notify.Config{APIBase: telegramSrv.URL, BotToken: "t", ChatID: "c"})
	notifier := notify.NewNotifier(client, notify.Formatter{})

	sched := scheduler.New(scheduler.DefaultConfig(), eng, f.store, notifier, nil)

	f.server = New(Config{
		Port:          0,
		AdminUsername: "admin_user",
		AdminChatID:   "424242",
		TopGainers:    3,
	}, Deps{
		Scheduler: sched,
		Engine:    eng,
		Store:     f.store,
		Notifier:  notifier,
		ExtraStats: map[string]func() any{
			"custom": func() any { return map[string]int{"x": 1} },
		},
	})
	return f
}

func (f *webhookFixture) postUpdate(t *testing.T, username string, chatID int64, text string) *httptest.ResponseRecorder {
	t.Helper()
	body := fmt.Sprintf(`{"message": {"text": %q, "chat": {"id": %d}, "from": {"username": %q}}}`,
		text, chatID, username)
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *webhookFixture) awaitSent(t *testing.T) sentMessage {
	t.Helper()
	select {
	case msg := <-f.sent:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no telegram message delivered")
		return sentMessage{}
	}
}

func (f *webhookFixture) awaitText(t *testing.T) string {
	t.Helper()
	return f.awaitSent(t).Text
}

func TestWebhook_StatusCommand(t *testing.T) {
	f := newWebhookFixture(t)

	rec := f.postUpdate(t, "admin_user", 1, "/status")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	text := f.awaitText(t)
	assert.Contains(t, text, "*STATUS*")
	assert.Equal(t, int64(1), f.server.Stats().CommandsRun)
}

func TestWebhook_TopCommand(t *testing.T) {
	f := newWebhookFixture(t)
	f.store.MarkSeen("A1")
	f.store.Track("A1", "MOON", decimal.NewFromInt(70_000))
	f.store.UpdateValuation("A1", decimal.NewFromInt(150_000))

	f.postUpdate(t, "admin_user", 1, "/top")
	text := f.awaitText(t)
	assert.Contains(t, text, "$MOON")
	assert.Contains(t, text, "+$80,000")
}

func TestWebhook_ScanEnqueues(t *testing.T) {
	f := newWebhookFixture(t)

	f.postUpdate(t, "admin_user", 1, "/scan")
	assert.Equal(t, "Scan scheduled.", f.awaitText(t))

	// The loop is not running, so the slot stays occupied.
	f.postUpdate(t, "admin_user", 1, "/scan")
	assert.Equal(t, "A scan is already pending.", f.awaitText(t))
}

func TestWebhook_AdminByChatID(t *testing.T) {
	f := newWebhookFixture(t)

	f.postUpdate(t, "someone_else", 424242, "/help")
	assert.Contains(t, f.awaitText(t), "/scan")
	assert.Equal(t, int64(0), f.server.Stats().Rejected)
}

func TestWebhook_BotSuffixStripped(t *testing.T) {
	f := newWebhookFixture(t)

	f.postUpdate(t, "admin_user", 1, "/help@gradwatch_bot")
	assert.Contains(t, f.awaitText(t), "*COMMANDS*")
}

func TestWebhook_UnauthorizedRejected(t *testing.T) {
	f := newWebhookFixture(t)

	rec := f.postUpdate(t, "stranger", 999, "/scan")
	assert.Equal(t, http.StatusOK, rec.Code)

	// The rejection goes to the sender's chat, not the alert channel.
	msg := f.awaitSent(t)
	assert.Contains(t, msg.Text, "Not authorized")
	assert.Equal(t, "999", msg.ChatID)

	stats := f.server.Stats()
	assert.Equal(t, int64(1), stats.Rejected)
	assert.Equal(t, int64(0), stats.CommandsRun)
}

func TestWebhook_ReplyTargetsSenderChat(t *testing.T) {
	f := newWebhookFixture(t)

	f.postUpdate(t, "admin_user", 31337, "/status")
	msg := f.awaitSent(t)
	assert.Contains(t, msg.Text, "*STATUS*")
	assert.Equal(t, "31337", msg.ChatID)
}

func TestWebhook_UnknownCommandFallback(t *testing.T) {
	f := newWebhookFixture(t)

	f.postUpdate(t, "admin_user", 1, "/frobnicate")
	assert.Contains(t, f.awaitText(t), "Unknown command")
	assert.Equal(t, int64(0), f.server.Stats().CommandsRun)
}

func TestWebhook_MalformedBodyAcked(t *testing.T) {
	f := newWebhookFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
	select {
	case msg := <-f.sent:
		t.Fatalf("unexpected telegram message: %s", msg.Text)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWebhook_EmptyTextAcked(t *testing.T) {
	f := newWebhookFixture(t)

	rec := f.postUpdate(t, "admin_user", 1, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(0), f.server.Stats().UpdatesHandled)
}

func TestWebhook_MethodGuard(t *testing.T) {
	f := newWebhookFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/webhook", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	f := newWebhookFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &parsed))
	assert.Equal(t, "ok", parsed["status"])
}

func TestStatsEndpoint(t *testing.T) {
	f := newWebhookFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &parsed))
	for _, key := range []string{"engine", "scheduler", "telegram", "store", "webhook", "custom"} {
		assert.Contains(t, parsed, key)
	}
}
