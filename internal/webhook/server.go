package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gradwatch-trading/gradwatch/internal/engine"
	"github.com/gradwatch-trading/gradwatch/internal/notify"
	"github.com/gradwatch-trading/gradwatch/internal/scheduler"
	"github.com/gradwatch-trading/gradwatch/internal/state"
)

// ---------------------------------------------------------------------------
// Command webhook. Inbound Telegram updates carry admin commands; everything
// else on the mux is operational (health, stats). The handler never mutates
// pipeline state directly: /scan only enqueues a request for the scheduler
// loop.
// ---------------------------------------------------------------------------

// Config configures the webhook server.
type Config struct {
	Port          int
	AdminUsername string // without the leading @
	AdminChatID   string
	TopGainers    int
}

// Deps are the components the command handlers read from.
type Deps struct {
	Scheduler *scheduler.Scheduler
	Engine    *engine.Engine
	Store     *state.Store
	Notifier  *notify.Notifier

	// ExtraStats adds component counters to GET /stats, keyed by name.
	ExtraStats map[string]func() any
}

// Server hosts the webhook and operational endpoints.
type Server struct {
	config Config
	deps   Deps

	httpServer *http.Server

	updatesHandled atomic.Int64
	commandsRun    atomic.Int64
	rejected       atomic.Int64
}

// New creates a webhook server.
func New(config Config, deps Deps) *Server {
	if config.TopGainers == 0 {
		config.TopGainers = 5
	}
	s := &Server{config: config, deps: deps}
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler builds the mux. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.handleWebhook)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)
	return mux
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", s.httpServer.Addr).Msg("[WEBHOOK] HTTP server started")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("[WEBHOOK] HTTP server error")
	}
}

// telegramUpdate is the subset of the Bot API update payload the command
// handler needs.
type telegramUpdate struct {
	Message struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		From struct {
			Username string `json:"username"`
		} `json:"from"`
	} `json:"message"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}

	// Telegram retries non-200 responses, so every parse outcome below
	// acknowledges the update.
	ack := func() {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":true}`)
	}

	var update telegramUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		log.Debug().Err(err).Msg("[WEBHOOK] Malformed update body")
		ack()
		return
	}

	text := strings.TrimSpace(update.Message.Text)
	if text == "" {
		ack()
		return
	}

	s.updatesHandled.Add(1)

	// Replies go back to the chat that carried the command, not to the
	// alert channel.
	senderChat := strconv.FormatInt(update.Message.Chat.ID, 10)

	if !s.isAdmin(update) {
		s.rejected.Add(1)
		log.Warn().
			Str("username", update.Message.From.Username).
			Int64("chat_id", update.Message.Chat.ID).
			Msg("[WEBHOOK] Unauthorized sender")
		s.reply(senderChat, s.deps.Notifier.Formatter().Unauthorized())
		ack()
		return
	}

	s.dispatch(senderChat, text)
	ack()
}

func (s *Server) isAdmin(update telegramUpdate) bool {
	if s.config.AdminUsername != "" &&
		strings.EqualFold(update.Message.From.Username, s.config.AdminUsername) {
		return true
	}
	if s.config.AdminChatID != "" &&
		strconv.FormatInt(update.Message.Chat.ID, 10) == s.config.AdminChatID {
		return true
	}
	return false
}

// dispatch routes one admin command. The command word may carry a @botname
// suffix when sent in a group.
func (s *Server) dispatch(chatID, text string) {
	word := strings.Fields(text)[0]
	if i := strings.Index(word, "@"); i > 0 {
		word = word[:i]
	}

	formatter := s.deps.Notifier.Formatter()

	switch word {
	case "/scan":
		s.commandsRun.Add(1)
		if s.deps.Scheduler.RequestScan() {
			s.reply(chatID, "Scan scheduled.")
		} else {
			s.reply(chatID, "A scan is already pending.")
		}
	case "/status":
		s.commandsRun.Add(1)
		s.reply(chatID, formatter.Status(s.deps.Store.Counts(), s.deps.Engine.Stats()))
	case "/top":
		s.commandsRun.Add(1)
		s.reply(chatID, formatter.Top(s.deps.Store.TopGainers(s.config.TopGainers)))
	case "/help":
		s.commandsRun.Add(1)
		s.reply(chatID, formatter.Help())
	default:
		s.reply(chatID, formatter.Unknown())
	}
}

func (s *Server) reply(chatID, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.deps.Notifier.Client().NotifyTo(ctx, chatID, text, nil)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"counts": s.deps.Store.Counts(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	combined := map[string]any{
		"engine":    s.deps.Engine.Stats(),
		"scheduler": s.deps.Scheduler.Stats(),
		"telegram":  s.deps.Notifier.Client().Stats(),
		"store":     s.deps.Store.Counts(),
		"webhook":   s.Stats(),
	}
	for name, fn := range s.deps.ExtraStats {
		combined[name] = fn()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(combined)
}

// Stats holds webhook counters.
type Stats struct {
	UpdatesHandled int64 `json:"updates_handled"`
	CommandsRun    int64 `json:"commands_run"`
	Rejected       int64 `json:"rejected"`
}

func (s *Server) Stats() Stats {
	return Stats{
		UpdatesHandled: s.updatesHandled.Load(),
		CommandsRun:    s.commandsRun.Load(),
		Rejected:       s.rejected.Load(),
	}
}
