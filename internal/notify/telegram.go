package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Telegram delivery. Sends are sequential with a pause between messages to
// stay under the Bot API flood limits. A failed send is logged and dropped,
// it never aborts the surrounding scan.
// ---------------------------------------------------------------------------

const defaultAPIBase = "https://api.telegram.org"

// Config configures the Telegram client.
type Config struct {
	APIBase     string // override for tests
	BotToken    string
	ChatID      string
	SendPauseMs int
	Timeout     time.Duration
}

// Button is one inline keyboard button linking out to an external page.
type Button struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// Client posts messages to the Telegram Bot API.
type Client struct {
	config     Config
	httpClient *http.Client

	sentCount   atomic.Int64
	failedCount atomic.Int64
	lastSend    atomic.Int64 // unix nano of last successful request
}

// NewClient creates a Telegram client.
func NewClient(config Config) *Client {
	if config.APIBase == "" {
		config.APIBase = defaultAPIBase
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

type sendMessageRequest struct {
	ChatID                string       `json:"chat_id"`
	Text                  string       `json:"text"`
	ParseMode             string       `json:"parse_mode"`
	DisableWebPagePreview bool         `json:"disable_web_page_preview"`
	ReplyMarkup           *replyMarkup `json:"reply_markup,omitempty"`
}

type replyMarkup struct {
	InlineKeyboard [][]Button `json:"inline_keyboard"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// SendMessage posts one Markdown message to the configured alert chat,
// optionally with inline keyboard rows, then applies the configured pause.
// Errors are returned so callers can count them, but the policy everywhere
// is log-and-continue.
func (c *Client) SendMessage(ctx context.Context, text string, buttons [][]Button) error {
	return c.SendTo(ctx, c.config.ChatID, text, buttons)
}

// SendTo posts to an explicit chat instead of the configured one. Command
// replies go back to the chat the command came from.
func (c *Client) SendTo(ctx context.Context, chatID, text string, buttons [][]Button) error {
	payload := sendMessageRequest{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             "Markdown",
		DisableWebPagePreview: true,
	}
	if len(buttons) > 0 {
		payload.ReplyMarkup = &replyMarkup{InlineKeyboard: buttons}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		c.failedCount.Add(1)
		return fmt.Errorf("telegram: marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.config.APIBase, c.config.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		c.failedCount.Add(1)
		return fmt.Errorf("telegram: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.failedCount.Add(1)
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	var parsed sendMessageResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil || !parsed.OK {
		c.failedCount.Add(1)
		if parsed.Description != "" {
			return fmt.Errorf("telegram: api rejected message (status %d): %s", resp.StatusCode, parsed.Description)
		}
		return fmt.Errorf("telegram: api rejected message (status %d)", resp.StatusCode)
	}

	c.sentCount.Add(1)
	c.lastSend.Store(time.Now().UnixNano())

	if c.config.SendPauseMs > 0 {
		select {
		case <-time.After(time.Duration(c.config.SendPauseMs) * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Notify sends and logs a failure instead of propagating it.
func (c *Client) Notify(ctx context.Context, text string, buttons [][]Button) {
	if err := c.SendMessage(ctx, text, buttons); err != nil {
		log.Error().Err(err).Msg("[NOTIFY] Telegram send failed, message dropped")
	}
}

// NotifyTo is Notify with an explicit destination chat.
func (c *Client) NotifyTo(ctx context.Context, chatID, text string, buttons [][]Button) {
	if err := c.SendTo(ctx, chatID, text, buttons); err != nil {
		log.Error().Err(err).Str("chat_id", chatID).Msg("[NOTIFY] Telegram send failed, message dropped")
	}
}

// ClientStats holds delivery counters.
type ClientStats struct {
	Sent   int64 `json:"sent"`
	Failed int64 `json:"failed"`
}

func (c *Client) Stats() ClientStats {
	return ClientStats{
		Sent:   c.sentCount.Load(),
		Failed: c.failedCount.Load(),
	}
}
