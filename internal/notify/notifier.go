package notify

import (
	"context"
	"time"

	"github.com/gradwatch-trading/gradwatch/internal/engine"
)

// Notifier bridges engine alerts to Telegram delivery.
type Notifier struct {
	client    *Client
	formatter Formatter
	timeout   time.Duration
}

// NewNotifier creates a notifier.
func NewNotifier(client *Client, formatter Formatter) *Notifier {
	return &Notifier{
		client:    client,
		formatter: formatter,
		timeout:   30 * time.Second,
	}
}

// OnAlert renders and delivers one alert. Matches the engine callback
// signature; delivery failures are logged inside the client.
func (n *Notifier) OnAlert(alert engine.Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	text, buttons := n.formatter.Alert(alert)
	n.client.Notify(ctx, text, buttons)
}

// Client exposes the underlying delivery client for stats reporting.
func (n *Notifier) Client() *Client { return n.client }

// Formatter exposes the template set for command replies.
func (n *Notifier) Formatter() Formatter { return n.formatter }
