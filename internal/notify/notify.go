// Package notify pings the expert out-of-band when a user writes into a
// conversation. Delivery is best-effort: the sync engine logs failures and
// never blocks a send on them.
package notify

import (
	"context"

	"github.com/verdia/trellis/internal/models"
)

// Notifier is told about messages a client successfully wrote.
type Notifier interface {
	MessagePosted(ctx context.Context, msg models.Message) error
}

// Noop discards all notifications.
type Noop struct{}

// MessagePosted implements Notifier.
func (Noop) MessagePosted(ctx context.Context, msg models.Message) error { return nil }

// Preview renders a short notification line for a message.
func Preview(msg models.Message, max int) string {
	text := msg.Body
	if text == "" && msg.AttachmentURL != "" {
		text = "[attachment]"
	}
	if max > 0 && len(text) > max {
		text = text[:max] + "…"
	}
	return text
}
