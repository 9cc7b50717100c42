// Package discord posts expert notifications to a Discord channel.
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/verdia/trellis/internal/models"
	"github.com/verdia/trellis/internal/notify"
)

// session abstracts the discordgo.Session methods we use, enabling test
// mocks. Notification sends are plain REST calls; no gateway connection is
// opened.
type session interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Notifier posts one line per message into the expert's Discord channel.
type Notifier struct {
	sess      session
	channelID string
}

// Opts holds parameters for creating a Discord Notifier.
type Opts struct {
	BotToken  string // Discord bot token
	ChannelID string // channel the expert watches
	// For testing: inject a mock session instead of the real Discord API.
	Session session
}

// New creates a Discord Notifier.
func New(opts Opts) (*Notifier, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("discord: channel id is required")
	}
	n := &Notifier{sess: opts.Session, channelID: opts.ChannelID}
	if n.sess == nil {
		s, err := discordgo.New("Bot " + opts.BotToken)
		if err != nil {
			return nil, fmt.Errorf("discord: create session: %w", err)
		}
		n.sess = s
	}
	return n, nil
}

// MessagePosted implements notify.Notifier.
func (n *Notifier) MessagePosted(ctx context.Context, msg models.Message) error {
	text := fmt.Sprintf("New message from %s: %s", msg.SenderID, notify.Preview(msg, 140))
	if _, err := n.sess.ChannelMessageSend(n.channelID, text, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: send: %w", err)
	}
	return nil
}
