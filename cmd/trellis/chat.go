package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/verdia/trellis/internal/cache"
	"github.com/verdia/trellis/internal/config"
	"github.com/verdia/trellis/internal/models"
	"github.com/verdia/trellis/internal/notify"
	"github.com/verdia/trellis/internal/notify/discord"
	"github.com/verdia/trellis/internal/notify/slack"
	"github.com/verdia/trellis/internal/realtime"
	"github.com/verdia/trellis/internal/store"
)

func newChatCmd() *cobra.Command {
	var (
		configPath string
		userID     string
		serverURL  string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open an interactive chat session against a running gateway",
		Long: `Connects to the Trellis gateway as the given user, resolves the
conversation with the configured expert, streams incoming messages, and
sends each line you type. Type /quit to exit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, configPath, userID, serverURL)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "trellis.yaml", "path to Trellis config file")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id to chat as (required)")
	cmd.Flags().StringVarP(&serverURL, "server", "s", "", "gateway base URL (overrides config)")
	cmd.MarkFlagRequired("user")
	return cmd
}

func runChat(cmd *cobra.Command, configPath, userID, serverURL string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if serverURL == "" {
		serverURL = cfg.Gateway.BaseURL
	}

	notifier, err := buildNotifier(cfg)
	if err != nil {
		return err
	}

	client := store.NewClient(serverURL, nil)
	engine, err := realtime.NewEngine(realtime.EngineOpts{
		Store:       client,
		Transport:   realtime.NewWSTransport(serverURL, nil),
		Invalidator: cache.NewInvalidator(cache.NewMemory()),
		ExpertID:    cfg.ExpertID,
		Intake:      client,
		Notifier:    notifier,
		RetryDelay:  cfg.Engine.RetryDelay(),
		Out:         out,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer engine.Reset()

	if err := engine.Start(ctx, userID); err != nil {
		return err
	}

	go printIncoming(ctx, engine, userID, out)

	fmt.Fprintln(out, "Connected. Type a message and press enter; /quit to exit.")
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return nil
		case line == "/status":
			fmt.Fprintf(out, "conversation=%s connected=%v messages=%d\n",
				engine.ConversationID(), engine.Connected(), len(engine.Messages()))
			continue
		}
		if _, err := engine.Send(ctx, "", line, ""); err != nil {
			fmt.Fprintf(out, "send failed: %v\n", err)
		}
	}
	return scanner.Err()
}

// printIncoming polls the engine transcript and prints messages from the
// other participant as they arrive.
func printIncoming(ctx context.Context, engine *realtime.Engine, userID string, out io.Writer) {
	seen := make(map[string]struct{})
	for _, m := range engine.Messages() {
		seen[m.ID] = struct{}{}
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, m := range engine.Messages() {
				if _, ok := seen[m.ID]; ok {
					continue
				}
				seen[m.ID] = struct{}{}
				if m.SenderID == userID {
					continue
				}
				fmt.Fprintf(out, "[%s] %s: %s\n",
					m.SentAt.Local().Format("15:04"), m.SenderID, messageLine(m))
			}
		}
	}
}

func messageLine(m models.Message) string {
	if m.Body != "" {
		return m.Body
	}
	if m.AttachmentURL != "" {
		return "[attachment] " + m.AttachmentURL
	}
	return ""
}

// buildNotifier wires the configured expert notification channel, if any.
func buildNotifier(cfg *config.Config) (notify.Notifier, error) {
	if cfg.Notify.Slack.Enabled {
		return slack.New(slack.Opts{
			BotToken:  cfg.Notify.Slack.BotToken,
			ChannelID: cfg.Notify.Slack.ChannelID,
		})
	}
	if cfg.Notify.Discord.Enabled {
		return discord.New(discord.Opts{
			BotToken:  cfg.Notify.Discord.BotToken,
			ChannelID: cfg.Notify.Discord.ChannelID,
		})
	}
	return nil, nil
}
