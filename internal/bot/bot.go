// Package bot owns the Discord session: gateway lifecycle, the message
// handler bridge into the relay, the remote delete call for the scheduler
// and the staff escalation alerts.
package bot

import (
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/resurgence-rp/radiorelay/internal/config"
	"github.com/resurgence-rp/radiorelay/internal/relay"
)

// Bot wraps a Discord gateway session.
type Bot struct {
	session *discordgo.Session
	config  config.DiscordConfig
}

// New creates a bot session. Automatic rate-limit retries are disabled so
// 429 responses surface as classified errors and the scheduler can defer the
// record instead of blocking a cycle inside a sleep.
func New(cfg config.DiscordConfig) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent
	session.ShouldRetryOnRateLimit = false

	return &Bot{session: session, config: cfg}, nil
}

// OnMessage registers the relay against inbound messages. The bot's own
// messages (the reposts) and other bots are filtered here so the relay only
// ever sees user traffic.
func (b *Bot) OnMessage(handle func(relay.Inbound)) {
	b.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || m.Author.Bot {
			return
		}
		if s.State.User != nil && m.Author.ID == s.State.User.ID {
			return
		}

		handle(relay.Inbound{
			MessageID: m.ID,
			ChannelID: m.ChannelID,
			AuthorID:  m.Author.ID,
			AuthorTag: m.Author.String(),
			Content:   m.Content,
		})
	})
}

// Open connects to the gateway.
func (b *Bot) Open() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord connection: %w", err)
	}
	slog.Info("connected to discord", "user", b.session.State.User.String())
	return nil
}

// Close disconnects from the gateway.
func (b *Bot) Close() error {
	return b.session.Close()
}

// SendEmbed sends an embed and returns the new message's ID.
func (b *Bot) SendEmbed(channelID string, embed *discordgo.MessageEmbed) (string, error) {
	msg, err := b.session.ChannelMessageSendEmbed(channelID, embed)
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

// DeleteMessage deletes a message without outcome classification; the relay
// uses it for the original user message.
func (b *Bot) DeleteMessage(channelID, messageID string) error {
	return b.session.ChannelMessageDelete(channelID, messageID)
}
