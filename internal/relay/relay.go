// Package relay implements the repost pipeline: an inbound radio-channel
// message becomes an anonymized public embed plus an identified admin copy,
// and the public repost is scheduled for deletion after the retention window.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/resurgence-rp/radiorelay/internal/schedule"
)

// Messenger is the slice of the chat platform the relay needs.
type Messenger interface {
	SendEmbed(channelID string, embed *discordgo.MessageEmbed) (messageID string, err error)
	DeleteMessage(channelID, messageID string) error
}

// Config contains relay configuration.
type Config struct {
	RadioChannelID string
	AdminChannelID string
	PublicFooter   string
	AdminFooter    string
	Retention      time.Duration
}

// Inbound is one user message received in the radio channel.
type Inbound struct {
	MessageID string
	ChannelID string
	AuthorID  string
	AuthorTag string
	Content   string
}

// Relay turns inbound radio messages into reposts.
type Relay struct {
	config    Config
	messenger Messenger
	store     schedule.Store
}

// New creates a relay.
func New(config Config, messenger Messenger, store schedule.Store) *Relay {
	return &Relay{
		config:    config,
		messenger: messenger,
		store:     store,
	}
}

// HandleMessage processes one inbound message. Failures never propagate to
// the platform event loop: a failed public repost is logged and dropped,
// leaving the original message in place.
func (r *Relay) HandleMessage(ctx context.Context, msg Inbound) {
	if msg.ChannelID != r.config.RadioChannelID {
		return
	}

	publicID, err := r.messenger.SendEmbed(
		r.config.RadioChannelID,
		PublicEmbed(msg.Content, r.config.PublicFooter),
	)
	if err != nil {
		slog.Error("failed to send radio repost",
			"channel_id", msg.ChannelID,
			"author_id", msg.AuthorID,
			"error", err,
		)
		return
	}

	// The repost replaces the original; removing it is what anonymizes the
	// channel. A failure here leaves a duplicate, not missing content.
	if err := r.messenger.DeleteMessage(msg.ChannelID, msg.MessageID); err != nil {
		slog.Warn("failed to delete original radio message",
			"message_id", msg.MessageID,
			"author_id", msg.AuthorID,
			"error", err,
		)
	}

	// The admin copy is never scheduled for deletion.
	_, err = r.messenger.SendEmbed(
		r.config.AdminChannelID,
		AdminEmbed(msg.AuthorTag, msg.AuthorID, msg.Content, r.config.AdminFooter),
	)
	if err != nil {
		slog.Error("failed to send admin copy",
			"message_id", publicID,
			"author_id", msg.AuthorID,
			"error", err,
		)
	}

	rec := schedule.NewPendingDeletion(publicID, r.config.RadioChannelID, time.Now().UTC(), r.config.Retention)
	if err := r.store.Insert(ctx, rec); err != nil {
		if errors.Is(err, schedule.ErrDuplicate) {
			slog.Warn("repost already scheduled for deletion", "message_id", publicID)
			return
		}
		// The repost exists but its deletion is not recorded. Loud log so
		// staff can remove it by hand.
		slog.Error("failed to schedule repost deletion",
			"message_id", publicID,
			"channel_id", r.config.RadioChannelID,
			"due_at", rec.DueAt,
			"error", err,
		)
		return
	}

	slog.Info("radio message relayed",
		"message_id", publicID,
		"author_id", msg.AuthorID,
		"due_at", rec.DueAt,
	)
}
