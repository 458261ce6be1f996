package bot

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/resurgence-rp/radiorelay/internal/schedule"
)

const alertColor = 0xE74C3C

// Notifier posts escalation alerts to the admin channel, pinging the staff
// role.
type Notifier struct {
	session        *discordgo.Session
	adminChannelID string
	staffRoleID    string
}

// NewNotifier creates an escalation notifier on the bot's session.
func NewNotifier(b *Bot) *Notifier {
	return &Notifier{
		session:        b.session,
		adminChannelID: b.config.AdminChannelID,
		staffRoleID:    b.config.StaffRoleID,
	}
}

// NotifyRecordFailed alerts staff that a repost could not be deleted and has
// been dropped from the schedule.
func (n *Notifier) NotifyRecordFailed(ctx context.Context, rec *schedule.PendingDeletion, reason string, cause error) error {
	embed := &discordgo.MessageEmbed{
		Title: "Radio repost deletion failed",
		Color: alertColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Message ID", Value: rec.MessageID, Inline: true},
			{Name: "Channel ID", Value: rec.ChannelID, Inline: true},
			{Name: "Attempts", Value: strconv.Itoa(rec.Attempts + 1), Inline: true},
			{Name: "Reason", Value: reason, Inline: false},
			{Name: "Error", Value: errorText(cause), Inline: false},
		},
		Description: "The record has been removed from the schedule; the message needs manual deletion.",
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	return n.send(ctx, embed)
}

// NotifyStorageDown alerts staff that the deletion schedule backend is
// unreachable and scheduling may have halted.
func (n *Notifier) NotifyStorageDown(ctx context.Context, cause error) error {
	embed := &discordgo.MessageEmbed{
		Title: "Deletion schedule storage unavailable",
		Color: alertColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Error", Value: errorText(cause), Inline: false},
		},
		Description: "Scheduled deletions are on hold until storage is back and the bot is restarted.",
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	return n.send(ctx, embed)
}

func (n *Notifier) send(ctx context.Context, embed *discordgo.MessageEmbed) error {
	_, err := n.session.ChannelMessageSendComplex(n.adminChannelID, &discordgo.MessageSend{
		Content: fmt.Sprintf("<@&%s>", n.staffRoleID),
		Embeds:  []*discordgo.MessageEmbed{embed},
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Roles: []string{n.staffRoleID},
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("send escalation alert: %w", err)
	}
	return nil
}

func errorText(err error) string {
	if err == nil {
		return "unknown"
	}
	text := err.Error()
	if len(text) > 900 {
		text = text[:900] + "…"
	}
	return text
}
