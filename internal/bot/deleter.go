package bot

import (
	"context"
	"errors"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"github.com/resurgence-rp/radiorelay/internal/schedule"
)

// Deleter performs the scheduled repost deletions, translating Discord API
// errors into the scheduler's outcome taxonomy.
type Deleter struct {
	session *discordgo.Session
}

// NewDeleter creates a deleter on the bot's session.
func NewDeleter(b *Bot) *Deleter {
	return &Deleter{session: b.session}
}

// DeleteMessage deletes one message and classifies any failure. Unknown
// errors come back unwrapped and default to transient upstream.
func (d *Deleter) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	err := d.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx))
	if err == nil {
		return nil
	}
	return classify(err)
}

func classify(err error) error {
	var rateErr *discordgo.RateLimitError
	if errors.As(err, &rateErr) {
		return &schedule.TransientError{
			Reason:     "rate limited",
			RetryAfter: rateErr.RetryAfter,
			Err:        err,
		}
	}

	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) {
		if restErr.Message != nil {
			switch restErr.Message.Code {
			case discordgo.ErrCodeUnknownMessage, discordgo.ErrCodeUnknownChannel:
				// Already gone: the end state we wanted.
				return &schedule.PermanentError{Reason: "message already gone", Benign: true, Err: err}
			case discordgo.ErrCodeMissingAccess, discordgo.ErrCodeMissingPermissions:
				return &schedule.PermanentError{Reason: "permission denied", Err: err}
			}
		}
		if restErr.Response != nil {
			switch {
			case restErr.Response.StatusCode == http.StatusNotFound:
				return &schedule.PermanentError{Reason: "message already gone", Benign: true, Err: err}
			case restErr.Response.StatusCode == http.StatusForbidden:
				return &schedule.PermanentError{Reason: "permission denied", Err: err}
			case restErr.Response.StatusCode >= 500:
				return &schedule.TransientError{Reason: "server error", Err: err}
			}
		}
		return &schedule.TransientError{Reason: "api error", Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &schedule.TransientError{Reason: "timeout", Err: err}
	}

	// Dropped connections, DNS failures and the rest of the network error
	// zoo land here.
	return &schedule.TransientError{Reason: "network error", Err: err}
}
