package relay

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

const (
	// embedColor matches the blue the bot has always used.
	embedColor = 0x3498DB

	radioFieldName = "The radio crackles to life and you hear a voice...:"

	// emptyMessage stands in for content Discord delivered empty, e.g. an
	// attachment-only message.
	emptyMessage = "(Empty message)"
)

// PublicEmbed renders the anonymized radio repost.
func PublicEmbed(content, footer string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Color: embedColor,
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:   radioFieldName,
				Value:  normalizeContent(content),
				Inline: false,
			},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: footer},
	}
}

// AdminEmbed renders the admin log copy, carrying the author's identity.
func AdminEmbed(authorTag, authorID, content, footer string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Color: embedColor,
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:   fmt.Sprintf("User: %s ID: %s | Sent a radio message:", authorTag, authorID),
				Value:  normalizeContent(content),
				Inline: false,
			},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: footer},
	}
}

func normalizeContent(content string) string {
	if content == "" {
		return emptyMessage
	}
	return content
}
