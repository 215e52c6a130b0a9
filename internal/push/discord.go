package push

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// DiscordSender posts the payload as a channel message. Endpoint.Address is
// the channel id. Only the REST API is used; no gateway connection is opened.
type DiscordSender struct {
	session *discordgo.Session
}

// NewDiscordSender creates a sender authenticated as a bot.
func NewDiscordSender(token string) (*DiscordSender, error) {
	if token == "" {
		return nil, fmt.Errorf("discord token is required")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	return &DiscordSender{session: s}, nil
}

// Send implements Transport.
func (d *DiscordSender) Send(ctx context.Context, ep Endpoint, p Payload) error {
	_, err := d.session.ChannelMessageSendComplex(ep.Address, discordMessage(p), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord channel %s: %w", ep.Address, err)
	}
	return nil
}

func discordMessage(p Payload) *discordgo.MessageSend {
	embed := &discordgo.MessageEmbed{
		Title:       p.Title,
		Description: p.Body,
		Footer:      &discordgo.MessageEmbedFooter{Text: "episode " + p.Data.EpisodeID},
	}
	for _, a := range p.Actions {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   a.Title,
			Value:  "`" + a.Action + "`",
			Inline: true,
		})
	}
	return &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}}
}
