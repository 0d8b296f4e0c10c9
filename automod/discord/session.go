package discord

import (
	"fmt"
	"strings"
	"time"

	"github.com/horizon-devs/warden/automod/event"

	"github.com/bwmarrin/discordgo"
)

// The subset of *discordgo.Session used by this package.
type Session interface {
	GuildMemberTimeout(guildID, userID string, until *time.Time, options ...discordgo.RequestOption) error
	GuildBanCreateWithReason(guildID, userID, reason string, days int, options ...discordgo.RequestOption) error
	GuildBanDelete(guildID, userID string, options ...discordgo.RequestOption) error
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error
}

var _ Session = (*discordgo.Session)(nil)

const (
	EmojiUp   = "👍"
	EmojiDown = "👎"
)

// Gateway intents needed by Consumer.
const Intents = discordgo.IntentGuildMessages | discordgo.IntentGuildMessageReactions | discordgo.IntentMessageContent

// Content IDs are "guild/channel/message", so a promoted message can be fetched and linked.
func ContentIDFor(guildID, channelID, messageID string) event.ContentID {
	return event.ContentID(guildID + "/" + channelID + "/" + messageID)
}

func ParseContentID(id event.ContentID) (event.MessageRef, error) {
	parts := strings.Split(string(id), "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return event.MessageRef{}, fmt.Errorf("invalid discord content id: %q", id)
	}
	return event.MessageRef{Community: parts[0], Channel: parts[1], Message: parts[2]}, nil
}

func messageURL(ref event.MessageRef) string {
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", ref.Community, ref.Channel, ref.Message)
}

func directionForEmoji(name string) (event.Direction, bool) {
	switch name {
	case EmojiUp:
		return event.Up, true
	case EmojiDown:
		return event.Down, true
	default:
		return 0, false
	}
}
