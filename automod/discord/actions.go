package discord

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/horizon-devs/warden/automod/engine"
	"github.com/horizon-devs/warden/automod/event"
	"github.com/horizon-devs/warden/automod/promote"
	"github.com/horizon-devs/warden/automod/schedule"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"
)

const starboardColor = 0xF1C40F

// Outbound engine capabilities, implemented with Discord REST calls.
type Actions struct {
	Session Session
	// Channel which promoted messages are posted to. When empty, promotion is only logged.
	StarboardChannel string
	// Throttles all outbound calls, on top of discordgo's own per-route handling of 429s.
	Limiter *rate.Limiter
	// Per-call timeout, including time spent waiting on Limiter. Zero means no timeout.
	Timeout time.Duration
	Logger  *slog.Logger
}

var (
	_ engine.Moderator = (*Actions)(nil)
	_ engine.Notifier  = (*Actions)(nil)
	_ promote.Promoter = (*Actions)(nil)
)

func NewActions(sess Session, starboardChannel string, logger *slog.Logger) *Actions {
	if logger == nil {
		logger = slog.Default()
	}
	return &Actions{
		Session:          sess,
		StarboardChannel: starboardChannel,
		Limiter:          rate.NewLimiter(rate.Limit(20), 5),
		Timeout:          10 * time.Second,
		Logger:           logger.With("component", "discord"),
	}
}

func (a *Actions) call(ctx context.Context, op string, fn func(opts ...discordgo.RequestOption) error) error {
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}
	start := time.Now()
	defer func() {
		apiCallDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	if a.Limiter != nil {
		if err := a.Limiter.Wait(ctx); err != nil {
			apiCalls.WithLabelValues(op, "throttled").Inc()
			return fmt.Errorf("discord %s: waiting on rate limit: %w", op, err)
		}
	}
	if err := fn(discordgo.WithContext(ctx)); err != nil {
		apiCalls.WithLabelValues(op, "error").Inc()
		return fmt.Errorf("discord %s: %w", op, err)
	}
	apiCalls.WithLabelValues(op, "ok").Inc()
	return nil
}

// Mute is a member timeout; ban is a guild ban (messages are kept).
func (a *Actions) ApplyTemporaryRestriction(ctx context.Context, actor event.ActorKey, kind schedule.RestrictionType, reason string, until time.Time) error {
	switch kind {
	case schedule.RestrictionMute:
		return a.call(ctx, "timeout", func(opts ...discordgo.RequestOption) error {
			return a.Session.GuildMemberTimeout(actor.Community, actor.User, &until, opts...)
		})
	case schedule.RestrictionBan:
		return a.call(ctx, "ban", func(opts ...discordgo.RequestOption) error {
			return a.Session.GuildBanCreateWithReason(actor.Community, actor.User, reason, 0, opts...)
		})
	default:
		return fmt.Errorf("unsupported restriction type: %q", kind)
	}
}

func (a *Actions) LiftRestriction(ctx context.Context, actor event.ActorKey, kind schedule.RestrictionType) error {
	switch kind {
	case schedule.RestrictionMute:
		return a.call(ctx, "untimeout", func(opts ...discordgo.RequestOption) error {
			return a.Session.GuildMemberTimeout(actor.Community, actor.User, nil, opts...)
		})
	case schedule.RestrictionBan:
		return a.call(ctx, "unban", func(opts ...discordgo.RequestOption) error {
			return a.Session.GuildBanDelete(actor.Community, actor.User, opts...)
		})
	default:
		return fmt.Errorf("unsupported restriction type: %q", kind)
	}
}

func (a *Actions) RemoveContent(ctx context.Context, ref event.MessageRef) error {
	return a.call(ctx, "delete-message", func(opts ...discordgo.RequestOption) error {
		return a.Session.ChannelMessageDelete(ref.Channel, ref.Message, opts...)
	})
}

func (a *Actions) DeliverReminder(ctx context.Context, requester event.ActorKey, destination, text string) error {
	msg := fmt.Sprintf("⏰ Reminder for <@%s>: %s", requester.User, text)
	return a.send(ctx, "reminder", destination, msg)
}

func (a *Actions) PostNotice(ctx context.Context, destination string, subject event.ActorKey, text string) error {
	msg := fmt.Sprintf("🛡️ <@%s> %s", subject.User, text)
	return a.send(ctx, "notice", destination, msg)
}

func (a *Actions) send(ctx context.Context, op, channelID, content string) error {
	return a.call(ctx, op, func(opts ...discordgo.RequestOption) error {
		_, err := a.Session.ChannelMessageSend(channelID, content, opts...)
		return err
	})
}

// Seeds the up and down vote reactions on a message.
func (a *Actions) SeedVoteReactions(ctx context.Context, ref event.MessageRef) error {
	for _, emoji := range []string{EmojiUp, EmojiDown} {
		err := a.call(ctx, "react", func(opts ...discordgo.RequestOption) error {
			return a.Session.MessageReactionAdd(ref.Channel, ref.Message, emoji, opts...)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Reposts the message to the starboard channel as an embed, linking back to the original.
func (a *Actions) PromoteContent(ctx context.Context, content event.ContentID, tally promote.Tally) error {
	ref, err := ParseContentID(content)
	if err != nil {
		return err
	}
	if a.StarboardChannel == "" {
		a.Logger.Info("no starboard channel configured, skipping promotion post", "content", content)
		return nil
	}

	var msg *discordgo.Message
	err = a.call(ctx, "fetch-message", func(opts ...discordgo.RequestOption) error {
		var err error
		msg, err = a.Session.ChannelMessage(ref.Channel, ref.Message, opts...)
		return err
	})
	if err != nil {
		return err
	}
	if msg.Author != nil && msg.Author.Bot {
		a.Logger.Info("not promoting bot-authored message", "content", content, "author", msg.Author.ID)
		return nil
	}

	embed := starboardEmbed(ref, msg, tally)
	return a.call(ctx, "starboard", func(opts ...discordgo.RequestOption) error {
		_, err := a.Session.ChannelMessageSendEmbed(a.StarboardChannel, embed, opts...)
		return err
	})
}

func starboardEmbed(ref event.MessageRef, msg *discordgo.Message, tally promote.Tally) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		URL:         messageURL(ref),
		Title:       "⭐ Community pick",
		Description: msg.Content,
		Color:       starboardColor,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("%s %d", EmojiUp, tally.Up),
		},
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Original", Value: fmt.Sprintf("[Jump to message](%s)", messageURL(ref))},
		},
	}
	if !msg.Timestamp.IsZero() {
		embed.Timestamp = msg.Timestamp.Format(time.RFC3339)
	}
	if msg.Author != nil {
		embed.Author = &discordgo.MessageEmbedAuthor{
			Name:    msg.Author.Username,
			IconURL: msg.Author.AvatarURL(""),
		}
	}
	if len(msg.Attachments) > 0 {
		embed.Image = &discordgo.MessageEmbedImage{URL: msg.Attachments[0].URL}
	}
	return embed
}
