package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/horizon-devs/warden/automod/engine"
	"github.com/horizon-devs/warden/automod/event"

	"github.com/bwmarrin/discordgo"
)

// Feeds Discord gateway events in to the engine: every guild message is activity, and 👍/👎 reactions are votes.
type Consumer struct {
	Engine  *engine.Engine
	Actions *Actions
	Logger  *slog.Logger
	// When set, only reactions in this channel count as votes, and new messages there get the vote reactions seeded. When empty, reactions in every channel count.
	VoteChannel string
	// Reactions from this user (the bot itself) are ignored. Filled in from the session on Ready if empty.
	BotUserID string

	readyUserID atomic.Pointer[string]
}

func (c *Consumer) botUserID() string {
	if c.BotUserID != "" {
		return c.BotUserID
	}
	if id := c.readyUserID.Load(); id != nil {
		return *id
	}
	return ""
}

// Registers gateway handlers, opens the session, and blocks until the context is cancelled.
func (c *Consumer) Run(ctx context.Context, sess *discordgo.Session) error {
	if c.Engine == nil {
		return fmt.Errorf("nil engine")
	}
	sess.Identify.Intents = Intents
	sess.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		if r.User == nil {
			return
		}
		id := r.User.ID
		c.readyUserID.Store(&id)
		c.Logger.Info("discord gateway ready", "user", r.User.Username, "guilds", len(r.Guilds))
	})
	sess.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		c.HandleMessage(ctx, m.Message)
	})
	sess.AddHandler(func(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
		c.HandleReaction(ctx, r.MessageReaction, true)
	})
	sess.AddHandler(func(s *discordgo.Session, r *discordgo.MessageReactionRemove) {
		c.HandleReaction(ctx, r.MessageReaction, false)
	})

	if err := sess.Open(); err != nil {
		return fmt.Errorf("opening discord gateway: %w", err)
	}
	c.Logger.Info("subscribed to discord gateway")
	<-ctx.Done()
	c.Logger.Info("closing discord gateway")
	return sess.Close()
}

func (c *Consumer) HandleMessage(ctx context.Context, msg *discordgo.Message) {
	gatewayEvents.WithLabelValues("message").Inc()
	// DMs and bot messages (including our own notices) are not moderated
	if msg == nil || msg.GuildID == "" || msg.Author == nil || msg.Author.Bot {
		return
	}
	ref := event.MessageRef{Community: msg.GuildID, Channel: msg.ChannelID, Message: msg.ID}
	evt := event.ActivityEvent{
		Actor:   event.ActorKey{Community: msg.GuildID, User: msg.Author.ID},
		Text:    msg.Content,
		Message: &ref,
	}
	res, err := c.Engine.OnActivityEvent(ctx, evt)
	if err != nil {
		c.Logger.Error("processing message failed", "guild", msg.GuildID, "channel", msg.ChannelID, "message", msg.ID, "err", err)
		return
	}

	if c.VoteChannel != "" && msg.ChannelID == c.VoteChannel && !res.Removed && c.Actions != nil {
		if err := c.Actions.SeedVoteReactions(ctx, ref); err != nil {
			c.Logger.Warn("failed to seed vote reactions", "message", msg.ID, "err", err)
		}
	}
}

// Treats an added 👍/👎 reaction as a vote and a removed one as a retraction.
func (c *Consumer) HandleReaction(ctx context.Context, r *discordgo.MessageReaction, added bool) {
	if added {
		gatewayEvents.WithLabelValues("reaction-add").Inc()
	} else {
		gatewayEvents.WithLabelValues("reaction-remove").Inc()
	}
	if r == nil || r.GuildID == "" || r.UserID == "" || r.UserID == c.botUserID() {
		return
	}
	if c.VoteChannel != "" && r.ChannelID != c.VoteChannel {
		return
	}
	dir, ok := directionForEmoji(r.Emoji.Name)
	if !ok {
		return
	}

	vote := event.VoteEvent{
		Content:   ContentIDFor(r.GuildID, r.ChannelID, r.MessageID),
		Voter:     r.UserID,
		Direction: dir,
	}
	logger := c.Logger.With("content", vote.Content, "voter", vote.Voter, "direction", dir.String())
	if added {
		res, err := c.Engine.OnVote(ctx, vote)
		if err != nil {
			logger.Error("processing vote failed", "err", err)
			return
		}
		logger.Debug("vote recorded", "up", res.Tally.Up, "down", res.Tally.Down, "promoted", res.Promoted)
		return
	}
	if _, err := c.Engine.OnVoteRetract(ctx, vote); err != nil {
		logger.Error("processing vote retraction failed", "err", err)
	}
}
