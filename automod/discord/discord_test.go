package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/horizon-devs/warden/automod/engine"
	"github.com/horizon-devs/warden/automod/event"
	"github.com/horizon-devs/warden/automod/promote"
	"github.com/horizon-devs/warden/automod/schedule"
	"github.com/horizon-devs/warden/pkg/clock"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// records REST calls as short strings, eg "timeout guild1/user1"
type fakeSession struct {
	mu       sync.Mutex
	calls    []string
	embeds   []*discordgo.MessageEmbed
	messages map[string]*discordgo.Message
	err      error
}

var _ Session = (*fakeSession)(nil)

func newFakeSession() *fakeSession {
	return &fakeSession{messages: make(map[string]*discordgo.Message)}
}

func (f *fakeSession) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeSession) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.calls...)
}

func (f *fakeSession) GuildMemberTimeout(guildID, userID string, until *time.Time, options ...discordgo.RequestOption) error {
	if until == nil {
		return f.record(fmt.Sprintf("untimeout %s/%s", guildID, userID))
	}
	return f.record(fmt.Sprintf("timeout %s/%s until %s", guildID, userID, until.Format(time.RFC3339)))
}

func (f *fakeSession) GuildBanCreateWithReason(guildID, userID, reason string, days int, options ...discordgo.RequestOption) error {
	return f.record(fmt.Sprintf("ban %s/%s: %s", guildID, userID, reason))
}

func (f *fakeSession) GuildBanDelete(guildID, userID string, options ...discordgo.RequestOption) error {
	return f.record(fmt.Sprintf("unban %s/%s", guildID, userID))
}

func (f *fakeSession) ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	if err := f.record(fmt.Sprintf("fetch %s/%s", channelID, messageID)); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.messages[messageID]
	if !ok {
		return nil, errors.New("unknown message")
	}
	return msg, nil
}

func (f *fakeSession) ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error {
	return f.record(fmt.Sprintf("delete %s/%s", channelID, messageID))
}

func (f *fakeSession) ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	return &discordgo.Message{}, f.record(fmt.Sprintf("send %s: %s", channelID, content))
}

func (f *fakeSession) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	f.embeds = append(f.embeds, embed)
	f.mu.Unlock()
	return &discordgo.Message{}, f.record(fmt.Sprintf("embed %s", channelID))
}

func (f *fakeSession) MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error {
	return f.record(fmt.Sprintf("react %s/%s %s", channelID, messageID, emojiID))
}

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestActionsRestrictions(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	sess := newFakeSession()
	a := NewActions(sess, "", slog.Default())
	user := event.ActorKey{Community: "guild1", User: "user1"}

	assert.NoError(a.ApplyTemporaryRestriction(ctx, user, schedule.RestrictionMute, "spam", epoch))
	assert.NoError(a.LiftRestriction(ctx, user, schedule.RestrictionMute))
	assert.NoError(a.ApplyTemporaryRestriction(ctx, user, schedule.RestrictionBan, "raid", epoch))
	assert.NoError(a.LiftRestriction(ctx, user, schedule.RestrictionBan))
	assert.Error(a.ApplyTemporaryRestriction(ctx, user, "kick", "", epoch))
	assert.Error(a.LiftRestriction(ctx, user, "kick"))
	assert.NoError(a.RemoveContent(ctx, event.MessageRef{Community: "guild1", Channel: "general", Message: "m1"}))

	assert.Equal([]string{
		"timeout guild1/user1 until 2024-03-01T12:00:00Z",
		"untimeout guild1/user1",
		"ban guild1/user1: raid",
		"unban guild1/user1",
		"delete general/m1",
	}, sess.recorded())
}

func TestActionsMessages(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	sess := newFakeSession()
	a := NewActions(sess, "", slog.Default())
	user := event.ActorKey{Community: "guild1", User: "user1"}

	assert.NoError(a.DeliverReminder(ctx, user, "general", "stand up"))
	assert.NoError(a.PostNotice(ctx, "general", user, "was muted"))
	assert.Equal([]string{
		"send general: ⏰ Reminder for <@user1>: stand up",
		"send general: 🛡️ <@user1> was muted",
	}, sess.recorded())

	sess.err = errors.New("missing access")
	err := a.DeliverReminder(ctx, user, "general", "again")
	assert.ErrorContains(err, "missing access")
}

func TestActionsRespectContext(t *testing.T) {
	sess := newFakeSession()
	a := NewActions(sess, "", slog.Default())
	// exhaust the burst so the next call would have to wait
	for a.Limiter.Allow() {
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := a.RemoveContent(ctx, event.MessageRef{Community: "guild1", Channel: "general", Message: "m1"})
	assert.Error(t, err)
	assert.Empty(t, sess.recorded())
}

func TestPromoteContent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	sess := newFakeSession()
	sess.messages["m1"] = &discordgo.Message{
		ID:        "m1",
		ChannelID: "memes",
		Content:   "look at this",
		Timestamp: epoch,
		Author:    &discordgo.User{ID: "author1", Username: "poster"},
	}
	a := NewActions(sess, "starboard", slog.Default())

	err := a.PromoteContent(ctx, ContentIDFor("guild1", "memes", "m1"), promote.Tally{Up: 6, Down: 1})
	require.NoError(t, err)
	assert.Equal([]string{"fetch memes/m1", "embed starboard"}, sess.recorded())
	if assert.Len(sess.embeds, 1) {
		embed := sess.embeds[0]
		assert.Equal("look at this", embed.Description)
		assert.Equal("👍 6", embed.Footer.Text)
		assert.Equal("poster", embed.Author.Name)
		assert.Equal("https://discord.com/channels/guild1/memes/m1", embed.URL)
		assert.Equal("2024-03-01T12:00:00Z", embed.Timestamp)
	}

	// bot-authored messages (eg, our own notices) are fetched but never reposted
	sess.messages["n1"] = &discordgo.Message{
		ID:        "n1",
		ChannelID: "general",
		Content:   "user was muted",
		Author:    &discordgo.User{ID: "bot1", Username: "warden", Bot: true},
	}
	require.NoError(t, a.PromoteContent(ctx, ContentIDFor("guild1", "general", "n1"), promote.Tally{Up: 6}))
	assert.Equal([]string{"fetch memes/m1", "embed starboard", "fetch general/n1"}, sess.recorded())
	assert.Len(sess.embeds, 1)

	assert.Error(a.PromoteContent(ctx, "not-a-discord-id", promote.Tally{Up: 6}))
	assert.Error(a.PromoteContent(ctx, ContentIDFor("guild1", "memes", "missing"), promote.Tally{Up: 6}))

	// no starboard configured
	quiet := NewActions(newFakeSession(), "", slog.Default())
	assert.NoError(quiet.PromoteContent(ctx, ContentIDFor("guild1", "memes", "m1"), promote.Tally{Up: 6}))
}

func TestContentIDRoundTrip(t *testing.T) {
	ref, err := ParseContentID(ContentIDFor("g", "c", "m"))
	assert.NoError(t, err)
	assert.Equal(t, event.MessageRef{Community: "g", Channel: "c", Message: "m"}, ref)

	for _, bad := range []event.ContentID{"", "g/c", "g//m", "g/c/m/x"} {
		_, err := ParseContentID(bad)
		assert.Error(t, err, string(bad))
	}
}

func testConsumer(t *testing.T, promotionThreshold int) (*Consumer, *fakeSession) {
	sess := newFakeSession()
	actions := NewActions(sess, "starboard", slog.Default())
	actions.Limiter = nil

	config := engine.DefaultConfig()
	config.Clock = clock.NewMockClock(epoch)
	config.PromotionThreshold = promotionThreshold
	eng, err := engine.NewEngine(config, engine.Capabilities{
		Moderator: actions,
		Notifier:  actions,
		Promoter:  actions,
	})
	require.NoError(t, err)

	return &Consumer{
		Engine:      eng,
		Actions:     actions,
		Logger:      slog.Default(),
		VoteChannel: "suggestions",
		BotUserID:   "bot",
	}, sess
}

func message(id, channel, author, content string) *discordgo.Message {
	return &discordgo.Message{
		ID:        id,
		GuildID:   "guild1",
		ChannelID: channel,
		Content:   content,
		Author:    &discordgo.User{ID: author},
	}
}

func TestConsumerSpamBurst(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	c, sess := testConsumer(t, promote.DefaultThreshold)

	for i := 0; i < 5; i++ {
		c.HandleMessage(ctx, message(fmt.Sprintf("m%d", i), "general", "spammer", "hello"))
	}
	assert.Equal([]string{
		"timeout guild1/spammer until 2024-03-01T12:05:00Z",
		"send general: 🛡️ <@spammer> restricted (mute) for 5m0s: too many messages",
	}, sess.recorded())
	assert.Equal(1, c.Engine.Scheduler.Pending())
}

func TestConsumerIgnoresBotsAndDMs(t *testing.T) {
	ctx := context.Background()
	c, sess := testConsumer(t, promote.DefaultThreshold)

	bot := message("m1", "general", "other-bot", "free nitro")
	bot.Author.Bot = true
	c.HandleMessage(ctx, bot)

	dm := message("m2", "dm-channel", "user1", "free nitro")
	dm.GuildID = ""
	c.HandleMessage(ctx, dm)

	c.HandleMessage(ctx, nil)
	assert.Empty(t, sess.recorded())
}

func TestConsumerBlockedPhrase(t *testing.T) {
	ctx := context.Background()
	c, sess := testConsumer(t, promote.DefaultThreshold)

	// removed messages in the vote channel don't get vote reactions
	c.HandleMessage(ctx, message("m1", "suggestions", "scammer", "Steam Giveaway here"))
	assert.Equal(t, []string{
		"delete suggestions/m1",
		"send suggestions: 🛡️ <@scammer> message removed: contained a blocked phrase",
	}, sess.recorded())
}

func TestConsumerVoteChannel(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	c, sess := testConsumer(t, 2)
	sess.messages["s1"] = &discordgo.Message{ID: "s1", ChannelID: "suggestions", Content: "add a memes channel", Author: &discordgo.User{ID: "author", Username: "author"}}

	c.HandleMessage(ctx, message("s1", "suggestions", "author", "add a memes channel"))
	assert.Equal([]string{
		"react suggestions/s1 👍",
		"react suggestions/s1 👎",
	}, sess.recorded())

	react := func(user, emoji string, added bool) {
		c.HandleReaction(ctx, &discordgo.MessageReaction{
			UserID:    user,
			MessageID: "s1",
			ChannelID: "suggestions",
			GuildID:   "guild1",
			Emoji:     discordgo.Emoji{Name: emoji},
		}, added)
	}

	// the bot's own seeded reactions, other emoji, and other channels don't count
	react("bot", EmojiUp, true)
	react("alice", "🎉", true)
	c.HandleReaction(ctx, &discordgo.MessageReaction{UserID: "carol", MessageID: "x", ChannelID: "general", GuildID: "guild1", Emoji: discordgo.Emoji{Name: EmojiUp}}, true)

	content := ContentIDFor("guild1", "suggestions", "s1")
	assert.Equal(promote.Tally{}, c.Engine.Gate.Tally(content))

	react("alice", EmojiUp, true)
	react("bob", EmojiDown, true)
	react("bob", EmojiDown, false)
	assert.Equal(promote.Tally{Up: 1}, c.Engine.Gate.Tally(content))

	react("bob", EmojiUp, true)
	assert.True(c.Engine.Gate.Promoted(content))
	assert.Len(sess.embeds, 1)

	react("carol", EmojiUp, true)
	assert.Len(sess.embeds, 1)
}
