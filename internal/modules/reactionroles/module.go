package reactionroles

import (
	"context"
	"errors"
	"fmt"

	"moe-bot/internal/modules/audit"
	"moe-bot/internal/settings"
	"moe-bot/internal/wizard"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

var ErrNotBound = errors.New("no reaction role is bound there")

// Session is the subset of *discordgo.Session this module calls.
type Session interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
}

type Store interface {
	Resolve(guildID, channelID, messageID, emoji string) (string, bool)
	Update(fn func(settings.Collection) bool) error
}

type Module struct {
	session Session
	store   Store
	audit   *audit.Logger
	logger  *zap.Logger
}

func New(session Session, store Store, auditLogger *audit.Logger, logger *zap.Logger) *Module {
	return &Module{session: session, store: store, audit: auditLogger, logger: logger}
}

// HandleReaction grants (add) or revokes the role bound to a reaction. It
// reports the role acted on, if any.
func (m *Module) HandleReaction(ctx context.Context, r *discordgo.MessageReaction, add bool) (string, error) {
	if r == nil || r.GuildID == "" {
		return "", nil
	}
	key := settings.EmojiKey(r.Emoji.ID, r.Emoji.Name, r.Emoji.Animated)
	roleID, ok := m.store.Resolve(r.GuildID, r.ChannelID, r.MessageID, key)
	if !ok {
		return "", nil
	}

	var err error
	if add {
		err = m.session.GuildMemberRoleAdd(r.GuildID, r.UserID, roleID, discordgo.WithContext(ctx))
	} else {
		err = m.session.GuildMemberRoleRemove(r.GuildID, r.UserID, roleID, discordgo.WithContext(ctx))
	}
	if err != nil {
		return roleID, fmt.Errorf("update role %s for %s: %w", roleID, r.UserID, err)
	}
	return roleID, nil
}

// Publish executes a committed wizard plan: post the message, react with each
// emoji, then bind every pair in one save. It returns the new message id.
func (m *Module) Publish(ctx context.Context, plan wizard.Plan, operatorID string) (string, error) {
	payload, err := ParseSource(plan.Source)
	if err != nil {
		return "", err
	}
	msg, err := m.session.ChannelMessageSendComplex(plan.ChannelID, payload.MessageSend(), discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("post reaction role message: %w", err)
	}
	m.react(ctx, plan.ChannelID, msg.ID, plan.Pairs)

	err = m.store.Update(func(c settings.Collection) bool {
		changed := false
		for _, pair := range plan.Pairs {
			if c.Bind(plan.GuildID, plan.ChannelID, msg.ID, pair.Emoji, pair.Role) {
				changed = true
			}
		}
		if c.SetSource(plan.GuildID, plan.ChannelID, msg.ID, plan.Source) {
			changed = true
		}
		return changed
	})
	if err != nil {
		return msg.ID, fmt.Errorf("save reaction roles: %w", err)
	}
	m.audit.Log(ctx, audit.LevelInfo, plan.GuildID, operatorID, audit.EventReactionCommit,
		fmt.Sprintf("channel=%s message=%s pairs=%d", plan.ChannelID, msg.ID, len(plan.Pairs)))
	return msg.ID, nil
}

// Bind attaches one emoji -> role pair to an existing message and reacts with
// the emoji.
func (m *Module) Bind(ctx context.Context, target settings.Target, emoji settings.Emoji, roleID, operatorID string) error {
	if err := m.session.MessageReactionAdd(target.ChannelID, target.MessageID, emoji.APIName(), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("react with %s: %w", emoji.Key(), err)
	}
	err := m.store.Update(func(c settings.Collection) bool {
		return c.Bind(target.GuildID, target.ChannelID, target.MessageID, emoji.Key(), roleID)
	})
	if err != nil {
		return fmt.Errorf("save reaction role: %w", err)
	}
	m.audit.Log(ctx, audit.LevelInfo, target.GuildID, operatorID, audit.EventReactionCommit,
		fmt.Sprintf("channel=%s message=%s emoji=%s role=%s", target.ChannelID, target.MessageID, emoji.Key(), roleID))
	return nil
}

// Unbind removes one emoji from a message, or the whole message when emoji is
// nil.
func (m *Module) Unbind(ctx context.Context, target settings.Target, emoji *settings.Emoji, operatorID string) error {
	var changed bool
	err := m.store.Update(func(c settings.Collection) bool {
		if emoji == nil {
			changed = c.UnbindMessage(target.GuildID, target.ChannelID, target.MessageID)
		} else {
			changed = c.UnbindEmoji(target.GuildID, target.ChannelID, target.MessageID, emoji.Key())
		}
		return changed
	})
	if err != nil {
		return fmt.Errorf("save reaction roles: %w", err)
	}
	if !changed {
		return ErrNotBound
	}
	detail := fmt.Sprintf("channel=%s message=%s", target.ChannelID, target.MessageID)
	if emoji != nil {
		detail += " emoji=" + emoji.Key()
	}
	m.audit.Log(ctx, audit.LevelInfo, target.GuildID, operatorID, audit.EventReactionRemoved, detail)
	return nil
}

func (m *Module) react(ctx context.Context, channelID, messageID string, pairs []settings.Pair) {
	for _, pair := range pairs {
		emoji := settings.EmojiFromKey(pair.Emoji)
		if err := m.session.MessageReactionAdd(channelID, messageID, emoji.APIName(), discordgo.WithContext(ctx)); err != nil {
			m.logger.Warn("add reaction failed",
				zap.String("channel_id", channelID),
				zap.String("message_id", messageID),
				zap.String("emoji", pair.Emoji),
				zap.Error(err))
		}
	}
}
