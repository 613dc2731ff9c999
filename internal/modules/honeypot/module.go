package honeypot

import (
	"context"
	"fmt"
	"time"

	"moe-bot/internal/modules/audit"
	"moe-bot/internal/settings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	AlertColor = 0xFF0000
	BanReason  = "Honey pot triggered"
	// BanDeleteDays is how many days of the author's messages the ban removes.
	BanDeleteDays = 1

	WarningText = "# ⚠️ DO NOT POST HERE ⚠️\n\n\n" +
		"This channel is a honeypot for compromised accounts. If you send anything here, " +
		"you WILL BE BANNED immediately.\n\nYes, I AM SERIOUS ~ !!"
)

// Moderator is the subset of *discordgo.Session used to act on a trapped message.
type Moderator interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	GuildBanCreateWithReason(guildID, userID, reason string, days int, options ...discordgo.RequestOption) error
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
}

// Outcome reports what Handle did.
type Outcome struct {
	Triggered bool
	Notified  bool
	Banned    bool
	Deleted   bool
}

type Module struct {
	mod    Moderator
	audit  *audit.Logger
	logger *zap.Logger
	now    func() time.Time
}

func New(mod Moderator, auditLogger *audit.Logger, logger *zap.Logger) *Module {
	return &Module{mod: mod, audit: auditLogger, logger: logger, now: time.Now}
}

// Triggered is the honeypot policy: a message in the trap channel triggers
// unless the owner is exempt and wrote it. Bot authors never trigger.
func Triggered(hp settings.HoneyPot, msg *discordgo.Message, ownerID string) bool {
	if msg == nil || msg.Author == nil || msg.Author.Bot {
		return false
	}
	if !hp.Enabled() || msg.ChannelID != hp.ChannelID.String() {
		return false
	}
	if hp.AllowOwner && ownerID != "" && msg.Author.ID == ownerID {
		return false
	}
	return true
}

// Handle applies the policy. The moderation summary goes out first, then the
// author is banned and the message deleted. Each step runs even if an earlier
// one failed.
func (m *Module) Handle(ctx context.Context, hp settings.HoneyPot, msg *discordgo.Message, ownerID string) Outcome {
	if !Triggered(hp, msg, ownerID) {
		return Outcome{}
	}
	out := Outcome{Triggered: true}
	fields := []zap.Field{
		zap.String("guild_id", msg.GuildID),
		zap.String("channel_id", msg.ChannelID),
		zap.String("user_id", msg.Author.ID),
	}

	if !hp.ModChannelID.IsZero() {
		_, err := m.mod.ChannelMessageSendEmbed(hp.ModChannelID.String(), m.alertEmbed(msg), discordgo.WithContext(ctx))
		if err != nil {
			m.logger.Warn("honeypot notify failed", append(fields, zap.Error(err))...)
		} else {
			out.Notified = true
		}
	}

	if err := m.mod.GuildBanCreateWithReason(msg.GuildID, msg.Author.ID, BanReason, BanDeleteDays, discordgo.WithContext(ctx)); err != nil {
		m.logger.Warn("honeypot ban failed", append(fields, zap.Error(err))...)
	} else {
		out.Banned = true
	}

	if err := m.mod.ChannelMessageDelete(msg.ChannelID, msg.ID, discordgo.WithContext(ctx)); err != nil {
		m.logger.Warn("honeypot delete failed", append(fields, zap.Error(err))...)
	} else {
		out.Deleted = true
	}

	action := "ban"
	event := audit.EventHoneypotBan
	level := audit.LevelCrit
	if !out.Banned {
		action = "ban_failed"
		event = audit.EventHoneypotFailed
		level = audit.LevelWarn
	}
	m.audit.Log(ctx, level, msg.GuildID, msg.Author.ID, event,
		fmt.Sprintf("channel=%s notified=%t deleted=%t", msg.ChannelID, out.Notified, out.Deleted))
	m.audit.Infraction(ctx, msg.GuildID, msg.Author.ID, "honeypot", action)
	return out
}

func (m *Module) alertEmbed(msg *discordgo.Message) *discordgo.MessageEmbed {
	content := msg.Content
	if content == "" {
		content = "No content"
	}
	if len(content) > 1024 {
		content = content[:1021] + "..."
	}
	return &discordgo.MessageEmbed{
		Title:       "Honey Pot Alert",
		Description: fmt.Sprintf("User %s triggered the honey pot in <#%s>.", msg.Author.Mention(), msg.ChannelID),
		Color:       AlertColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Author", Value: fmt.Sprintf("%s (%s)", msg.Author.Username, msg.Author.ID), Inline: true},
			{Name: "Channel", Value: fmt.Sprintf("<#%s>", msg.ChannelID), Inline: true},
			{Name: "Message Content", Value: content, Inline: false},
		},
		Footer:    &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("User ID: %s | Channel ID: %s", msg.Author.ID, msg.ChannelID)},
		Timestamp: m.now().Format(time.RFC3339),
	}
}

// EveryoneCanSend reports whether @everyone may view and post in the channel,
// from the everyone role and the channel's overwrite for it.
func EveryoneCanSend(guild *discordgo.Guild, channel *discordgo.Channel) bool {
	if guild == nil || channel == nil {
		return false
	}
	var perms int64
	for _, role := range guild.Roles {
		if role != nil && role.ID == guild.ID {
			perms = role.Permissions
			break
		}
	}
	if perms&discordgo.PermissionAdministrator != 0 {
		return true
	}
	for _, overwrite := range channel.PermissionOverwrites {
		if overwrite != nil && overwrite.Type == discordgo.PermissionOverwriteTypeRole && overwrite.ID == guild.ID {
			perms &^= overwrite.Deny
			perms |= overwrite.Allow
		}
	}
	need := int64(discordgo.PermissionViewChannel | discordgo.PermissionSendMessages)
	return perms&need == need
}
