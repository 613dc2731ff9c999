package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"moe-bot/internal/modules/audit"
	"moe-bot/internal/modules/honeypot"
	"moe-bot/internal/modules/reactionroles"
	"moe-bot/internal/settings"
	"moe-bot/internal/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	templateWelcome = "welcome"
	templateGoodbye = "goodbye"

	prefixWizard   = "rr"
	prefixTemplate = "tpl"
)

type commandOptions map[string]*discordgo.ApplicationCommandInteractionDataOption

func optionMap(options []*discordgo.ApplicationCommandInteractionDataOption) commandOptions {
	out := make(commandOptions, len(options))
	for _, opt := range options {
		out[opt.Name] = opt
	}
	return out
}

// str returns a string, channel or role option as its raw value.
func (o commandOptions) str(name string) string {
	opt, ok := o[name]
	if !ok {
		return ""
	}
	value, _ := opt.Value.(string)
	return strings.TrimSpace(value)
}

func (o commandOptions) boolean(name string) (bool, bool) {
	opt, ok := o[name]
	if !ok || opt.Type != discordgo.ApplicationCommandOptionBoolean {
		return false, false
	}
	return opt.BoolValue(), true
}

// customID is the parsed form of "<prefix>:<key>:<step>".
type customID struct {
	prefix string
	key    string
	step   string
}

func parseCustomID(raw string) customID {
	parts := strings.SplitN(raw, ":", 3)
	var id customID
	if len(parts) > 0 {
		id.prefix = parts[0]
	}
	if len(parts) > 1 {
		id.key = parts[1]
	}
	if len(parts) > 2 {
		id.step = parts[2]
	}
	return id
}

func (c customID) String() string {
	return c.prefix + ":" + c.key + ":" + c.step
}

func interactionUserID(interaction *discordgo.InteractionCreate) string {
	if interaction.Member != nil && interaction.Member.User != nil {
		return interaction.Member.User.ID
	}
	if interaction.User != nil {
		return interaction.User.ID
	}
	return ""
}

func (b *Bot) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	switch interaction.Type {
	case discordgo.InteractionApplicationCommand:
		b.handleCommand(session, interaction)
	case discordgo.InteractionMessageComponent:
		b.handleComponent(session, interaction)
	case discordgo.InteractionModalSubmit:
		b.handleModal(session, interaction)
	}
}

// requireOwner answers with an error unless the interaction comes from the
// guild owner.
func (b *Bot) requireOwner(session *discordgo.Session, interaction *discordgo.InteractionCreate) bool {
	if interaction.GuildID == "" {
		b.respondError(session, interaction, "This command only works in a server.")
		return false
	}
	if owner := b.ownerID(interaction.GuildID); owner == "" || owner != interactionUserID(interaction) {
		b.respondError(session, interaction, "Only the server owner can use this.")
		return false
	}
	return true
}

func (b *Bot) handleCommand(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	data := interaction.ApplicationCommandData()
	if data.Name == "ping" {
		b.respond(session, interaction, fmt.Sprintf("Pong! 🏓 (%dms)", session.HeartbeatLatency().Milliseconds()), false)
		return
	}
	if !b.requireOwner(session, interaction) {
		return
	}

	ctx := context.Background()
	opts := optionMap(data.Options)
	switch data.Name {
	case "set_welcome_channel":
		b.handleSetGreetingChannel(ctx, session, interaction, opts.str("channel"), false)
	case "set_goodbye_channel":
		b.handleSetGreetingChannel(ctx, session, interaction, opts.str("channel"), true)
	case "greetings":
		b.handleGreetingsToggle(ctx, session, interaction, opts)
	case "message_template":
		b.handleMessageTemplate(session, interaction, opts.str("type"))
	case "reaction_roles":
		if opts.str("action") == "manage" {
			b.handleManageReactionRoles(session, interaction)
			return
		}
		b.startWizard(session, interaction)
	case "add_reaction_role":
		b.handleAddReactionRole(ctx, session, interaction, opts)
	case "remove_reaction_role":
		b.handleRemoveReactionRole(ctx, session, interaction, opts)
	case "auto_roles":
		b.handleAutoRoles(ctx, session, interaction, opts)
	case "honey_pot":
		b.handleHoneyPot(ctx, session, interaction, opts)
	case "report":
		b.handleReport(ctx, session, interaction)
	default:
		b.respondError(session, interaction, "Unknown command.")
	}
}

func (b *Bot) handleComponent(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	data := interaction.MessageComponentData()
	id := parseCustomID(data.CustomID)
	switch id.prefix {
	case prefixWizard:
		b.handleWizardComponent(session, interaction, id, data.Values)
	case prefixTemplate:
		if !b.requireOwner(session, interaction) {
			return
		}
		b.openTemplateModal(session, interaction, id.key)
	}
}

func (b *Bot) handleModal(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	data := interaction.ModalSubmitData()
	id := parseCustomID(data.CustomID)
	values := modalValues(data)
	switch id.prefix {
	case prefixWizard:
		b.submitWizardSource(session, interaction, id.key, values["source"])
	case prefixTemplate:
		if !b.requireOwner(session, interaction) {
			return
		}
		b.submitTemplates(context.Background(), session, interaction, id.key, values["user"], values["bot"])
	}
}

// modalValues flattens the text inputs of a modal submit by custom id.
func modalValues(data discordgo.ModalSubmitInteractionData) map[string]string {
	out := make(map[string]string)
	for _, row := range data.Components {
		actions, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, component := range actions.Components {
			if input, ok := component.(*discordgo.TextInput); ok {
				out[input.CustomID] = input.Value
			}
		}
	}
	return out
}

func (b *Bot) settingsChanged(ctx context.Context, interaction *discordgo.InteractionCreate, detail string) {
	b.audit.Log(ctx, audit.LevelInfo, interaction.GuildID, interactionUserID(interaction), audit.EventSettingsChanged, detail)
}

func (b *Bot) handleSetGreetingChannel(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, channelID string, goodbye bool) {
	if channelID == "" {
		b.respondError(session, interaction, "Please pick a channel.")
		return
	}
	err := b.updateGuild(interaction.GuildID, func(g *settings.Guild) bool {
		target := &g.WelcomeChannel
		if goodbye {
			target = &g.GoodbyeChannel
		}
		if target.ChannelID.String() == channelID {
			return false
		}
		target.ChannelID = settings.Snowflake(channelID)
		return true
	})
	if err != nil {
		b.logger.Warn("settings save failed", zap.String("guild_id", interaction.GuildID), zap.Error(err))
		b.respondError(session, interaction, "Could not save the settings.")
		return
	}
	kind := templateWelcome
	if goodbye {
		kind = templateGoodbye
	}
	b.settingsChanged(ctx, interaction, fmt.Sprintf("%s_channel=%s", kind, channelID))
	b.respond(session, interaction, fmt.Sprintf("✅ %s channel set to <#%s>.", titleCase(kind), channelID), true)
}

func (b *Bot) handleGreetingsToggle(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, opts commandOptions) {
	enabled, ok := opts.boolean("enabled")
	if !ok {
		b.respondError(session, interaction, "Please choose true or false.")
		return
	}
	err := b.updateGuild(interaction.GuildID, func(g *settings.Guild) bool {
		if g.Greetings == enabled {
			return false
		}
		g.Greetings = enabled
		return true
	})
	if err != nil {
		b.respondError(session, interaction, "Could not save the settings.")
		return
	}
	b.settingsChanged(ctx, interaction, fmt.Sprintf("greetings=%t", enabled))
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	b.respond(session, interaction, "✅ Greetings "+state+".", true)
}

func (b *Bot) greetingFor(g *settings.Guild, kind string) (*settings.Greeting, bool) {
	switch kind {
	case templateWelcome:
		return &g.WelcomeChannel, true
	case templateGoodbye:
		return &g.GoodbyeChannel, true
	default:
		return nil, false
	}
}

func (b *Bot) handleMessageTemplate(session *discordgo.Session, interaction *discordgo.InteractionCreate, kind string) {
	g := b.guildSettings(interaction.GuildID)
	greeting, ok := b.greetingFor(g, kind)
	if !ok {
		b.respondError(session, interaction, "Unknown template type.")
		return
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "User template", Value: codeBlock(greeting.Template.User), Inline: false},
		{Name: "Bot template", Value: codeBlock(greeting.Template.Bot), Inline: false},
		{Name: "Placeholders", Value: "`{member.mention}` `{member.display_name}` `{member.name}` `{guild.name}`", Inline: false},
	}
	embed := b.commandEmbed(titleCase(kind)+" message templates", "", b.cfg.Notifications.EmbedColors.Info, fields)
	components := []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{
				Label:    "Edit",
				Style:    discordgo.PrimaryButton,
				CustomID: customID{prefix: prefixTemplate, key: kind, step: "edit"}.String(),
			},
		}},
	}
	b.respondEmbed(session, interaction, embed, components, true)
}

func (b *Bot) openTemplateModal(session *discordgo.Session, interaction *discordgo.InteractionCreate, kind string) {
	g := b.guildSettings(interaction.GuildID)
	greeting, ok := b.greetingFor(g, kind)
	if !ok {
		b.respondError(session, interaction, "Unknown template type.")
		return
	}
	err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: customID{prefix: prefixTemplate, key: kind, step: "submit"}.String(),
			Title:    "Edit " + kind + " templates",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{CustomID: "user", Label: "Template for users", Style: discordgo.TextInputParagraph, Value: greeting.Template.User, Required: true, MaxLength: 2000},
				}},
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{CustomID: "bot", Label: "Template for bots", Style: discordgo.TextInputParagraph, Value: greeting.Template.Bot, Required: true, MaxLength: 2000},
				}},
			},
		},
	})
	if err != nil {
		b.logger.Debug("template modal failed", zap.Error(err))
	}
}

func (b *Bot) submitTemplates(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, kind, user, bot string) {
	user, bot = strings.TrimSpace(user), strings.TrimSpace(bot)
	if user == "" || bot == "" {
		b.respondError(session, interaction, "Templates cannot be empty.")
		return
	}
	valid := true
	err := b.updateGuild(interaction.GuildID, func(g *settings.Guild) bool {
		greeting, ok := b.greetingFor(g, kind)
		if !ok {
			valid = false
			return false
		}
		next := settings.Templates{User: user, Bot: bot}
		if greeting.Template == next {
			return false
		}
		greeting.Template = next
		return true
	})
	if !valid {
		b.respondError(session, interaction, "Unknown template type.")
		return
	}
	if err != nil {
		b.respondError(session, interaction, "Could not save the settings.")
		return
	}
	b.settingsChanged(ctx, interaction, kind+"_templates=updated")
	b.respond(session, interaction, "✅ "+titleCase(kind)+" templates updated.", true)
}

func (b *Bot) handleManageReactionRoles(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	g := b.guildSettings(interaction.GuildID)
	lines := describeReactionRoles(interaction.GuildID, g.ReactionRoles)
	description := "No reaction roles are set up. Use `/reaction_roles` to create one."
	if len(lines) > 0 {
		description = truncate(strings.Join(lines, "\n"), 4000)
	}
	embed := b.commandEmbed("Reaction roles", description, b.cfg.Notifications.EmbedColors.Info, nil)
	b.respondEmbed(session, interaction, embed, nil, true)
}

// describeReactionRoles renders one line per bound message, sorted.
func describeReactionRoles(guildID string, table settings.ReactionRoles) []string {
	var lines []string
	channels := make([]string, 0, len(table))
	for channelID := range table {
		channels = append(channels, channelID)
	}
	sort.Strings(channels)
	for _, channelID := range channels {
		messages := make([]string, 0, len(table[channelID]))
		for messageID := range table[channelID] {
			messages = append(messages, messageID)
		}
		sort.Strings(messages)
		for _, messageID := range messages {
			binding := table[channelID][messageID]
			if binding == nil {
				continue
			}
			emojis := make([]string, 0, len(binding.Roles))
			for emoji := range binding.Roles {
				emojis = append(emojis, emoji)
			}
			sort.Strings(emojis)
			pairs := make([]string, 0, len(emojis))
			for _, emoji := range emojis {
				pairs = append(pairs, fmt.Sprintf("%s → <@&%s>", emoji, binding.Roles[emoji]))
			}
			lines = append(lines, fmt.Sprintf("<#%s> [message](https://discord.com/channels/%s/%s/%s): %s",
				channelID, guildID, channelID, messageID, strings.Join(pairs, ", ")))
		}
	}
	return lines
}

func (b *Bot) handleAddReactionRole(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, opts commandOptions) {
	target := settings.Target{GuildID: interaction.GuildID, ChannelID: opts.str("channel"), MessageID: opts.str("message_id")}
	roleID := opts.str("role")
	emoji, err := settings.ParseEmoji(opts.str("emoji"))
	if err != nil {
		b.respondError(session, interaction, "Invalid emoji. Use a unicode emoji or a custom one like <:name:id>.")
		return
	}
	if _, err := session.ChannelMessage(target.ChannelID, target.MessageID, discordgo.WithContext(ctx)); err != nil {
		if utils.IsNotFound(err) {
			b.respondError(session, interaction, "Message not found in that channel.")
			return
		}
		b.respondError(session, interaction, "Could not fetch that message.")
		return
	}
	if err := b.roles.Bind(ctx, target, emoji, roleID, interactionUserID(interaction)); err != nil {
		b.logger.Warn("reaction role bind failed", zap.String("guild_id", target.GuildID), zap.Error(err))
		b.respondError(session, interaction, "Could not add the reaction role. Check the emoji and my permissions.")
		return
	}
	b.respond(session, interaction, fmt.Sprintf("✅ %s now grants <@&%s>.", emoji.Key(), roleID), true)
}

func (b *Bot) handleRemoveReactionRole(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, opts commandOptions) {
	target := settings.Target{GuildID: interaction.GuildID, ChannelID: opts.str("channel"), MessageID: opts.str("message_id")}
	var emoji *settings.Emoji
	if raw := opts.str("emoji"); raw != "" {
		parsed, err := settings.ParseEmoji(raw)
		if err != nil {
			b.respondError(session, interaction, "Invalid emoji.")
			return
		}
		emoji = &parsed
	}
	err := b.roles.Unbind(ctx, target, emoji, interactionUserID(interaction))
	switch {
	case errors.Is(err, reactionroles.ErrNotBound):
		b.respondError(session, interaction, "No reaction role is set up there.")
	case err != nil:
		b.respondError(session, interaction, "Could not save the settings.")
	case emoji != nil:
		b.respond(session, interaction, fmt.Sprintf("✅ Removed %s from that message.", emoji.Key()), true)
	default:
		b.respond(session, interaction, "✅ Removed all reaction roles from that message.", true)
	}
}

func (b *Bot) handleAutoRoles(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, opts commandOptions) {
	action := opts.str("action")
	bots := opts.str("target") == "bots"
	roleID := opts.str("role")

	if action == "list" {
		g := b.guildSettings(interaction.GuildID)
		roles := g.AutoRoles.For(bots)
		value := "None"
		if len(roles) > 0 {
			mentions := make([]string, 0, len(roles))
			for _, id := range roles {
				mentions = append(mentions, "<@&"+id+">")
			}
			value = strings.Join(mentions, " ")
		}
		b.respond(session, interaction, fmt.Sprintf("Auto roles for %s: %s", opts.str("target"), value), true)
		return
	}
	if roleID == "" {
		b.respondError(session, interaction, "Please pick a role.")
		return
	}

	var changed bool
	err := b.updateGuild(interaction.GuildID, func(g *settings.Guild) bool {
		switch action {
		case "add":
			changed = g.AutoRoles.Add(bots, roleID)
		case "remove":
			changed = g.AutoRoles.Remove(bots, roleID)
		}
		return changed
	})
	if err != nil {
		b.respondError(session, interaction, "Could not save the settings.")
		return
	}
	if !changed {
		b.respond(session, interaction, "Nothing to change.", true)
		return
	}
	b.settingsChanged(ctx, interaction, fmt.Sprintf("auto_roles %s %s role=%s", action, opts.str("target"), roleID))
	b.respond(session, interaction, fmt.Sprintf("✅ Auto roles for %s updated.", opts.str("target")), true)
}

func (b *Bot) handleHoneyPot(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, opts commandOptions) {
	switch opts.str("action") {
	case "set":
		b.setHoneyPot(ctx, session, interaction, opts)
	case "disable":
		err := b.updateGuild(interaction.GuildID, func(g *settings.Guild) bool {
			if !g.HoneyPot.Enabled() && g.HoneyPot.ModChannelID.IsZero() {
				return false
			}
			g.HoneyPot = settings.HoneyPot{}
			return true
		})
		if err != nil {
			b.respondError(session, interaction, "Could not save the settings.")
			return
		}
		b.settingsChanged(ctx, interaction, "honey_pot=disabled")
		b.respond(session, interaction, "✅ Honeypot disabled.", true)
	default:
		g := b.guildSettings(interaction.GuildID)
		b.respondEmbed(session, interaction, b.honeyPotEmbed(g.HoneyPot), nil, true)
	}
}

func (b *Bot) setHoneyPot(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, opts commandOptions) {
	channelID := opts.str("channel")
	if channelID == "" {
		b.respondError(session, interaction, "Please pick the trap channel.")
		return
	}
	channel, err := session.State.Channel(channelID)
	if err != nil {
		channel, err = session.Channel(channelID, discordgo.WithContext(ctx))
	}
	if err != nil || channel == nil {
		b.respondError(session, interaction, "I cannot see that channel.")
		return
	}
	if !honeypot.EveryoneCanSend(b.guild(interaction.GuildID), channel) {
		b.respondError(session, interaction, fmt.Sprintf("@everyone must be able to send messages in <#%s> for the honeypot to work.", channelID))
		return
	}

	current := b.guildSettings(interaction.GuildID).HoneyPot
	next := settings.HoneyPot{ChannelID: settings.Snowflake(channelID), ModChannelID: current.ModChannelID}
	if allow, ok := opts.boolean("allow_owner"); ok {
		next.AllowOwner = allow
	}
	if mod := opts.str("mod_channel"); mod != "" {
		next.ModChannelID = settings.Snowflake(mod)
	}
	if next.ModChannelID == next.ChannelID {
		b.respondError(session, interaction, "The alert channel cannot be the trap channel.")
		return
	}

	err = b.updateGuild(interaction.GuildID, func(g *settings.Guild) bool {
		if g.HoneyPot == next {
			return false
		}
		g.HoneyPot = next
		return true
	})
	if err != nil {
		b.respondError(session, interaction, "Could not save the settings.")
		return
	}
	if _, err := session.ChannelMessageSend(channelID, honeypot.WarningText, discordgo.WithContext(ctx)); err != nil {
		b.logger.Warn("honeypot warning post failed", zap.String("channel_id", channelID), zap.Error(err))
	}
	b.settingsChanged(ctx, interaction, fmt.Sprintf("honey_pot channel=%s allow_owner=%t mod_channel=%s", channelID, next.AllowOwner, next.ModChannelID))
	b.respondEmbed(session, interaction, b.honeyPotEmbed(next), nil, true)
}

func (b *Bot) honeyPotEmbed(hp settings.HoneyPot) *discordgo.MessageEmbed {
	if !hp.Enabled() {
		return b.commandEmbed("Honeypot", "The honeypot is disabled.", b.cfg.Notifications.EmbedColors.Info, nil)
	}
	mod := "None"
	if !hp.ModChannelID.IsZero() {
		mod = "<#" + hp.ModChannelID.String() + ">"
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "Channel", Value: "<#" + hp.ChannelID.String() + ">", Inline: true},
		{Name: "Owner exempt", Value: fmt.Sprintf("%t", hp.AllowOwner), Inline: true},
		{Name: "Alerts", Value: mod, Inline: true},
	}
	return b.commandEmbed("Honeypot", "Anyone posting in the trap channel is banned.", b.cfg.Notifications.EmbedColors.Success, fields)
}

func (b *Bot) handleReport(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	if b.analytics == nil {
		b.respondError(session, interaction, "Reports are not available.")
		return
	}
	now := time.Now()
	day, err := b.analytics.Report(ctx, interaction.GuildID, now.Add(-24*time.Hour))
	if err != nil {
		b.logger.Warn("report failed", zap.String("guild_id", interaction.GuildID), zap.Error(err))
		b.respondError(session, interaction, "Could not build the report.")
		return
	}
	week, err := b.analytics.Report(ctx, interaction.GuildID, now.Add(-7*24*time.Hour))
	if err != nil {
		b.respondError(session, interaction, "Could not build the report.")
		return
	}

	offenders := "None"
	if len(week.Offenders) > 0 {
		lines := make([]string, 0, len(week.Offenders))
		for _, o := range week.Offenders {
			lines = append(lines, fmt.Sprintf("<@%s> × %d", o.UserID, o.CountTotal))
		}
		offenders = strings.Join(lines, "\n")
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "Last 24h", Value: formatReport(day), Inline: false},
		{Name: "Last 7d", Value: formatReport(week), Inline: false},
		{Name: "Honeypot offenders", Value: offenders, Inline: false},
	}
	b.respondEmbed(session, interaction, b.commandEmbed("Moderation report", "", b.cfg.Notifications.EmbedColors.Info, fields), nil, true)
}

func codeBlock(s string) string {
	if s == "" {
		return "*(empty)*"
	}
	return truncate("```\n"+s+"\n```", 1024)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
