package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"moe-bot/internal/modules/reactionroles"
	"moe-bot/internal/settings"
	"moe-bot/internal/wizard"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Wizard steps carried in component custom ids.
const (
	stepSource  = "source"
	stepChannel = "channel"
	stepRole    = "role"
	stepMore    = "more"
	stepFinish  = "finish"
	stepCancel  = "cancel"
)

const (
	wizardTimedOut  = "You took too long to react. Please try again."
	wizardIdle      = "This reaction role setup expired. Run `/reaction_roles` to start again."
	wizardCancelled = "Reaction role creation cancelled."
	wizardReplaced  = "This reaction role setup was replaced by a newer one."
)

func wizardID(sessionID, step string) string {
	return customID{prefix: prefixWizard, key: sessionID, step: step}.String()
}

func (b *Bot) startWizard(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	s := b.wizards.Start(interaction.GuildID, interactionUserID(interaction))
	err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: wizardID(s.ID, stepSource),
			Title:    "Reaction role message",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    "source",
						Label:       "Message text or Discohook JSON",
						Style:       discordgo.TextInputParagraph,
						Placeholder: "React below to pick your roles!",
						Required:    true,
						MaxLength:   4000,
					},
				}},
			},
		},
	})
	if err != nil {
		b.logger.Debug("wizard modal failed", zap.Error(err))
	}
}

func (b *Bot) submitWizardSource(session *discordgo.Session, interaction *discordgo.InteractionCreate, sessionID, source string) {
	if _, err := reactionroles.ParseSource(source); err != nil {
		b.respondError(session, interaction, "The message is empty. Run `/reaction_roles` again.")
		return
	}
	if _, err := b.wizards.Apply(sessionID, interactionUserID(interaction), wizard.SubmitMessage(source)); err != nil {
		b.respondWizardError(session, interaction, err)
		return
	}

	err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:    "Select the channel where the reaction role message will be sent.",
			Components: channelPicker(sessionID),
		},
	})
	if err != nil {
		b.logger.Warn("wizard prompt failed", zap.String("session", sessionID), zap.Error(err))
		return
	}
	prompt, err := session.InteractionResponse(interaction.Interaction)
	if err != nil {
		b.logger.Warn("wizard prompt lookup failed", zap.String("session", sessionID), zap.Error(err))
		return
	}
	if err := b.wizards.BindPrompt(sessionID, prompt.ChannelID, prompt.ID); err != nil {
		b.logger.Debug("wizard prompt bind failed", zap.String("session", sessionID), zap.Error(err))
	}
}

func (b *Bot) handleWizardComponent(session *discordgo.Session, interaction *discordgo.InteractionCreate, id customID, values []string) {
	actor := interactionUserID(interaction)
	var ev wizard.Event
	switch id.step {
	case stepChannel:
		if len(values) == 0 {
			return
		}
		ev = wizard.SelectChannel(values[0])
	case stepRole:
		if len(values) == 0 {
			return
		}
		ev = wizard.SelectRole(values[0])
	case stepMore:
		ev = wizard.AddMore()
	case stepFinish:
		ev = wizard.Finish()
	case stepCancel:
		ev = wizard.Cancel()
	default:
		return
	}

	s, err := b.wizards.Apply(id.key, actor, ev)
	if err != nil {
		b.respondWizardError(session, interaction, err)
		return
	}

	switch s.State() {
	case wizard.Committed:
		b.publishWizard(session, interaction, s)
	case wizard.Cancelled:
		b.updatePrompt(session, interaction, wizardCancelled, []discordgo.MessageComponent{})
	default:
		content, components := wizardView(s, b.wizards.EmojiTimeout().Seconds())
		b.updatePrompt(session, interaction, content, components)
	}
}

func (b *Bot) publishWizard(session *discordgo.Session, interaction *discordgo.InteractionCreate, s *wizard.Session) {
	plan, ok := s.Plan()
	if !ok {
		return
	}
	err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	})
	if err != nil {
		b.logger.Debug("wizard defer failed", zap.Error(err))
	}

	content := fmt.Sprintf("✅ Reaction role message created in <#%s>.", plan.ChannelID)
	if _, err := b.roles.Publish(context.Background(), plan, s.OperatorID); err != nil {
		b.logger.Warn("reaction role publish failed", zap.String("guild_id", plan.GuildID), zap.Error(err))
		content = "❌ Could not create the reaction role message. Check my permissions in that channel."
	}
	components := []discordgo.MessageComponent{}
	if _, err := session.InteractionResponseEdit(interaction.Interaction, &discordgo.WebhookEdit{
		Content:    &content,
		Components: &components,
	}); err != nil {
		b.logger.Debug("wizard result edit failed", zap.Error(err))
	}
}

func (b *Bot) updatePrompt(session *discordgo.Session, interaction *discordgo.InteractionCreate, content string, components []discordgo.MessageComponent) {
	err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:    content,
			Components: components,
		},
	})
	if err != nil {
		b.logger.Debug("wizard update failed", zap.Error(err))
	}
}

func (b *Bot) respondWizardError(session *discordgo.Session, interaction *discordgo.InteractionCreate, err error) {
	b.respondError(session, interaction, wizardErrorText(err))
}

func wizardErrorText(err error) string {
	switch {
	case errors.Is(err, wizard.ErrSessionNotFound):
		return "This setup has expired. Run `/reaction_roles` again."
	case errors.Is(err, wizard.ErrNotOperator):
		return "Only the person who started this setup can use it."
	case errors.Is(err, wizard.ErrRoleAlreadyBound):
		return "That role is already in this message. Pick another one."
	case errors.Is(err, wizard.ErrEmojiAlreadyBound):
		return "That emoji is already in this message. React with another one."
	case errors.Is(err, wizard.ErrEmptyMessage):
		return "The message is empty."
	default:
		return "That step is not available right now."
	}
}

// captureWizardEmoji feeds the operator's reaction on a prompt to the wizard.
func (b *Bot) captureWizardEmoji(s *wizard.Session, r *discordgo.MessageReaction) {
	if r.UserID != s.OperatorID || s.State() != wizard.EmojiPending {
		return
	}
	ctx := context.Background()
	opt := discordgo.WithContext(ctx)
	defer func() {
		if err := b.session.MessageReactionRemove(r.ChannelID, r.MessageID, r.Emoji.APIName(), r.UserID, opt); err != nil {
			b.logger.Debug("wizard reaction cleanup failed", zap.Error(err))
		}
	}()

	if r.Emoji.ID != "" {
		if _, err := b.session.State.Emoji(s.GuildID, r.Emoji.ID); err != nil {
			b.editPrompt(ctx, s, "❌ I can only use emojis from this server. React with another one.", cancelRow(s.ID))
			return
		}
	}

	key := settings.EmojiKey(r.Emoji.ID, r.Emoji.Name, r.Emoji.Animated)
	next, err := b.wizards.Apply(s.ID, r.UserID, wizard.CaptureEmoji(key))
	if err != nil {
		if errors.Is(err, wizard.ErrEmojiAlreadyBound) {
			b.editPrompt(ctx, s, "❌ "+wizardErrorText(err), cancelRow(s.ID))
		}
		return
	}
	content, components := wizardView(next, b.wizards.EmojiTimeout().Seconds())
	b.editPrompt(ctx, next, content, components)
}

func (b *Bot) onWizardExpired(s *wizard.Session) {
	b.editPrompt(context.Background(), s, expiredText(s.Reason()), []discordgo.MessageComponent{})
}

func expiredText(reason string) string {
	switch reason {
	case wizard.ReasonTimeout:
		return wizardTimedOut
	case wizard.ReasonReplaced:
		return wizardReplaced
	default:
		return wizardIdle
	}
}

func (b *Bot) editPrompt(ctx context.Context, s *wizard.Session, content string, components []discordgo.MessageComponent) {
	if s.PromptChannelID == "" || s.PromptID == "" {
		return
	}
	edit := discordgo.NewMessageEdit(s.PromptChannelID, s.PromptID).SetContent(content)
	edit.Components = components
	if _, err := b.session.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx)); err != nil {
		b.logger.Debug("wizard prompt edit failed", zap.String("session", s.ID), zap.Error(err))
	}
}

// wizardView renders the prompt for a session's current state.
func wizardView(s *wizard.Session, timeoutSeconds float64) (string, []discordgo.MessageComponent) {
	switch s.State() {
	case wizard.ChannelPending:
		return "Select the channel where the reaction role message will be sent.", channelPicker(s.ID)
	case wizard.RolePending:
		return fmt.Sprintf("Channel: <#%s>\nNow select a role to associate with an emoji.%s", s.ChannelID(), pairSummary(s.Pairs())), rolePicker(s.ID)
	case wizard.EmojiPending:
		return fmt.Sprintf("Role selected: <@&%s>\nReact to **this message** with the emoji you want to associate with it. You have %.0f seconds.%s",
			s.PendingRole(), timeoutSeconds, pairSummary(s.Pairs())), cancelRow(s.ID)
	case wizard.Summary:
		return fmt.Sprintf("Channel: <#%s>%s\n\nAdd another role or finish to post the message.", s.ChannelID(), pairSummary(s.Pairs())), summaryButtons(s.ID)
	default:
		return "", []discordgo.MessageComponent{}
	}
}

func pairSummary(pairs []settings.Pair) string {
	if len(pairs) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\n\n**Reaction roles:**")
	for _, p := range pairs {
		fmt.Fprintf(&sb, "\n%s → <@&%s>", p.Emoji, p.Role)
	}
	return sb.String()
}

func cancelButton(sessionID string) discordgo.Button {
	return discordgo.Button{Label: "Cancel", Style: discordgo.DangerButton, CustomID: wizardID(sessionID, stepCancel)}
}

func cancelRow(sessionID string) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{cancelButton(sessionID)}},
	}
}

func channelPicker(sessionID string) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.SelectMenu{
				MenuType:     discordgo.ChannelSelectMenu,
				CustomID:     wizardID(sessionID, stepChannel),
				Placeholder:  "Channel",
				ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews},
			},
		}},
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{cancelButton(sessionID)}},
	}
}

func rolePicker(sessionID string) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.SelectMenu{
				MenuType:    discordgo.RoleSelectMenu,
				CustomID:    wizardID(sessionID, stepRole),
				Placeholder: "Role",
			},
		}},
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{cancelButton(sessionID)}},
	}
}

func summaryButtons(sessionID string) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "Add more", Style: discordgo.SecondaryButton, CustomID: wizardID(sessionID, stepMore)},
			discordgo.Button{Label: "Finish", Style: discordgo.SuccessButton, CustomID: wizardID(sessionID, stepFinish)},
			cancelButton(sessionID),
		}},
	}
}
