// Package slackbot answers banking questions in Slack over Socket Mode.
package slackbot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"bankbot/internal/assistant"
	"bankbot/internal/classifier"
	"bankbot/internal/domain"
	"bankbot/internal/logging"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"go.uber.org/zap"
)

const (
	commandAsk     = "/bank"
	commandTeach   = "/bank-teach"
	commandRetrain = "/bank-retrain"

	actionHelpful   = "bank_feedback_helpful"
	actionUnhelpful = "bank_feedback_unhelpful"

	teachUsage = "Usage: `/bank-teach <question> | <answer>`"
)

var mentionPattern = regexp.MustCompile(`<@[A-Z0-9]+(\|[^>]*)?>`)

// Assistant is what the bot needs from assistant.Service.
type Assistant interface {
	Ask(ctx context.Context, text string) (assistant.Reply, error)
	Teach(ctx context.Context, question, answer string, confidence float64) (int64, error)
	RecordFeedback(ctx context.Context, in assistant.FeedbackInput) (int64, error)
	Retrain(ctx context.Context) (classifier.Report, error)
}

// poster is the part of *slack.Client used to reply.
type poster interface {
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
	PostEphemeral(channelID, userID string, options ...slack.MsgOption) (string, error)
}

type Bot struct {
	svc    Assistant
	api    poster
	admins map[string]bool
	logger *zap.Logger
}

// NewBot builds a bot. An empty admin set lets everyone run /bank-retrain.
func NewBot(svc Assistant, api poster, adminIDs []string, logger *zap.Logger) *Bot {
	admins := make(map[string]bool, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = true
	}
	return &Bot{svc: svc, api: api, admins: admins, logger: logger.Named("slack")}
}

// Run dispatches Socket Mode events until ctx is cancelled.
func (b *Bot) Run(ctx context.Context, client *socketmode.Client) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-client.Events:
				if !ok {
					return
				}
				b.dispatch(ctx, client, evt)
			}
		}
	}()

	b.logger.Info("slack bot connecting via socket mode")
	err := client.RunContext(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (b *Bot) dispatch(ctx context.Context, client *socketmode.Client, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeSlashCommand:
		client.Ack(*evt.Request)
		cmd, ok := evt.Data.(slack.SlashCommand)
		if !ok {
			return
		}
		b.logger.Info("slash command received", zap.String("command", cmd.Command), zap.String("user", cmd.UserID), zap.String("channel", cmd.ChannelID))
		go b.handleSlashCommand(ctx, cmd)
	case socketmode.EventTypeEventsAPI:
		client.Ack(*evt.Request)
		event, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		go b.handleEventsAPI(ctx, event)
	case socketmode.EventTypeInteractive:
		client.Ack(*evt.Request)
		cb, ok := evt.Data.(slack.InteractionCallback)
		if !ok {
			return
		}
		go b.handleInteraction(ctx, cb)
	case socketmode.EventTypeConnected:
		b.logger.Info("slack bot connected")
	}
}

func (b *Bot) handleSlashCommand(ctx context.Context, cmd slack.SlashCommand) {
	switch cmd.Command {
	case commandAsk:
		b.handleAsk(ctx, cmd)
	case commandTeach:
		b.handleTeach(ctx, cmd)
	case commandRetrain:
		b.handleRetrain(ctx, cmd)
	}
}

func (b *Bot) handleAsk(ctx context.Context, cmd slack.SlashCommand) {
	text := strings.TrimSpace(cmd.Text)
	if text == "" {
		b.postEphemeral(cmd.ChannelID, cmd.UserID, slack.MsgOptionText("Usage: `/bank <question>`", false))
		return
	}
	reply, err := b.svc.Ask(ctx, text)
	if err != nil {
		b.postEphemeral(cmd.ChannelID, cmd.UserID, slack.MsgOptionText(errorText(err), false))
		b.logger.Error("ask failed", zap.String("user", cmd.UserID), zap.Error(err))
		return
	}
	b.postEphemeral(cmd.ChannelID, cmd.UserID, slack.MsgOptionBlocks(replyBlocks(reply)...), slack.MsgOptionText(reply.Answer, false))
}

func (b *Bot) handleTeach(ctx context.Context, cmd slack.SlashCommand) {
	question, answer, ok := parseTeachText(cmd.Text)
	if !ok {
		b.postEphemeral(cmd.ChannelID, cmd.UserID, slack.MsgOptionText(teachUsage, false))
		return
	}
	if _, err := b.svc.Teach(ctx, question, answer, 0); err != nil {
		b.postEphemeral(cmd.ChannelID, cmd.UserID, slack.MsgOptionText(errorText(err), false))
		b.logger.Error("teach failed", zap.String("user", cmd.UserID), zap.Error(err))
		return
	}
	b.postEphemeral(cmd.ChannelID, cmd.UserID, slack.MsgOptionText("Thanks! I've saved that. A human can review and add it to my knowledge.", false))
	b.logger.Info("taught answer recorded", zap.String("user", cmd.UserID), zap.String("question", logging.Truncate(question, 80)))
}

func (b *Bot) handleRetrain(ctx context.Context, cmd slack.SlashCommand) {
	if len(b.admins) > 0 && !b.admins[cmd.UserID] {
		b.postEphemeral(cmd.ChannelID, cmd.UserID, slack.MsgOptionText("Sorry, only admins can retrain the model.", false))
		b.logger.Info("retrain denied", zap.String("user", cmd.UserID))
		return
	}
	report, err := b.svc.Retrain(ctx)
	if err != nil {
		b.postEphemeral(cmd.ChannelID, cmd.UserID, slack.MsgOptionText(errorText(err), false))
		b.logger.Error("retrain failed", zap.String("user", cmd.UserID), zap.Error(err))
		return
	}
	b.postEphemeral(cmd.ChannelID, cmd.UserID, slack.MsgOptionText(fmt.Sprintf("Model retrained.\n```%s```", report), false))
}

func (b *Bot) handleEventsAPI(ctx context.Context, event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		b.answerInThread(ctx, ev.Channel, threadTS(ev.ThreadTimeStamp, ev.TimeStamp), ev.Text)
	case *slackevents.MessageEvent:
		if ev.ChannelType != "im" || ev.BotID != "" || ev.SubType != "" {
			return
		}
		b.answerInThread(ctx, ev.Channel, threadTS(ev.ThreadTimeStamp, ev.TimeStamp), ev.Text)
	}
}

func (b *Bot) answerInThread(ctx context.Context, channelID, ts, raw string) {
	text := stripMentions(raw)
	if text == "" {
		return
	}
	reply, err := b.svc.Ask(ctx, text)
	if err != nil {
		b.postMessage(channelID, slack.MsgOptionTS(ts), slack.MsgOptionText(errorText(err), false))
		b.logger.Error("ask failed", zap.String("channel", channelID), zap.Error(err))
		return
	}
	b.postMessage(channelID, slack.MsgOptionTS(ts), slack.MsgOptionBlocks(replyBlocks(reply)...), slack.MsgOptionText(reply.Answer, false))
}

func (b *Bot) handleInteraction(ctx context.Context, cb slack.InteractionCallback) {
	if cb.Type != slack.InteractionTypeBlockActions || len(cb.ActionCallback.BlockActions) == 0 {
		return
	}
	act := cb.ActionCallback.BlockActions[0]
	channelID := cb.Channel.ID
	if channelID == "" {
		channelID = cb.Container.ChannelID
	}
	userID := cb.User.ID

	var helpful bool
	switch act.ActionID {
	case actionHelpful:
		helpful = true
	case actionUnhelpful:
		helpful = false
	default:
		return
	}
	interactionID, err := strconv.ParseInt(strings.TrimSpace(act.Value), 10, 64)
	if err != nil {
		b.postEphemeral(channelID, userID, slack.MsgOptionText("Invalid interaction id.", false))
		return
	}
	if _, err := b.svc.RecordFeedback(ctx, assistant.FeedbackInput{InteractionID: interactionID, Helpful: &helpful}); err != nil {
		b.postEphemeral(channelID, userID, slack.MsgOptionText(errorText(err), false))
		b.logger.Error("record feedback failed", zap.Int64("interaction_id", interactionID), zap.Error(err))
		return
	}
	b.postEphemeral(channelID, userID, slack.MsgOptionText("Thanks for the feedback!", false))
}

func (b *Bot) postEphemeral(channelID, userID string, options ...slack.MsgOption) {
	if _, err := b.api.PostEphemeral(channelID, userID, options...); err != nil {
		b.logger.Error("post ephemeral failed", zap.String("channel", channelID), zap.Error(err))
	}
}

func (b *Bot) postMessage(channelID string, options ...slack.MsgOption) {
	if _, _, err := b.api.PostMessage(channelID, options...); err != nil {
		b.logger.Error("post message failed", zap.String("channel", channelID), zap.Error(err))
	}
}

// replyBlocks renders an answer with feedback buttons, or a teach hint when
// there is no answer to show.
func replyBlocks(reply assistant.Reply) []slack.Block {
	if reply.NeedsTeach() {
		text := fmt.Sprintf("I'm not sure about that (confidence=%.2f). You can teach me with `/bank-teach <question> | <answer>`.", reply.Confidence)
		return []slack.Block{
			slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil),
		}
	}

	meta := fmt.Sprintf("intent: %s, confidence: %.2f", reply.Intent, reply.Confidence)
	if reply.Smalltalk {
		meta = "smalltalk"
	}
	id := strconv.FormatInt(reply.InteractionID, 10)
	return []slack.Block{
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, reply.Answer, false, false), nil, nil),
		slack.NewContextBlock("", slack.NewTextBlockObject(slack.MarkdownType, meta, false, false)),
		slack.NewActionBlock("",
			slack.NewButtonBlockElement(actionHelpful, id, slack.NewTextBlockObject(slack.PlainTextType, "Helpful", false, false)),
			slack.NewButtonBlockElement(actionUnhelpful, id, slack.NewTextBlockObject(slack.PlainTextType, "Not helpful", false, false)),
		),
	}
}

// parseTeachText splits "question | answer".
func parseTeachText(text string) (string, string, bool) {
	question, answer, ok := strings.Cut(text, "|")
	question, answer = strings.TrimSpace(question), strings.TrimSpace(answer)
	if !ok || question == "" || answer == "" {
		return "", "", false
	}
	return question, answer, true
}

func stripMentions(text string) string {
	return strings.TrimSpace(mentionPattern.ReplaceAllString(text, " "))
}

func threadTS(threadTimeStamp, timeStamp string) string {
	if threadTimeStamp != "" {
		return threadTimeStamp
	}
	return timeStamp
}

func errorText(err error) string {
	var unknown *assistant.UnknownIntentError
	switch {
	case errors.As(err, &unknown):
		return fmt.Sprintf("Sorry, %v", unknown)
	case errors.Is(err, domain.ErrArtifactUnavailable):
		return "No trained model is available yet. An admin needs to run `/bank-retrain`."
	case errors.Is(err, domain.ErrNoTrainingData):
		return "There are no training examples yet. Seed the knowledge base first."
	case errors.Is(err, domain.ErrInvalidInput):
		return fmt.Sprintf("Invalid input: %v", err)
	}
	return fmt.Sprintf("Something went wrong: %v", err)
}
