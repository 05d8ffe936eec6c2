package slackbot

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"

	"bankbot/internal/assistant"
	"bankbot/internal/classifier"
	"bankbot/internal/domain"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"go.uber.org/zap"
)

type sentMessage struct {
	channel string
	user    string
	values  url.Values
}

type fakePoster struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakePoster) record(channel, user string, options []slack.MsgOption) {
	_, values, err := slack.UnsafeApplyMsgOptions("token", channel, "https://slack.com/api/", options...)
	if err != nil {
		panic(err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{channel: channel, user: user, values: values})
}

func (f *fakePoster) PostMessage(channelID string, options ...slack.MsgOption) (string, string, error) {
	f.record(channelID, "", options)
	return channelID, "1700000000.000100", nil
}

func (f *fakePoster) PostEphemeral(channelID, userID string, options ...slack.MsgOption) (string, error) {
	f.record(channelID, userID, options)
	return "1700000000.000200", nil
}

func (f *fakePoster) last(t *testing.T) sentMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("nothing was posted")
	}
	return f.sent[len(f.sent)-1]
}

type fakeAssistant struct {
	reply    assistant.Reply
	err      error
	asked    []string
	taught   [][2]string
	feedback []assistant.FeedbackInput
	retrains int
}

func (f *fakeAssistant) Ask(_ context.Context, text string) (assistant.Reply, error) {
	f.asked = append(f.asked, text)
	return f.reply, f.err
}

func (f *fakeAssistant) Teach(_ context.Context, q, a string, _ float64) (int64, error) {
	f.taught = append(f.taught, [2]string{q, a})
	return 1, f.err
}

func (f *fakeAssistant) RecordFeedback(_ context.Context, in assistant.FeedbackInput) (int64, error) {
	f.feedback = append(f.feedback, in)
	return 1, f.err
}

func (f *fakeAssistant) Retrain(context.Context) (classifier.Report, error) {
	f.retrains++
	return classifier.Report{ModelID: "m1", Examples: 27}, f.err
}

func resolved() assistant.Reply {
	return assistant.Reply{
		Resolution:    domain.Resolution{Intent: "loan_rates", Answer: "Personal: 16.5% p.a.", Confidence: 0.8},
		InteractionID: 42,
	}
}

func TestSlashAskPostsAnswerWithFeedbackButtons(t *testing.T) {
	svc := &fakeAssistant{reply: resolved()}
	api := &fakePoster{}
	bot := NewBot(svc, api, nil, zap.NewNop())

	bot.handleSlashCommand(context.Background(), slack.SlashCommand{Command: commandAsk, Text: " what is loan rate ", ChannelID: "C1", UserID: "U1"})

	if len(svc.asked) != 1 || svc.asked[0] != "what is loan rate" {
		t.Fatalf("unexpected questions: %v", svc.asked)
	}
	msg := api.last(t)
	if msg.channel != "C1" || msg.user != "U1" {
		t.Fatalf("unexpected target %s/%s", msg.channel, msg.user)
	}
	blocks := msg.values.Get("blocks")
	for _, want := range []string{actionHelpful, actionUnhelpful, `"value":"42"`, "Personal: 16.5% p.a."} {
		if !strings.Contains(blocks, want) {
			t.Fatalf("blocks missing %q: %s", want, blocks)
		}
	}
}

func TestSlashAskUsageAndErrors(t *testing.T) {
	api := &fakePoster{}
	bot := NewBot(&fakeAssistant{}, api, nil, zap.NewNop())
	bot.handleSlashCommand(context.Background(), slack.SlashCommand{Command: commandAsk, ChannelID: "C1", UserID: "U1"})
	if !strings.Contains(api.last(t).values.Get("text"), "Usage") {
		t.Fatalf("expected usage, got %v", api.last(t).values)
	}

	bot = NewBot(&fakeAssistant{err: domain.ErrArtifactUnavailable}, api, nil, zap.NewNop())
	bot.handleSlashCommand(context.Background(), slack.SlashCommand{Command: commandAsk, Text: "hi", ChannelID: "C1", UserID: "U1"})
	if !strings.Contains(api.last(t).values.Get("text"), "No trained model") {
		t.Fatalf("expected model guidance, got %v", api.last(t).values)
	}
}

func TestUnsureReplySuggestsTeaching(t *testing.T) {
	blocks := replyBlocks(assistant.Reply{Resolution: domain.Resolution{Confidence: 0.12}, InteractionID: 5})
	if len(blocks) != 1 {
		t.Fatalf("unsure reply should not carry feedback buttons, got %d blocks", len(blocks))
	}
	section, ok := blocks[0].(*slack.SectionBlock)
	if !ok || !strings.Contains(section.Text.Text, "confidence=0.12") || !strings.Contains(section.Text.Text, commandTeach) {
		t.Fatalf("unexpected unsure block: %+v", blocks[0])
	}
}

func TestIntentWithoutAnswerSuggestsTeaching(t *testing.T) {
	blocks := replyBlocks(assistant.Reply{Resolution: domain.Resolution{Intent: "mortgage_refinance", Confidence: 0.7}, InteractionID: 6})
	if len(blocks) != 1 {
		t.Fatalf("expected a single teach block, got %d blocks", len(blocks))
	}
	section, ok := blocks[0].(*slack.SectionBlock)
	if !ok || !strings.Contains(section.Text.Text, commandTeach) {
		t.Fatalf("unexpected block: %+v", blocks[0])
	}
}

func TestSlashTeach(t *testing.T) {
	svc := &fakeAssistant{}
	api := &fakePoster{}
	bot := NewBot(svc, api, nil, zap.NewNop())

	bot.handleSlashCommand(context.Background(), slack.SlashCommand{Command: commandTeach, Text: "gold loans? | Yes, at 9% p.a.", ChannelID: "C1", UserID: "U1"})
	if len(svc.taught) != 1 || svc.taught[0] != [2]string{"gold loans?", "Yes, at 9% p.a."} {
		t.Fatalf("unexpected taught answers: %v", svc.taught)
	}
	if !strings.Contains(api.last(t).values.Get("text"), "Thanks!") {
		t.Fatalf("expected thanks, got %v", api.last(t).values)
	}

	bot.handleSlashCommand(context.Background(), slack.SlashCommand{Command: commandTeach, Text: "no separator", ChannelID: "C1", UserID: "U1"})
	if api.last(t).values.Get("text") != teachUsage || len(svc.taught) != 1 {
		t.Fatalf("expected usage for malformed teach, got %v", api.last(t).values)
	}
}

func TestSlashRetrainAdminGate(t *testing.T) {
	svc := &fakeAssistant{}
	api := &fakePoster{}
	bot := NewBot(svc, api, []string{"UADMIN001"}, zap.NewNop())

	bot.handleSlashCommand(context.Background(), slack.SlashCommand{Command: commandRetrain, ChannelID: "C1", UserID: "U2"})
	if svc.retrains != 0 || !strings.Contains(api.last(t).values.Get("text"), "only admins") {
		t.Fatalf("non-admin should be denied, retrains=%d", svc.retrains)
	}

	bot.handleSlashCommand(context.Background(), slack.SlashCommand{Command: commandRetrain, ChannelID: "C1", UserID: "UADMIN001"})
	if svc.retrains != 1 || !strings.Contains(api.last(t).values.Get("text"), "Model retrained") {
		t.Fatalf("admin retrain failed, retrains=%d text=%q", svc.retrains, api.last(t).values.Get("text"))
	}
}

func TestMentionAnsweredInThread(t *testing.T) {
	svc := &fakeAssistant{reply: resolved()}
	api := &fakePoster{}
	bot := NewBot(svc, api, nil, zap.NewNop())

	bot.handleEventsAPI(context.Background(), slackevents.EventsAPIEvent{
		Type: slackevents.CallbackEvent,
		InnerEvent: slackevents.EventsAPIInnerEvent{Data: &slackevents.AppMentionEvent{
			Channel: "C9", Text: "<@U0BOT1234> what is loan rate", TimeStamp: "1700000000.000001",
		}},
	})
	if len(svc.asked) != 1 || svc.asked[0] != "what is loan rate" {
		t.Fatalf("mention should be stripped, asked %v", svc.asked)
	}
	msg := api.last(t)
	if msg.channel != "C9" || msg.values.Get("thread_ts") != "1700000000.000001" {
		t.Fatalf("expected threaded reply, got %s %v", msg.channel, msg.values)
	}
}

func TestDirectMessagesOnlyFromHumans(t *testing.T) {
	svc := &fakeAssistant{reply: resolved()}
	bot := NewBot(svc, &fakePoster{}, nil, zap.NewNop())

	events := []*slackevents.MessageEvent{
		{ChannelType: "im", Channel: "D1", Text: "hello", TimeStamp: "1"},
		{ChannelType: "im", Channel: "D1", Text: "echo", TimeStamp: "2", BotID: "B1"},
		{ChannelType: "channel", Channel: "C1", Text: "chatter", TimeStamp: "3"},
		{ChannelType: "im", Channel: "D1", Text: "edited", TimeStamp: "4", SubType: "message_changed"},
	}
	for _, ev := range events {
		bot.handleEventsAPI(context.Background(), slackevents.EventsAPIEvent{
			Type:       slackevents.CallbackEvent,
			InnerEvent: slackevents.EventsAPIInnerEvent{Data: ev},
		})
	}
	if len(svc.asked) != 1 || svc.asked[0] != "hello" {
		t.Fatalf("only the human DM should be answered, asked %v", svc.asked)
	}
}

func TestFeedbackButtons(t *testing.T) {
	svc := &fakeAssistant{}
	api := &fakePoster{}
	bot := NewBot(svc, api, nil, zap.NewNop())

	cb := slack.InteractionCallback{Type: slack.InteractionTypeBlockActions}
	cb.User.ID = "U1"
	cb.Channel.ID = "C1"
	cb.ActionCallback.BlockActions = []*slack.BlockAction{{ActionID: actionUnhelpful, Value: "42"}}
	bot.handleInteraction(context.Background(), cb)

	if len(svc.feedback) != 1 || svc.feedback[0].InteractionID != 42 || *svc.feedback[0].Helpful {
		t.Fatalf("unexpected feedback: %+v", svc.feedback)
	}

	cb.ActionCallback.BlockActions = []*slack.BlockAction{{ActionID: actionHelpful, Value: "nope"}}
	bot.handleInteraction(context.Background(), cb)
	if len(svc.feedback) != 1 || api.last(t).values.Get("text") != "Invalid interaction id." {
		t.Fatalf("bad value should be rejected, got %v", api.last(t).values)
	}

	svc.err = domain.ErrInteractionNotFound
	cb.ActionCallback.BlockActions = []*slack.BlockAction{{ActionID: actionHelpful, Value: "7"}}
	bot.handleInteraction(context.Background(), cb)
	if !strings.Contains(api.last(t).values.Get("text"), "Something went wrong") {
		t.Fatalf("expected error reply, got %v", api.last(t).values)
	}
}

func TestParseTeachText(t *testing.T) {
	tests := []struct {
		in       string
		q, a     string
		wantOkay bool
	}{
		{"q | a", "q", "a", true},
		{"a | b | c", "a", "b | c", true},
		{" | answer", "", "", false},
		{"question |", "", "", false},
		{"no pipe", "", "", false},
	}
	for _, tt := range tests {
		q, a, ok := parseTeachText(tt.in)
		if q != tt.q || a != tt.a || ok != tt.wantOkay {
			t.Errorf("parseTeachText(%q) = %q, %q, %v", tt.in, q, a, ok)
		}
	}
}

func TestStripMentions(t *testing.T) {
	if got := stripMentions("<@U123ABC|bankbot>  hi there <@W999>"); got != "hi there" {
		t.Fatalf("stripMentions = %q", got)
	}
}

func TestResolveUserIDs(t *testing.T) {
	calls := 0
	list := func() ([]slack.User, error) {
		calls++
		u1 := slack.User{ID: "U0AAAAAA1", Name: "alice", RealName: "Alice Smith"}
		u2 := slack.User{ID: "U0BBBBBB2", Name: "bob"}
		u2.Profile.DisplayName = "Bobby"
		return []slack.User{u1, u2, {ID: "U0CCCCCC3", Name: "ghost", Deleted: true}}, nil
	}

	ids, unresolved, err := ResolveUserIDs(list, []string{"U0ZZZZZZ9"}, zap.NewNop())
	if err != nil || len(ids) != 1 || unresolved != nil || calls != 0 {
		t.Fatalf("ID-only input should not list users: %v %v %v calls=%d", ids, unresolved, err, calls)
	}

	ids, unresolved, err = ResolveUserIDs(list, []string{"alice smith", "bobby", "ghost", "U0AAAAAA1", ""}, zap.NewNop())
	if err != nil {
		t.Fatalf("ResolveUserIDs failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != "U0AAAAAA1" || ids[1] != "U0BBBBBB2" {
		t.Fatalf("unexpected ids: %v", ids)
	}
	if len(unresolved) != 1 || unresolved[0] != "ghost" {
		t.Fatalf("unexpected unresolved: %v", unresolved)
	}

	boom := errors.New("rate limited")
	_, unresolved, err = ResolveUserIDs(func() ([]slack.User, error) { return nil, boom }, []string{"alice"}, zap.NewNop())
	if !errors.Is(err, boom) || len(unresolved) != 1 {
		t.Fatalf("expected list error, got %v %v", unresolved, err)
	}
}
