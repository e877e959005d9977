package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Anmol9893/botservice/pkg/dialog"
	"github.com/Anmol9893/botservice/pkg/events"
	"github.com/Anmol9893/botservice/pkg/state"
)

const (
	denyWhatCanYouDo = "Sorry! I'm unable to process that. You can say 'cancel' to cancel this conversation.."
	nothingToCancel  = "Sure, but there is nothing to cancel.."
	fallback         = "I'm still learning.. Sorry, I do not know how to help you with that."
	anythingElse     = "Is there anything else I can help you with?"
	areYouSure       = "Are you sure you want to cancel?"
	cancelledThat    = "Sure. I've cancelled that!"
)

type emitted struct {
	types []events.EventType
}

func (e *emitted) Emit(_ context.Context, et events.EventType, _ string, _ any) error {
	e.types = append(e.types, et)
	return nil
}

type fixture struct {
	t          *testing.T
	registry   *dialog.Registry
	dispatcher *Dispatcher
	store      *state.MemoryStore
	raw        []byte
	events     *emitted
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	name, err := dialog.NewPrompt("CollectName", "Who am I talking to?", dialog.TextValidator(3),
		dialog.WithMaxRetries(3), dialog.WithGaveUpMessage("Let's skip that for now."))
	require.NoError(t, err)
	city, err := dialog.NewPrompt("CityPrompt", "Where do you live?", dialog.TextValidator(0))
	require.NoError(t, err)
	greeting, err := dialog.NewWaterfall("GreetingDialog",
		func(ctx context.Context, sc *dialog.StepContext) (dialog.Result, error) {
			return sc.Prompt(ctx, "CollectName", nil)
		},
		func(ctx context.Context, sc *dialog.StepContext) (dialog.Result, error) {
			sc.Values()["name"] = sc.Result
			return sc.Prompt(ctx, "CityPrompt", nil)
		},
		func(ctx context.Context, sc *dialog.StepContext) (dialog.Result, error) {
			sc.Values()["city"] = sc.Result
			return sc.End(ctx, sc.Values())
		},
	)
	require.NoError(t, err)
	silent, err := dialog.NewWaterfall("Silent",
		func(context.Context, *dialog.StepContext) (dialog.Result, error) { return dialog.Waiting(), nil },
		func(context.Context, *dialog.StepContext) (dialog.Result, error) { return dialog.Waiting(), nil },
		func(context.Context, *dialog.StepContext) (dialog.Result, error) { return dialog.Waiting(), nil },
	)
	require.NoError(t, err)
	whatCanYouDo := dialog.NewMessage("WhatCanYouDo", dialog.Text("I can greet you and remember your name."))

	reg, err := dialog.NewRegistry(greeting.Uses("CollectName", "CityPrompt"), name, city, silent, whatCanYouDo)
	require.NoError(t, err)

	em := &emitted{}
	d, err := New(Config{
		Routes: map[string]dialog.ID{
			"Greeting":     "GreetingDialog",
			"WhoAreYou":    "CollectName",
			"WhatCanYouDo": "WhatCanYouDo",
			"Silent":       "Silent",
		},
		Interruptions: []Interruption{
			{Intent: "Help", Mode: ModeHandle, Reprompt: true, Handler: func(_ context.Context, dc *dialog.Context) error {
				dc.SendText("I understand greetings, being asked for help, or being asked to cancel what I am doing.")
				return nil
			}},
			{Intent: "Cancel", Mode: ModeCancel, Message: "Ok. I've cancelled our last activity."},
			{Intent: "StartOver", Mode: ModeReplace, Dialog: "GreetingDialog"},
			{Intent: "Quit", Mode: ModeCancel, Message: cancelledThat, Confirm: &Confirmation{
				Prompt:   areYouSure,
				Declined: "Ok, let's carry on.",
				Dialogs:  []dialog.ID{"CollectName"},
			}},
		},
		Policy: Policy{
			DenyWhileActive{Intent: "WhatCanYouDo", Dialogs: []dialog.ID{"CollectName"}, Reply: denyWhatCanYouDo},
			DenyWhenIdle{Intent: "Cancel", Reply: nothingToCancel},
		},
		Fallback:  []string{fallback},
		Completed: anythingElse,
		Welcome:   []dialog.Reply{dialog.Text("Welcome to the Basic Bot.")},
	}, WithEmitter(em))
	require.NoError(t, err)
	require.NoError(t, d.Validate(reg))

	raw, _ := json.Marshal(dialog.NewState())
	return &fixture{t: t, registry: reg, dispatcher: d, store: state.NewMemoryStore(), raw: raw, events: em}
}

func (f *fixture) send(intent, text string) (Outcome, []string) {
	return f.activity(dialog.Activity{Kind: dialog.ActivityMessage, ConversationID: "c1", UserID: "u1", Text: text}, intent)
}

func (f *fixture) activity(a dialog.Activity, intent string) (Outcome, []string) {
	f.t.Helper()
	ctx := f.t.Context()

	st := dialog.NewState()
	require.NoError(f.t, json.Unmarshal(f.raw, st))
	turn := dialog.NewTurn(a)
	turn.State.Intent = intent
	batch := state.NewBatch(f.store)
	dc, err := dialog.NewContext(f.registry, st, turn, batch)
	require.NoError(f.t, err)

	out, err := f.dispatcher.Dispatch(ctx, dc)
	require.NoError(f.t, err)
	require.NoError(f.t, st.Validate())
	f.raw, err = json.Marshal(st)
	require.NoError(f.t, err)
	require.NoError(f.t, batch.Commit(ctx))

	var texts []string
	for _, r := range turn.Replies() {
		texts = append(texts, r.Text)
	}
	return out, texts
}

func (f *fixture) stack() []dialog.ID {
	st := dialog.NewState()
	require.NoError(f.t, json.Unmarshal(f.raw, st))
	return st.Stack.IDs()
}

func (f *fixture) stackJSON() string {
	st := dialog.NewState()
	require.NoError(f.t, json.Unmarshal(f.raw, st))
	raw, _ := json.Marshal(st.Stack)
	return string(raw)
}

func TestGreetingScenario(t *testing.T) {
	f := newFixture(t)

	out, replies := f.send("Greeting", "hi")
	assert.Equal(t, ActionBegan, out.Action)
	assert.Equal(t, dialog.ID("GreetingDialog"), out.Dialog)
	assert.Equal(t, []string{"Who am I talking to?"}, replies)

	_, replies = f.send("None", "Ada")
	assert.Equal(t, []string{"Where do you live?"}, replies)

	out, replies = f.send("None", "London")
	assert.Equal(t, ActionContinued, out.Action)
	assert.Equal(t, dialog.StatusComplete, out.Result.Status)
	assert.Equal(t, map[string]any{"name": "Ada", "city": "London"}, out.Result.Value)
	assert.Equal(t, []string{anythingElse}, replies)
	assert.Empty(t, f.stack())
}

func TestWhatCanYouDoRejectedWhileCollectingName(t *testing.T) {
	f := newFixture(t)
	f.send("WhoAreYou", "who are you")
	before := f.stackJSON()

	out, replies := f.send("WhatCanYouDo", "what can you do")
	assert.Equal(t, ActionRejected, out.Action)
	assert.Equal(t, []string{denyWhatCanYouDo}, replies)
	assert.Equal(t, before, f.stackJSON(), "stack must be unchanged")
	assert.Contains(t, f.events.types, events.InterruptionRejected)
}

func TestWhatCanYouDoAllowedWhenIdle(t *testing.T) {
	f := newFixture(t)
	out, replies := f.send("WhatCanYouDo", "what can you do")
	assert.Equal(t, ActionBegan, out.Action)
	assert.Equal(t, []string{"I can greet you and remember your name."}, replies)
	assert.Empty(t, f.stack())
}

func TestCancelWithEmptyStack(t *testing.T) {
	f := newFixture(t)
	out, replies := f.send("Cancel", "cancel")
	assert.Equal(t, ActionRejected, out.Action)
	assert.Equal(t, []string{nothingToCancel}, replies)
	assert.Empty(t, f.stack())
}

func TestCancelActiveStack(t *testing.T) {
	f := newFixture(t)
	f.send("Greeting", "hello")
	require.Len(t, f.stack(), 2)

	out, replies := f.send("Cancel", "cancel")
	assert.Equal(t, ActionCancelled, out.Action)
	assert.Equal(t, dialog.StatusCancelled, out.Result.Status)
	assert.Equal(t, []string{"Ok. I've cancelled our last activity."}, replies)
	assert.Empty(t, f.stack())
}

func TestHelpKeepsStackAndReprompts(t *testing.T) {
	f := newFixture(t)
	f.send("Greeting", "hello")
	before := f.stackJSON()

	out, replies := f.send("Help", "help")
	assert.Equal(t, ActionHandled, out.Action)
	assert.Equal(t, dialog.StatusWaiting, out.Result.Status)
	assert.Equal(t, []string{
		"I understand greetings, being asked for help, or being asked to cancel what I am doing.",
		"Who am I talking to?",
	}, replies)
	assert.Equal(t, before, f.stackJSON())

	_, replies = f.send("None", "Ada")
	assert.Equal(t, []string{"Where do you live?"}, replies)
}

func TestStartOverReplacesStack(t *testing.T) {
	f := newFixture(t)
	f.send("Greeting", "hello")
	f.send("None", "Ada")
	require.Equal(t, []dialog.ID{"GreetingDialog", "CityPrompt"}, f.stack())

	out, replies := f.send("StartOver", "start over")
	assert.Equal(t, ActionReplaced, out.Action)
	assert.Equal(t, []string{"Who am I talking to?"}, replies)
	assert.Equal(t, []dialog.ID{"GreetingDialog", "CollectName"}, f.stack())
}

func TestFallbackWhenNothingMatches(t *testing.T) {
	f := newFixture(t)
	out, replies := f.send("None", "blah")
	assert.Equal(t, ActionFallback, out.Action)
	assert.Equal(t, []string{fallback}, replies)
	assert.Empty(t, f.stack())
}

func TestUnhandledContinueBeginsRoutedChild(t *testing.T) {
	f := newFixture(t)
	f.send("Silent", "")
	require.Equal(t, []dialog.ID{"Silent"}, f.stack())

	out, replies := f.send("WhatCanYouDo", "what can you do")
	assert.Equal(t, ActionBegan, out.Action)
	assert.Equal(t, dialog.ID("WhatCanYouDo"), out.Dialog)
	assert.Equal(t, []string{"I can greet you and remember your name."}, replies)

	out, replies = f.send("None", "hmm")
	assert.Equal(t, ActionContinued, out.Action)
	assert.Equal(t, []string{anythingElse}, replies)
	assert.Empty(t, f.stack())
}

func TestGaveUpEndsDialog(t *testing.T) {
	f := newFixture(t)
	f.send("WhoAreYou", "who are you")

	f.send("None", "")
	f.send("None", "   ")
	out, replies := f.send("None", "")
	assert.Equal(t, dialog.StatusComplete, out.Result.Status)
	assert.True(t, out.Result.GaveUp())
	assert.Equal(t, []string{"Let's skip that for now.", anythingElse}, replies)
	assert.Empty(t, f.stack())
}

func TestWelcomeOnMembersAdded(t *testing.T) {
	f := newFixture(t)
	out, replies := f.activity(dialog.Activity{
		Kind: dialog.ActivityConversationUpdate, ConversationID: "c1", RecipientID: "bot", MembersAdded: []string{"bot", "u1"},
	}, "")
	assert.Equal(t, ActionWelcomed, out.Action)
	assert.Equal(t, []string{"Welcome to the Basic Bot."}, replies)

	out, replies = f.activity(dialog.Activity{
		Kind: dialog.ActivityConversationUpdate, ConversationID: "c1", RecipientID: "bot", MembersAdded: []string{"bot"},
	}, "")
	assert.Equal(t, ActionIgnored, out.Action)
	assert.Empty(t, replies)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{Interruptions: []Interruption{{Intent: "x", Mode: "explode"}}})
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	_, err = New(Config{Interruptions: []Interruption{{Intent: "x", Mode: ModeReplace}}})
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	_, err = New(Config{Interruptions: []Interruption{{Intent: "x", Mode: ModeCancel, Confirm: &Confirmation{}}}})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	d, err := New(Config{Routes: map[string]dialog.ID{"Greeting": "Missing"}})
	require.NoError(t, err)
	reg, _ := dialog.NewRegistry()
	assert.ErrorIs(t, d.Validate(reg), dialog.ErrUnknownDialog)
}

func TestPolicyRules(t *testing.T) {
	stack := dialog.NewStack([]*dialog.Instance{{ID: "GreetingDialog"}, {ID: "CollectName"}})
	p := Policy{
		DenyWhileActive{Intent: "WhatCanYouDo", Dialogs: []dialog.ID{"CollectName"}, Reply: "no"},
		DenyWhenIdle{Intent: "Cancel", Reply: "nothing"},
	}

	reply, denied := p.Evaluate("whatcanyoudo", stack)
	assert.True(t, denied)
	assert.Equal(t, "no", reply)

	_, denied = p.Evaluate("Cancel", stack)
	assert.False(t, denied)

	reply, denied = p.Evaluate("Cancel", dialog.NewStack(nil))
	assert.True(t, denied)
	assert.Equal(t, "nothing", reply)

	_, denied = p.Evaluate("WhatCanYouDo", dialog.NewStack(nil))
	assert.False(t, denied)
}

func TestDenyWhileActiveOnlyChecksTopFrame(t *testing.T) {
	rule := DenyWhileActive{Intent: "WhatCanYouDo", Dialogs: []dialog.ID{"CollectName"}, Reply: "no"}

	_, denied := rule.Check("WhatCanYouDo", dialog.NewStack([]*dialog.Instance{{ID: "CollectName"}, {ID: "CityPrompt"}}))
	assert.False(t, denied, "CollectName below the top must not deny")

	_, denied = rule.Check("WhatCanYouDo", dialog.NewStack([]*dialog.Instance{{ID: "CityPrompt"}, {ID: "CollectName"}}))
	assert.True(t, denied)
}

func TestConfirmedCancelAsksFirst(t *testing.T) {
	f := newFixture(t)
	f.send("Greeting", "hello")
	before := f.stackJSON()

	out, replies := f.send("Quit", "quit")
	assert.Equal(t, ActionConfirm, out.Action)
	assert.Equal(t, dialog.StatusWaiting, out.Result.Status)
	assert.Equal(t, []string{areYouSure}, replies)
	assert.Equal(t, before, f.stackJSON(), "stack must be unchanged while confirming")

	out, replies = f.send("None", "yes")
	assert.Equal(t, ActionCancelled, out.Action)
	assert.Equal(t, dialog.StatusCancelled, out.Result.Status)
	assert.Equal(t, []string{cancelledThat}, replies)
	assert.Empty(t, f.stack())
}

func TestDeclinedCancelRepromptsActiveDialog(t *testing.T) {
	f := newFixture(t)
	f.send("Greeting", "hello")
	before := f.stackJSON()

	f.send("Quit", "quit")
	out, replies := f.send("None", "no")
	assert.Equal(t, ActionDeclined, out.Action)
	assert.Equal(t, []string{"Ok, let's carry on.", "Who am I talking to?"}, replies)
	assert.Equal(t, before, f.stackJSON())

	_, replies = f.send("None", "Ada")
	assert.Equal(t, []string{"Where do you live?"}, replies)
}

func TestUnansweredConfirmationDispatchesTurn(t *testing.T) {
	f := newFixture(t)
	f.send("Greeting", "hello")
	f.send("Quit", "quit")

	_, replies := f.send("None", "Ada")
	assert.Equal(t, []string{"Where do you live?"}, replies)
	assert.Equal(t, []dialog.ID{"GreetingDialog", "CityPrompt"}, f.stack())

	// the question is not asked again once the flow moved on
	out, replies := f.send("None", "yes")
	assert.Equal(t, ActionContinued, out.Action)
	assert.Equal(t, []string{anythingElse}, replies)
}

func TestConfirmationSkippedOutsideListedDialogs(t *testing.T) {
	f := newFixture(t)
	f.send("Greeting", "hello")
	f.send("None", "Ada")
	require.Equal(t, []dialog.ID{"GreetingDialog", "CityPrompt"}, f.stack())

	out, replies := f.send("Quit", "quit")
	assert.Equal(t, ActionCancelled, out.Action)
	assert.Equal(t, []string{cancelledThat}, replies)
	assert.Empty(t, f.stack())
}
