package samplebot

import (
	"context"
	"fmt"
	"strings"

	"github.com/Anmol9893/botservice/pkg/dialog"
)

const (
	// collectNameMaxTurns bounds how long the bot keeps asking for a name.
	collectNameMaxTurns = 3
	keyTurns            = "turns"
	userNameEntity      = "userName"
	anonymousName       = "Human"
	wontSay             = "I won't give you my name"
)

// collectName asks who the user is. It understands a refusal, a "why do you
// ask", and names given as "my name is ..." or bare text.
type collectName struct{}

func newCollectName() *collectName { return &collectName{} }

func (c *collectName) ID() dialog.ID { return CollectName }

// Begin skips the question when the turn that started the dialog already
// named the user.
func (c *collectName) Begin(ctx context.Context, dc *dialog.Context, _ any) (dialog.Result, error) {
	dc.Active().State[keyTurns] = 0
	if name, ok := dc.Turn().State.Entity(userNameEntity); ok && strings.TrimSpace(name) != "" {
		return c.accept(ctx, dc, strings.TrimSpace(name))
	}
	dc.Send(c.question())
	return dialog.Waiting(), nil
}

func (c *collectName) Continue(ctx context.Context, dc *dialog.Context) (dialog.Result, error) {
	frame := dc.Active()
	turns := toInt(frame.State[keyTurns]) + 1
	frame.State[keyTurns] = turns
	if turns > collectNameMaxTurns {
		return c.anonymous(ctx, dc)
	}

	turn := dc.Turn()
	candidate := strings.TrimSpace(turn.Activity.Text)
	switch turn.State.Intent {
	case IntentNoName:
		return c.anonymous(ctx, dc)
	case IntentWhyDoYouAsk:
		dc.SendText("I need your name to be able to address you correctly!")
		dc.Send(c.question())
		return dialog.Waiting(), nil
	case IntentWhoAreYou:
		name, ok := turn.State.Entity(userNameEntity)
		if !ok {
			dc.SendText("Sorry, I didn't get that. What's your name?")
			return dialog.Waiting(), nil
		}
		candidate = strings.TrimSpace(name)
	}

	if candidate == "" {
		dc.Send(c.question())
		return dialog.Waiting(), nil
	}
	return c.accept(ctx, dc, candidate)
}

func (c *collectName) accept(ctx context.Context, dc *dialog.Context, candidate string) (dialog.Result, error) {
	if len(strings.Fields(candidate)) > 2 {
		dc.SendText("Sorry, I can only accept two words for a name.",
			"You can always say 'My name is <your name>' to introduce yourself to me.")
		if err := c.saveName(ctx, dc, anonymousName); err != nil {
			return dialog.Result{}, err
		}
		return dc.End(ctx, false)
	}

	name := capitalize(candidate)
	if err := c.saveName(ctx, dc, name); err != nil {
		return dialog.Result{}, err
	}
	dc.SendText(fmt.Sprintf("Hey there %s!", name))
	return dc.End(ctx, true)
}

func (c *collectName) Resume(_ context.Context, dc *dialog.Context, _ dialog.Reason, _ any) (dialog.Result, error) {
	dc.Send(c.question())
	return dialog.Waiting(), nil
}

func (c *collectName) Reprompt(_ context.Context, dc *dialog.Context) error {
	dc.Send(c.question())
	return nil
}

func (c *collectName) question() dialog.Reply {
	return dialog.Suggestions("What is your name?", wontSay)
}

func (c *collectName) anonymous(ctx context.Context, dc *dialog.Context) (dialog.Result, error) {
	if err := c.saveName(ctx, dc, anonymousName); err != nil {
		return dialog.Result{}, err
	}
	dc.SendText("No worries. Hello Human, nice to meet you!",
		"You can always say 'My name is <your name>' to introduce yourself to me.")
	return dc.End(ctx, false)
}

func (c *collectName) saveName(ctx context.Context, dc *dialog.Context, name string) error {
	userID := dc.Turn().Activity.UserID
	profile, _, err := profileProp.Get(ctx, dc.Storage(), userID)
	if err != nil {
		return err
	}
	profile.Name = name
	return profileProp.Set(dc.Storage(), userID, profile)
}

// toInt reads a counter that may have been through a JSON round trip.
func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}
