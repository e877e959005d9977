package dispatch

import (
	"strings"

	"github.com/Anmol9893/botservice/pkg/dialog"
)

// Rule decides whether an intent may act on the current stack.
type Rule interface {
	// Check returns the explanation to send and true when the intent is denied.
	Check(intent string, stack *dialog.Stack) (reply string, denied bool)
}

// DenyWhileActive rejects Intent while one of Dialogs is the active (top)
// dialog, to keep strict data collection flows from being derailed. Parents
// lower on the stack do not count.
type DenyWhileActive struct {
	Intent  string
	Dialogs []dialog.ID
	Reply   string
}

func (r DenyWhileActive) Check(intent string, stack *dialog.Stack) (string, bool) {
	if !strings.EqualFold(intent, r.Intent) {
		return "", false
	}
	top := stack.Top()
	if top == nil {
		return "", false
	}
	for _, id := range r.Dialogs {
		if id == top.ID {
			return r.Reply, true
		}
	}
	return "", false
}

// DenyWhenIdle rejects Intent when no dialog is active, e.g. cancel with
// nothing to cancel.
type DenyWhenIdle struct {
	Intent string
	Reply  string
}

func (r DenyWhenIdle) Check(intent string, stack *dialog.Stack) (string, bool) {
	if strings.EqualFold(intent, r.Intent) && stack.Empty() {
		return r.Reply, true
	}
	return "", false
}

// Policy is an ordered list of rules; the first denial wins.
type Policy []Rule

// Evaluate returns the first denial for intent, if any.
func (p Policy) Evaluate(intent string, stack *dialog.Stack) (string, bool) {
	for _, r := range p {
		if reply, denied := r.Check(intent, stack); denied {
			return reply, true
		}
	}
	return "", false
}
