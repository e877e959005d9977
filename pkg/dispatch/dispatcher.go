// Package dispatch decides, per turn, whether to continue the active dialog,
// interrupt it, or begin a new one based on the classified intent.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Anmol9893/botservice/pkg/dialog"
	"github.com/Anmol9893/botservice/pkg/events"
)

// ErrInvalidConfig is returned for dispatcher configurations that reference
// unknown dialogs or are otherwise unusable.
var ErrInvalidConfig = errors.New("invalid dispatcher config")

// Mode is how an interruption treats the active stack.
type Mode string

const (
	// ModeHandle runs a handler and leaves the stack untouched.
	ModeHandle Mode = "handle"
	// ModeReplace cancels the stack and begins a dialog at the root.
	ModeReplace Mode = "replace"
	// ModeCancel cancels the stack.
	ModeCancel Mode = "cancel"
)

// Handler runs for ModeHandle interruptions.
type Handler func(ctx context.Context, dc *dialog.Context) error

// Interruption diverts an intent away from the active dialog.
type Interruption struct {
	Intent string
	Mode   Mode
	// Handler runs for ModeHandle.
	Handler Handler
	// Reprompt asks the active dialog to repeat its question after Handler.
	Reprompt bool
	// Dialog is begun for ModeReplace.
	Dialog dialog.ID
	// Message is sent for ModeCancel.
	Message string
	// Confirm, when set, asks the user before the interruption touches an
	// active stack.
	Confirm *Confirmation
}

// Confirmation is the yes/no question asked before an interruption runs.
// A yes runs the interruption, a no keeps the stack and reprompts the active
// dialog. Any other answer drops the question and the turn is dispatched as
// usual.
type Confirmation struct {
	Prompt string
	// Accepted replaces the interruption's Message after a yes.
	Accepted string
	// Declined is sent before the reprompt when the user answers no.
	Declined string
	// Dialogs limits the question to these active dialogs. Empty means any.
	Dialogs []dialog.ID
}

func (c *Confirmation) applies(stack *dialog.Stack) bool {
	top := stack.Top()
	if c == nil || top == nil {
		return false
	}
	if len(c.Dialogs) == 0 {
		return true
	}
	for _, id := range c.Dialogs {
		if id == top.ID {
			return true
		}
	}
	return false
}

// Config is built once at startup.
type Config struct {
	// Routes maps intents to the dialog begun for them.
	Routes map[string]dialog.ID
	// Default is begun when no route matches and the stack is empty.
	Default       dialog.ID
	Interruptions []Interruption
	Policy        Policy
	// Fallback is sent when nothing handles a turn.
	Fallback []string
	// Completed is sent when the active dialog completes on a continued turn.
	Completed string
	// Welcome is sent when members join the conversation.
	Welcome []dialog.Reply
}

// Action names what the dispatcher did with a turn.
type Action string

const (
	ActionContinued Action = "continued"
	ActionBegan     Action = "began"
	ActionHandled   Action = "handled"
	ActionReplaced  Action = "replaced"
	ActionCancelled Action = "cancelled"
	ActionConfirm   Action = "confirm"
	ActionDeclined  Action = "declined"
	ActionRejected  Action = "rejected"
	ActionFallback  Action = "fallback"
	ActionWelcomed  Action = "welcomed"
	ActionIgnored   Action = "ignored"
)

// Outcome describes a dispatched turn.
type Outcome struct {
	Action Action
	Intent string
	Dialog dialog.ID
	Result dialog.Result
}

// Dispatcher is the root router.
type Dispatcher struct {
	cfg           Config
	routes        map[string]dialog.ID
	interruptions map[string]Interruption
	emitter       dialog.Emitter
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithEmitter routes rejection events to e.
func WithEmitter(e dialog.Emitter) Option {
	return func(d *Dispatcher) {
		d.emitter = e
	}
}

// New creates a dispatcher. Intent names are matched case-insensitively.
func New(cfg Config, opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		cfg:           cfg,
		routes:        make(map[string]dialog.ID, len(cfg.Routes)),
		interruptions: make(map[string]Interruption, len(cfg.Interruptions)),
	}
	for intent, id := range cfg.Routes {
		d.routes[strings.ToLower(intent)] = id
	}
	for _, in := range cfg.Interruptions {
		key := strings.ToLower(in.Intent)
		if key == "" {
			return nil, fmt.Errorf("%w: interruption without intent", ErrInvalidConfig)
		}
		switch in.Mode {
		case ModeHandle:
			if in.Handler == nil && !in.Reprompt {
				return nil, fmt.Errorf("%w: interruption %q: handler is required", ErrInvalidConfig, in.Intent)
			}
		case ModeReplace:
			if in.Dialog == "" {
				return nil, fmt.Errorf("%w: interruption %q: dialog is required", ErrInvalidConfig, in.Intent)
			}
		case ModeCancel:
		default:
			return nil, fmt.Errorf("%w: interruption %q: unknown mode %q", ErrInvalidConfig, in.Intent, in.Mode)
		}
		if in.Confirm != nil && in.Confirm.Prompt == "" {
			return nil, fmt.Errorf("%w: interruption %q: confirmation prompt is required", ErrInvalidConfig, in.Intent)
		}
		d.interruptions[key] = in
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Validate checks every dialog the dispatcher may begin against reg.
func (d *Dispatcher) Validate(reg *dialog.Registry) error {
	check := func(what string, id dialog.ID) error {
		if id != "" && !reg.Has(id) {
			return fmt.Errorf("%w: %s: %q: %w", ErrInvalidConfig, what, id, dialog.ErrUnknownDialog)
		}
		return nil
	}
	for intent, id := range d.routes {
		if err := check("route "+intent, id); err != nil {
			return err
		}
	}
	for intent, in := range d.interruptions {
		if err := check("interruption "+intent, in.Dialog); err != nil {
			return err
		}
	}
	return check("default", d.cfg.Default)
}

// Route returns the dialog routed for intent.
func (d *Dispatcher) Route(intent string) (dialog.ID, bool) {
	id, ok := d.routes[strings.ToLower(intent)]
	return id, ok
}

// Dispatch handles one turn against dc.
func (d *Dispatcher) Dispatch(ctx context.Context, dc *dialog.Context) (Outcome, error) {
	turn := dc.Turn()
	if turn.Activity.Kind == dialog.ActivityConversationUpdate {
		return d.welcome(dc), nil
	}

	if pending := dc.State().Pending; pending != "" {
		dc.State().Pending = ""
		if out, ok, err := d.answerPending(ctx, dc, pending); ok || err != nil {
			return out, err
		}
	}

	intent := turn.State.Intent
	stack := dc.Stack()

	if reply, denied := d.cfg.Policy.Evaluate(intent, stack); denied {
		dc.SendText(reply)
		var active string
		if top := stack.Top(); top != nil {
			active = string(top.ID)
		}
		d.emit(ctx, dc, events.InterruptionRejected, &events.InterruptionRejectedData{
			Intent: intent, Active: active, Reply: reply,
		})
		return Outcome{Action: ActionRejected, Intent: intent, Result: idleOrWaiting(stack)}, nil
	}

	if in, ok := d.interruptions[strings.ToLower(intent)]; ok {
		if in.Confirm.applies(stack) {
			dc.State().Pending = in.Intent
			dc.Send(dialog.Suggestions(in.Confirm.Prompt, "yes", "no"))
			return Outcome{Action: ActionConfirm, Intent: in.Intent, Result: dialog.Waiting()}, nil
		}
		return d.interrupt(ctx, dc, in)
	}

	if !stack.Empty() {
		return d.continueActive(ctx, dc, intent)
	}
	return d.beginRouted(ctx, dc, intent, true)
}

// answerPending resolves a confirmation asked on the previous turn. ok is
// false when the turn is not a yes or no and must be dispatched normally.
func (d *Dispatcher) answerPending(ctx context.Context, dc *dialog.Context, intent string) (Outcome, bool, error) {
	in, found := d.interruptions[strings.ToLower(intent)]
	if !found || dc.Stack().Empty() {
		return Outcome{}, false, nil
	}
	a := dc.Turn().Activity
	answer, valid := dialog.ConfirmValidator()(dialog.Input{Text: a.Text, Payload: a.Payload})
	if !valid {
		return Outcome{}, false, nil
	}
	if yes, _ := answer.(bool); yes {
		if in.Confirm != nil && in.Confirm.Accepted != "" {
			in.Message = in.Confirm.Accepted
		}
		out, err := d.interrupt(ctx, dc, in)
		return out, true, err
	}

	if in.Confirm != nil && in.Confirm.Declined != "" {
		dc.SendText(in.Confirm.Declined)
	}
	if err := dc.Reprompt(ctx); err != nil {
		return Outcome{}, true, fmt.Errorf("interruption %q: reprompt: %w", in.Intent, err)
	}
	return Outcome{Action: ActionDeclined, Intent: in.Intent, Result: idleOrWaiting(dc.Stack())}, true, nil
}

func (d *Dispatcher) interrupt(ctx context.Context, dc *dialog.Context, in Interruption) (Outcome, error) {
	switch in.Mode {
	case ModeHandle:
		if in.Handler != nil {
			if err := in.Handler(ctx, dc); err != nil {
				return Outcome{}, fmt.Errorf("interruption %q: %w", in.Intent, err)
			}
		}
		if in.Reprompt {
			if err := dc.Reprompt(ctx); err != nil {
				return Outcome{}, fmt.Errorf("interruption %q: reprompt: %w", in.Intent, err)
			}
		}
		return Outcome{Action: ActionHandled, Intent: in.Intent, Result: idleOrWaiting(dc.Stack())}, nil

	case ModeReplace:
		dc.CancelAll(ctx)
		res, err := dc.Begin(ctx, in.Dialog, nil)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Action: ActionReplaced, Intent: in.Intent, Dialog: in.Dialog, Result: res}, nil

	default:
		res := dc.CancelAll(ctx)
		if in.Message != "" {
			dc.SendText(in.Message)
		}
		return Outcome{Action: ActionCancelled, Intent: in.Intent, Result: res}, nil
	}
}

// continueActive forwards the turn to the active dialog. When nothing was
// sent and the dialog did not complete, nobody handled the turn and the
// routed child is begun instead.
func (d *Dispatcher) continueActive(ctx context.Context, dc *dialog.Context, intent string) (Outcome, error) {
	active := dc.Active().ID
	res, err := dc.Continue(ctx)
	if err != nil {
		return Outcome{}, err
	}

	if res.Status == dialog.StatusComplete {
		if d.cfg.Completed != "" {
			dc.SendText(d.cfg.Completed)
		}
		return Outcome{Action: ActionContinued, Intent: intent, Dialog: active, Result: res}, nil
	}
	if !dc.Turn().Responded() {
		return d.beginRouted(ctx, dc, intent, false)
	}
	return Outcome{Action: ActionContinued, Intent: intent, Dialog: active, Result: res}, nil
}

func (d *Dispatcher) beginRouted(ctx context.Context, dc *dialog.Context, intent string, useDefault bool) (Outcome, error) {
	id, ok := d.Route(intent)
	if !ok && useDefault && d.cfg.Default != "" {
		id, ok = d.cfg.Default, true
	}
	if !ok {
		dc.SendText(d.cfg.Fallback...)
		return Outcome{Action: ActionFallback, Intent: intent, Result: idleOrWaiting(dc.Stack())}, nil
	}

	res, err := dc.Begin(ctx, id, nil)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Action: ActionBegan, Intent: intent, Dialog: id, Result: res}, nil
}

func (d *Dispatcher) welcome(dc *dialog.Context) Outcome {
	a := dc.Turn().Activity
	for _, member := range a.MembersAdded {
		if member != a.RecipientID {
			dc.Send(d.cfg.Welcome...)
			return Outcome{Action: ActionWelcomed, Result: idleOrWaiting(dc.Stack())}
		}
	}
	return Outcome{Action: ActionIgnored, Result: idleOrWaiting(dc.Stack())}
}

func (d *Dispatcher) emit(ctx context.Context, dc *dialog.Context, et events.EventType, data any) {
	if d.emitter == nil {
		return
	}
	if err := d.emitter.Emit(ctx, et, dc.Turn().Activity.ConversationID, data); err != nil {
		slog.WarnContext(ctx, "emit event failed",
			slog.String("event_type", string(et)), slog.String("error", err.Error()))
	}
}

func idleOrWaiting(stack *dialog.Stack) dialog.Result {
	if stack.Empty() {
		return dialog.Complete(nil)
	}
	return dialog.Waiting()
}
