package dialog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Anmol9893/botservice/pkg/events"
	"github.com/Anmol9893/botservice/pkg/state"
)

// Emitter receives engine diagnostics. *events.Publisher satisfies it.
type Emitter interface {
	Emit(ctx context.Context, eventType events.EventType, conversationID string, data any) error
}

// Context is the per-turn handle binding one turn to one conversation's stack.
// It is the only way dialogs mutate the stack.
type Context struct {
	registry *Registry
	st       *State
	turn     *Turn
	batch    *state.Batch
	emitter  Emitter
}

// ContextOption configures a Context.
type ContextOption func(*Context)

// WithEmitter routes stack events to e.
func WithEmitter(e Emitter) ContextOption {
	return func(dc *Context) {
		dc.emitter = e
	}
}

// NewContext binds registry, persisted state, turn and storage batch for one turn.
func NewContext(registry *Registry, st *State, turn *Turn, batch *state.Batch, opts ...ContextOption) (*Context, error) {
	switch {
	case registry == nil:
		return nil, fmt.Errorf("dialog context: %w: registry", ErrMissingParameter)
	case turn == nil:
		return nil, fmt.Errorf("dialog context: %w: turn", ErrMissingParameter)
	case batch == nil:
		return nil, fmt.Errorf("dialog context: %w: storage batch", ErrMissingParameter)
	}
	if st == nil {
		st = NewState()
	}
	st.ensure()
	dc := &Context{registry: registry, st: st, turn: turn, batch: batch}
	for _, opt := range opts {
		opt(dc)
	}
	return dc, nil
}

// Turn returns the turn being handled.
func (dc *Context) Turn() *Turn { return dc.turn }

// Storage returns the turn's state batch.
func (dc *Context) Storage() *state.Batch { return dc.batch }

// Registry returns the dialog registry.
func (dc *Context) Registry() *Registry { return dc.registry }

// Stack returns the live stack.
func (dc *Context) Stack() *Stack { return dc.st.Stack }

// State returns the persisted conversation state.
func (dc *Context) State() *State { return dc.st }

// Active returns the top frame, or nil when the stack is empty.
func (dc *Context) Active() *Instance { return dc.st.Stack.Top() }

// Send queues replies on the turn.
func (dc *Context) Send(replies ...Reply) { dc.turn.Send(replies...) }

// SendText queues plain text replies on the turn.
func (dc *Context) SendText(texts ...string) {
	for _, t := range texts {
		dc.turn.Send(Text(t))
	}
}

// Begin pushes the dialog registered as id and runs its Begin. An unknown id
// fails with ErrUnknownDialog before the stack is touched.
func (dc *Context) Begin(ctx context.Context, id ID, options any) (Result, error) {
	d, err := dc.registry.Resolve(id)
	if err != nil {
		return Result{}, err
	}
	dc.st.Stack.push(newInstance(id))
	dc.st.Record(OpBegin, id, ReasonBeginCalled)
	dc.emit(ctx, events.DialogBegun, &events.DialogData{DialogID: string(id), Depth: dc.st.Stack.Depth()})
	return d.Begin(ctx, dc, options)
}

// Continue forwards the turn to the active dialog. With an empty stack it
// returns Complete immediately.
func (dc *Context) Continue(ctx context.Context) (Result, error) {
	top := dc.st.Stack.Top()
	if top == nil {
		return Complete(nil), nil
	}
	d, err := dc.registry.Resolve(top.ID)
	if err != nil {
		return Result{}, err
	}
	return d.Continue(ctx, dc)
}

// End pops the active dialog and resumes its parent with value.
func (dc *Context) End(ctx context.Context, value any) (Result, error) {
	return dc.EndWithReason(ctx, ReasonCompleted, value)
}

// EndWithReason pops the active dialog and resumes its parent with reason and
// value. When the stack becomes empty the result is surfaced to the caller.
func (dc *Context) EndWithReason(ctx context.Context, reason Reason, value any) (Result, error) {
	ended := dc.st.Stack.pop()
	if ended != nil {
		dc.st.Record(OpEnd, ended.ID, reason)
		dc.emit(ctx, events.DialogEnded, &events.DialogData{
			DialogID: string(ended.ID),
			Depth:    dc.st.Stack.Depth(),
			Reason:   string(reason),
		})
	}

	parent := dc.st.Stack.Top()
	if parent == nil {
		return Result{Status: StatusComplete, Value: value, Reason: reason}, nil
	}
	d, err := dc.registry.Resolve(parent.ID)
	if err != nil {
		return Result{}, err
	}
	return d.Resume(ctx, dc, reason, value)
}

// CancelAll discards every frame without resuming parents.
func (dc *Context) CancelAll(ctx context.Context) Result {
	top := dc.st.Stack.Top()
	n := dc.st.Stack.clear()
	if top != nil {
		dc.st.Record(OpCancel, top.ID, ReasonCancelled)
		dc.emit(ctx, events.DialogCancelled, &events.DialogData{
			DialogID: string(top.ID),
			Depth:    n,
			Reason:   string(ReasonCancelled),
		})
	}
	return Cancelled()
}

// Replace swaps the active dialog for id without resuming the parent.
func (dc *Context) Replace(ctx context.Context, id ID, options any) (Result, error) {
	d, err := dc.registry.Resolve(id)
	if err != nil {
		return Result{}, err
	}
	if old := dc.st.Stack.pop(); old != nil {
		dc.st.Record(OpReplace, old.ID, ReasonCancelled)
	}
	dc.st.Stack.push(newInstance(id))
	dc.st.Record(OpBegin, id, ReasonBeginCalled)
	dc.emit(ctx, events.DialogBegun, &events.DialogData{DialogID: string(id), Depth: dc.st.Stack.Depth()})
	return d.Begin(ctx, dc, options)
}

// Reprompt asks the active dialog to repeat its question, if it can.
func (dc *Context) Reprompt(ctx context.Context) error {
	top := dc.st.Stack.Top()
	if top == nil {
		return nil
	}
	d, err := dc.registry.Resolve(top.ID)
	if err != nil {
		return err
	}
	if rp, ok := d.(Repromptable); ok {
		return rp.Reprompt(ctx, dc)
	}
	return nil
}

func (dc *Context) emit(ctx context.Context, eventType events.EventType, data any) {
	if dc.emitter == nil {
		return
	}
	if err := dc.emitter.Emit(ctx, eventType, dc.turn.Activity.ConversationID, data); err != nil {
		slog.WarnContext(ctx, "emit event failed",
			slog.String("event_type", string(eventType)), slog.String("error", err.Error()))
	}
}
