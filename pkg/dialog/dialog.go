// Package dialog implements a stack-based conversation engine: dialogs are
// registered by id, begun onto a per-conversation stack and resumed across turns.
package dialog

import "context"

// Dialog is a resumable unit of conversation logic.
type Dialog interface {
	ID() ID
	// Begin runs when the dialog is pushed onto the stack.
	Begin(ctx context.Context, dc *Context, options any) (Result, error)
	// Continue runs when a new turn arrives and the dialog is on top.
	Continue(ctx context.Context, dc *Context) (Result, error)
	// Resume runs when a child dialog ended and this dialog is on top again.
	Resume(ctx context.Context, dc *Context, reason Reason, value any) (Result, error)
}

// Repromptable is implemented by dialogs that can repeat their last question.
type Repromptable interface {
	Reprompt(ctx context.Context, dc *Context) error
}

// Referencer is implemented by dialogs that begin other dialogs by id.
type Referencer interface {
	References() []ID
}

// Message is a dialog that sends fixed replies and ends immediately.
type Message struct {
	id      ID
	replies []Reply
	value   any
}

// NewMessage creates a dialog that sends replies and completes with no value.
func NewMessage(id ID, replies ...Reply) *Message {
	return &Message{id: id, replies: replies}
}

// WithValue sets the value the message dialog completes with.
func (m *Message) WithValue(v any) *Message {
	m.value = v
	return m
}

func (m *Message) ID() ID { return m.id }

func (m *Message) Begin(ctx context.Context, dc *Context, _ any) (Result, error) {
	dc.Send(m.replies...)
	return dc.End(ctx, m.value)
}

func (m *Message) Continue(ctx context.Context, dc *Context) (Result, error) {
	return dc.End(ctx, m.value)
}

func (m *Message) Resume(ctx context.Context, dc *Context, _ Reason, _ any) (Result, error) {
	return dc.End(ctx, m.value)
}
