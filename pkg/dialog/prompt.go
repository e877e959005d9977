package dialog

import (
	"context"
	"fmt"

	"github.com/Anmol9893/botservice/pkg/events"
)

// DefaultMaxRetries bounds how many invalid answers a prompt accepts.
const DefaultMaxRetries = 3

const (
	keyAttempts = "attempts"
	keyPrompt   = "prompt"
	keyRetry    = "retry_prompt"
)

// Input is what a validator sees of the current turn.
type Input struct {
	Text     string
	Payload  map[string]any
	Entities map[string]any
	Attempt  int
}

// Validator parses input. ok is false when the answer must be asked again.
type Validator func(in Input) (value any, ok bool)

// PromptOptions override a prompt's texts for one invocation.
type PromptOptions struct {
	Prompt      string
	RetryPrompt string
}

// Prompt asks one question and validates the reply.
type Prompt struct {
	id          ID
	text        string
	retryText   string
	gaveUpText  string
	suggestions []string
	validator   Validator
	maxRetries  int
}

// PromptOption configures a Prompt.
type PromptOption func(*Prompt)

// WithRetryPrompt sets the text sent after an invalid answer.
func WithRetryPrompt(text string) PromptOption {
	return func(p *Prompt) { p.retryText = text }
}

// WithGaveUpMessage sets the text sent once retries are exhausted.
func WithGaveUpMessage(text string) PromptOption {
	return func(p *Prompt) { p.gaveUpText = text }
}

// WithMaxRetries sets the invalid answer budget. Values below one are raised to one.
func WithMaxRetries(n int) PromptOption {
	return func(p *Prompt) {
		if n < 1 {
			n = 1
		}
		p.maxRetries = n
	}
}

// WithSuggestions attaches suggested actions to the question.
func WithSuggestions(actions ...string) PromptOption {
	return func(p *Prompt) { p.suggestions = actions }
}

// NewPrompt creates a prompt asking text and validating replies with v.
func NewPrompt(id ID, text string, v Validator, opts ...PromptOption) (*Prompt, error) {
	if v == nil {
		return nil, fmt.Errorf("prompt %q: %w: validator", id, ErrMissingParameter)
	}
	if text == "" {
		return nil, fmt.Errorf("prompt %q: %w: prompt text", id, ErrMissingParameter)
	}
	p := &Prompt{id: id, text: text, validator: v, maxRetries: DefaultMaxRetries}
	for _, opt := range opts {
		opt(p)
	}
	if p.retryText == "" {
		p.retryText = p.text
	}
	return p, nil
}

func (p *Prompt) ID() ID { return p.id }

// MaxRetries returns the invalid answer budget.
func (p *Prompt) MaxRetries() int { return p.maxRetries }

func (p *Prompt) Begin(_ context.Context, dc *Context, options any) (Result, error) {
	frame := dc.Active()
	frame.State[keyAttempts] = 0
	if opts, ok := options.(PromptOptions); ok {
		if opts.Prompt != "" {
			frame.State[keyPrompt] = opts.Prompt
		}
		if opts.RetryPrompt != "" {
			frame.State[keyRetry] = opts.RetryPrompt
		}
	}
	dc.Send(p.question(frame, keyPrompt, p.text))
	return Waiting(), nil
}

func (p *Prompt) Continue(ctx context.Context, dc *Context) (Result, error) {
	frame := dc.Active()
	attempts := intValue(frame.State[keyAttempts])
	turn := dc.Turn()

	value, ok := p.validator(Input{
		Text:     turn.Activity.Text,
		Payload:  turn.Activity.Payload,
		Entities: turn.State.Entities,
		Attempt:  attempts,
	})
	if ok {
		return dc.End(ctx, value)
	}

	attempts++
	frame.State[keyAttempts] = attempts
	if attempts >= p.maxRetries {
		if p.gaveUpText != "" {
			dc.SendText(p.gaveUpText)
		}
		dc.emit(ctx, events.PromptGaveUp, &events.PromptGaveUpData{DialogID: string(p.id), Attempts: attempts})
		return dc.EndWithReason(ctx, ReasonGaveUp, nil)
	}

	retry := p.retryText
	if s, ok := frame.State[keyRetry].(string); ok && s != "" {
		retry = s
	}
	dc.Send(p.reply(retry))
	return Waiting(), nil
}

// Resume repeats the question; prompts never start children themselves.
func (p *Prompt) Resume(_ context.Context, dc *Context, _ Reason, _ any) (Result, error) {
	dc.Send(p.question(dc.Active(), keyPrompt, p.text))
	return Waiting(), nil
}

func (p *Prompt) Reprompt(_ context.Context, dc *Context) error {
	dc.Send(p.question(dc.Active(), keyPrompt, p.text))
	return nil
}

func (p *Prompt) question(frame *Instance, key, fallback string) Reply {
	text := fallback
	if s, ok := frame.State[key].(string); ok && s != "" {
		text = s
	}
	return p.reply(text)
}

func (p *Prompt) reply(text string) Reply {
	if len(p.suggestions) == 0 {
		return Text(text)
	}
	return Suggestions(text, p.suggestions...)
}

// intValue reads an integer stored in frame state, which decodes as float64
// after a JSON round-trip.
func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	case float32:
		return int(n)
	default:
		return 0
	}
}
