package dialog

import (
	"context"
	"encoding/json"
	"fmt"
)

const (
	keyStep    = "step"
	keyValues  = "values"
	keyOptions = "options"
)

// Step is one stage of a waterfall.
type Step func(ctx context.Context, sc *StepContext) (Result, error)

// StepContext is what a running step sees.
type StepContext struct {
	dc    *Context
	w     *Waterfall
	frame *Instance

	// Index is the position of the running step.
	Index int
	// Reason tells why the step runs.
	Reason Reason
	// Result is the value produced by the previous step, the resumed child or the turn text.
	Result any
}

// Context returns the dialog context.
func (sc *StepContext) Context() *Context { return sc.dc }

// Values returns the values accumulated by earlier steps. Writes persist with the frame.
func (sc *StepContext) Values() map[string]any {
	v, ok := sc.frame.State[keyValues].(map[string]any)
	if !ok {
		v = make(map[string]any)
		sc.frame.State[keyValues] = v
	}
	return v
}

// Options returns the begin options in their JSON-decoded form.
func (sc *StepContext) Options() any { return sc.frame.State[keyOptions] }

// Prompt begins a child dialog; its result is delivered to the next step.
func (sc *StepContext) Prompt(ctx context.Context, id ID, options any) (Result, error) {
	return sc.dc.Begin(ctx, id, options)
}

// Next skips straight to the following step with value.
func (sc *StepContext) Next(ctx context.Context, value any) (Result, error) {
	return sc.w.runStep(ctx, sc.dc, sc.frame, sc.Index+1, ReasonContinueCalled, value)
}

// End finishes the waterfall with value.
func (sc *StepContext) End(ctx context.Context, value any) (Result, error) {
	return sc.dc.End(ctx, value)
}

// Waterfall runs an ordered list of steps, one per turn or child result.
type Waterfall struct {
	id    ID
	steps []Step
	refs  []ID
}

// NewWaterfall creates a waterfall from steps.
func NewWaterfall(id ID, steps ...Step) (*Waterfall, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("waterfall %q: %w: steps", id, ErrMissingParameter)
	}
	for i, s := range steps {
		if s == nil {
			return nil, fmt.Errorf("waterfall %q: %w: step %d", id, ErrMissingParameter, i)
		}
	}
	return &Waterfall{id: id, steps: steps}, nil
}

// Uses declares the child dialogs the steps begin, checked by Registry.Validate.
func (w *Waterfall) Uses(ids ...ID) *Waterfall {
	w.refs = append(w.refs, ids...)
	return w
}

func (w *Waterfall) ID() ID { return w.id }

func (w *Waterfall) References() []ID { return w.refs }

// Len returns the number of steps.
func (w *Waterfall) Len() int { return len(w.steps) }

func (w *Waterfall) Begin(ctx context.Context, dc *Context, options any) (Result, error) {
	frame := dc.Active()
	frame.State[keyStep] = -1
	frame.State[keyValues] = make(map[string]any)
	if options != nil {
		opts, err := normalize(options)
		if err != nil {
			return Result{}, fmt.Errorf("waterfall %q: options: %w", w.id, err)
		}
		frame.State[keyOptions] = opts
	}
	return w.runStep(ctx, dc, frame, 0, ReasonBeginCalled, nil)
}

func (w *Waterfall) Continue(ctx context.Context, dc *Context) (Result, error) {
	frame := dc.Active()
	return w.runStep(ctx, dc, frame, intValue(frame.State[keyStep])+1, ReasonContinueCalled, dc.Turn().Activity.Text)
}

func (w *Waterfall) Resume(ctx context.Context, dc *Context, reason Reason, value any) (Result, error) {
	frame := dc.Active()
	return w.runStep(ctx, dc, frame, intValue(frame.State[keyStep])+1, reason, value)
}

// runStep runs step index; past the last step the waterfall ends with value.
func (w *Waterfall) runStep(ctx context.Context, dc *Context, frame *Instance, index int, reason Reason, value any) (Result, error) {
	if index >= len(w.steps) {
		return dc.End(ctx, value)
	}
	if cur := intValue(frame.State[keyStep]); index <= cur {
		return Result{}, fmt.Errorf("waterfall %q: step %d already ran (at %d): %w", w.id, index, cur, ErrInvalidState)
	}
	frame.State[keyStep] = index
	sc := &StepContext{dc: dc, w: w, frame: frame, Index: index, Reason: reason, Result: value}
	return w.steps[index](ctx, sc)
}

// normalize converts v to the shape it has after a JSON round-trip.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
