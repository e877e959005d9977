package dialog

import (
	"context"
	"fmt"
	"regexp"

	"github.com/Anmol9893/botservice/pkg/state"
)

// Slot types understood by declarative forms.
const (
	SlotText    = "text"
	SlotNumber  = "number"
	SlotChoice  = "choice"
	SlotConfirm = "confirm"
	SlotRegex   = "regex"
)

// Definition is a declarative form: a sequence of typed slots collected one
// prompt at a time, loaded from YAML.
type Definition struct {
	Name        string           `yaml:"name"`
	Description string           `yaml:"description,omitempty"`
	Intents     []string         `yaml:"intents,omitempty"`
	Steps       []SlotDefinition `yaml:"steps"`
	Completion  string           `yaml:"completion,omitempty"`
	GaveUp      string           `yaml:"gave_up,omitempty"`
	SaveTo      string           `yaml:"save_to,omitempty"`
}

// SlotDefinition describes one collected value.
type SlotDefinition struct {
	Slot        string   `yaml:"slot"`
	Prompt      string   `yaml:"prompt"`
	RetryPrompt string   `yaml:"retry_prompt,omitempty"`
	Type        string   `yaml:"type,omitempty"`
	Choices     []string `yaml:"choices,omitempty"`
	Pattern     string   `yaml:"pattern,omitempty"`
	Min         *float64 `yaml:"min,omitempty"`
	Max         *float64 `yaml:"max,omitempty"`
	MaxWords    int      `yaml:"max_words,omitempty"`
	MaxRetries  int      `yaml:"max_retries,omitempty"`
	SkipIf      string   `yaml:"skip_if,omitempty"`
}

// PromptID returns the id of the prompt compiled for slot.
func (d *Definition) PromptID(slot string) ID {
	return ID(d.Name + "/" + slot)
}

// Validate checks the definition for consistency.
func (d *Definition) Validate() error {
	if err := ID(d.Name).Validate(); err != nil {
		return fmt.Errorf("%w: name: %v", ErrInvalidDefinition, err)
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("%w: dialog %q: at least one step is required", ErrInvalidDefinition, d.Name)
	}

	seen := make(map[string]bool, len(d.Steps))
	for i, s := range d.Steps {
		if s.Slot == "" {
			return fmt.Errorf("%w: dialog %q step %d: slot is required", ErrInvalidDefinition, d.Name, i)
		}
		if seen[s.Slot] {
			return fmt.Errorf("%w: dialog %q step %d: duplicate slot %q", ErrInvalidDefinition, d.Name, i, s.Slot)
		}
		seen[s.Slot] = true
		if err := d.PromptID(s.Slot).Validate(); err != nil {
			return fmt.Errorf("%w: dialog %q step %d: %v", ErrInvalidDefinition, d.Name, i, err)
		}
		if s.Prompt == "" {
			return fmt.Errorf("%w: dialog %q slot %q: prompt is required", ErrInvalidDefinition, d.Name, s.Slot)
		}
		for _, text := range []string{s.Prompt, s.RetryPrompt, s.SkipIf} {
			if _, err := parseTemplate(text); err != nil {
				return fmt.Errorf("%w: dialog %q slot %q: template: %v", ErrInvalidDefinition, d.Name, s.Slot, err)
			}
		}
		switch s.Type {
		case "", SlotText, SlotNumber, SlotConfirm:
		case SlotChoice:
			if len(s.Choices) == 0 {
				return fmt.Errorf("%w: dialog %q slot %q: choices are required", ErrInvalidDefinition, d.Name, s.Slot)
			}
		case SlotRegex:
			if _, err := regexp.Compile(s.Pattern); err != nil || s.Pattern == "" {
				return fmt.Errorf("%w: dialog %q slot %q: invalid pattern %q", ErrInvalidDefinition, d.Name, s.Slot, s.Pattern)
			}
		default:
			return fmt.Errorf("%w: dialog %q slot %q: unknown type %q", ErrInvalidDefinition, d.Name, s.Slot, s.Type)
		}
	}
	if _, err := parseTemplate(d.Completion); err != nil {
		return fmt.Errorf("%w: dialog %q: completion template: %v", ErrInvalidDefinition, d.Name, err)
	}
	return nil
}

func (s SlotDefinition) validator() Validator {
	switch s.Type {
	case SlotNumber:
		return NumberValidator(s.Min, s.Max)
	case SlotChoice:
		return ChoiceValidator(s.Choices...)
	case SlotConfirm:
		return ConfirmValidator()
	case SlotRegex:
		return RegexValidator(regexp.MustCompile(s.Pattern))
	default:
		return TextValidator(s.MaxWords)
	}
}

// Compile builds the form's waterfall and one prompt per slot. The waterfall
// is registered under the definition name. defaultRetries applies to slots
// without max_retries.
func (d *Definition) Compile(defaultRetries int) ([]Dialog, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	dialogs := make([]Dialog, 0, len(d.Steps)+1)
	steps := make([]Step, 0, len(d.Steps)*2+1)
	refs := make([]ID, 0, len(d.Steps))

	for _, slot := range d.Steps {
		retries := slot.MaxRetries
		if retries <= 0 {
			retries = defaultRetries
		}
		opts := []PromptOption{WithMaxRetries(retries), WithGaveUpMessage(d.GaveUp)}
		if slot.RetryPrompt != "" {
			opts = append(opts, WithRetryPrompt(slot.RetryPrompt))
		}
		if slot.Type == SlotChoice {
			opts = append(opts, WithSuggestions(slot.Choices...))
		}
		id := d.PromptID(slot.Slot)
		p, err := NewPrompt(id, slot.Prompt, slot.validator(), opts...)
		if err != nil {
			return nil, err
		}
		dialogs = append(dialogs, p)
		refs = append(refs, id)
		steps = append(steps, d.askStep(slot, id), d.storeStep(slot))
	}
	steps = append(steps, d.finishStep())

	w, err := NewWaterfall(ID(d.Name), steps...)
	if err != nil {
		return nil, err
	}
	return append([]Dialog{w.Uses(refs...)}, dialogs...), nil
}

// beganThisTurn reports whether the form was begun during the current turn,
// which is the only turn whose entities may prefill slots.
func (d *Definition) beganThisTurn(sc *StepContext) bool {
	marker := "form.began/" + d.Name
	ts := &sc.Context().Turn().State
	if ts.Values == nil {
		ts.Values = make(map[string]any)
	}
	values := ts.Values
	if sc.Index == 0 && sc.Reason == ReasonBeginCalled {
		values[marker] = true
	}
	began, _ := values[marker].(bool)
	return began
}

// askStep prompts for a slot unless skip_if holds or the turn already carries
// an entity named after the slot.
func (d *Definition) askStep(slot SlotDefinition, id ID) Step {
	return func(ctx context.Context, sc *StepContext) (Result, error) {
		dc := sc.Context()
		began := d.beganThisTurn(sc)
		data := NewTemplateData(dc.Turn(), sc.Values())
		skip, err := EvalCondition(slot.SkipIf, data)
		if err != nil {
			return Result{}, fmt.Errorf("dialog %q slot %q: skip_if: %w", d.Name, slot.Slot, err)
		}
		if skip {
			return sc.Next(ctx, nil)
		}
		if v, ok := dc.Turn().State.Entities[slot.Slot]; ok && began {
			if val, valid := slot.validator()(Input{Text: fmt.Sprint(v)}); valid {
				return sc.Next(ctx, val)
			}
		}

		prompt, err := Render(slot.Prompt, data)
		if err != nil {
			return Result{}, fmt.Errorf("dialog %q slot %q: prompt: %w", d.Name, slot.Slot, err)
		}
		retry, err := Render(slot.RetryPrompt, data)
		if err != nil {
			return Result{}, fmt.Errorf("dialog %q slot %q: retry prompt: %w", d.Name, slot.Slot, err)
		}
		return sc.Prompt(ctx, id, PromptOptions{Prompt: prompt, RetryPrompt: retry})
	}
}

func (d *Definition) storeStep(slot SlotDefinition) Step {
	return func(ctx context.Context, sc *StepContext) (Result, error) {
		if sc.Reason == ReasonGaveUp {
			return sc.Context().EndWithReason(ctx, ReasonGaveUp, nil)
		}
		if sc.Result != nil {
			sc.Values()[slot.Slot] = sc.Result
		}
		return sc.Next(ctx, sc.Result)
	}
}

func (d *Definition) finishStep() Step {
	return func(ctx context.Context, sc *StepContext) (Result, error) {
		dc := sc.Context()
		values := sc.Values()
		if d.SaveTo != "" {
			prop := state.NewProperty[map[string]any](state.ScopeUser, d.SaveTo)
			if err := prop.Set(dc.Storage(), dc.Turn().Activity.UserID, values); err != nil {
				return Result{}, fmt.Errorf("dialog %q: save: %w", d.Name, err)
			}
		}
		if d.Completion != "" {
			text, err := Render(d.Completion, NewTemplateData(dc.Turn(), values))
			if err != nil {
				return Result{}, fmt.Errorf("dialog %q: completion: %w", d.Name, err)
			}
			dc.SendText(text)
		}
		return sc.End(ctx, values)
	}
}
