package dialog

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/Anmol9893/botservice/pkg/events"
	"github.com/Anmol9893/botservice/pkg/state"
)

type recordedEvent struct {
	Type events.EventType
	Data any
}

type recordingEmitter struct {
	events []recordedEvent
}

func (r *recordingEmitter) Emit(_ context.Context, et events.EventType, _ string, data any) error {
	r.events = append(r.events, recordedEvent{Type: et, Data: data})
	return nil
}

func (r *recordingEmitter) count(et events.EventType) int {
	n := 0
	for _, e := range r.events {
		if e.Type == et {
			n++
		}
	}
	return n
}

// harness drives a registry turn by turn, persisting state through JSON
// between turns the way the store does.
type harness struct {
	t        *testing.T
	registry *Registry
	store    *state.MemoryStore
	raw      []byte
	emitter  *recordingEmitter
}

func newHarness(t *testing.T, dialogs ...Dialog) *harness {
	t.Helper()
	reg, err := NewRegistry(dialogs...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	raw, err := json.Marshal(NewState())
	if err != nil {
		t.Fatalf("marshal state: %v", err)
	}
	return &harness{t: t, registry: reg, store: state.NewMemoryStore(), raw: raw, emitter: &recordingEmitter{}}
}

// turn opens a context for text, runs fn and persists the resulting state.
func (h *harness) turn(text string, fn func(ctx context.Context, dc *Context) (Result, error)) (Result, []string) {
	h.t.Helper()
	ctx := h.t.Context()

	st := NewState()
	if err := json.Unmarshal(h.raw, st); err != nil {
		h.t.Fatalf("unmarshal state: %v", err)
	}
	turn := NewTurn(Activity{ConversationID: "conv-1", UserID: "user-1", Text: text})
	batch := state.NewBatch(h.store)
	dc, err := NewContext(h.registry, st, turn, batch, WithEmitter(h.emitter))
	if err != nil {
		h.t.Fatalf("NewContext: %v", err)
	}

	res, err := fn(ctx, dc)
	if err != nil {
		h.t.Fatalf("turn %q: %v", text, err)
	}
	if err := st.Validate(); err != nil {
		h.t.Fatalf("validate state: %v", err)
	}
	h.raw, err = json.Marshal(st)
	if err != nil {
		h.t.Fatalf("marshal state: %v", err)
	}
	if err := batch.Commit(ctx); err != nil {
		h.t.Fatalf("commit: %v", err)
	}

	var texts []string
	for _, r := range turn.Replies() {
		texts = append(texts, r.Text)
	}
	return res, texts
}

func (h *harness) begin(id ID, text string) (Result, []string) {
	return h.turn(text, func(ctx context.Context, dc *Context) (Result, error) {
		return dc.Begin(ctx, id, nil)
	})
}

func (h *harness) cont(text string) (Result, []string) {
	return h.turn(text, func(ctx context.Context, dc *Context) (Result, error) {
		return dc.Continue(ctx)
	})
}

func (h *harness) state() *State {
	h.t.Helper()
	st := NewState()
	if err := json.Unmarshal(h.raw, st); err != nil {
		h.t.Fatalf("unmarshal state: %v", err)
	}
	return st
}

func mustPrompt(t *testing.T, id ID, text string, v Validator, opts ...PromptOption) *Prompt {
	t.Helper()
	p, err := NewPrompt(id, text, v, opts...)
	if err != nil {
		t.Fatalf("NewPrompt: %v", err)
	}
	return p
}

func mustWaterfall(t *testing.T, id ID, steps ...Step) *Waterfall {
	t.Helper()
	w, err := NewWaterfall(id, steps...)
	if err != nil {
		t.Fatalf("NewWaterfall: %v", err)
	}
	return w
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

type ctxT = context.Context
