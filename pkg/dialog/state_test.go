package dialog

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestStateJSONRoundTrip(t *testing.T) {
	st := NewState()
	st.Stack.push(&Instance{ID: "main", State: map[string]any{"step": 1, "values": map[string]any{"name": "Ada"}}})
	st.Stack.push(newInstance("prompt"))
	st.Record(OpBegin, "main", ReasonBeginCalled)

	raw, err := json.Marshal(st)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	decoded := NewState()
	if err := json.Unmarshal(raw, decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := decoded.Stack.IDs(); !equalIDs(got, []ID{"main", "prompt"}) {
		t.Errorf("ids = %v", got)
	}
	if intValue(decoded.Stack.Frames()[0].State["step"]) != 1 {
		t.Errorf("step lost: %v", decoded.Stack.Frames()[0].State)
	}
	if decoded.Stack.Top().State == nil {
		t.Error("frame state must never be nil")
	}
	if len(decoded.History) != 1 {
		t.Errorf("history = %d, want 1", len(decoded.History))
	}
}

func TestStateEmptyStackMarshalsAsArray(t *testing.T) {
	raw, err := json.Marshal(NewState().Stack)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "[]" {
		t.Errorf("stack = %s, want []", raw)
	}
}

func TestStateHistoryEviction(t *testing.T) {
	st := NewState()
	st.SetMaxHistory(20)
	for range 25 {
		st.Record(OpBegin, "a", ReasonBeginCalled)
	}
	if len(st.History) > 20 {
		t.Errorf("history = %d, want <= 20", len(st.History))
	}
	if len(st.History) < 18 {
		t.Errorf("history = %d, evicted too much", len(st.History))
	}
}

func TestStateValidate(t *testing.T) {
	st := NewState()
	st.Stack.push(&Instance{ID: "ok", State: map[string]any{"n": 1.0, "list": []any{"a", 2.0}}})
	if err := st.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	st.Stack.push(&Instance{ID: "bad", State: map[string]any{"ch": make(chan int)}})
	if err := st.Validate(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}
}

func TestStackClone(t *testing.T) {
	s := NewStack([]*Instance{{ID: "a", State: map[string]any{"values": map[string]any{"k": "v"}}}})
	c := s.Clone()
	c.Top().State["values"].(map[string]any)["k"] = "changed"
	if s.Top().State["values"].(map[string]any)["k"] != "v" {
		t.Error("clone shares nested state")
	}
}
