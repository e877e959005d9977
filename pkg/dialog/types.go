package dialog

import (
	"fmt"
	"strings"
	"unicode"
)

// ID identifies a registered dialog.
type ID string

// Validate checks that the identifier can be used as a registry key.
func (id ID) Validate() error {
	if strings.TrimSpace(string(id)) == "" {
		return fmt.Errorf("%w: empty dialog id", ErrInvalidID)
	}
	if strings.IndexFunc(string(id), unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: dialog id %q contains whitespace", ErrInvalidID, id)
	}
	return nil
}

func (id ID) String() string { return string(id) }

// Status is the outcome tag of a dialog turn.
type Status string

const (
	// StatusWaiting means the active dialog suspended until the next turn.
	StatusWaiting Status = "waiting"
	// StatusComplete means the dialog (or the whole stack) finished.
	StatusComplete Status = "complete"
	// StatusCancelled means the stack was cancelled.
	StatusCancelled Status = "cancelled"
)

// Reason explains why a parent dialog is being resumed.
type Reason string

const (
	ReasonBeginCalled    Reason = "begin_called"
	ReasonContinueCalled Reason = "continue_called"
	ReasonCompleted      Reason = "completed"
	ReasonGaveUp         Reason = "gave_up"
	ReasonCancelled      Reason = "cancelled"
)

// Result is the tagged outcome returned by every dialog operation.
type Result struct {
	Status Status `json:"status"`
	Value  any    `json:"value,omitempty"`
	Reason Reason `json:"reason,omitempty"`
}

// Waiting is the result of a dialog that suspended awaiting input.
func Waiting() Result { return Result{Status: StatusWaiting} }

// Complete is the result of a dialog that finished with a value.
func Complete(value any) Result {
	return Result{Status: StatusComplete, Value: value, Reason: ReasonCompleted}
}

// Cancelled is the result of a cancelled stack.
func Cancelled() Result {
	return Result{Status: StatusCancelled, Reason: ReasonCancelled}
}

// GaveUp reports whether the result ended because a prompt exhausted its retries.
func (r Result) GaveUp() bool { return r.Reason == ReasonGaveUp }

// Instance is one stack frame: an active dialog and its private state.
type Instance struct {
	ID    ID             `json:"id"`
	State map[string]any `json:"state"`
}

func newInstance(id ID) *Instance {
	return &Instance{ID: id, State: make(map[string]any)}
}

// Stack is the ordered set of active dialogs. The last frame is the active one.
type Stack struct {
	frames []*Instance
}

// NewStack creates a stack from persisted frames, bottom first.
func NewStack(frames []*Instance) *Stack {
	s := &Stack{frames: make([]*Instance, 0, len(frames))}
	for _, f := range frames {
		if f == nil {
			continue
		}
		if f.State == nil {
			f.State = make(map[string]any)
		}
		s.frames = append(s.frames, f)
	}
	return s
}

// Depth returns the number of frames.
func (s *Stack) Depth() int { return len(s.frames) }

// Empty reports whether no dialog is active.
func (s *Stack) Empty() bool { return len(s.frames) == 0 }

// Top returns the active frame or nil.
func (s *Stack) Top() *Instance {
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

// Contains reports whether a dialog with the given id is anywhere on the stack.
func (s *Stack) Contains(id ID) bool {
	for _, f := range s.frames {
		if f.ID == id {
			return true
		}
	}
	return false
}

// Frames returns a copy of the frame list, bottom first.
func (s *Stack) Frames() []*Instance {
	out := make([]*Instance, len(s.frames))
	copy(out, s.frames)
	return out
}

// IDs returns the dialog ids on the stack, bottom first.
func (s *Stack) IDs() []ID {
	ids := make([]ID, 0, len(s.frames))
	for _, f := range s.frames {
		ids = append(ids, f.ID)
	}
	return ids
}

func (s *Stack) push(inst *Instance) {
	s.frames = append(s.frames, inst)
}

func (s *Stack) pop() *Instance {
	if len(s.frames) == 0 {
		return nil
	}
	top := s.frames[len(s.frames)-1]
	s.frames[len(s.frames)-1] = nil
	s.frames = s.frames[:len(s.frames)-1]
	return top
}

func (s *Stack) clear() int {
	n := len(s.frames)
	for i := range s.frames {
		s.frames[i] = nil
	}
	s.frames = s.frames[:0]
	return n
}

// Clone returns a deep copy of the stack.
func (s *Stack) Clone() *Stack {
	out := &Stack{frames: make([]*Instance, 0, len(s.frames))}
	for _, f := range s.frames {
		out.frames = append(out.frames, &Instance{ID: f.ID, State: cloneMap(f.State)})
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return make(map[string]any)
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		cp := make([]any, len(t))
		for i, e := range t {
			cp[i] = cloneValue(e)
		}
		return cp
	case []string:
		cp := make([]string, len(t))
		copy(cp, t)
		return cp
	default:
		return v
	}
}
