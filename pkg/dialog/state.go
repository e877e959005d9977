package dialog

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// DefaultMaxHistory is the maximum number of stack records kept before eviction.
const DefaultMaxHistory = 100

// StackOp names a stack mutation recorded in the history.
type StackOp string

const (
	OpBegin   StackOp = "begin"
	OpEnd     StackOp = "end"
	OpCancel  StackOp = "cancel"
	OpReplace StackOp = "replace"
)

// StackRecord records a stack mutation for audit purposes.
type StackRecord struct {
	Op        StackOp   `json:"op"`
	DialogID  ID        `json:"dialog_id"`
	Depth     int       `json:"depth"`
	Reason    Reason    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// State is everything persisted per conversation by the engine.
type State struct {
	Stack   *Stack        `json:"stack"`
	History []StackRecord `json:"history,omitempty"`
	// Pending is an interruption intent waiting for the user's yes or no.
	Pending    string    `json:"pending,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
	maxHistory int
}

// NewState creates an empty conversation state.
func NewState() *State {
	return &State{Stack: NewStack(nil), maxHistory: DefaultMaxHistory}
}

// SetMaxHistory overrides the history cap. Values below one keep the default.
func (s *State) SetMaxHistory(n int) {
	if n > 0 {
		s.maxHistory = n
	}
}

func (s *State) ensure() {
	if s.Stack == nil {
		s.Stack = NewStack(nil)
	}
	if s.maxHistory <= 0 {
		s.maxHistory = DefaultMaxHistory
	}
}

// Record adds a stack mutation to the history.
// Evicts oldest 10% of entries when the history cap is reached.
func (s *State) Record(op StackOp, id ID, reason Reason) {
	s.ensure()
	if len(s.History) >= s.maxHistory {
		evict := s.maxHistory / 10
		if evict < 1 {
			evict = 1
		}
		s.History = s.History[evict:]
	}
	s.History = append(s.History, StackRecord{
		Op:        op,
		DialogID:  id,
		Depth:     s.Stack.Depth(),
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	})
}

// CopyHistory returns a snapshot of the stack history.
func (s *State) CopyHistory() []StackRecord {
	cp := make([]StackRecord, len(s.History))
	copy(cp, s.History)
	return cp
}

// Validate checks that every frame's state fits the Struct value model
// (null, bool, number, string, list, map), which is what survives a
// persistence round-trip unchanged.
func (s *State) Validate() error {
	s.ensure()
	for i, f := range s.Stack.frames {
		if err := f.ID.Validate(); err != nil {
			return fmt.Errorf("%w: frame %d: %v", ErrInvalidState, i, err)
		}
		if _, err := structpb.NewStruct(f.State); err != nil {
			return fmt.Errorf("%w: frame %d (%s): %v", ErrInvalidState, i, f.ID, err)
		}
	}
	return nil
}

// MarshalJSON encodes the frames bottom first.
func (s *Stack) MarshalJSON() ([]byte, error) {
	frames := s.frames
	if frames == nil {
		frames = []*Instance{}
	}
	return json.Marshal(frames)
}

// UnmarshalJSON decodes frames persisted by MarshalJSON.
func (s *Stack) UnmarshalJSON(data []byte) error {
	var frames []*Instance
	if err := json.Unmarshal(data, &frames); err != nil {
		return err
	}
	*s = *NewStack(frames)
	return nil
}
