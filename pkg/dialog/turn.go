package dialog

import (
	"fmt"
	"sync"
	"time"
)

// ActivityKind distinguishes inbound activities.
type ActivityKind string

const (
	ActivityMessage            ActivityKind = "message"
	ActivityConversationUpdate ActivityKind = "conversation_update"
	ActivityEvent              ActivityKind = "event"
)

// Activity is one inbound interaction delivered by the host.
type Activity struct {
	ID             string         `json:"id,omitempty"`
	Kind           ActivityKind   `json:"kind"`
	ChannelID      string         `json:"channel_id,omitempty"`
	ConversationID string         `json:"conversation_id"`
	UserID         string         `json:"user_id"`
	RecipientID    string         `json:"recipient_id,omitempty"`
	Text           string         `json:"text,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
	MembersAdded   []string       `json:"members_added,omitempty"`
	ReplyTo        string         `json:"reply_to,omitempty"`
	Locale         string         `json:"locale,omitempty"`
	Timestamp      time.Time      `json:"timestamp,omitempty"`
}

// Validate checks the fields every turn needs.
func (a *Activity) Validate() error {
	if a.ConversationID == "" {
		return fmt.Errorf("activity: conversation_id is required")
	}
	if a.Kind == "" {
		a.Kind = ActivityMessage
	}
	switch a.Kind {
	case ActivityMessage, ActivityConversationUpdate, ActivityEvent:
	default:
		return fmt.Errorf("activity: unsupported kind %q", a.Kind)
	}
	return nil
}

// Attachment is structured card content; rendering it is the channel's job.
type Attachment struct {
	ContentType string         `json:"content_type"`
	Content     map[string]any `json:"content"`
}

// Reply is one outbound response queued during a turn.
type Reply struct {
	Text             string       `json:"text,omitempty"`
	Attachments      []Attachment `json:"attachments,omitempty"`
	SuggestedActions []string     `json:"suggested_actions,omitempty"`
}

// Text builds a plain text reply.
func Text(s string) Reply { return Reply{Text: s} }

// Suggestions builds a text reply with suggested actions.
func Suggestions(s string, actions ...string) Reply {
	return Reply{Text: s, SuggestedActions: actions}
}

// TurnState is scratch data derived for one turn. It is never persisted.
type TurnState struct {
	Intent   string
	Score    float64
	Entities map[string]any
	Values   map[string]any
}

// Entity returns a named entity as a string.
func (ts *TurnState) Entity(name string) (string, bool) {
	v, ok := ts.Entities[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Turn binds one inbound activity to the replies queued while handling it.
type Turn struct {
	Activity Activity
	State    TurnState

	mu      sync.Mutex
	replies []Reply
}

// NewTurn creates a turn for an activity.
func NewTurn(a Activity) *Turn {
	return &Turn{
		Activity: a,
		State: TurnState{
			Entities: make(map[string]any),
			Values:   make(map[string]any),
		},
	}
}

// Send queues replies for the host to flush at the end of the turn.
func (t *Turn) Send(replies ...Reply) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.replies = append(t.replies, replies...)
}

// Responded reports whether anything was sent during this turn.
func (t *Turn) Responded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.replies) > 0
}

// Replies returns a snapshot of the queued replies.
func (t *Turn) Replies() []Reply {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Reply, len(t.replies))
	copy(out, t.replies)
	return out
}

// ResetReplies drops every queued reply and returns what was dropped.
func (t *Turn) ResetReplies() []Reply {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.replies
	t.replies = nil
	return out
}
