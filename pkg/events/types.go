package events

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of event flowing through the system.
type EventType string

const (
	TurnReceived         EventType = "turn.received"
	TurnCompleted        EventType = "turn.completed"
	TurnFailed           EventType = "turn.failed"
	DialogBegun          EventType = "dialog.begun"
	DialogEnded          EventType = "dialog.ended"
	DialogCancelled      EventType = "dialog.cancelled"
	InterruptionRejected EventType = "interruption.rejected"
	PromptGaveUp         EventType = "prompt.gave_up"
	DeliveryFailed       EventType = "delivery.failed"
	ConversationReset    EventType = "conversation.reset"
)

// Envelope is the standard event wrapper published to the event bus.
type Envelope struct {
	ID             string            `json:"id"`
	Type           EventType         `json:"type"`
	Source         string            `json:"source"`
	ConversationID string            `json:"conversation_id"`
	Timestamp      time.Time         `json:"timestamp"`
	Data           json.RawMessage   `json:"data"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// TurnReceivedData is the payload for turn.received events.
type TurnReceivedData struct {
	ActivityID string  `json:"activity_id,omitempty"`
	Kind       string  `json:"kind"`
	UserID     string  `json:"user_id"`
	Intent     string  `json:"intent,omitempty"`
	Score      float64 `json:"score,omitempty"`
}

// TurnCompletedData is the payload for turn.completed events.
type TurnCompletedData struct {
	Status     string   `json:"status"`
	Replies    int      `json:"replies"`
	Stack      []string `json:"stack"`
	DurationMs int64    `json:"duration_ms"`
}

// TurnFailedData is the payload for turn.failed events.
type TurnFailedData struct {
	Error      string   `json:"error"`
	Stack      []string `json:"stack,omitempty"`
	DurationMs int64    `json:"duration_ms"`
}

// DialogData is the payload for dialog.begun, dialog.ended and dialog.cancelled events.
type DialogData struct {
	DialogID string `json:"dialog_id"`
	Depth    int    `json:"depth"`
	Reason   string `json:"reason,omitempty"`
}

// InterruptionRejectedData is the payload for interruption.rejected events.
type InterruptionRejectedData struct {
	Intent string `json:"intent"`
	Active string `json:"active,omitempty"`
	Reply  string `json:"reply"`
}

// PromptGaveUpData is the payload for prompt.gave_up events.
type PromptGaveUpData struct {
	DialogID string `json:"dialog_id"`
	Attempts int    `json:"attempts"`
}

// DeliveryFailedData is the payload for delivery.failed events.
type DeliveryFailedData struct {
	URL      string `json:"url"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error"`
}
