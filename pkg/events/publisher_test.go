package events

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEnvelopeSerialization(t *testing.T) {
	data := &DialogData{DialogID: "GreetingDialog", Depth: 1}

	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}

	env := Envelope{
		ID:             "test-id",
		Type:           DialogBegun,
		Source:         "botservice",
		ConversationID: "conv-123",
		Timestamp:      time.Now().UTC(),
		Data:           raw,
	}

	b, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	var decoded Envelope
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}

	if decoded.Type != DialogBegun {
		t.Errorf("type = %q, want %q", decoded.Type, DialogBegun)
	}
	if decoded.ConversationID != "conv-123" {
		t.Errorf("conversation_id = %q, want %q", decoded.ConversationID, "conv-123")
	}

	var payload DialogData
	if err := json.Unmarshal(decoded.Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.DialogID != "GreetingDialog" {
		t.Errorf("dialog_id = %q, want %q", payload.DialogID, "GreetingDialog")
	}
}

func TestEventTypeConstants(t *testing.T) {
	types := []EventType{
		TurnReceived, TurnCompleted, TurnFailed,
		DialogBegun, DialogEnded, DialogCancelled,
		InterruptionRejected, PromptGaveUp,
		DeliveryFailed, ConversationReset,
	}

	seen := make(map[EventType]bool)
	for _, et := range types {
		if et == "" {
			t.Error("empty event type constant")
		}
		if seen[et] {
			t.Errorf("duplicate event type: %q", et)
		}
		seen[et] = true
	}
}

func TestPublisherLocalFanOut(t *testing.T) {
	pub := NewPublisher(nil, "botservice", "events")
	ch := pub.Subscribe("test", 4)
	defer pub.Unsubscribe("test")

	if err := pub.Emit(t.Context(), TurnFailed, "conv-1", &TurnFailedData{Error: "boom"}); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	select {
	case env := <-ch:
		if env.Type != TurnFailed {
			t.Errorf("type = %q, want %q", env.Type, TurnFailed)
		}
		if env.Source != "botservice" {
			t.Errorf("source = %q, want %q", env.Source, "botservice")
		}
		if env.ID == "" {
			t.Error("expected generated id")
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestPublisherDropsWhenBufferFull(t *testing.T) {
	pub := NewPublisher(nil, "botservice", "events")
	ch := pub.Subscribe("slow", 1)
	defer pub.Unsubscribe("slow")

	for range 3 {
		if err := pub.Emit(t.Context(), TurnReceived, "conv-1", &TurnReceivedData{Kind: "message"}); err != nil {
			t.Fatalf("Emit: %v", err)
		}
	}
	if got := len(ch); got != 1 {
		t.Errorf("buffered = %d, want 1", got)
	}
	if got := pub.Dropped(); got != 2 {
		t.Errorf("dropped = %d, want 2", got)
	}
}

func TestPublisherFiltersByType(t *testing.T) {
	pub := NewPublisher(nil, "botservice", "events")
	ch := pub.Subscribe("failures", 4, TurnFailed, DeliveryFailed)
	defer pub.Unsubscribe("failures")

	ctx := t.Context()
	if err := pub.Emit(ctx, TurnReceived, "conv-1", &TurnReceivedData{Kind: "message"}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if err := pub.Emit(ctx, DeliveryFailed, "conv-1", &DeliveryFailedData{Attempts: 3}); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	if got := len(ch); got != 1 {
		t.Fatalf("buffered = %d, want 1", got)
	}
	if env := <-ch; env.Type != DeliveryFailed {
		t.Errorf("type = %q, want %q", env.Type, DeliveryFailed)
	}
}

func TestPublisherResubscribeClosesPrevious(t *testing.T) {
	pub := NewPublisher(nil, "botservice", "events")
	first := pub.Subscribe("tail", 1)
	second := pub.Subscribe("tail", 1)
	defer pub.Unsubscribe("tail")

	if _, ok := <-first; ok {
		t.Fatal("expected first subscription to be closed")
	}
	if err := pub.Emit(t.Context(), TurnCompleted, "conv-1", &TurnCompletedData{}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if got := len(second); got != 1 {
		t.Errorf("buffered = %d, want 1", got)
	}
}

func TestEmitRejectsUnencodablePayload(t *testing.T) {
	pub := NewPublisher(nil, "botservice", "events")
	if err := pub.Emit(t.Context(), TurnFailed, "conv-1", make(chan int)); err == nil {
		t.Fatal("expected encode error")
	}
}
