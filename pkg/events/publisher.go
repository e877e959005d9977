package events

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pitabwire/frame/queue"
	"github.com/pitabwire/util"
	"github.com/rs/xid"
)

const defaultSubscriberBuffer = 64

// Publisher emits conversation diagnostics to the frame queue and to local
// subscribers. A nil queue manager keeps delivery local.
type Publisher struct {
	queueMgr queue.Manager
	source   string
	queueRef string

	mu          sync.RWMutex
	subscribers map[string]*subscriber
	dropped     atomic.Uint64
}

type subscriber struct {
	ch    chan Envelope
	types []EventType
}

func (s *subscriber) wants(t EventType) bool {
	return len(s.types) == 0 || slices.Contains(s.types, t)
}

// NewPublisher creates a publisher for queueRef. source names the emitting
// service in every envelope.
func NewPublisher(queueMgr queue.Manager, source string, queueRef string) *Publisher {
	return &Publisher{
		queueMgr:    queueMgr,
		source:      source,
		queueRef:    queueRef,
		subscribers: make(map[string]*subscriber),
	}
}

// Emit wraps data in an Envelope for conversationID. Local subscribers never
// block the turn: a full buffer drops the event for that subscriber.
func (p *Publisher) Emit(ctx context.Context, eventType EventType, conversationID string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	env := Envelope{
		ID:             xid.New().String(),
		Type:           eventType,
		Source:         p.source,
		ConversationID: conversationID,
		Timestamp:      time.Now().UTC(),
		Data:           raw,
	}

	p.fanOut(ctx, env)

	if p.queueMgr == nil {
		return nil
	}
	if err := p.queueMgr.Publish(ctx, p.queueRef, env); err != nil {
		util.Log(ctx).WithError(err).
			WithField("event_type", string(eventType)).
			Warn("events: publish to queue")
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}

func (p *Publisher) fanOut(ctx context.Context, env Envelope) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for id, sub := range p.subscribers {
		if !sub.wants(env.Type) {
			continue
		}
		select {
		case sub.ch <- env:
		default:
			p.dropped.Add(1)
			util.Log(ctx).WithField("subscriber", id).
				WithField("event_type", string(env.Type)).
				Warn("events: subscriber buffer full, event dropped")
		}
	}
}

// Subscribe registers a local subscription. With types given only those
// events are delivered. Call Unsubscribe with the same id when done.
func (p *Publisher) Subscribe(id string, bufSize int, types ...EventType) <-chan Envelope {
	if bufSize <= 0 {
		bufSize = defaultSubscriberBuffer
	}
	sub := &subscriber{ch: make(chan Envelope, bufSize), types: types}
	p.mu.Lock()
	if old, ok := p.subscribers[id]; ok {
		close(old.ch)
	}
	p.subscribers[id] = sub
	p.mu.Unlock()
	return sub.ch
}

// Unsubscribe removes a subscription and closes its channel.
func (p *Publisher) Unsubscribe(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sub, ok := p.subscribers[id]; ok {
		close(sub.ch)
		delete(p.subscribers, id)
	}
}

// Dropped reports how many events local subscribers missed.
func (p *Publisher) Dropped() uint64 { return p.dropped.Load() }
