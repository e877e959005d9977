package channel

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Anmol9893/botservice/pkg/dialog"
	"github.com/Anmol9893/botservice/pkg/events"
	"github.com/Anmol9893/botservice/pkg/urlvalidation"
)

func testConfig() Config {
	return Config{
		Secret:           "reply-secret",
		MaxAttempts:      3,
		Timeout:          5 * time.Second,
		BackoffInitial:   time.Millisecond,
		BackoffMax:       5 * time.Millisecond,
		BreakerThreshold: 10,
		BreakerReset:     time.Minute,
	}
}

type memoryDeadLetters struct {
	mu      sync.Mutex
	letters []*DeadLetter
}

func (m *memoryDeadLetters) CreateDeadLetter(_ context.Context, dl *DeadLetter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.letters = append(m.letters, dl)
	return nil
}

func (m *memoryDeadLetters) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.letters)
}

type eventLog struct {
	mu    sync.Mutex
	types []events.EventType
}

func (e *eventLog) Emit(_ context.Context, et events.EventType, _ string, _ any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.types = append(e.types, et)
	return nil
}

func (e *eventLog) has(et events.EventType) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, t := range e.types {
		if t == et {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSendSignsBody(t *testing.T) {
	var got Outbound
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !Verify("reply-secret", body, r.Header.Get(SignatureHeader)) {
			t.Error("signature did not verify")
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Error("missing Content-Type header")
		}
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	d := NewDeliverer(testConfig(), WithURLOptions(urlvalidation.AllowPrivateIPs()))
	out := NewOutbound("conv-1", []dialog.Reply{dialog.Text("hello")})
	if err := d.Send(t.Context(), ts.URL, out); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.ID != out.ID || got.ConversationID != "conv-1" || len(got.Replies) != 1 || got.Replies[0].Text != "hello" {
		t.Errorf("received %+v", got)
	}
}

func TestDeliverRetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	dead := &memoryDeadLetters{}
	d := NewDeliverer(testConfig(), WithURLOptions(urlvalidation.AllowPrivateIPs()), WithDeadLetters(dead))
	d.Deliver(t.Context(), ts.URL, NewOutbound("conv-1", []dialog.Reply{dialog.Text("hi")}))

	waitFor(t, func() bool { return calls.Load() == 3 })
	time.Sleep(20 * time.Millisecond)
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
	if dead.len() != 0 {
		t.Errorf("dead letters = %d, want 0", dead.len())
	}
}

func TestDeliverExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	dead := &memoryDeadLetters{}
	log := &eventLog{}
	d := NewDeliverer(testConfig(),
		WithURLOptions(urlvalidation.AllowPrivateIPs()), WithDeadLetters(dead), WithEmitter(log))
	d.Deliver(t.Context(), ts.URL, NewOutbound("conv-1", nil))

	waitFor(t, func() bool { return dead.len() == 1 })
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
	if dl := dead.letters[0]; dl.Attempts != 3 || dl.ConversationID != "conv-1" {
		t.Errorf("dead letter = %+v", dl)
	}
	if !log.has(events.DeliveryFailed) {
		t.Error("expected delivery.failed event")
	}
}

func TestDeliverRejectsPrivateURLWithoutRetry(t *testing.T) {
	dead := &memoryDeadLetters{}
	d := NewDeliverer(testConfig(), WithDeadLetters(dead))

	err := d.Send(t.Context(), "http://127.0.0.1:9/reply", NewOutbound("conv-1", nil))
	if !errors.Is(err, ErrRejectedURL) {
		t.Fatalf("Send error = %v, want ErrRejectedURL", err)
	}

	d.Deliver(t.Context(), "http://127.0.0.1:9/reply", NewOutbound("conv-1", nil))
	if dead.len() != 1 {
		t.Errorf("dead letters = %d, want 1", dead.len())
	}
}

func TestSendStopsWhenBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	cfg := testConfig()
	cfg.BreakerThreshold = 2
	d := NewDeliverer(cfg, WithURLOptions(urlvalidation.AllowPrivateIPs()))
	out := NewOutbound("conv-1", nil)

	for range 2 {
		if err := d.Send(t.Context(), ts.URL, out); err == nil {
			t.Fatal("expected failure")
		}
	}
	if d.BreakerState(ts.URL) != BreakerOpen {
		t.Fatalf("breaker = %q, want open", d.BreakerState(ts.URL))
	}
	if err := d.Send(t.Context(), ts.URL, out); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Send error = %v, want ErrCircuitOpen", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestBreakerHalfOpenTrial(t *testing.T) {
	now := time.Now()
	b := NewBreaker(1, time.Second)
	b.now = func() time.Time { return now }

	b.Failure()
	if b.Allow() {
		t.Fatal("open breaker allowed a request")
	}

	now = now.Add(2 * time.Second)
	if !b.Allow() || b.State() != BreakerHalfOpen {
		t.Fatalf("state = %q, want half_open", b.State())
	}
	b.Failure()
	if b.State() != BreakerOpen {
		t.Fatalf("failed trial delivery: state = %q, want open", b.State())
	}

	now = now.Add(2 * time.Second)
	b.Allow()
	b.Success()
	if b.State() != BreakerClosed {
		t.Errorf("state = %q, want closed", b.State())
	}
}

func TestSignVerify(t *testing.T) {
	payload := []byte(`{"conversation_id":"conv-1"}`)
	sig := Sign("secret", payload)
	if !Verify("secret", payload, sig) {
		t.Error("valid signature rejected")
	}
	if Verify("other", payload, sig) {
		t.Error("signature accepted under the wrong secret")
	}
	secret, err := GenerateSecret()
	if err != nil || len(secret) != 64 {
		t.Errorf("GenerateSecret = %q, %v", secret, err)
	}
}
