// Package channel pushes a conversation's replies to its reply-to endpoint.
package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/pitabwire/frame/workerpool"
	"github.com/pitabwire/util"
	"github.com/rs/xid"

	"github.com/Anmol9893/botservice/internal/telemetry"
	"github.com/Anmol9893/botservice/pkg/dialog"
	"github.com/Anmol9893/botservice/pkg/events"
	"github.com/Anmol9893/botservice/pkg/urlvalidation"
)

const maxBreakers = 10000

var (
	// ErrCircuitOpen is returned while a host's breaker is open.
	ErrCircuitOpen = errors.New("circuit open")
	// ErrRejectedURL is returned for reply-to URLs that fail validation.
	ErrRejectedURL = errors.New("reply-to url rejected")
)

// Outbound is the body posted to a reply-to endpoint.
type Outbound struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Replies        []dialog.Reply `json:"replies"`
	Proactive      bool           `json:"proactive,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// NewOutbound wraps replies for delivery.
func NewOutbound(conversationID string, replies []dialog.Reply) Outbound {
	return Outbound{
		ID:             xid.New().String(),
		ConversationID: conversationID,
		Replies:        replies,
		Timestamp:      time.Now().UTC(),
	}
}

// Config holds delivery settings.
type Config struct {
	Secret           string
	MaxAttempts      int
	Timeout          time.Duration
	BackoffInitial   time.Duration
	BackoffMax       time.Duration
	BreakerThreshold int
	BreakerReset     time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.BackoffInitial <= 0 {
		c.BackoffInitial = time.Second
	}
	if c.BackoffMax < c.BackoffInitial {
		c.BackoffMax = c.BackoffInitial
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerReset <= 0 {
		c.BreakerReset = time.Minute
	}
	return c
}

// Deliverer posts outbound messages with retries and per-host breakers.
type Deliverer struct {
	cfg          Config
	httpClient   *http.Client
	pool         workerpool.WorkerPool
	emitter      dialog.Emitter
	metrics      *telemetry.Metrics
	deadLetters  DeadLetterSink
	validateOpts []urlvalidation.Option

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// Option configures a Deliverer.
type Option func(*Deliverer)

// WithPool schedules retries on p instead of timers.
func WithPool(p workerpool.WorkerPool) Option {
	return func(d *Deliverer) { d.pool = p }
}

// WithEmitter reports exhausted deliveries to e.
func WithEmitter(e dialog.Emitter) Option {
	return func(d *Deliverer) { d.emitter = e }
}

// WithMetrics counts deliveries on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(d *Deliverer) { d.metrics = m }
}

// WithDeadLetters keeps exhausted deliveries in s.
func WithDeadLetters(s DeadLetterSink) Option {
	return func(d *Deliverer) { d.deadLetters = s }
}

// WithURLOptions configures reply-to URL validation.
func WithURLOptions(opts ...urlvalidation.Option) Option {
	return func(d *Deliverer) { d.validateOpts = append(d.validateOpts, opts...) }
}

// NewDeliverer creates a deliverer.
func NewDeliverer(cfg Config, opts ...Option) *Deliverer {
	cfg = cfg.withDefaults()
	d := &Deliverer{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		breakers: make(map[string]*Breaker),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Validate checks a reply-to URL before it is stored or used.
func (d *Deliverer) Validate(target string) error {
	if err := urlvalidation.ValidateOutboundURL(target, d.validateOpts...); err != nil {
		return fmt.Errorf("%w: %w", ErrRejectedURL, err)
	}
	return nil
}

// Send makes one delivery attempt.
func (d *Deliverer) Send(ctx context.Context, target string, out Outbound) error {
	if err := d.Validate(target); err != nil {
		return err
	}
	cb := d.breaker(target)
	if !cb.Allow() {
		d.count("circuit_open")
		return ErrCircuitOpen
	}
	if err := d.post(ctx, target, out); err != nil {
		cb.Failure()
		d.count("failed")
		return err
	}
	cb.Success()
	d.count("delivered")
	return nil
}

// Deliver sends out to target, retrying with exponential backoff. Once the
// attempts are exhausted the message is dead-lettered and a delivery.failed
// event is emitted.
func (d *Deliverer) Deliver(ctx context.Context, target string, out Outbound) {
	d.deliverWithRetry(ctx, target, out, 1)
}

func (d *Deliverer) deliverWithRetry(ctx context.Context, target string, out Outbound, attempt int) {
	err := d.Send(ctx, target, out)
	if err == nil {
		return
	}
	if errors.Is(err, ErrRejectedURL) || attempt >= d.cfg.MaxAttempts {
		d.exhausted(ctx, target, out, attempt, err)
		return
	}

	backoff := d.cfg.BackoffInitial << (attempt - 1)
	if backoff > d.cfg.BackoffMax || backoff <= 0 {
		backoff = d.cfg.BackoffMax
	}
	slog.DebugContext(ctx, "delivery failed, retrying",
		slog.String("conversation_id", out.ConversationID),
		slog.Int("attempt", attempt),
		slog.Duration("backoff", backoff),
		slog.String("error", err.Error()))

	retry := func() {
		timer := time.NewTimer(backoff)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			d.deliverWithRetry(ctx, target, out, attempt+1)
		}
	}

	if d.pool != nil {
		if err := d.pool.Submit(ctx, retry); err != nil {
			slog.WarnContext(ctx, "retry pool full, dropping retry",
				slog.String("conversation_id", out.ConversationID),
				slog.Int("attempt", attempt))
		}
		return
	}
	go retry()
}

func (d *Deliverer) post(ctx context.Context, target string, out Outbound) error {
	body, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Bot-Delivery", out.ID)
	if d.cfg.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(d.cfg.Secret, body))
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	// Drain for connection reuse.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}

func (d *Deliverer) exhausted(ctx context.Context, target string, out Outbound, attempts int, cause error) {
	slog.ErrorContext(ctx, "delivery failed",
		slog.String("conversation_id", out.ConversationID),
		slog.String("url", target),
		slog.Int("attempts", attempts),
		slog.String("error", cause.Error()))

	if d.deadLetters != nil {
		payload, _ := json.Marshal(out)
		if err := d.deadLetters.CreateDeadLetter(ctx, &DeadLetter{
			ConversationID: out.ConversationID,
			MessageID:      out.ID,
			URL:            target,
			Payload:        string(payload),
			LastError:      cause.Error(),
			Attempts:       attempts,
		}); err != nil {
			util.Log(ctx).WithError(err).Error("channel: create dead letter")
		}
	}
	if d.emitter != nil {
		if err := d.emitter.Emit(ctx, events.DeliveryFailed, out.ConversationID, &events.DeliveryFailedData{
			URL: target, Attempts: attempts, Error: cause.Error(),
		}); err != nil {
			util.Log(ctx).WithError(err).Warn("channel: emit delivery failed event")
		}
	}
}

// breaker returns the breaker for target's host.
func (d *Deliverer) breaker(target string) *Breaker {
	host := target
	if u, err := url.Parse(target); err == nil {
		host = u.Host
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if cb, ok := d.breakers[host]; ok {
		return cb
	}
	if len(d.breakers) >= maxBreakers {
		for k := range d.breakers {
			delete(d.breakers, k)
			break
		}
	}
	cb := NewBreaker(d.cfg.BreakerThreshold, d.cfg.BreakerReset)
	d.breakers[host] = cb
	return cb
}

// BreakerState returns the breaker state for target's host.
func (d *Deliverer) BreakerState(target string) BreakerState {
	return d.breaker(target).State()
}

func (d *Deliverer) count(status string) {
	if d.metrics != nil {
		d.metrics.DeliveriesTotal.WithLabelValues(status).Inc()
	}
}
