// Package bot runs one turn end to end: recognize, load the conversation's
// dialog state, dispatch, persist, and return the queued replies.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/Anmol9893/botservice/internal/telemetry"
	"github.com/Anmol9893/botservice/pkg/dialog"
	"github.com/Anmol9893/botservice/pkg/dispatch"
	"github.com/Anmol9893/botservice/pkg/events"
	"github.com/Anmol9893/botservice/pkg/recognizer"
	"github.com/Anmol9893/botservice/pkg/state"
)

const (
	// StateProperty is the conversation property holding the dialog stack.
	StateProperty = "dialogState"
	// ReferenceProperty is the conversation property holding the reply route.
	ReferenceProperty = "conversationReference"
)

// ErrInvalidActivity is returned for activities the bot cannot process.
var ErrInvalidActivity = errors.New("invalid activity")

// ErrDialogPanic wraps a panic raised while handling a turn.
var ErrDialogPanic = errors.New("dialog panic")

// DefaultApology is sent when a turn fails.
var DefaultApology = []string{
	"The bot encounted an error or bug.",
	"To continue to run this bot, please fix the bot source code.",
}

var (
	stateProp     = state.NewProperty[*dialog.State](state.ScopeConversation, StateProperty)
	referenceProp = state.NewProperty[Reference](state.ScopeConversation, ReferenceProperty)
)

// Runtime is the dialog set and dispatcher serving turns. It is swapped as a
// whole when dialog definitions are reloaded.
type Runtime struct {
	Registry   *dialog.Registry
	Dispatcher *dispatch.Dispatcher
}

// NewRuntime checks that every dialog the dispatcher can begin is registered.
func NewRuntime(reg *dialog.Registry, d *dispatch.Dispatcher) (*Runtime, error) {
	if reg == nil || d == nil {
		return nil, fmt.Errorf("runtime: %w", dialog.ErrMissingParameter)
	}
	if err := d.Validate(reg); err != nil {
		return nil, err
	}
	return &Runtime{Registry: reg, Dispatcher: d}, nil
}

// TurnResult is what the host sends back for one activity.
type TurnResult struct {
	ConversationID string           `json:"conversation_id"`
	Replies        []dialog.Reply   `json:"replies"`
	Outcome        dispatch.Outcome `json:"-"`
	Stack          []dialog.ID      `json:"stack"`
	// Failed is set when the turn hit the error policy.
	Failed bool  `json:"failed,omitempty"`
	Err    error `json:"-"`
}

// Bot processes turns. It is safe for concurrent use across conversations;
// turns for one conversation must be serialized by the host.
type Bot struct {
	store      state.Store
	recognizer recognizer.Recognizer
	runtime    atomic.Pointer[Runtime]
	emitter    dialog.Emitter
	metrics    *telemetry.Metrics
	apology    []string
	maxHistory int
}

// Option configures a Bot.
type Option func(*Bot)

// WithRecognizer sets the intent recognizer. Without one every turn has the
// None intent.
func WithRecognizer(r recognizer.Recognizer) Option {
	return func(b *Bot) { b.recognizer = r }
}

// WithEmitter sends turn and dialog events to e.
func WithEmitter(e dialog.Emitter) Option {
	return func(b *Bot) { b.emitter = e }
}

// WithMetrics records turn metrics on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(b *Bot) { b.metrics = m }
}

// WithApology overrides the messages sent when a turn fails.
func WithApology(texts ...string) Option {
	return func(b *Bot) { b.apology = texts }
}

// WithMaxHistory caps the stack history kept per conversation.
func WithMaxHistory(n int) Option {
	return func(b *Bot) { b.maxHistory = n }
}

// New creates a bot over store serving rt.
func New(store state.Store, rt *Runtime, opts ...Option) (*Bot, error) {
	if store == nil {
		return nil, fmt.Errorf("bot: %w: store", dialog.ErrMissingParameter)
	}
	if rt == nil {
		return nil, fmt.Errorf("bot: %w: runtime", dialog.ErrMissingParameter)
	}
	b := &Bot{
		store:      store,
		apology:    DefaultApology,
		maxHistory: dialog.DefaultMaxHistory,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.runtime.Store(rt)
	return b, nil
}

// Swap replaces the runtime used by subsequent turns.
func (b *Bot) Swap(rt *Runtime) {
	if rt != nil {
		b.runtime.Store(rt)
	}
}

// Runtime returns the runtime currently serving turns.
func (b *Bot) Runtime() *Runtime { return b.runtime.Load() }

// Store returns the state store.
func (b *Bot) Store() state.Store { return b.store }

// ProcessTurn handles one activity. Errors raised while handling the turn do
// not reach the caller: the user gets the apology, the conversation's dialog
// state is discarded and TurnResult.Failed is set. Only an invalid activity
// is returned as an error.
func (b *Bot) ProcessTurn(ctx context.Context, activity dialog.Activity) (*TurnResult, error) {
	if err := activity.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidActivity, err)
	}
	if activity.UserID == "" {
		activity.UserID = activity.ConversationID
	}
	if activity.Timestamp.IsZero() {
		activity.Timestamp = time.Now().UTC()
	}

	start := time.Now()
	turn := dialog.NewTurn(activity)
	batch := state.NewBatch(b.store, state.CommitLast(StateProperty))

	outcome, st, err := b.runGuarded(ctx, b.runtime.Load(), turn, batch)
	if err != nil {
		return b.fail(ctx, turn, batch, st, err, time.Since(start)), nil
	}

	elapsed := time.Since(start)
	res := &TurnResult{
		ConversationID: activity.ConversationID,
		Replies:        turn.Replies(),
		Outcome:        outcome,
		Stack:          st.Stack.IDs(),
	}

	b.emit(ctx, events.TurnCompleted, activity.ConversationID, &events.TurnCompletedData{
		Status:     string(outcome.Result.Status),
		Replies:    len(res.Replies),
		Stack:      idStrings(res.Stack),
		DurationMs: elapsed.Milliseconds(),
	})
	if b.metrics != nil {
		b.metrics.TurnsTotal.WithLabelValues(string(outcome.Action)).Inc()
		b.metrics.TurnDuration.Observe(elapsed.Seconds())
		if outcome.Action == dispatch.ActionRejected {
			b.metrics.InterruptionsRejected.WithLabelValues(outcome.Intent).Inc()
		}
	}
	slog.DebugContext(ctx, "turn completed",
		slog.String("conversation_id", activity.ConversationID),
		slog.String("action", string(outcome.Action)),
		slog.String("intent", outcome.Intent),
		slog.Int("replies", len(res.Replies)))
	return res, nil
}

// runGuarded runs the turn and converts a panic in dialog code into a turn
// error, so the error policy still resets the conversation.
func (b *Bot) runGuarded(ctx context.Context, rt *Runtime, turn *dialog.Turn, batch *state.Batch) (outcome dispatch.Outcome, st *dialog.State, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "dialog panic",
				slog.String("conversation_id", turn.Activity.ConversationID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			err = fmt.Errorf("%w: %v", ErrDialogPanic, r)
		}
	}()
	return b.run(ctx, rt, turn, batch)
}

func (b *Bot) run(ctx context.Context, rt *Runtime, turn *dialog.Turn, batch *state.Batch) (dispatch.Outcome, *dialog.State, error) {
	a := turn.Activity

	if err := b.recognize(ctx, turn); err != nil {
		return dispatch.Outcome{}, nil, fmt.Errorf("recognize: %w", err)
	}
	b.emit(ctx, events.TurnReceived, a.ConversationID, &events.TurnReceivedData{
		ActivityID: a.ID,
		Kind:       string(a.Kind),
		UserID:     a.UserID,
		Intent:     turn.State.Intent,
		Score:      turn.State.Score,
	})

	st, found, err := stateProp.Get(ctx, batch, a.ConversationID)
	if err != nil {
		return dispatch.Outcome{}, nil, fmt.Errorf("load dialog state: %w", err)
	}
	if !found || st == nil {
		st = dialog.NewState()
	}
	st.SetMaxHistory(b.maxHistory)

	if err := b.remember(ctx, batch, a); err != nil {
		return dispatch.Outcome{}, st, err
	}

	dc, err := dialog.NewContext(rt.Registry, st, turn, batch, dialog.WithEmitter(b.dialogEmitter()))
	if err != nil {
		return dispatch.Outcome{}, st, err
	}
	outcome, err := rt.Dispatcher.Dispatch(ctx, dc)
	if err != nil {
		return dispatch.Outcome{}, st, fmt.Errorf("dispatch: %w", err)
	}

	st.UpdatedAt = time.Now().UTC()
	if err := st.Validate(); err != nil {
		return dispatch.Outcome{}, st, err
	}
	if err := stateProp.Set(batch, a.ConversationID, st); err != nil {
		return dispatch.Outcome{}, st, err
	}
	if err := batch.Commit(ctx); err != nil {
		return dispatch.Outcome{}, st, fmt.Errorf("commit: %w", err)
	}
	return outcome, st, nil
}

func (b *Bot) recognize(ctx context.Context, turn *dialog.Turn) error {
	if b.recognizer == nil || turn.Activity.Kind == dialog.ActivityConversationUpdate {
		turn.State.Intent = recognizer.None
		return nil
	}
	res, err := b.recognizer.Recognize(ctx, turn.Activity)
	if err != nil {
		return err
	}
	turn.State.Intent = res.Intent
	if turn.State.Intent == "" {
		turn.State.Intent = recognizer.None
	}
	turn.State.Score = res.Score
	for k, v := range res.Entities {
		turn.State.Entities[k] = v
	}
	return nil
}

// fail applies the turn error policy.
func (b *Bot) fail(ctx context.Context, turn *dialog.Turn, batch *state.Batch, st *dialog.State, cause error, elapsed time.Duration) *TurnResult {
	a := turn.Activity
	batch.Discard()

	slog.ErrorContext(ctx, "turn failed",
		slog.String("conversation_id", a.ConversationID),
		slog.String("error", cause.Error()))

	var stack []string
	if st != nil && st.Stack != nil {
		stack = idStrings(st.Stack.IDs())
	}
	if err := b.store.Delete(ctx, stateProp.Key(a.ConversationID)); err != nil {
		slog.ErrorContext(ctx, "discard dialog state failed",
			slog.String("conversation_id", a.ConversationID),
			slog.String("error", err.Error()))
	}

	turn.ResetReplies()
	for _, text := range b.apology {
		turn.Send(dialog.Text(text))
	}

	b.emit(ctx, events.TurnFailed, a.ConversationID, &events.TurnFailedData{
		Error:      cause.Error(),
		Stack:      stack,
		DurationMs: elapsed.Milliseconds(),
	})
	if b.metrics != nil {
		b.metrics.TurnsTotal.WithLabelValues("error").Inc()
		b.metrics.TurnErrorsTotal.Inc()
		b.metrics.TurnDuration.Observe(elapsed.Seconds())
	}

	return &TurnResult{
		ConversationID: a.ConversationID,
		Replies:        turn.Replies(),
		Stack:          []dialog.ID{},
		Failed:         true,
		Err:            cause,
	}
}

func (b *Bot) dialogEmitter() dialog.Emitter {
	if b.metrics == nil {
		return b.emitter
	}
	return &meteredEmitter{next: b.emitter, metrics: b.metrics}
}

func (b *Bot) emit(ctx context.Context, et events.EventType, conversationID string, data any) {
	if b.emitter == nil {
		return
	}
	if err := b.emitter.Emit(ctx, et, conversationID, data); err != nil {
		slog.WarnContext(ctx, "emit event failed",
			slog.String("event_type", string(et)), slog.String("error", err.Error()))
	}
}

func idStrings(ids []dialog.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
