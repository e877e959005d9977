// Package recognizer classifies a turn into an intent with named entities.
package recognizer

import (
	"context"
	"log/slog"

	"github.com/Anmol9893/botservice/pkg/dialog"
)

// None is the intent reported when nothing matched.
const None = "None"

// Result is the classification of one turn.
type Result struct {
	Intent   string         `json:"intent"`
	Score    float64        `json:"score"`
	Entities map[string]any `json:"entities,omitempty"`
}

// NoMatch returns the None result.
func NoMatch() Result {
	return Result{Intent: None, Entities: map[string]any{}}
}

// Matched reports whether an intent other than None was found.
func (r Result) Matched() bool {
	return r.Intent != "" && r.Intent != None
}

// Recognizer classifies an activity.
type Recognizer interface {
	Recognize(ctx context.Context, activity dialog.Activity) (Result, error)
}

// Func adapts a function to Recognizer.
type Func func(ctx context.Context, activity dialog.Activity) (Result, error)

func (f Func) Recognize(ctx context.Context, activity dialog.Activity) (Result, error) {
	return f(ctx, activity)
}

// Chain asks recognizers in order and returns the first match scoring at
// least MinScore. A recognizer that fails is logged and skipped.
type Chain struct {
	MinScore    float64
	recognizers []Recognizer
}

// NewChain creates a chain over recognizers.
func NewChain(minScore float64, recognizers ...Recognizer) *Chain {
	return &Chain{MinScore: minScore, recognizers: recognizers}
}

func (c *Chain) Recognize(ctx context.Context, activity dialog.Activity) (Result, error) {
	for _, r := range c.recognizers {
		res, err := r.Recognize(ctx, activity)
		if err != nil {
			slog.WarnContext(ctx, "recognizer failed",
				slog.String("conversation_id", activity.ConversationID),
				slog.String("error", err.Error()))
			continue
		}
		if res.Matched() && res.Score >= c.MinScore {
			if res.Entities == nil {
				res.Entities = map[string]any{}
			}
			return res, nil
		}
	}
	return NoMatch(), nil
}
