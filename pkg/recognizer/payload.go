package recognizer

import (
	"context"

	"github.com/Anmol9893/botservice/pkg/dialog"
)

// PayloadRecognizer reads the intent from structured submissions such as
// card button presses: {"intent": "...", "entities": {...}}.
type PayloadRecognizer struct{}

func (PayloadRecognizer) Recognize(_ context.Context, activity dialog.Activity) (Result, error) {
	intent, _ := activity.Payload["intent"].(string)
	if intent == "" {
		return NoMatch(), nil
	}
	res := Result{Intent: intent, Score: 1, Entities: map[string]any{}}
	if ents, ok := activity.Payload["entities"].(map[string]any); ok {
		for k, v := range ents {
			res.Entities[k] = v
		}
	}
	return res, nil
}
