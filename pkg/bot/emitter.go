package bot

import (
	"context"

	"github.com/Anmol9893/botservice/internal/telemetry"
	"github.com/Anmol9893/botservice/pkg/dialog"
	"github.com/Anmol9893/botservice/pkg/events"
)

// meteredEmitter counts dialog events before forwarding them.
type meteredEmitter struct {
	next    dialog.Emitter
	metrics *telemetry.Metrics
}

func (m *meteredEmitter) Emit(ctx context.Context, et events.EventType, conversationID string, data any) error {
	switch et {
	case events.DialogBegun:
		if d, ok := data.(*events.DialogData); ok {
			m.metrics.DialogsBegun.WithLabelValues(d.DialogID).Inc()
		}
	case events.PromptGaveUp:
		m.metrics.PromptGaveUp.Inc()
	}
	if m.next == nil {
		return nil
	}
	return m.next.Emit(ctx, et, conversationID, data)
}
