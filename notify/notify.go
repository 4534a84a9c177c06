/*
Package notify delivers point-expiry events to the outside world.

PURPOSE:
  The lifecycle engine only signals "this point changed state"; delivery
  (email, chat, HR inbox) belongs to an external system. This package
  holds the default implementations of discipline.Notifier: a structured
  log emitter for deployments without a downstream notifier, and a no-op.

CONTRACT:
  Best-effort. The coordinator logs a failed delivery and moves on;
  expiration is the durable fact.
*/
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/warp/discipline-engine/discipline"
)

// Logger emits expiry events as structured log lines. Useful on its own
// in small deployments and as a template for real transports.
type Logger struct {
	Log *zap.Logger
}

func NewLogger(log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{Log: log}
}

// PointExpired logs one expiry event.
func (l *Logger) PointExpired(_ context.Context, ev discipline.ExpiryEvent) error {
	l.Log.Info("point expired",
		zap.String("user_id", string(ev.UserID)),
		zap.String("violation", string(ev.Violation)),
		zap.Time("shift_date", ev.ShiftDate),
		zap.String("points", ev.Value.String()),
		zap.String("kind", string(ev.Kind)),
		zap.String("batch_id", ev.BatchID))
	return nil
}

// Nop discards all events.
type Nop struct{}

func (Nop) PointExpired(context.Context, discipline.ExpiryEvent) error { return nil }

var (
	_ discipline.Notifier = (*Logger)(nil)
	_ discipline.Notifier = Nop{}
)
