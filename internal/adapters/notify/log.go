package notify

import (
	"context"
	"log/slog"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// LogSink implementa ports.ActivitySink sobre slog.
type LogSink struct {
	log *slog.Logger
}

// NewLogSink crea un LogSink. logger nil usa slog.Default().
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{log: logger.With("component", "activity")}
}

// Record emite rec como un evento estructurado.
func (s *LogSink) Record(ctx context.Context, rec domain.ActivityRecord) error {
	attrs := []slog.Attr{slog.String("outcome", string(rec.Outcome))}
	if rec.Trader != "" {
		attrs = append(attrs, slog.String("trader", string(rec.Trader)))
	}
	if rec.Reason != domain.ReasonNone {
		attrs = append(attrs, slog.String("reason", string(rec.Reason)))
	}
	if rec.Mode != "" {
		attrs = append(attrs, slog.String("mode", string(rec.Mode)))
	}
	if d := rec.Delta; d != nil {
		attrs = append(attrs, slog.Group("delta",
			slog.String("key", d.Key.String()),
			slog.String("kind", d.Kind.String()),
			slog.Float64("old", d.OldQty),
			slog.Float64("new", d.NewQty),
		))
	}
	if o := rec.Order; o != nil {
		attrs = append(attrs, slog.Group("order",
			slog.String("id", o.ID),
			slog.String("key", o.Key.String()),
			slog.String("side", string(o.Side)),
			slog.Float64("qty", o.Quantity),
			slog.Float64("price", o.Price),
		))
	}
	if f := rec.Fill; f != nil {
		attrs = append(attrs, slog.Group("fill",
			slog.Float64("qty", f.Quantity),
			slog.Float64("price", f.Price),
			slog.String("external", f.ExternalID),
		))
	}
	if rec.Details != "" {
		attrs = append(attrs, slog.String("details", rec.Details))
	}
	s.log.LogAttrs(ctx, levelFor(rec.Outcome), "activity", attrs...)
	return nil
}

func levelFor(o domain.Outcome) slog.Level {
	switch o {
	case domain.OutcomeFailed, domain.OutcomeFetchFailed, domain.OutcomeCycleAborted:
		return slog.LevelWarn
	case domain.OutcomeDeltaObserved, domain.OutcomeSkipped, domain.OutcomeDuplicate:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
