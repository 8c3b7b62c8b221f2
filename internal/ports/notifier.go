package ports

import (
	"context"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// ActivitySink recibe un ActivityRecord por cada delta, decisión y resultado.
type ActivitySink interface {
	Record(ctx context.Context, rec domain.ActivityRecord) error
}
