package notify

import (
	"context"
	"errors"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/alejandrodnm/polycopy/internal/ports"
)

// Fanout entrega cada registro a todos los sinks. Un sink que falla no
// impide que los demás reciban el registro.
type Fanout []ports.ActivitySink

// Record implementa ports.ActivitySink.
func (f Fanout) Record(ctx context.Context, rec domain.ActivityRecord) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
