package multi_sink

import (
	"context"
	"errors"

	"github.com/vulpemventures/hwsign/internal/core/domain"
	"github.com/vulpemventures/hwsign/internal/core/ports"
)

// sink fans tracking notifications out to several sinks. Every sink is
// notified even if a previous one failed, errors are joined.
type sink struct {
	sinks []ports.TrackingSink
}

func NewSink(sinks ...ports.TrackingSink) ports.TrackingSink {
	list := make([]ports.TrackingSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			list = append(list, s)
		}
	}
	return &sink{list}
}

func (s *sink) RecordStarted(ctx context.Context, payload domain.TrackingPayload) error {
	errs := make([]error, 0)
	for _, ts := range s.sinks {
		if err := ts.RecordStarted(ctx, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *sink) RecordCompleted(
	ctx context.Context, payload domain.TrackingPayload, result domain.SigningResult,
) error {
	errs := make([]error, 0)
	for _, ts := range s.sinks {
		if err := ts.RecordCompleted(ctx, payload, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
