package application

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/hwsign/internal/core/domain"
	"github.com/vulpemventures/hwsign/internal/core/ports"
)

const trackingTimeout = 10 * time.Second

// tracker notifies the tracking sink in the background. Sink failures and
// panics are logged and never reach the signing flow.
type tracker struct {
	sink ports.TrackingSink
	warn func(err error, format string, a ...interface{})
}

func newTracker(sink ports.TrackingSink) *tracker {
	warnFn := func(err error, format string, a ...interface{}) {
		format = fmt.Sprintf("tracker: %s", format)
		log.WithError(err).Warnf(format, a...)
	}
	return &tracker{sink, warnFn}
}

func (t *tracker) started(payload domain.TrackingPayload) {
	t.dispatch(payload.FlowID, "started", func(ctx context.Context) error {
		return t.sink.RecordStarted(ctx, payload)
	})
}

func (t *tracker) completed(
	payload domain.TrackingPayload, result domain.SigningResult,
) {
	t.dispatch(payload.FlowID, "completed", func(ctx context.Context) error {
		return t.sink.RecordCompleted(ctx, payload, result)
	})
}

func (t *tracker) dispatch(
	flowID, event string, record func(ctx context.Context) error,
) {
	if t == nil || t.sink == nil {
		return
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				t.warn(
					fmt.Errorf("%v", r), "recovered from panic while tracking %s for flow %s",
					event, flowID,
				)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), trackingTimeout)
		defer cancel()

		if err := record(ctx); err != nil {
			t.warn(err, "failed to track %s for flow %s", event, flowID)
		}
	}()
}
