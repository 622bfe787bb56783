package ports

import (
	"context"

	"github.com/vulpemventures/hwsign/internal/core/domain"
)

// TrackingSink is the abstraction for any kind of analytics backend notified
// about signing flows. Errors are never propagated to the flow.
type TrackingSink interface {
	// RecordStarted is called once per flow, before the device is asked to
	// sign.
	RecordStarted(ctx context.Context, payload domain.TrackingPayload) error
	// RecordCompleted is called once per successful flow.
	RecordCompleted(
		ctx context.Context, payload domain.TrackingPayload,
		result domain.SigningResult,
	) error
}
