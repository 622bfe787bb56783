package application

import (
	"github.com/vulpemventures/hwsign/internal/core/domain"
)

// ClassifyError maps an error of the sign device action to an actionable
// domain error. pendingStep is the step of the last pending state received
// before the error. Errors with no dedicated classification are returned
// unchanged.
func ClassifyError(err error, pendingStep string) error {
	if err == nil {
		return nil
	}

	code, ok := domain.DeviceStatusCode(err)
	if !ok {
		return err
	}

	switch {
	case code == domain.StatusCodeInvalidData &&
		pendingStep == domain.StepBlindSignTransactionFallback:
		return &domain.BlindSigningDisabledError{Cause: err}
	case code == domain.StatusCodeDeniedByUser:
		return &domain.UserRejectedTransactionError{Cause: err}
	default:
		return err
	}
}
