package application

import (
	"github.com/vulpemventures/hwsign/internal/core/domain"
)

type SigningRecordInfo domain.SigningRecord

// IsSuccess returns whether the recorded flow produced a signature.
func (r SigningRecordInfo) IsSuccess() bool {
	return r.Outcome == domain.SigningOutcomeSuccess
}
