package logger_sink

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/hwsign/internal/core/domain"
	"github.com/vulpemventures/hwsign/internal/core/ports"
)

// sink reports tracking events as structured log entries.
type sink struct {
	logger log.FieldLogger
}

// NewSink returns a sink logging with the given logger, or the standard one
// if nil.
func NewSink(logger log.FieldLogger) ports.TrackingSink {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &sink{logger}
}

func (s *sink) RecordStarted(_ context.Context, payload domain.TrackingPayload) error {
	s.logger.WithFields(fields(domain.NewStartedEvent(payload))).
		Info("tracking: signing flow started")
	return nil
}

func (s *sink) RecordCompleted(
	_ context.Context, payload domain.TrackingPayload, result domain.SigningResult,
) error {
	s.logger.WithFields(fields(domain.NewCompletedEvent(payload, result))).
		Info("tracking: signing flow completed")
	return nil
}

func fields(event domain.TrackingEvent) log.Fields {
	f := log.Fields{
		"flow_id": event.FlowID,
		"kind":    event.Kind,
	}
	optional := map[string]string{
		"device_model": event.DeviceModel,
		"blockchain":   event.Blockchain,
		"chain_id":     event.ChainID,
		"to":           event.To,
		"value":        event.Value,
		"primary_type": event.PrimaryType,
		"domain_name":  event.DomainName,
		"tx_hash":      event.TxHash,
		"network":      event.Network,
	}
	for k, v := range optional {
		if v != "" {
			f[k] = v
		}
	}
	return f
}
