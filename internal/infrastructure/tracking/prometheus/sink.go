package prometheus_sink

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/vulpemventures/hwsign/internal/core/domain"
	"github.com/vulpemventures/hwsign/internal/core/ports"
)

// sink counts signing flows by kind, device model and blockchain.
type sink struct {
	started   *prometheus.CounterVec
	completed *prometheus.CounterVec
	broadcast *prometheus.CounterVec
}

// NewSink registers the tracking metrics with the given registerer, or the
// default one if nil.
func NewSink(reg prometheus.Registerer) ports.TrackingSink {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	labels := []string{"kind", "device_model", "blockchain"}

	return &sink{
		started: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hwsign_signing_flows_started_total",
			Help: "The total number of signing flows that reached the signing step",
		}, labels),
		completed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hwsign_signing_flows_completed_total",
			Help: "The total number of successful signing flows",
		}, labels),
		broadcast: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hwsign_transactions_broadcast_total",
			Help: "The total number of signed transactions broadcast",
		}, []string{"network"}),
	}
}

func (s *sink) RecordStarted(_ context.Context, payload domain.TrackingPayload) error {
	s.started.WithLabelValues(labelValues(payload)...).Inc()
	return nil
}

func (s *sink) RecordCompleted(
	_ context.Context, payload domain.TrackingPayload, result domain.SigningResult,
) error {
	s.completed.WithLabelValues(labelValues(payload)...).Inc()
	if result.Broadcast != nil {
		s.broadcast.WithLabelValues(result.Broadcast.Network).Inc()
	}
	return nil
}

func labelValues(p domain.TrackingPayload) []string {
	return []string{p.Kind.String(), p.DeviceModel, p.Blockchain}
}
