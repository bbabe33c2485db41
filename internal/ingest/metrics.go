package ingest

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ReasonSize     = "size"
	ReasonMagic    = "magic"
	ReasonChecksum = "checksum"
)

type Metrics struct {
	Received   prometheus.Counter
	Accepted   prometheus.Counter
	Rejected   *prometheus.CounterVec
	Dropped    prometheus.Counter
	SinkErrors prometheus.Counter
	Alerts     prometheus.Counter
}

// NewMetrics registers collectors with reg, nil reg is allowed in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Received: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleet_ingest_frames_received_total",
			Help: "Telemetry messages received from broker.",
		}),
		Accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleet_ingest_frames_accepted_total",
			Help: "Frames passed validation and written to all sinks.",
		}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_ingest_frames_rejected_total",
			Help: "Frames discarded by validation.",
		}, []string{"reason"}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleet_ingest_frames_dropped_total",
			Help: "Messages lost before validation, spool push failed.",
		}),
		SinkErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleet_ingest_sink_errors_total",
			Help: "Sink write failures, frame is retried later.",
		}),
		Alerts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleet_ingest_vehicle_alerts_total",
			Help: "Accepted frames with any status flag set.",
		}),
	}
	for _, reason := range []string{ReasonSize, ReasonMagic, ReasonChecksum} {
		m.Rejected.WithLabelValues(reason)
	}
	if reg != nil {
		reg.MustRegister(m.Received, m.Accepted, m.Rejected, m.Dropped, m.SinkErrors, m.Alerts)
	}
	return m
}

func MetricsHandler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
