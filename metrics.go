package ws2mongo

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "ws2mongo"

// Record results used as label values of RecordsTotal.
const (
	resultInserted         = "inserted"
	resultConversionFailed = "conversion_failed"
	resultInsertFailed     = "insert_failed"
	resultDropped          = "dropped"
)

var (
	// FramesReceived counts inbound frames delivered to the handler, by frame kind.
	FramesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "frames_received_total",
			Help:      "Inbound websocket frames delivered to the message handler",
		},
		[]string{"kind"},
	)

	// RecordsTotal counts documents by outcome.
	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "records_total",
			Help:      "Ingested records by outcome",
		},
		[]string{"result"},
	)

	ConnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "connects_total",
			Help:      "Connection attempts by result",
		},
		[]string{"result"},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "queue_depth",
			Help:      "Records buffered between the receive loop and the store writer",
		},
	)

	ConnectionStateGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connection_state",
			Help:      "Current connection state (0 disconnected, 1 connecting, 2 open, 3 errored)",
		},
	)
)
