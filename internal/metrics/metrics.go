// Package metrics implements Reynard's Prometheus metrics, generalizing
// the teacher's internal/metrics gauge/counter/histogram set from
// packet-capture concerns onto pipeline/sensor/fan-out concerns.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PipelineState tracks each pipeline instance's FSM state, using
	// internal/pipeline.State's ordinal encoding (idle=0 through
	// failed=7).
	PipelineState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reynard_pipeline_state",
			Help: "Current FSM state of a pipeline instance",
		},
		[]string{"node", "pipeline"},
	)

	// PipelineTransitionsTotal counts FSM transitions per pipeline.
	PipelineTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reynard_pipeline_transitions_total",
			Help: "Total number of pipeline FSM transitions",
		},
		[]string{"node", "pipeline", "from", "to"},
	)

	// FanOutLatencySeconds measures UBI fan-out call latency per verb.
	FanOutLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reynard_fanout_latency_seconds",
			Help:    "Latency of UBI fan-out requests across backend nodes",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
		},
		[]string{"verb"},
	)

	// FanOutFailuresTotal counts per-node fan-out failures by verb.
	FanOutFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reynard_fanout_failures_total",
			Help: "Total number of per-node fan-out failures",
		},
		[]string{"verb", "node"},
	)

	// SensorPublishTotal counts sensor-tree SetValue calls by sensor name.
	SensorPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reynard_sensor_publish_total",
			Help: "Total number of sensor value updates published to the tree",
		},
		[]string{"sensor"},
	)

	// SensorListenersActive tracks the number of live listener
	// subscriptions per sensor.
	SensorListenersActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reynard_sensor_listeners_active",
			Help: "Current number of active listener subscriptions per sensor",
		},
		[]string{"sensor"},
	)

	// NodePoolAllocated tracks the current number of allocated nodes.
	NodePoolAllocated = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reynard_nodepool_allocated",
			Help: "Current number of Node Pool nodes allocated to a receiver",
		},
	)

	// MulticastDecodeErrorsTotal counts Aggregator ingest decode failures.
	MulticastDecodeErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reynard_multicast_decode_errors_total",
			Help: "Total number of multicast datagram decode failures",
		},
	)

	// ControllerState tracks the Observation Controller's current FSM
	// state as a gauge of the state's ordinal value.
	ControllerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reynard_controller_state",
			Help: "Current Observation Controller FSM state (ordinal)",
		},
	)
)

