//go:build !rp2040 && !rp2350

package status

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "creasense"

type Metrics struct {
	eventsSent   prometheus.Counter
	sendFailures *prometheus.CounterVec
	sensorFaults *prometheus.CounterVec
	reconnects   prometheus.CounterFunc
	linkState    prometheus.Gauge
	appValue     prometheus.Gauge
	rawValue     prometheus.Gauge
	sequence     prometheus.Gauge
}

// NewMetrics registers the node's collectors on reg. Labels identify the
// sensor so several host nodes can share a scrape target. connects reports
// the link's successful handshakes at scrape time.
func NewMetrics(reg prometheus.Registerer, sensor, kind string, connects func() float64) *Metrics {
	labels := prometheus.Labels{"sensor": sensor, "kind": kind}
	m := &Metrics{
		eventsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_sent_total",
			Help:        "Telemetry events written to the collector link.",
			ConstLabels: labels,
		}),
		sendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "send_failures_total",
			Help:        "Telemetry events dropped, by error code.",
			ConstLabels: labels,
		}, []string{"code"}),
		sensorFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sensor_faults_total",
			Help:        "Invalid sensor samples, by error code.",
			ConstLabels: labels,
		}, []string{"code"}),
		reconnects: prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Name: "reconnects_total",
			Help:        "Successful collector handshakes.",
			ConstLabels: labels,
		}, connects),
		linkState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "link_state",
			Help:        "Collector link state (0 disconnected, 1 connecting, 2 connected).",
			ConstLabels: labels,
		}),
		appValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "app_value",
			Help:        "Last normalized application value in [0,1].",
			ConstLabels: labels,
		}),
		rawValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "raw_value",
			Help:        "Last valid raw sensor reading.",
			ConstLabels: labels,
		}),
		sequence: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "sequence",
			Help:        "Sequence number of the last encoded event.",
			ConstLabels: labels,
		}),
	}
	reg.MustRegister(
		m.eventsSent,
		m.sendFailures,
		m.sensorFaults,
		m.reconnects,
		m.linkState,
		m.appValue,
		m.rawValue,
		m.sequence,
		collectors.NewGoCollector(),
	)
	return m
}
