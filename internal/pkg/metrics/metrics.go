package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	TokenRenewals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_token_renewals_total",
			Help: "Credential renewals by result.",
		},
		[]string{"result"},
	)
	StreamEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_stream_events_total",
			Help: "Streaming connection events (connected, lost, reconnect_failed).",
		},
		[]string{"event"},
	)
	InboundUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_inbound_updates_total",
			Help: "Remote property values applied to local characteristics, by source.",
		},
		[]string{"source"},
	)
	OutboundWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_outbound_writes_total",
			Help: "Characteristic writes pushed to the cloud, by result.",
		},
		[]string{"result"},
	)
	Accessories = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bridge_accessories",
			Help: "Accessories currently managed by the bridge.",
		},
	)
)

func init() {
	prometheus.MustRegister(TokenRenewals, StreamEvents, InboundUpdates, OutboundWrites, Accessories)
}

func Result(err error) string {
	if err != nil {
		return "failed"
	}
	return "ok"
}
