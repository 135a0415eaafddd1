package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rendezvous"

// Metrics keeps its own registry so several instances can live in one
// process (tests).
type Metrics struct {
	Registry *prometheus.Registry

	Rooms        prometheus.Gauge
	Participants prometheus.Gauge
	Sessions     prometheus.Gauge

	Messages         *prometheus.CounterVec
	Rejected         *prometheus.CounterVec
	Evictions        *prometheus.CounterVec
	DeliveryFailures prometheus.Counter
	HostChanges      prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		Rooms: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "rooms",
			Help: "Number of non-empty rooms.",
		}),
		Participants: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "participants",
			Help: "Number of joined participants.",
		}),
		Sessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "sessions",
			Help: "Number of open signaling connections.",
		}),
		Messages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_total",
			Help: "Inbound messages by type.",
		}, []string{"type"}),
		Rejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rejected_total",
			Help: "Inbound messages answered with an error, by reason.",
		}, []string{"reason"}),
		Evictions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "teardowns_total",
			Help: "Participant teardowns by source.",
		}, []string{"source"}),
		DeliveryFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "delivery_failures_total",
			Help: "Outbound frames that could not be queued.",
		}),
		HostChanges: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "host_changes_total",
			Help: "Host promotions after the previous host left.",
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
