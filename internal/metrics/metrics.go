package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the application collectors. Each instance registers on its
// own registry so tests can build as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	Uploads        *prometheus.CounterVec // by type and result
	UploadBytes    prometheus.Counter
	Deletes        *prometheus.CounterVec // by result
	ThemeChanges   *prometheus.CounterVec // by theme
	PINAttempts    *prometheus.CounterVec // by result
	PresentClients prometheus.Gauge
	PresentRooms   prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		Uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tinytalk",
			Name:      "uploads_total",
			Help:      "Uploads by media type and result",
		}, []string{"type", "result"}),
		UploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tinytalk",
			Name:      "upload_bytes_total",
			Help:      "Bytes stored by successful uploads",
		}),
		Deletes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tinytalk",
			Name:      "deletes_total",
			Help:      "Delete requests by result",
		}, []string{"result"}),
		ThemeChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tinytalk",
			Name:      "theme_changes_total",
			Help:      "Theme writes by theme",
		}, []string{"theme"}),
		PINAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tinytalk",
			Name:      "pin_attempts_total",
			Help:      "PIN checks by result",
		}, []string{"result"}),
		PresentClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tinytalk",
			Name:      "present_clients",
			Help:      "Connected presentation websocket clients",
		}),
		PresentRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tinytalk",
			Name:      "present_rooms",
			Help:      "Open presentation rooms",
		}),
	}
	reg.MustRegister(
		m.Uploads, m.UploadBytes, m.Deletes, m.ThemeChanges, m.PINAttempts,
		m.PresentClients, m.PresentRooms,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Result labels an outcome for the counters.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Handler serves the registry for Prometheus scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
