package metrics

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mnodemo"

// Metrics holds the collectors of a single launcher process.
// Each launcher owns its registry, so tests can build as many as they like.
type Metrics struct {
	Registry        *prometheus.Registry
	Marketplaces    prometheus.Gauge
	OpenConnections prometheus.Gauge
	requests        *prometheus.CounterVec
}

func New(launcher string) *Metrics {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"launcher": launcher}

	m := &Metrics{
		Registry: reg,
		Marketplaces: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "marketplaces_configured",
			Help:        "Number of marketplace configurations returned by auto-configuration.",
			ConstLabels: labels,
		}),
		OpenConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "open_connections",
			Help:        "Connections currently accepted by the HTTP listener.",
			ConstLabels: labels,
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "http_requests_total",
			Help:        "HTTP requests served, by method and status code.",
			ConstLabels: labels,
		}, []string{"method", "code"}),
	}

	reg.MustRegister(
		m.Marketplaces,
		m.OpenConnections,
		m.requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Observe counts one served request.
func (m *Metrics) Observe(method string, code int) {
	m.requests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}

// Middleware counts requests passing through a net/http handler chain.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.Observe(r.Method, status)
	})
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
