package meter

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	vr "github.com/ineyio/visionrouter"
)

// PrometheusMeter exports admission, dispatch and fallback counters.
type PrometheusMeter struct {
	admissions       *prometheus.CounterVec
	routes           *prometheus.CounterVec
	results          *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	fallbacks        *prometheus.CounterVec
}

var _ vr.Meter = (*PrometheusMeter)(nil)

// NewPrometheusMeter creates the collectors and registers them with reg.
// A nil reg uses the default registerer.
func NewPrometheusMeter(reg prometheus.Registerer) (*PrometheusMeter, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &PrometheusMeter{
		admissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "visionrouter_admissions_total",
				Help: "Total number of admission decisions.",
			},
			[]string{"provider", "tier", "allowed"},
		),
		routes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "visionrouter_routes_total",
				Help: "Total number of dispatches to a provider.",
			},
			[]string{"provider", "last_resort"},
		),
		results: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "visionrouter_results_total",
				Help: "Total number of provider results.",
			},
			[]string{"provider", "status"},
		),
		dispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "visionrouter_dispatch_duration_seconds",
				Help:    "Provider call duration in seconds.",
				Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
			},
			[]string{"provider"},
		),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "visionrouter_fallbacks_total",
				Help: "Total number of retries onto the default model.",
			},
			[]string{"status"},
		),
	}

	for _, c := range []prometheus.Collector{m.admissions, m.routes, m.results, m.dispatchDuration, m.fallbacks} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *PrometheusMeter) OnAdmission(e vr.AdmissionEvent) {
	m.admissions.WithLabelValues(e.Provider, string(e.Tier), strconv.FormatBool(e.Allowed)).Inc()
}

func (m *PrometheusMeter) OnRoute(e vr.RouteEvent) {
	m.routes.WithLabelValues(e.Provider, strconv.FormatBool(e.LastResort)).Inc()
}

func (m *PrometheusMeter) OnResult(e vr.ResultEvent) {
	m.results.WithLabelValues(e.Provider, status(e.Success)).Inc()
	m.dispatchDuration.WithLabelValues(e.Provider).Observe(e.Duration.Seconds())
}

func (m *PrometheusMeter) OnFallback(e vr.FallbackEvent) {
	m.fallbacks.WithLabelValues(status(e.Success)).Inc()
}

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}
