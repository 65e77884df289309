package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	SalesCommitted     prometheus.Counter
	SaleRollbacks      prometheus.Counter
	MovementsPosted    prometheus.Counter
	AdjustmentsByState *prometheus.CounterVec
	StockDrift         prometheus.Gauge
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "balcao_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "balcao_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	salesCommitted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "balcao_sales_committed_total",
		Help: "Sales whose full side-effect set committed.",
	})
	saleRollbacks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "balcao_sale_rollbacks_total",
		Help: "Sale transactions aborted before or during commit.",
	})
	movements := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "balcao_cash_movements_total",
		Help: "Cash ledger movements posted.",
	})
	adjustments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "balcao_stock_adjustments_total",
		Help: "Stock adjustments by resulting status.",
	}, []string{"status"})
	drift := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "balcao_stock_qty_drift_products",
		Help: "Products whose cached quantity diverges from the movement log.",
	})
	registry.MustRegister(requests, duration, salesCommitted, saleRollbacks, movements, adjustments, drift)
	return &Metrics{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:      requests,
		requestDuration:    duration,
		SalesCommitted:     salesCommitted,
		SaleRollbacks:      saleRollbacks,
		MovementsPosted:    movements,
		AdjustmentsByState: adjustments,
		StockDrift:         drift,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
