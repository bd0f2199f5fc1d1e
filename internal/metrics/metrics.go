// Package metrics holds the Prometheus collectors of the pricing service.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "shop_pricing",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shop_pricing",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "shop_pricing",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	quotes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shop_pricing",
			Subsystem: "pricing",
			Name:      "quotes_total",
			Help:      "Total number of price computations.",
		},
		[]string{"urgency", "outcome"},
	)

	quoteFinalPrice = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "shop_pricing",
			Subsystem: "pricing",
			Name:      "quote_final_price",
			Help:      "Final price of successful quotes, in currency units.",
			Buckets:   prometheus.ExponentialBuckets(10, 2, 10), // 10 to ~5k
		},
	)

	settingsUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shop_pricing",
			Subsystem: "settings",
			Name:      "updates_total",
			Help:      "Total number of settings update attempts.",
		},
		[]string{"outcome"},
	)

	logEntries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shop_pricing",
			Subsystem: "settings",
			Name:      "pricing_log_entries_total",
			Help:      "Total number of pricing log entries written.",
		},
		[]string{"change_type"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		quotes,
		quoteFinalPrice,
		settingsUpdates,
		logEntries,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		path := routePath(r)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

// RecordQuote records one price computation. finalPrice is ignored for failures.
func RecordQuote(urgency, outcome string, finalPrice decimal.Decimal) {
	if urgency == "" {
		urgency = "unknown"
	}
	quotes.WithLabelValues(urgency, outcome).Inc()
	if outcome == OutcomeOK {
		quoteFinalPrice.Observe(finalPrice.InexactFloat64())
	}
}

// RecordSettingsUpdate records one settings update attempt
func RecordSettingsUpdate(outcome string) {
	settingsUpdates.WithLabelValues(outcome).Inc()
}

// RecordLogEntry records one written pricing log entry
func RecordLogEntry(changeType string) {
	logEntries.WithLabelValues(changeType).Inc()
}

// Outcome labels
const (
	OutcomeOK        = "ok"
	OutcomeNoChange  = "no_change"
	OutcomeRejected  = "rejected"
	OutcomeInvalid   = "invalid"
	OutcomeStoreFail = "store_error"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// routePath labels a request by its mux route template so tenant and run ids
// do not explode label cardinality.
func routePath(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	trimmed := strings.Trim(r.URL.Path, "/")
	if trimmed == "" {
		return "/"
	}
	return "/" + strings.SplitN(trimmed, "/", 2)[0]
}
