package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SalesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "sales_total",
		Help:      "Sales processed, edited and voided by resulting order status.",
	}, []string{"operation", "status"})

	StockMovedUnits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "stock_moved_units_total",
		Help:      "Absolute stock quantity moved, by movement type.",
	}, []string{"type"})

	StockShortfalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "stock_shortfalls_total",
		Help:      "Best-effort consumptions that could not be fully satisfied.",
	}, []string{"type"})

	ActivityLogFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "activity_log_failures_total",
		Help:      "Activity log writes that failed after commit.",
	})

	ReportCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "report_cache_lookups_total",
		Help:      "Report cache lookups by report and result.",
	}, []string{"report", "result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ledger",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route pattern and status code.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)
