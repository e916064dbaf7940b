package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codexgate_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codexgate_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	AdmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codexgate_admissions_total",
			Help: "Rate limiter decisions by role and outcome.",
		},
		[]string{"role", "outcome"},
	)

	RateLimiterFailOpenTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "codexgate_ratelimiter_fail_open_total",
			Help: "Admissions allowed because the counter store was unreachable.",
		},
	)

	RedemptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codexgate_redemptions_total",
			Help: "Redemption attempts by outcome.",
		},
		[]string{"outcome"},
	)

	PlanGrantsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codexgate_plan_grants_total",
			Help: "Plan grants by mode (created, extended, replaced).",
		},
		[]string{"mode"},
	)

	CacheFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codexgate_cache_fallbacks_total",
			Help: "Cache operations served by the memory fallback after a primary failure.",
		},
		[]string{"op"},
	)

	UsageTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codexgate_usage_tokens_total",
			Help: "Total tokens recorded, by model.",
		},
		[]string{"model"},
	)

	UsageCostTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codexgate_usage_cost_total",
			Help: "Total cost in dollars recorded, by model.",
		},
		[]string{"model"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		AdmissionsTotal,
		RateLimiterFailOpenTotal,
		RedemptionsTotal,
		PlanGrantsTotal,
		CacheFallbacksTotal,
		UsageTokensTotal,
		UsageCostTotal,
	)
}
