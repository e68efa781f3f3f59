package prometheus

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counter metrics
var (
	LoginCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lms_auth_login_total",
			Help: "Total number of login attempts",
		},
	)

	RegisterCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lms_auth_register_total",
			Help: "Total number of user registrations",
		},
	)

	AccountLockoutCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lms_auth_account_lockouts_total",
			Help: "Total number of accounts locked after repeated failed logins",
		},
	)

	AuthErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lms_auth_errors_total",
			Help: "Total number of authentication errors",
		},
		[]string{"type"}, // "invalid_credentials", "account_locked", "invalid_token", ...
	)

	OrgOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lms_auth_organization_operations_total",
			Help: "Total number of organization operations",
		},
		[]string{"operation"}, // "register", "access", "update", "delete"
	)

	OrgTokenCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lms_auth_organization_tokens_total",
			Help: "Total number of registration token lifecycle transitions",
		},
		[]string{"transition"}, // "created", "used", "expired", "revoked"
	)

	HTTPRequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lms_auth_http_requests_total",
			Help: "Total number of HTTP requests by endpoint and status",
		},
		[]string{"endpoint", "method", "status"},
	)
)

// Histogram metrics
var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lms_auth_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	DBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lms_auth_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // "query", "insert", "update", "delete"
	)
)

// Gauge metrics
var (
	ActiveSessionsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lms_auth_active_sessions",
			Help: "Number of sessions issued and not yet expired (approximate)",
		},
	)

	ActiveOrganizationsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lms_auth_active_organizations",
			Help: "Number of currently active organizations",
		},
	)
)

func init() {
	prometheus.MustRegister(LoginCounter)
	prometheus.MustRegister(RegisterCounter)
	prometheus.MustRegister(AccountLockoutCounter)
	prometheus.MustRegister(AuthErrorCounter)
	prometheus.MustRegister(OrgOperationCounter)
	prometheus.MustRegister(OrgTokenCounter)
	prometheus.MustRegister(HTTPRequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(DBOperationDuration)
	prometheus.MustRegister(ActiveSessionsGauge)
	prometheus.MustRegister(ActiveOrganizationsGauge)
}

// RecordAuthError increments the auth error counter for the given kind.
func RecordAuthError(errorType string) {
	AuthErrorCounter.WithLabelValues(errorType).Inc()
}

// RecordOrgOperation increments the organization operation counter.
func RecordOrgOperation(operation string) {
	OrgOperationCounter.WithLabelValues(operation).Inc()
}

// RecordTokenTransition increments the registration token transition counter.
func RecordTokenTransition(transition string) {
	OrgTokenCounter.WithLabelValues(transition).Inc()
}

// TrackDBOperation returns a function that observes the elapsed time of a
// database operation. Use as: defer TrackDBOperation("query")(time.Now())
func TrackDBOperation(operation string) func(time.Time) {
	return func(start time.Time) {
		DBOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

// MetricsMiddleware returns an Echo middleware recording request counts and
// durations per endpoint.
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}

			endpoint := c.Path()
			method := c.Request().Method
			statusStr := strconv.Itoa(status)

			HTTPRequestCounter.WithLabelValues(endpoint, method, statusStr).Inc()
			RequestDuration.WithLabelValues(endpoint, method, statusStr).Observe(time.Since(start).Seconds())

			return err
		}
	}
}

// GetPrometheusHandler returns the handler serving the /metrics endpoint.
func GetPrometheusHandler() http.Handler {
	return promhttp.Handler()
}
