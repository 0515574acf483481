package obs

import "github.com/prometheus/client_golang/prometheus"

var (
	authLogins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Login attempts by result.",
		},
		[]string{"result"},
	)

	authRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_token_refreshes_total",
			Help: "Token refresh attempts by result.",
		},
		[]string{"result"},
	)

	authzDenied = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authz_denied_total",
		Help: "Requests rejected for insufficient permissions.",
	})
)

// InitAuthMetrics registers the authentication counters.
func InitAuthMetrics() {
	prometheus.MustRegister(authLogins, authRefreshes, authzDenied)
}

// CountLogin records a login attempt. Result is "ok" or "denied".
func CountLogin(result string) { authLogins.WithLabelValues(result).Inc() }

// CountRefresh records a token refresh attempt. Result is "ok" or "denied".
func CountRefresh(result string) { authRefreshes.WithLabelValues(result).Inc() }

// CountDenied records a permission rejection.
func CountDenied() { authzDenied.Inc() }
