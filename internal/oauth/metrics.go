package oauth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the authenticator.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Logins               *prometheus.CounterVec
	Logouts              prometheus.Counter
	RefreshCalls         prometheus.Counter
	TokenRefreshRequests *prometheus.CounterVec
	RedirectsDropped     prometheus.Counter
}

// NewMetrics creates the authenticator metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Logins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "deskauth_logins_total",
			Help: "Login attempts by result",
		}, []string{"result"}),
		Logouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "deskauth_logouts_total",
			Help: "Logouts that opened the end-session page",
		}),
		RefreshCalls: factory.NewCounter(prometheus.CounterOpts{
			Name: "deskauth_token_refresh_calls_total",
			Help: "Callers asking for a token refresh, including those joining an in-flight refresh",
		}),
		TokenRefreshRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "deskauth_token_refresh_requests_total",
			Help: "refresh_token grant requests sent to the token endpoint, by result",
		}, []string{"result"}),
		RedirectsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "deskauth_redirects_dropped_total",
			Help: "Redirect notifications that matched no pending request",
		}),
	}
}

func (m *Metrics) login(result string) {
	if m != nil {
		m.Logins.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) logout() {
	if m != nil {
		m.Logouts.Inc()
	}
}

func (m *Metrics) refreshCall() {
	if m != nil {
		m.RefreshCalls.Inc()
	}
}

func (m *Metrics) refreshRequest(result string) {
	if m != nil {
		m.TokenRefreshRequests.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) redirectDropped() {
	if m != nil {
		m.RedirectsDropped.Inc()
	}
}
