// Package metrics exposes auth outcomes as Prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "schoolhub"

// Outcome label values
const (
	ResultSuccess     = "success"
	ResultInvalid     = "invalid"
	ResultExpired     = "expired"
	ResultReuse       = "reuse"
	ResultRateLimited = "rate_limited"
	ResultError       = "error"
)

// Auth counters. Nil *Auth is valid and records nothing
type Auth struct {
	logins       *prometheus.CounterVec
	refreshes    *prometheus.CounterVec
	logouts      prometheus.Counter
	reuseRevoked prometheus.Counter
}

func NewAuth(reg prometheus.Registerer) *Auth {
	m := &Auth{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "refreshes_total",
			Help:      "Refresh token rotations by result.",
		}, []string{"result"}),
		logouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "logouts_total",
			Help:      "Explicit refresh token revocations.",
		}),
		reuseRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "reuse_revoked_tokens_total",
			Help:      "Refresh tokens revoked because token reuse was detected.",
		}),
	}

	reg.MustRegister(m.logins, m.refreshes, m.logouts, m.reuseRevoked)
	return m
}

func (m *Auth) Login(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}

func (m *Auth) Refresh(result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
}

func (m *Auth) Logout() {
	if m == nil {
		return
	}
	m.logouts.Inc()
}

func (m *Auth) ReuseRevoked(n int) {
	if m == nil {
		return
	}
	m.reuseRevoked.Add(float64(n))
}
