// Package obs holds the service's observability surface: Prometheus
// counters and the metrics handler.
package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	credentialsIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "unicred_credentials_issued_total",
		Help: "Credentials anchored and recorded.",
	})

	credentialsRevokedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "unicred_credentials_revoked_total",
		Help: "Credentials revoked on the ledger.",
	})

	verificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unicred_verifications_total",
			Help: "Completed verification sessions by outcome.",
		},
		[]string{"outcome"},
	)

	authSessionsStartedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "unicred_auth_sessions_started_total",
		Help: "Wallet authentication sessions created.",
	})

	didBindingsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "unicred_did_bindings_total",
		Help: "DID-to-account bindings created.",
	})

	inconsistenciesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "unicred_critical_inconsistencies_total",
		Help: "Post-anchor failures leaving ledger and record store out of sync.",
	})
)

// Init registers the counters with the default registry. Call once at
// startup.
func Init() {
	prometheus.MustRegister(
		credentialsIssuedTotal,
		credentialsRevokedTotal,
		verificationsTotal,
		authSessionsStartedTotal,
		didBindingsTotal,
		inconsistenciesTotal,
	)
}

// Handler serves the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordCredentialIssued()  { credentialsIssuedTotal.Inc() }
func RecordCredentialRevoked() { credentialsRevokedTotal.Inc() }
func RecordAuthSessionStart()  { authSessionsStartedTotal.Inc() }
func RecordDIDBound()          { didBindingsTotal.Inc() }
func RecordInconsistency()     { inconsistenciesTotal.Inc() }

// RecordVerification counts a terminal verification by outcome, either
// "verified" or "rejected".
func RecordVerification(outcome string) {
	verificationsTotal.WithLabelValues(outcome).Inc()
}
