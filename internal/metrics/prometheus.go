package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	TokensIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authz_tokens_issued_total",
		Help: "Total number of token sets minted by the token endpoint.",
	})
	TokensReusedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authz_tokens_reused_total",
		Help: "Total number of token requests served from a fingerprint-matching token.",
	})
	TokensRefreshedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authz_tokens_refreshed_total",
		Help: "Total number of refresh token rotations.",
	})
	GrantFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authz_grant_failures_total",
		Help: "Total number of failed token grants by grant type.",
	}, []string{"grant_type"})
	PolicyDecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authz_policy_decisions_total",
		Help: "Total number of UMA policy evaluations by decision.",
	}, []string{"decision"})
	TicketsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authz_permission_tickets_created_total",
		Help: "Total number of permission tickets created.",
	})
	TicketsSweptTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authz_permission_tickets_swept_total",
		Help: "Total number of expired permission tickets removed by the sweeper.",
	})
)

// RegisterMetrics registers the authorization server metrics with the given
// registerer. It should be called once at application startup.
func RegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		log.Error().Msg("Prometheus registry is nil, cannot register metrics.")
		return
	}
	collectors := []prometheus.Collector{
		TokensIssuedTotal,
		TokensReusedTotal,
		TokensRefreshedTotal,
		GrantFailuresTotal,
		PolicyDecisionsTotal,
		TicketsCreatedTotal,
		TicketsSweptTotal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Msg("Failed to register Prometheus collector")
		}
	}
}
