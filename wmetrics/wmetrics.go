// Package wmetrics holds the Prometheus collectors for a witness node.
//
// Every method is safe to call on a nil *Collector,
// so components can be constructed without metrics.
package wmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "witness"

// Collector records round consensus activity.
type Collector struct {
	roundsProposed  prometheus.Counter
	roundsAbandoned prometheus.Counter
	roundsFinalized prometheus.Counter

	signaturesCollected prometheus.Gauge
	proposalResponses   *prometheus.CounterVec

	verifications *prometheus.CounterVec
	disputes      prometheus.Counter

	lastVerifiedRound prometheus.Gauge

	broadcastAttempts  prometheus.Counter
	broadcastFailures  prometheus.Counter
	lastSubmittedRound prometheus.Gauge
}

func NewCollector(registerer prometheus.Registerer) *Collector {
	c := &Collector{
		roundsProposed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "leader",
			Name:      "rounds_proposed_total",
			Help:      "number of rounds this node proposed as the scheduled witness",
		}),
		roundsAbandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "leader",
			Name:      "rounds_abandoned_total",
			Help:      "number of proposed rounds dropped before reaching quorum",
		}),
		roundsFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "leader",
			Name:      "rounds_finalized_total",
			Help:      "number of proposed rounds that reached quorum",
		}),
		signaturesCollected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "leader",
			Name:      "signatures_collected",
			Help:      "distinct signatures collected for the current proposed round",
		}),
		proposalResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "leader",
			Name:      "proposal_responses_total",
			Help:      "responses to this node's proposals, by result",
		}, []string{"result"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verifier",
			Name:      "proposals_handled_total",
			Help:      "proposals received from other witnesses, by result",
		}, []string{"result"}),
		disputes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disputes_total",
			Help:      "round hash mismatches observed as verifier or proposer",
		}),
		lastVerifiedRound: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_verified_round",
			Help:      "highest round this node verified or finalized",
		}),
		broadcastAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "attempts_total",
			Help:      "finalization submissions attempted against the backing chain",
		}),
		broadcastFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "failures_total",
			Help:      "finalization submissions that failed and were retried",
		}),
		lastSubmittedRound: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "last_submitted_round",
			Help:      "highest round successfully submitted to the backing chain",
		}),
	}

	registerer.MustRegister(
		c.roundsProposed, c.roundsAbandoned, c.roundsFinalized,
		c.signaturesCollected, c.proposalResponses,
		c.verifications, c.disputes,
		c.lastVerifiedRound,
		c.broadcastAttempts, c.broadcastFailures, c.lastSubmittedRound,
	)

	return c
}

func (c *Collector) RoundProposed() {
	if c == nil {
		return
	}
	c.roundsProposed.Inc()
	c.signaturesCollected.Set(1)
}

func (c *Collector) RoundAbandoned() {
	if c == nil {
		return
	}
	c.roundsAbandoned.Inc()
	c.signaturesCollected.Set(0)
}

func (c *Collector) RoundFinalized() {
	if c == nil {
		return
	}
	c.roundsFinalized.Inc()
	c.signaturesCollected.Set(0)
}

func (c *Collector) SignaturesCollected(n int) {
	if c == nil {
		return
	}
	c.signaturesCollected.Set(float64(n))
}

// ProposalResponse counts a peer's response to one of this node's proposals.
func (c *Collector) ProposalResponse(result string) {
	if c == nil {
		return
	}
	c.proposalResponses.WithLabelValues(result).Inc()
}

// ProposalHandled counts a proposal this node handled as a verifier.
func (c *Collector) ProposalHandled(result string) {
	if c == nil {
		return
	}
	c.verifications.WithLabelValues(result).Inc()
}

func (c *Collector) Dispute() {
	if c == nil {
		return
	}
	c.disputes.Inc()
}

func (c *Collector) LastVerifiedRound(r uint64) {
	if c == nil {
		return
	}
	c.lastVerifiedRound.Set(float64(r))
}

func (c *Collector) BroadcastAttempt() {
	if c == nil {
		return
	}
	c.broadcastAttempts.Inc()
}

func (c *Collector) BroadcastFailure() {
	if c == nil {
		return
	}
	c.broadcastFailures.Inc()
}

func (c *Collector) LastSubmittedRound(r uint64) {
	if c == nil {
		return
	}
	c.lastSubmittedRound.Set(float64(r))
}
