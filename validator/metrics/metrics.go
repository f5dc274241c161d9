// Package metrics exposes the validator's prometheus collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "palaidn"

// Metrics holds the validator collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	rounds           *prometheus.CounterVec
	roundDuration    prometheus.Histogram
	partition        *prometheus.GaugeVec
	responses        *prometheus.CounterVec
	commits          *prometheus.CounterVec
	currentBlock     prometheus.Gauge
	lastUpdatedBlock prometheus.Gauge
	membershipSize   prometheus.Gauge
	scores           *prometheus.GaugeVec
	endpointHealth   *prometheus.GaugeVec
}

// New creates the collectors and registers them with registerer.
func New(registerer prometheus.Registerer) *Metrics {
	m := Metrics{
		rounds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rounds_total",
				Help:      "Number of validator rounds by outcome",
			},
			[]string{"outcome"},
		),
		roundDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "round_duration_seconds",
				Help:      "Duration of a validator round",
				Buckets:   prometheus.ExponentialBucketsRange(0.1, 120, 10),
			},
		),
		partition: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "partition_size",
				Help:      "Number of uids in each set of the last round partition",
			},
			[]string{"set"},
		),
		responses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "responses_total",
				Help:      "Peer query outcomes",
			},
			[]string{"result"},
		),
		commits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "weight_commits_total",
				Help:      "Weight commit attempts by outcome",
			},
			[]string{"outcome"},
		),
		currentBlock: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ledger_block",
				Help:      "Last observed ledger height",
			},
		),
		lastUpdatedBlock: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_updated_block",
				Help:      "Ledger height of the last successful weight commit",
			},
		),
		membershipSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "membership_size",
				Help:      "Number of participants in the membership view",
			},
		),
		scores: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "score",
				Help:      "Current score per uid",
			},
			[]string{"uid"},
		),
		endpointHealth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ledger_endpoint_health",
				Help:      "Health score of each ledger endpoint (0-100)",
			},
			[]string{"url"},
		),
	}
	registerer.MustRegister(
		m.rounds,
		m.roundDuration,
		m.partition,
		m.responses,
		m.commits,
		m.currentBlock,
		m.lastUpdatedBlock,
		m.membershipSize,
		m.scores,
		m.endpointHealth,
	)
	return &m
}

// ObserveRound records a finished round.
func (m *Metrics) ObserveRound(failed bool, took time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if failed {
		outcome = "failed"
	}
	m.rounds.WithLabelValues(outcome).Inc()
	m.roundDuration.Observe(took.Seconds())
}

// SetPartition records the size of each partition set.
func (m *Metrics) SetPartition(toQuery, blacklisted, notQueried int) {
	if m == nil {
		return
	}
	m.partition.WithLabelValues("to_query").Set(float64(toQuery))
	m.partition.WithLabelValues("blacklisted").Set(float64(blacklisted))
	m.partition.WithLabelValues("not_queried").Set(float64(notQueried))
}

// AddResponses counts answered and absent peers.
func (m *Metrics) AddResponses(answered, absent int) {
	if m == nil {
		return
	}
	m.responses.WithLabelValues("answered").Add(float64(answered))
	m.responses.WithLabelValues("absent").Add(float64(absent))
}

// ObserveCommit counts a commit attempt.
func (m *Metrics) ObserveCommit(success bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.commits.WithLabelValues(outcome).Inc()
}

// SetBlocks records the ledger heights.
func (m *Metrics) SetBlocks(current, lastUpdated uint64) {
	if m == nil {
		return
	}
	m.currentBlock.Set(float64(current))
	m.lastUpdatedBlock.Set(float64(lastUpdated))
}

// SetMembershipSize records the membership size.
func (m *Metrics) SetMembershipSize(n int) {
	if m == nil {
		return
	}
	m.membershipSize.Set(float64(n))
}

// SetScores publishes the whole score vector.
func (m *Metrics) SetScores(scores []float64) {
	if m == nil {
		return
	}
	for uid, s := range scores {
		m.scores.WithLabelValues(strconv.Itoa(uid)).Set(s)
	}
}

// SetEndpointHealth records the health score of a ledger endpoint.
func (m *Metrics) SetEndpointHealth(url string, score float64) {
	if m == nil {
		return
	}
	m.endpointHealth.WithLabelValues(url).Set(score)
}
