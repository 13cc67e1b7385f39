// Package metrics defines the Prometheus collectors exported by the bot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outbound action metrics
var (
	// ActionsTotal tracks outbound actions by kind (note, renote, reaction, dm) and result
	ActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hbdbot_actions_total",
			Help: "Outbound actions by kind and result",
		},
		[]string{"kind", "result"},
	)

	// RateGateWaitSeconds accumulates time spent blocked by the rate gate
	RateGateWaitSeconds = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hbdbot_rate_gate_wait_seconds_total",
			Help: "Total seconds outbound actions waited for the rate gate",
		},
	)

	// RateGateLogSize is the number of admissions inside the trailing hour
	RateGateLogSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hbdbot_rate_gate_log_size",
			Help: "Admissions recorded in the trailing hour",
		},
	)
)

// Polling metrics
var (
	// PollItemsTotal counts items returned per feed
	PollItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hbdbot_poll_items_total",
			Help: "Items returned by each feed",
		},
		[]string{"feed"},
	)

	// PollTimeoutsTotal counts polls that ended in a timeout per feed
	PollTimeoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hbdbot_poll_timeouts_total",
			Help: "Polls treated as empty because of a timeout",
		},
		[]string{"feed"},
	)
)

// Bot metrics
var (
	// ResharesTotal counts reshare decisions that fired, by rule
	ResharesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hbdbot_reshares_total",
			Help: "Reshares by the rule that triggered them",
		},
		[]string{"rule"},
	)

	// RepliesTotal counts conversation responses by command
	RepliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hbdbot_replies_total",
			Help: "Conversation responses by command",
		},
		[]string{"command"},
	)

	// SnapshotsTotal counts snapshot attempts by trigger and result
	SnapshotsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hbdbot_snapshots_total",
			Help: "State snapshots by trigger and result",
		},
		[]string{"trigger", "result"},
	)

	// Subscribers is the size of the subscriber record
	Subscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hbdbot_subscribers",
			Help: "Users registered for birthday greetings",
		},
	)
)
