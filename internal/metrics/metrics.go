package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesbot_webhook_events_total",
			Help: "Inbound gateway events by pipeline outcome",
		},
		[]string{"outcome"},
	)

	PipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "salesbot_pipeline_duration_seconds",
			Help:    "Time spent processing one inbound event",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"outcome"},
	)

	OrderTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesbot_order_transitions_total",
			Help: "Order status transitions",
		},
		[]string{"from", "to"},
	)

	TriggersFired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "salesbot_triggers_fired_total",
		Help: "Triggers that matched and short-circuited the pipeline",
	})

	AIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesbot_ai_requests_total",
			Help: "Completion provider calls by result",
		},
		[]string{"provider", "result"},
	)

	RepliesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesbot_replies_sent_total",
			Help: "Outbound gateway messages by channel",
		},
		[]string{"channel", "result"},
	)

	DegradedSteps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesbot_degraded_steps_total",
			Help: "Recoverable external-call failures the pipeline continued past",
		},
		[]string{"step"},
	)
)
