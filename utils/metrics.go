package utils

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RestartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "client_restarts_total",
		Help: "Total number of client restarts started, by reason",
	}, []string{"reason"})

	RestartFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "client_restart_failures_total",
		Help: "Total number of restart attempts that failed",
	})

	RestartDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "client_restart_duration_seconds",
		Help:    "Time taken by successful restarts",
		Buckets: []float64{1, 2, 5, 10, 20, 30, 60},
	})

	HealthChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keepalive_checks_total",
		Help: "Keep-alive probe results",
	}, []string{"result"})

	MessagesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_messages_processed_total",
		Help: "Inbound messages that completed the relay pipeline",
	})

	MessagesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_messages_failed_total",
		Help: "Inbound messages that ended in an error reply",
	})

	MessagesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_messages_dropped_total",
		Help: "Inbound messages dropped because the queue was full",
	})

	QueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_queue_length",
		Help: "Inbound messages waiting for the relay worker",
	})

	SendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "command_sends_total",
		Help: "Send-message API calls, by outcome",
	}, []string{"outcome"})
)
