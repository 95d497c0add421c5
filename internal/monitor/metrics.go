package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketwatch_fetch_errors_total",
			Help: "Total number of failed quote source requests",
		},
		[]string{"op"},
	)

	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketwatch_notifications_total",
			Help: "Total number of notifications emitted",
		},
		[]string{"kind"},
	)

	deliveryErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketwatch_delivery_errors_total",
			Help: "Total number of notifications the sink failed to deliver",
		},
	)

	alarmsFired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketwatch_alarms_fired_total",
			Help: "Total number of price alarms fired",
		},
	)

	recoveredPanics = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketwatch_recovered_panics_total",
			Help: "Total number of panics recovered while processing an instrument",
		},
		[]string{"loop"},
	)

	cycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marketwatch_cycle_duration_seconds",
			Help:    "Duration of one loop iteration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
		[]string{"loop"},
	)

	watchedInstruments = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "marketwatch_watched_instruments",
			Help: "Number of instruments in the registry",
		},
	)
)
