// Package metrics declares the service's prometheus collectors.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var IndexReconcileDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "pelilauta",
	Subsystem: "tagindex",
	Name:      "reconcile_duration_seconds",
	Help:      "Latency of tag index reconcile writes.",
	Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
}, []string{"op"})

var IndexReconcileResults = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pelilauta",
	Subsystem: "tagindex",
	Name:      "reconcile_results",
	Help:      "Tag index reconcile outcomes by op and result.",
}, []string{"op", "result"})

var BackgroundTasks = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pelilauta",
	Subsystem: "background",
	Name:      "tasks",
	Help:      "Background tasks finished, by task name and result.",
}, []string{"task", "result"})

var BackgroundTaskDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "pelilauta",
	Subsystem: "background",
	Name:      "task_duration_seconds",
	Help:      "Background task run time.",
	Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
}, []string{"task"})

var Notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pelilauta",
	Subsystem: "notify",
	Name:      "notifications",
	Help:      "Notification requests by type and result.",
}, []string{"type", "result"})

var HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pelilauta",
	Subsystem: "http",
	Name:      "requests",
	Help:      "HTTP requests by route template, method and status code.",
}, []string{"route", "method", "code"})

// Result label values.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultDropped = "dropped"
	ResultPanic   = "panic"
)

// Register adds every collector to reg. Collectors already present are skipped.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		IndexReconcileDuration,
		IndexReconcileResults,
		BackgroundTasks,
		BackgroundTaskDuration,
		Notifications,
		HTTPRequests,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return err
		}
	}
	return nil
}

// Result maps an error to a result label.
func Result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}
