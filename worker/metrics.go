package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	executedTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "go_extask_worker_executed_tasks_total",
		Help: "Total number of executed tasks, whose outcome has been reported.",
	}, []string{"topic", "outcome"})

	fetchedTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "go_extask_worker_fetched_tasks_total",
		Help: "Total number of fetched and locked tasks.",
	}, []string{"topic"})

	fetchFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "go_extask_worker_fetch_failures_total",
		Help: "Total number of failed fetch and lock attempts.",
	}, []string{"topic"})

	lockRenewalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "go_extask_worker_lock_renewals_total",
		Help: "Total number of lock extensions.",
	}, []string{"topic", "result"})

	reportFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "go_extask_worker_report_failures_total",
		Help: "Total number of tasks, whose outcome could not be reported.",
	}, []string{"topic", "outcome"})

	taskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "go_extask_worker_task_duration_seconds",
		Help:    "Duration of task executions, from the start of the handler until the outcome is determined.",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 9),
	}, []string{"topic", "outcome"})
)
