// Package metrics provides Prometheus observability metrics for the
// assignment engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the custom prometheus registry for the engine.
var Registry = prometheus.NewRegistry()

// factory registers metrics against our custom Registry directly
var factory = promauto.With(Registry)

// OffersCreatedTotal counts offers (and broadcast windows) opened, by tier.
var OffersCreatedTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "engine",
	Name:      "offers_created_total",
	Help:      "Offers created, broken down by escalation tier",
}, []string{"tier"})

// OffersDeclinedTotal counts explicit declines, by tier.
var OffersDeclinedTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "engine",
	Name:      "offers_declined_total",
	Help:      "Offers explicitly declined by artists, broken down by tier",
}, []string{"tier"})

// OffersExpiredTotal counts acceptance windows that lapsed, by tier.
var OffersExpiredTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "engine",
	Name:      "offers_expired_total",
	Help:      "Offers that expired without a response, broken down by tier",
}, []string{"tier"})

// TasksAssignedTotal counts successful assignments, by tier reached.
var TasksAssignedTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "engine",
	Name:      "tasks_assigned_total",
	Help:      "Tasks assigned to an artist, broken down by the tier that produced the match",
}, []string{"tier"})

// TasksAdminEscalatedTotal counts tasks that exhausted every tier.
var TasksAdminEscalatedTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "engine",
	Name:      "tasks_admin_escalated_total",
	Help:      "Tasks that exhausted all tiers and were handed to an admin",
})

// TasksCancelledTotal counts externally withdrawn tasks.
var TasksCancelledTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "engine",
	Name:      "tasks_cancelled_total",
	Help:      "Tasks withdrawn by the client while in the pipeline",
})

// AcceptConflictsTotal counts accepts that lost the per-task race.
var AcceptConflictsTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "engine",
	Name:      "accept_conflicts_total",
	Help:      "Accept calls that observed the task already assigned",
})

// ActiveEscalations tracks tasks currently in the pipeline.
var ActiveEscalations = factory.NewGauge(prometheus.GaugeOpts{
	Namespace: "engine",
	Name:      "active_escalations",
	Help:      "Tasks currently progressing through escalation tiers",
})

// AssignmentDurationSeconds tracks time from pipeline entry to assignment.
var AssignmentDurationSeconds = factory.NewHistogram(prometheus.HistogramOpts{
	Namespace: "engine",
	Name:      "assignment_duration_seconds",
	Help:      "Time from task submission to successful assignment",
	Buckets:   []float64{1, 10, 60, 300, 900, 1800, 3600, 7200, 14400},
})
