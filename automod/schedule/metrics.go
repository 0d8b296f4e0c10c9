package schedule

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var actionsScheduled = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_scheduler_actions_scheduled",
	Help: "Number of actions registered with the scheduler",
}, []string{"kind"})

var actionsCancelled = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_scheduler_actions_cancelled",
	Help: "Number of pending actions cancelled before execution",
}, []string{"kind"})

var actionsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_scheduler_actions_executed",
	Help: "Number of actions taken off the pending set and executed, by outcome",
}, []string{"kind", "status"})

var executionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "warden_scheduler_execution_duration_sec",
	Help: "Duration of executor invocations",
}, []string{"kind"})

var actionLateness = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "warden_scheduler_lateness_sec",
	Help:    "Delay between an action's due time and the sweep which executed it",
	Buckets: []float64{0.1, 1, 5, 10, 15, 30, 60, 300},
}, []string{"kind"})

var pendingActions = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "warden_scheduler_pending",
	Help: "Number of actions waiting to come due",
})
