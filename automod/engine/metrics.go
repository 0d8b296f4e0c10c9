package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventProcessDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "warden_event_duration_sec",
	Help: "Total duration of inbound event processing",
}, []string{"type"})

var eventProcessCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_event_processed",
	Help: "Number of inbound events processed",
}, []string{"type"})

var eventErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_event_errors",
	Help: "Number of inbound events which failed processing",
}, []string{"type"})

var burstCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "warden_bursts_detected",
	Help: "Number of activity events at or over the burst threshold",
})

var blockedPhraseCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "warden_blocked_phrases",
	Help: "Number of activity events matching the blocklist",
})

var actionNewFlagCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_new_action_flags",
	Help: "Number of actor flags recorded",
}, []string{"val"})

var flagsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_flags_suppressed",
	Help: "Number of actor flags skipped because of the flag cooldown",
}, []string{"val"})

var restrictionsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_restrictions_applied",
	Help: "Number of temporary restrictions applied",
}, []string{"kind", "source"})

var restrictionsLifted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_restrictions_lifted",
	Help: "Number of restrictions lifted, by expiry or manually",
}, []string{"kind", "source"})

var contentRemovedCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "warden_content_removed",
	Help: "Number of messages removed for containing a blocked phrase",
})

var remindersDelivered = promauto.NewCounter(prometheus.CounterOpts{
	Name: "warden_reminders_delivered",
	Help: "Number of reminders delivered",
})

var breakerTrips = promauto.NewCounter(prometheus.CounterOpts{
	Name: "warden_restriction_breaker_trips",
	Help: "Number of automatic restrictions skipped by the per-community circuit breaker",
})

var capabilityErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_capability_errors",
	Help: "Number of failed outbound actions, by operation",
}, []string{"op"})
