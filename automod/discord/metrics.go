package discord

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var apiCalls = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_discord_api_calls",
	Help: "Number of Discord REST calls made by the adapter, by operation and outcome",
}, []string{"op", "status"})

var apiCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "warden_discord_api_duration_sec",
	Help: "Duration of Discord REST calls, including time waiting on the local rate limiter",
}, []string{"op"})

var gatewayEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_discord_gateway_events",
	Help: "Number of gateway events received, by type",
}, []string{"type"})
