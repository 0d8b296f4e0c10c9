package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var adminRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_admin_requests",
	Help: "Number of admin API requests handled, by operation and outcome",
}, []string{"op", "status"})

var discordSessionUp = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "warden_discord_session_up",
	Help: "Whether the Discord gateway session is open (1) or not (0)",
})
