package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var trackedWindows = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "warden_ratelimit_windows",
	Help: "Number of actor windows held in memory, as of the last prune",
})
