package promote

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var votesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_promote_votes",
	Help: "Number of votes and retractions processed, by operation and direction",
}, []string{"op", "direction"})

var promotions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_promote_promotions",
	Help: "Number of content promotions attempted, by outcome",
}, []string{"status"})
