package resolver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	resolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "preplab",
		Subsystem: "resolver",
		Name:      "resolutions_total",
		Help:      "Variant resolutions by assignment source.",
	}, []string{"source"})

	fallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "preplab",
		Subsystem: "resolver",
		Name:      "remote_fallbacks_total",
		Help:      "Lookups answered locally because the remote store failed.",
	})

	syncFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "preplab",
		Subsystem: "resolver",
		Name:      "sync_failures_total",
		Help:      "Background cache-to-remote reconciliations that failed.",
	})
)
