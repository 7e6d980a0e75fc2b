package advisor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	answersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmhand_advisor_answers_total",
			Help: "Answers resolved, by strategy label",
		},
		[]string{"strategy"},
	)

	fallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmhand_advisor_fallbacks_total",
			Help: "Absorbed failures, by fallback kind",
		},
		[]string{"kind"},
	)

	cacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "farmhand_advisor_weblookup_cache_hits_total",
			Help: "Web lookups served from the cache",
		},
	)

	cacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "farmhand_advisor_weblookup_cache_misses_total",
			Help: "Web lookups that went out to the search provider",
		},
	)

	resolveSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "farmhand_advisor_resolve_seconds",
			Help:    "Time spent classifying and resolving one query",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Fallback kinds recorded on fallbacksTotal.
const (
	fallbackClassification = "classification"
	fallbackRetrieval      = "retrieval_exhausted"
	fallbackLookup         = "lookup"
	fallbackTabular        = "tabular_execution"
	fallbackSynthesis      = "synthesis"
)
