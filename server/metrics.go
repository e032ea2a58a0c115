package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trinity_queries_total",
		Help: "Queries served, by outcome.",
	}, []string{"status"})

	queryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trinity_query_duration_seconds",
		Help:    "Query execution latency.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	})

	matchedDocuments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trinity_matched_documents_total",
		Help: "Documents matched across all queries.",
	})
)
