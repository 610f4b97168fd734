package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	writeConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_write_conflict_retries_total",
		Help: "Version-conditional product writes retried after losing a race.",
	}, []string{"operation"})

	writeConflictsExhausted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_write_conflicts_exhausted_total",
		Help: "Product writes that gave up after the retry budget.",
	}, []string{"operation"})
)
