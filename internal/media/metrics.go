package media

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	groupOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_media_groups_total",
			Help: "Asset groups that reached a terminal state.",
		},
		[]string{"group", "state"},
	)

	orphansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_media_orphans_total",
			Help: "Remote objects left without a matching record reference.",
		},
		[]string{"reason"},
	)

	remoteCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_media_remote_call_duration_seconds",
			Help:    "Duration of object store calls including retries.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)
)
