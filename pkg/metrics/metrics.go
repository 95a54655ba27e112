package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atlas_queries_total",
			Help: "Total number of SQL statements executed by mappers",
		},
		[]string{"table", "type", "status"},
	)

	queryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "atlas_query_duration_seconds",
			Help:    "SQL statement duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"table", "type"},
	)

	relationLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atlas_relation_loads_total",
			Help: "Total number of eager relation fetches",
		},
		[]string{"relation"},
	)
)

// ObserveQuery records one executed statement.
func ObserveQuery(table, queryType string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	queriesTotal.WithLabelValues(table, queryType, status).Inc()
	queryDuration.WithLabelValues(table, queryType).Observe(time.Since(start).Seconds())
}

func RelationLoaded(relation string) {
	relationLoads.WithLabelValues(relation).Inc()
}

// Collectors exposes the registered collectors, mostly for tests.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{queriesTotal, queryDuration, relationLoads, httpRequestsTotal, httpRequestDuration}
}
