package db

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
)

// tableMetrics tracks per-table counters. Metrics are registered in the
// default set and exposed by whoever serves it.
type tableMetrics struct {
	cacheHits     *metrics.Counter
	cacheMisses   *metrics.Counter
	queries       *metrics.Counter
	queryErrors   *metrics.Counter
	notifications *metrics.Counter
}

func newTableMetrics(table string) *tableMetrics {
	counter := func(name string) *metrics.Counter {
		return metrics.GetOrCreateCounter(fmt.Sprintf(`scrimsbot_db_%s_total{table=%q}`, name, table))
	}
	return &tableMetrics{
		cacheHits:     counter("cache_hits"),
		cacheMisses:   counter("cache_misses"),
		queries:       counter("queries"),
		queryErrors:   counter("query_errors"),
		notifications: counter("notifications"),
	}
}
