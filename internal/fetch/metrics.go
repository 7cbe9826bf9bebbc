package fetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// pagesTotal counts page fetches by table and result.
	pagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "draftflow_fetch_pages_total",
		Help: "Page fetches by table and result",
	}, []string{"table", "result"})

	// rowsTotal counts rows returned by successful page fetches.
	rowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "draftflow_fetch_rows_total",
		Help: "Rows returned by page fetches",
	}, []string{"table"})

	// fetchDuration tracks whole FetchAll latency.
	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "draftflow_fetch_duration_seconds",
		Help:    "FetchAll duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
	}, []string{"table", "outcome"})
)
