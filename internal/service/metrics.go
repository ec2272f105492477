package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// resolverCacheTotal counts resolver cache lookups by result (hit, miss, error)
	resolverCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fairtrace_resolver_cache_total",
		Help: "Parent-transaction resolver cache lookups by result",
	}, []string{"result"})

	// resolverClosureSize tracks the number of transactions in a resolved closure
	resolverClosureSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fairtrace_resolver_closure_size",
		Help:    "Transactions per resolved upstream closure",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8), // 1 to ~16k
	})

	// traceDuration tracks trace assembly latency by view
	traceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fairtrace_trace_duration_seconds",
		Help:    "Trace assembly duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
	}, []string{"view"})

	// reportedIssuesTotal counts data-quality problems sent for review
	reportedIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fairtrace_reported_issues_total",
		Help: "Data integrity warnings and claim inconsistencies reported",
	}, []string{"kind"})

	// transactionsTotal counts committed transactions by kind
	transactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fairtrace_transactions_total",
		Help: "Committed transactions by kind",
	}, []string{"kind"})
)
