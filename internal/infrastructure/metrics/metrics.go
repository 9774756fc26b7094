package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Directory metrics
	AccountFetches    prometheus.Counter
	FetchCacheHits    prometheus.Counter
	FetchCoalesced    prometheus.Counter
	FetchFailures     *prometheus.CounterVec
	WealthyRefreshes  prometheus.Counter
	WealthyCacheHits  prometheus.Counter
	CacheInvalidation prometheus.Counter

	// Transaction metrics
	Transactions        *prometheus.CounterVec
	TransactionDuration prometheus.Histogram

	// Proxy metrics
	ProxyFramesIn    *prometheus.CounterVec
	ProxyFramesOut   *prometheus.CounterVec
	ProxyTimeouts    prometheus.Counter
	ProxyUnmatched   prometheus.Counter
	ConnectedPeers   prometheus.Gauge
	DuplicateFrames  prometheus.Counter

	// Remote metrics
	RemoteCalls    *prometheus.CounterVec
	RemoteDuration *prometheus.HistogramVec
	RemoteErrors   *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	return &Metrics{
		AccountFetches: promauto.NewCounter(prometheus.CounterOpts{
			Name: "playerbank_account_fetches_total",
			Help: "Total number of account fetch fan-outs started",
		}),
		FetchCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "playerbank_fetch_cache_hits_total",
			Help: "Account retrievals answered from the directory cache",
		}),
		FetchCoalesced: promauto.NewCounter(prometheus.CounterOpts{
			Name: "playerbank_fetch_coalesced_total",
			Help: "Account retrievals attached to an already running fetch",
		}),
		FetchFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playerbank_fetch_failures_total",
				Help: "Per-remote failures during fetch fan-outs",
			},
			[]string{"remote"},
		),
		WealthyRefreshes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "playerbank_wealthy_refreshes_total",
			Help: "Wealth ranking refreshes issued to a remote",
		}),
		WealthyCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "playerbank_wealthy_cache_hits_total",
			Help: "Wealth ranking retrievals answered from cache",
		}),
		CacheInvalidation: promauto.NewCounter(prometheus.CounterOpts{
			Name: "playerbank_cache_invalidations_total",
			Help: "Wholesale directory cache invalidations",
		}),

		Transactions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playerbank_transactions_total",
				Help: "Transaction attempts by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
		TransactionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "playerbank_transaction_duration_seconds",
			Help:    "Duration of transaction attempts including remote round-trips",
			Buckets: prometheus.DefBuckets,
		}),

		ProxyFramesIn: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playerbank_proxy_frames_in_total",
				Help: "Protocol frames received by operation",
			},
			[]string{"op"},
		),
		ProxyFramesOut: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playerbank_proxy_frames_out_total",
				Help: "Protocol frames sent by operation",
			},
			[]string{"op"},
		),
		ProxyTimeouts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "playerbank_proxy_timeouts_total",
			Help: "Relay round-trips that timed out waiting for a response",
		}),
		ProxyUnmatched: promauto.NewCounter(prometheus.CounterOpts{
			Name: "playerbank_proxy_unmatched_total",
			Help: "Responses dropped because no pending request matched",
		}),
		ConnectedPeers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "playerbank_connected_peers",
			Help: "Currently connected transport peers",
		}),
		DuplicateFrames: promauto.NewCounter(prometheus.CounterOpts{
			Name: "playerbank_duplicate_frames_total",
			Help: "Transaction frames dropped by the duplicate delivery guard",
		}),

		RemoteCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playerbank_remote_calls_total",
				Help: "Remote backend calls by remote and operation",
			},
			[]string{"remote", "op"},
		),
		RemoteDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "playerbank_remote_duration_seconds",
				Help:    "Duration of remote backend calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"remote", "op"},
		),
		RemoteErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playerbank_remote_errors_total",
				Help: "Remote backend call failures",
			},
			[]string{"remote", "op"},
		),
	}
}
