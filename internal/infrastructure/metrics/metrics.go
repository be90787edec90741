package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Classification metrics
	ClassificationRuns     *prometheus.CounterVec
	ClassificationDuration prometheus.Histogram
	RecordsClassified      prometheus.Counter
	RecordsSkipped         prometheus.Counter
	CaseTotal              *prometheus.CounterVec
	PaymentMatches         prometheus.Counter
	MissingCounteragents   prometheus.Gauge
	ChunkWrites            *prometheus.CounterVec

	// Currency metrics
	FXRateMissing *prometheus.CounterVec

	// Batch metrics
	BatchesSaved     prometheus.Counter
	BatchesDeleted   prometheus.Counter
	BatchRejections  *prometheus.CounterVec
	PartitionsPerSet prometheus.Histogram

	// Ledger metrics
	LedgerQueries       prometheus.Counter
	LedgerQueryDuration prometheus.Histogram
	LedgerRows          prometheus.Histogram

	// Storage metrics
	DBRetries *prometheus.CounterVec

	// API metrics
	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
	HTTPInFlight  prometheus.Gauge
	RateLimitHits *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics with the default registerer
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates all Prometheus metrics and registers them with reg
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Classification metrics
		ClassificationRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconledger_classification_runs_total",
				Help: "Total classification runs by outcome",
			},
			[]string{"status"},
		),
		ClassificationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "reconledger_classification_duration_seconds",
			Help:    "Duration of classification runs",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}),
		RecordsClassified: factory.NewCounter(prometheus.CounterOpts{
			Name: "reconledger_records_classified_total",
			Help: "Total raw transactions classified",
		}),
		RecordsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "reconledger_records_skipped_total",
			Help: "Total raw transactions skipped for an unparseable value date",
		}),
		CaseTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconledger_case_total",
				Help: "Total processing case flags fired",
			},
			[]string{"case"},
		),
		PaymentMatches: factory.NewCounter(prometheus.CounterOpts{
			Name: "reconledger_payment_matches_total",
			Help: "Total payment ids resolved from transaction notes",
		}),
		MissingCounteragents: factory.NewGauge(prometheus.GaugeOpts{
			Name: "reconledger_missing_counteragents",
			Help: "Distinct tax ids without a counteragent in the last run",
		}),
		ChunkWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconledger_chunk_writes_total",
				Help: "Total classification chunk writes by outcome",
			},
			[]string{"status"},
		),

		// Currency metrics
		FXRateMissing: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconledger_fx_rate_missing_total",
				Help: "Conversions that fell back to the unconverted amount for lack of a rate",
			},
			[]string{"source"},
		),

		// Batch metrics
		BatchesSaved: factory.NewCounter(prometheus.CounterOpts{
			Name: "reconledger_batches_saved_total",
			Help: "Total batches saved",
		}),
		BatchesDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "reconledger_batches_deleted_total",
			Help: "Total batches deleted",
		}),
		BatchRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconledger_batch_rejections_total",
				Help: "Total batch saves rejected by validation",
			},
			[]string{"reason"},
		),
		PartitionsPerSet: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "reconledger_partitions_per_batch",
			Help:    "Number of partitions in saved batches",
			Buckets: []float64{1, 2, 3, 5, 10, 20, 50},
		}),

		// Ledger metrics
		LedgerQueries: factory.NewCounter(prometheus.CounterOpts{
			Name: "reconledger_ledger_queries_total",
			Help: "Total consolidated ledger queries",
		}),
		LedgerQueryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "reconledger_ledger_query_duration_seconds",
			Help:    "Duration of consolidated ledger queries",
			Buckets: prometheus.DefBuckets,
		}),
		LedgerRows: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "reconledger_ledger_rows",
			Help:    "Rows returned per consolidated ledger query",
			Buckets: []float64{10, 50, 100, 500, 1000, 5000},
		}),

		// Storage metrics
		DBRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconledger_db_retries_total",
				Help: "Transaction retries after transient database errors by SQLSTATE",
			},
			[]string{"code"},
		),

		// API metrics
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconledger_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reconledger_http_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "reconledger_http_requests_in_flight",
			Help: "HTTP requests currently being served",
		}),
		RateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconledger_rate_limit_hits_total",
				Help: "Requests rejected by the rate limiter",
			},
			[]string{"path"},
		),
	}
}
