// Package metrics exposes Prometheus collectors for the scan and
// analysis pipelines.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scan orchestration metrics
var (
	// ScanJobsTotal tracks initiated scan jobs by initial status
	ScanJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scan_jobs_total",
			Help: "Total number of scan jobs initiated, by initial status",
		},
		[]string{"status"},
	)

	// ScanRunsTotal tracks run terminal transitions by final status
	ScanRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scan_runs_total",
			Help: "Total number of scan job runs reaching a terminal status",
		},
		[]string{"platform", "status"},
	)

	// RunProcessingDuration tracks completion handling duration per run
	RunProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scan_run_processing_duration_seconds",
			Help:    "Run completion processing duration in seconds",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"platform"},
	)
)

// Ingestion metrics
var (
	// ItemsIngestedTotal tracks ingested scrape result items
	ItemsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "content_items_ingested_total",
			Help: "Total number of scrape result items ingested, by outcome",
		},
		[]string{"platform", "outcome"},
	)

	// MediaDownloadsTotal tracks media asset downloads
	MediaDownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_downloads_total",
			Help: "Total number of media downloads, by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	// MediaBytesStored tracks stored media volume
	MediaBytesStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_bytes_stored_total",
			Help: "Total bytes of media uploaded to object storage",
		},
	)
)

// Analysis pipeline metrics
var (
	// LLMCallsTotal tracks generative AI calls by stage and outcome
	LLMCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_calls_total",
			Help: "Total number of generative AI calls, by stage and outcome",
		},
		[]string{"stage", "outcome"},
	)

	// LLMCallDuration tracks generative AI call latency
	LLMCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_call_duration_seconds",
			Help:    "Generative AI call duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	// FlagsCreatedTotal tracks created flags by ruling and initial status
	FlagsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flags_created_total",
			Help: "Total number of compliance flags created",
		},
		[]string{"ruling", "status"},
	)

	// AutoDispositionsTotal tracks auto-disposition transitions
	AutoDispositionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auto_dispositions_total",
			Help: "Total number of flags auto-dispositioned, by resolution",
		},
		[]string{"resolution"},
	)
)
