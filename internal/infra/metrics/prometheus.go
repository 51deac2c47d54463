package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frame_extractor_jobs_processed_total",
		Help: "Total number of extraction jobs settled, by status",
	}, []string{"status"})

	SubmissionsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frame_extractor_submissions_rejected_total",
		Help: "Submissions ignored because the engine was not ready or a job was running",
	}, []string{"reason"})

	JobProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "frame_extractor_job_processing_duration_seconds",
		Help:    "Duration of extraction pipeline stages",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	FramesExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frame_extractor_frames_extracted_total",
		Help: "Total number of frames extracted across all jobs",
	})

	ActiveExtractions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "frame_extractor_active_extractions",
		Help: "Number of extraction jobs currently running",
	})

	LiveFrameResources = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "frame_extractor_live_frame_resources",
		Help: "Number of frame resources currently held in memory",
	})

	FrameResourcesRevokedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frame_extractor_frame_resources_revoked_total",
		Help: "Total number of frame resource handles revoked",
	})

	ExportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frame_extractor_exports_total",
		Help: "Total number of archive exports, by outcome",
	}, []string{"outcome"})

	ExportDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "frame_extractor_export_duration_seconds",
		Help:    "Duration of archive exports",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)
