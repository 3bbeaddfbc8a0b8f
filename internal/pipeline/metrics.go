package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// submissions counts provider task submissions by outcome.
	submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thermal_submissions_total",
		Help: "Total number of provider task submissions by outcome",
	}, []string{"outcome"})

	// pollChecks counts status checks by provider status.
	pollChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thermal_poll_checks_total",
		Help: "Total number of provider status checks by reported status",
	}, []string{"status"})

	// pollWait tracks the wait scheduled after a non-terminal status.
	pollWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "thermal_poll_wait_seconds",
		Help:    "Wait scheduled before the next status check",
		Buckets: []float64{30, 60, 120, 240, 480, 960, 1920, 3600},
	})

	// scenesDispatched counts scenes emitted by fan-out.
	scenesDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thermal_scenes_dispatched_total",
		Help: "Total number of scene work items emitted by fan-out",
	})

	// manifestSkipped counts manifest files that could not be attributed to a scene.
	manifestSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thermal_manifest_files_skipped_total",
		Help: "Total number of manifest rasters without area id or acquisition timestamp",
	})

	// scenesProcessed counts scene attempts by outcome.
	scenesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thermal_scenes_processed_total",
		Help: "Total number of scene processing attempts by outcome",
	}, []string{"outcome"})

	// sceneDuration tracks the time taken to process a scene.
	sceneDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "thermal_scene_duration_seconds",
		Help:    "Time taken to process one scene",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	// validPixelRatio tracks the share of pixels retained by filtering.
	validPixelRatio = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "thermal_scene_valid_pixel_ratio",
		Help:    "Share of scene pixels retained after filtering",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 0.75, 1.0},
	})

	// reprocessRequests counts reprocess guard decisions.
	reprocessRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thermal_reprocess_requests_total",
		Help: "Total number of reprocess requests by decision",
	}, []string{"decision"})

	// leaseExpirations counts tasks whose worker lease ran out.
	leaseExpirations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thermal_queue_lease_expirations_total",
		Help: "Tasks whose lease expired, by outcome (redelivered or failed)",
	}, []string{"outcome"})
)

// RecordLeaseExpirations counts a sweep's redelivered and exhausted tasks.
func RecordLeaseExpirations(redelivered, failed int) {
	leaseExpirations.WithLabelValues("redelivered").Add(float64(redelivered))
	leaseExpirations.WithLabelValues("failed").Add(float64(failed))
}

func recordSubmission(ok bool) {
	if ok {
		submissions.WithLabelValues("success").Inc()
		return
	}
	submissions.WithLabelValues("failed").Inc()
}

func recordPollCheck(status string, nextWait time.Duration) {
	pollChecks.WithLabelValues(status).Inc()
	if nextWait > 0 {
		pollWait.Observe(nextWait.Seconds())
	}
}

func recordScene(outcome string, elapsed time.Duration, ratio float64) {
	scenesProcessed.WithLabelValues(outcome).Inc()
	sceneDuration.Observe(elapsed.Seconds())
	if ratio >= 0 {
		validPixelRatio.Observe(ratio)
	}
}
