package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "formcoach_analyses_total",
		Help: "Total number of analyses run, by status",
	}, []string{"status"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "formcoach_stage_duration_seconds",
		Help:    "Duration of each analysis stage",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"stage"})

	FramesAnnotatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "formcoach_frames_annotated_total",
		Help: "Total number of frames labeled across all analyses",
	})

	StillsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "formcoach_stills_total",
		Help: "Stills extracted for flagged moments, by result",
	}, []string{"result"})

	ExercisesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "formcoach_exercises_total",
		Help: "Classified exercises, by label",
	}, []string{"exercise"})

	ActiveAnalyses = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "formcoach_active_analyses",
		Help: "Number of analyses currently holding a worker slot",
	})

	RetryTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "formcoach_retry_total",
		Help: "Total number of retried vendor and storage calls",
	})
)
