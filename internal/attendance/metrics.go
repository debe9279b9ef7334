package attendance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	marksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_marks_total",
		Help: "Attendance logs appended, by status and mode.",
	}, []string{"status", "mode"})

	duplicateScansTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_duplicate_scans_total",
		Help: "Redundant entry scans absorbed as no-ops.",
	})

	invalidTransitionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_invalid_transitions_total",
		Help: "Marking attempts rejected by the state machine.",
	})

	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_sweep_runs_total",
		Help: "Absence sweep invocations.",
	})

	sweptAbsentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_swept_absent_total",
		Help: "Students marked ABSENT by the sweep.",
	})
)
