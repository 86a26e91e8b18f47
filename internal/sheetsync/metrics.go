package sheetsync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sheetsync_runs_total",
		Help: "Sync runs by mode (manual, scheduled, opportunistic) and outcome.",
	}, []string{"mode", "outcome"})

	rowsExported = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sheetsync_rows_exported_total",
		Help: "Rows appended to the spreadsheet by the export stage.",
	})

	eventsImported = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sheetsync_events_imported_total",
		Help: "Attendance rows created or updated by the import stage.",
	})

	studentsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sheetsync_students_created_total",
		Help: "Students auto-created from spreadsheet names.",
	})

	rowsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sheetsync_rows_skipped_total",
		Help: "Spreadsheet rows dropped as malformed.",
	})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sheetsync_run_duration_seconds",
		Help:    "Wall time of full manual sync runs.",
		Buckets: prometheus.DefBuckets,
	})
)
