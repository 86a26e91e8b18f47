package sheetsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"shiftboard/internal/attendance"
	"shiftboard/internal/roster"
)

// ErrNotConfigured is returned by the manual path when no spreadsheet is
// configured. The opportunistic path turns the same condition into silence.
var ErrNotConfigured = errors.New("Google Sheets is not configured")

// throttleFloor is the hard minimum between opportunistic attempts. Below
// it the gate skips without touching the database.
const throttleFloor = 60 * time.Second

// RowSource is the spreadsheet collaborator.
type RowSource interface {
	ReadAllRows(ctx context.Context) ([][]string, error)
	AppendRows(ctx context.Context, rows [][]string) error
}

// RosterStore is the slice of the roster repository sync needs.
type RosterStore interface {
	List(ctx context.Context) ([]roster.Student, error)
	Ensure(ctx context.Context, name, subteam string) (roster.Student, bool, error)
}

// RecordStore is the slice of the attendance repository sync needs. Create
// must return attendance.ErrDuplicate when the (student, day) constraint
// fires so concurrent imports stay safe without application locks.
type RecordStore interface {
	GetForDay(ctx context.Context, studentID int64, day time.Time) (*attendance.Record, error)
	ListByDay(ctx context.Context, day time.Time) ([]attendance.Record, error)
	ListChangedSince(ctx context.Context, since time.Time) ([]attendance.Record, error)
	Create(ctx context.Context, rec attendance.Record) (attendance.Record, error)
	CheckOut(ctx context.Context, id int64, at time.Time) error
}

// SyncSettings is the watermark store plus the admin toggles.
type SyncSettings interface {
	AutoSyncEnabled(ctx context.Context) (bool, error)
	SyncInterval(ctx context.Context) (time.Duration, error)
	LastExportAt(ctx context.Context) (time.Time, error)
	SetLastExportAt(ctx context.Context, t time.Time) error
	LastImportAt(ctx context.Context) (time.Time, error)
	SetLastImportAt(ctx context.Context, t time.Time) error
}

// Summary is the manual/scheduled sync result.
type Summary struct {
	Exported        int    `json:"exported"`
	Imported        int    `json:"imported"`
	StudentsCreated int    `json:"students_created"`
	Skipped         bool   `json:"skipped,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

// ImportResult counts what one import stage run changed.
type ImportResult struct {
	Imported        int `json:"imported"`
	StudentsCreated int `json:"students_created"`
}

// Config wires a Syncer.
type Config struct {
	Rows     RowSource // nil when Sheets is not configured
	Students RosterStore
	Records  RecordStore
	Settings SyncSettings
	Log      *logrus.Logger

	// Location buckets timestamps into calendar days and renders exported
	// rows. Defaults to UTC.
	Location *time.Location
	// ClockInTolerance classifies duplicate clock-ins; see
	// DefaultClockInTolerance.
	ClockInTolerance time.Duration
	// Now is the clock, injectable for tests.
	Now func() time.Time
	// ThrottleFloor overrides the 60s opportunistic floor, for tests.
	ThrottleFloor time.Duration
}

// Syncer reconciles the local attendance ledger with the kiosk spreadsheet.
// It owns the opportunistic throttle state; construct one per process at the
// composition root.
type Syncer struct {
	rows      RowSource
	students  RosterStore
	records   RecordStore
	settings  SyncSettings
	log       *logrus.Logger
	loc       *time.Location
	tolerance time.Duration
	now       func() time.Time
	floor     time.Duration

	mu          sync.Mutex
	lastAttempt time.Time
}

// New builds a Syncer. A nil RowSource yields a syncer whose every entry
// point reports "not configured" instead of erroring.
func New(cfg Config) *Syncer {
	if cfg.Log == nil {
		cfg.Log = logrus.New()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.ClockInTolerance <= 0 {
		cfg.ClockInTolerance = DefaultClockInTolerance
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ThrottleFloor <= 0 {
		cfg.ThrottleFloor = throttleFloor
	}
	return &Syncer{
		rows:      cfg.Rows,
		students:  cfg.Students,
		records:   cfg.Records,
		settings:  cfg.Settings,
		log:       cfg.Log,
		loc:       cfg.Location,
		tolerance: cfg.ClockInTolerance,
		now:       cfg.Now,
		floor:     cfg.ThrottleFloor,
	}
}

// Configured reports whether a spreadsheet collaborator is wired.
func (s *Syncer) Configured() bool { return s.rows != nil }

// RunManual runs export then import unconditionally, bypassing the throttle
// gate. Administrator surface; failures come back as errors with
// human-readable messages.
func (s *Syncer) RunManual(ctx context.Context) (Summary, error) {
	if !s.Configured() {
		return Summary{}, ErrNotConfigured
	}
	start := s.now()
	log := s.log.WithFields(logrus.Fields{"run_id": uuid.NewString(), "mode": "manual"})

	exported, err := s.runExport(ctx, log)
	if err != nil {
		runsTotal.WithLabelValues("manual", "error").Inc()
		return Summary{}, fmt.Errorf("export: %w", err)
	}
	res, err := s.runImport(ctx, log)
	if err != nil {
		runsTotal.WithLabelValues("manual", "error").Inc()
		return Summary{}, fmt.Errorf("import: %w", err)
	}

	runsTotal.WithLabelValues("manual", "ok").Inc()
	runDuration.Observe(s.now().Sub(start).Seconds())
	log.WithFields(logrus.Fields{
		"exported": exported,
		"imported": res.Imported,
		"students": res.StudentsCreated,
	}).Info("manual sync complete")
	return Summary{Exported: exported, Imported: res.Imported, StudentsCreated: res.StudentsCreated}, nil
}

// RunScheduled is the shared-secret scheduler entry point: like RunManual,
// but honors the auto-sync toggle and the configured interval, reporting a
// skip instead of running early.
func (s *Syncer) RunScheduled(ctx context.Context) (Summary, error) {
	if !s.Configured() {
		return Summary{Skipped: true, Reason: "Google Sheets is not configured"}, nil
	}
	enabled, err := s.settings.AutoSyncEnabled(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("read auto-sync flag: %w", err)
	}
	if !enabled {
		runsTotal.WithLabelValues("scheduled", "skipped").Inc()
		return Summary{Skipped: true, Reason: "auto-sync is disabled"}, nil
	}
	due, err := s.importDue(ctx)
	if err != nil {
		return Summary{}, err
	}
	if !due {
		runsTotal.WithLabelValues("scheduled", "skipped").Inc()
		return Summary{Skipped: true, Reason: "sync interval has not elapsed"}, nil
	}
	return s.RunManual(ctx)
}

// MaybeImport is the opportunistic entry point triggered by student-facing
// reads. It returns nil when skipped (throttled, disabled, not configured)
// or when the import failed; it never returns an error, because freshening
// data for a read must not break the read.
func (s *Syncer) MaybeImport(ctx context.Context) *ImportResult {
	if !s.Configured() {
		return nil
	}

	now := s.now()
	// Fast path: inside the floor nothing is consulted, not even settings.
	// Per-process best effort only; the persisted watermark is the actual
	// cross-process correctness mechanism.
	s.mu.Lock()
	if now.Sub(s.lastAttempt) < s.floor {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	enabled, err := s.settings.AutoSyncEnabled(ctx)
	if err != nil {
		s.log.WithError(err).Warn("opportunistic sync: settings unavailable")
		s.markAttempt(now)
		return nil
	}
	due := false
	if enabled {
		if due, err = s.importDue(ctx); err != nil {
			s.log.WithError(err).Warn("opportunistic sync: watermark unavailable")
			s.markAttempt(now)
			return nil
		}
	}
	s.markAttempt(now)
	if !enabled || !due {
		return nil
	}

	log := s.log.WithFields(logrus.Fields{"run_id": uuid.NewString(), "mode": "opportunistic"})
	res, err := s.runImport(ctx, log)
	if err != nil {
		runsTotal.WithLabelValues("opportunistic", "error").Inc()
		log.WithError(err).Warn("opportunistic import failed")
		return nil
	}
	runsTotal.WithLabelValues("opportunistic", "ok").Inc()
	return &res
}

// importDue reports whether the configured interval has elapsed since the
// persisted import watermark.
func (s *Syncer) importDue(ctx context.Context) (bool, error) {
	interval, err := s.settings.SyncInterval(ctx)
	if err != nil {
		return false, fmt.Errorf("read sync interval: %w", err)
	}
	watermark, err := s.settings.LastImportAt(ctx)
	if err != nil {
		return false, fmt.Errorf("read import watermark: %w", err)
	}
	return s.now().Sub(watermark) >= interval, nil
}

func (s *Syncer) markAttempt(now time.Time) {
	s.mu.Lock()
	s.lastAttempt = now
	s.mu.Unlock()
}
