package sheetsync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"shiftboard/internal/attendance"
	"shiftboard/internal/roster"
)

// fakeClock is a hand-cranked clock for deterministic runs.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeRows is an in-memory spreadsheet: appends land in the same slice
// reads return, like the real tab.
type fakeRows struct {
	rows      [][]string
	readErr   error
	appendErr error
	readCalls int
}

func (f *fakeRows) ReadAllRows(ctx context.Context) ([][]string, error) {
	f.readCalls++
	if f.readErr != nil {
		return nil, f.readErr
	}
	out := make([][]string, len(f.rows))
	copy(out, f.rows)
	return out, nil
}

func (f *fakeRows) AppendRows(ctx context.Context, rows [][]string) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.rows = append(f.rows, rows...)
	return nil
}

// fakeRoster is an in-memory student table with a lower(name) unique key.
type fakeRoster struct {
	nextID  int64
	byLower map[string]roster.Student
}

func newFakeRoster() *fakeRoster {
	return &fakeRoster{byLower: make(map[string]roster.Student)}
}

func (f *fakeRoster) List(ctx context.Context) ([]roster.Student, error) {
	var out []roster.Student
	for _, st := range f.byLower {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRoster) Ensure(ctx context.Context, name, subteam string) (roster.Student, bool, error) {
	lower := strings.ToLower(strings.TrimSpace(name))
	if st, ok := f.byLower[lower]; ok {
		return st, false, nil
	}
	f.nextID++
	st := roster.Student{ID: f.nextID, Name: strings.TrimSpace(name), Subteam: subteam}
	f.byLower[lower] = st
	return st, true, nil
}

func (f *fakeRoster) add(name, subteam string) roster.Student {
	st, _, _ := f.Ensure(context.Background(), name, subteam)
	return st
}

// fakeRecords is an in-memory ledger enforcing the (student, day) unique
// constraint the way Postgres does.
type fakeRecords struct {
	nextID int64
	byKey  map[string]*attendance.Record

	// dupOnCreate simulates losing a creation race: Create reports
	// ErrDuplicate while dupWinner plays the concurrently created row.
	dupOnCreate bool
	dupWinner   *attendance.Record
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{byKey: make(map[string]*attendance.Record)}
}

func recKey(studentID int64, day time.Time) string {
	return fmt.Sprintf("%d|%s", studentID, day.Format("2006-01-02"))
}

func (f *fakeRecords) GetForDay(ctx context.Context, studentID int64, day time.Time) (*attendance.Record, error) {
	if f.dupOnCreate && f.dupWinner != nil && f.dupWinner.StudentID == studentID {
		winner := *f.dupWinner
		return &winner, nil
	}
	if rec, ok := f.byKey[recKey(studentID, day)]; ok {
		cp := *rec
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeRecords) ListByDay(ctx context.Context, day time.Time) ([]attendance.Record, error) {
	var out []attendance.Record
	for _, rec := range f.byKey {
		if rec.Day.Equal(day) {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CheckedInAt.Before(out[j].CheckedInAt) })
	return out, nil
}

func (f *fakeRecords) ListChangedSince(ctx context.Context, since time.Time) ([]attendance.Record, error) {
	var out []attendance.Record
	for _, rec := range f.byKey {
		if rec.CheckedInAt.After(since) || (rec.CheckedOutAt != nil && rec.CheckedOutAt.After(since)) {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CheckedInAt.Before(out[j].CheckedInAt) })
	return out, nil
}

func (f *fakeRecords) Create(ctx context.Context, rec attendance.Record) (attendance.Record, error) {
	if f.dupOnCreate {
		return attendance.Record{}, attendance.ErrDuplicate
	}
	key := recKey(rec.StudentID, rec.Day)
	if _, ok := f.byKey[key]; ok {
		return attendance.Record{}, attendance.ErrDuplicate
	}
	f.nextID++
	rec.ID = f.nextID
	f.byKey[key] = &rec
	return rec, nil
}

func (f *fakeRecords) CheckOut(ctx context.Context, id int64, at time.Time) error {
	for _, rec := range f.byKey {
		if rec.ID == id {
			if rec.CheckedOutAt == nil {
				out := at
				rec.CheckedOutAt = &out
			}
			return nil
		}
	}
	if f.dupWinner != nil && f.dupWinner.ID == id {
		out := at
		f.dupWinner.CheckedOutAt = &out
		return nil
	}
	return errors.New("record not found")
}

func (f *fakeRecords) add(rec attendance.Record) *attendance.Record {
	f.nextID++
	rec.ID = f.nextID
	f.byKey[recKey(rec.StudentID, rec.Day)] = &rec
	return f.byKey[recKey(rec.StudentID, rec.Day)]
}

// fakeSettings holds the toggles and watermarks in memory.
type fakeSettings struct {
	enabled    bool
	interval   time.Duration
	lastExport time.Time
	lastImport time.Time
}

func newFakeSettings() *fakeSettings {
	return &fakeSettings{enabled: true, interval: 60 * time.Minute}
}

func (f *fakeSettings) AutoSyncEnabled(ctx context.Context) (bool, error) { return f.enabled, nil }
func (f *fakeSettings) SyncInterval(ctx context.Context) (time.Duration, error) {
	return f.interval, nil
}
func (f *fakeSettings) LastExportAt(ctx context.Context) (time.Time, error) {
	return f.lastExport, nil
}
func (f *fakeSettings) SetLastExportAt(ctx context.Context, t time.Time) error {
	f.lastExport = t
	return nil
}
func (f *fakeSettings) LastImportAt(ctx context.Context) (time.Time, error) {
	return f.lastImport, nil
}
func (f *fakeSettings) SetLastImportAt(ctx context.Context, t time.Time) error {
	f.lastImport = t
	return nil
}

// testEnv bundles a syncer with its fakes.
type testEnv struct {
	rows     *fakeRows
	students *fakeRoster
	records  *fakeRecords
	settings *fakeSettings
	clock    *fakeClock
	syncer   *Syncer
}

func newTestEnv(rows [][]string) *testEnv {
	env := &testEnv{
		rows:     &fakeRows{rows: rows},
		students: newFakeRoster(),
		records:  newFakeRecords(),
		settings: newFakeSettings(),
		clock:    newFakeClock(time.Date(2026, 2, 12, 20, 0, 0, 0, time.UTC)),
	}
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	env.syncer = New(Config{
		Rows:     env.rows,
		Students: env.students,
		Records:  env.records,
		Settings: env.settings,
		Log:      log,
		Location: time.UTC,
		Now:      env.clock.Now,
	})
	return env
}
