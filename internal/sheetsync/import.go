package sheetsync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"shiftboard/internal/attendance"
	"shiftboard/internal/roster"
)

// runImport reads the whole spreadsheet and folds post-watermark events into
// the ledger. Students named anywhere in the sheet are ensured to exist,
// including historical rows, so a restored or re-pointed sheet back-fills
// the roster. The import watermark advances unconditionally after a
// completed fold, even when zero events survived.
func (s *Syncer) runImport(ctx context.Context, log *logrus.Entry) (ImportResult, error) {
	watermark, err := s.settings.LastImportAt(ctx)
	if err != nil {
		return ImportResult{}, fmt.Errorf("read import watermark: %w", err)
	}
	start := s.now()

	raw, err := s.rows.ReadAllRows(ctx)
	if err != nil {
		return ImportResult{}, fmt.Errorf("read rows: %w", err)
	}

	var events []Event
	for _, cols := range raw {
		if ev, ok := parseRow(cols, s.loc); ok {
			events = append(events, ev)
		} else {
			rowsSkipped.Inc()
		}
	}

	byName, created, err := s.ensureStudents(ctx, events)
	if err != nil {
		return ImportResult{}, err
	}

	var survivors []Event
	for _, ev := range events {
		if ev.At.After(watermark) {
			survivors = append(survivors, ev)
		}
	}
	// Ascending fold order guarantees a clock-in is applied before its
	// same-day clock-out, whatever order the sheet holds them in.
	sort.SliceStable(survivors, func(i, j int) bool { return survivors[i].At.Before(survivors[j].At) })

	existing, err := s.indexExisting(ctx, survivors, byName)
	if err != nil {
		return ImportResult{}, err
	}

	imported := 0
	for _, ev := range survivors {
		key := ev.Key(s.loc)
		switch ev.Type {
		case ClockIn:
			applied, err := s.applyClockIn(ctx, log, ev, key, byName, existing, &created)
			if err != nil {
				return ImportResult{}, err
			}
			if applied {
				imported++
			}
		case ClockOut:
			applied, err := s.applyClockOut(ctx, log, ev, key, existing)
			if err != nil {
				return ImportResult{}, err
			}
			if applied {
				imported++
			}
		}
	}

	if err := s.settings.SetLastImportAt(ctx, start); err != nil {
		return ImportResult{}, fmt.Errorf("advance import watermark: %w", err)
	}

	eventsImported.Add(float64(imported))
	studentsCreated.Add(float64(created))
	log.WithFields(logrus.Fields{"imported": imported, "students_created": created}).Debug("import stage complete")
	return ImportResult{Imported: imported, StudentsCreated: created}, nil
}

// ensureStudents maps every name in the raw sheet to a roster entry,
// creating missing students. Pre-watermark rows count too; back-filling
// historical names is intentional.
func (s *Syncer) ensureStudents(ctx context.Context, events []Event) (map[string]roster.Student, int, error) {
	students, err := s.students.List(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}
	byName := make(map[string]roster.Student, len(students))
	for _, st := range students {
		byName[strings.ToLower(st.Name)] = st
	}

	created := 0
	for _, ev := range events {
		lower := strings.ToLower(strings.TrimSpace(ev.Name))
		if lower == "" {
			continue
		}
		if _, ok := byName[lower]; ok {
			continue
		}
		st, wasCreated, err := s.students.Ensure(ctx, ev.Name, ev.Subteam)
		if err != nil {
			return nil, 0, fmt.Errorf("ensure student %q: %w", ev.Name, err)
		}
		byName[lower] = st
		if wasCreated {
			created++
		}
	}
	return byName, created, nil
}

// indexExisting loads the ledger for every day the surviving events touch
// and indexes the records by reconciliation key.
func (s *Syncer) indexExisting(ctx context.Context, events []Event, byName map[string]roster.Student) (map[string]*attendance.Record, error) {
	idToName := make(map[int64]string, len(byName))
	for lower, st := range byName {
		idToName[st.ID] = lower
	}

	index := make(map[string]*attendance.Record)
	seenDays := make(map[string]bool)
	for _, ev := range events {
		day := localDay(ev.At, s.loc)
		dayKey := day.Format("2006-01-02")
		if seenDays[dayKey] {
			continue
		}
		seenDays[dayKey] = true

		recs, err := s.records.ListByDay(ctx, day)
		if err != nil {
			return nil, fmt.Errorf("list records for %s: %w", dayKey, err)
		}
		for i := range recs {
			name, ok := idToName[recs[i].StudentID]
			if !ok {
				continue
			}
			index[name+"|"+dayKey] = &recs[i]
		}
	}
	return index, nil
}

// applyClockIn creates a record for the event's key unless one exists. An
// existing record always wins: within the tolerance it is the local tap that
// already captured this event, beyond it a manual entry the import must not
// overwrite.
func (s *Syncer) applyClockIn(ctx context.Context, log *logrus.Entry, ev Event, key string, byName map[string]roster.Student, existing map[string]*attendance.Record, created *int) (bool, error) {
	if rec := existing[key]; rec != nil {
		delta := ev.At.Sub(rec.CheckedInAt)
		if delta < 0 {
			delta = -delta
		}
		if delta <= s.tolerance {
			log.WithField("key", key).Debug("clock-in already recorded by local tap")
		} else {
			log.WithField("key", key).Info("conflicting clock-in ignored, existing entry wins")
		}
		return false, nil
	}

	lower := strings.ToLower(strings.TrimSpace(ev.Name))
	st, ok := byName[lower]
	if !ok {
		ensured, wasCreated, err := s.students.Ensure(ctx, ev.Name, ev.Subteam)
		if err != nil {
			return false, fmt.Errorf("ensure student %q: %w", ev.Name, err)
		}
		byName[lower] = ensured
		if wasCreated {
			*created++
		}
		st = ensured
	}

	rec, err := s.records.Create(ctx, attendance.Record{
		StudentID:   st.ID,
		Day:         localDay(ev.At, s.loc),
		CheckedInAt: ev.At,
		Subteam:     ev.Subteam,
	})
	if err != nil {
		if errors.Is(err, attendance.ErrDuplicate) {
			// Lost a race with a concurrent import or tap; adopt the
			// winner's record so a later clock-out still lands.
			if winner, gerr := s.records.GetForDay(ctx, st.ID, localDay(ev.At, s.loc)); gerr == nil && winner != nil {
				existing[key] = winner
			}
			log.WithField("key", key).Debug("concurrent create collapsed as duplicate")
			return false, nil
		}
		return false, fmt.Errorf("create record: %w", err)
	}
	existing[key] = &rec
	return true, nil
}

// applyClockOut closes the key's record when it is open. Missing or
// already-closed records mean the event is stale; no late checkout reopens
// or overrides a closed day.
func (s *Syncer) applyClockOut(ctx context.Context, log *logrus.Entry, ev Event, key string, existing map[string]*attendance.Record) (bool, error) {
	rec := existing[key]
	if rec == nil || rec.CheckedOutAt != nil {
		log.WithField("key", key).Debug("clock-out without open record skipped")
		return false, nil
	}
	if ev.At.Before(rec.CheckedInAt) {
		log.WithField("key", key).Debug("clock-out earlier than check-in skipped")
		return false, nil
	}
	if err := s.records.CheckOut(ctx, rec.ID, ev.At); err != nil {
		return false, fmt.Errorf("check out record: %w", err)
	}
	at := ev.At
	rec.CheckedOutAt = &at
	return true, nil
}
