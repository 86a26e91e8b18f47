package sheetsync

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// exportRow pairs an instant with its rendered sheet row so the batch can be
// sorted before appending.
type exportRow struct {
	at   time.Time
	cols []string
}

// runExport appends every ledger mutation since the export watermark to the
// spreadsheet: one row per timestamp field newer than the watermark, so a
// record contributes its clock-in row on one run and its clock-out row on a
// later one. The watermark only advances after a successful append, which
// makes export at-least-once; import-side dedup collapses retried rows.
func (s *Syncer) runExport(ctx context.Context, log *logrus.Entry) (int, error) {
	watermark, err := s.settings.LastExportAt(ctx)
	if err != nil {
		return 0, fmt.Errorf("read export watermark: %w", err)
	}
	start := s.now()

	changed, err := s.records.ListChangedSince(ctx, watermark)
	if err != nil {
		return 0, fmt.Errorf("list changed records: %w", err)
	}

	names, err := s.studentNames(ctx)
	if err != nil {
		return 0, err
	}

	var batch []exportRow
	for _, rec := range changed {
		name, ok := names[rec.StudentID]
		if !ok {
			continue
		}
		if rec.CheckedInAt.After(watermark) {
			batch = append(batch, exportRow{
				at:   rec.CheckedInAt,
				cols: []string{formatTimestamp(rec.CheckedInAt, s.loc), string(ClockIn), name, rec.Subteam},
			})
		}
		if rec.CheckedOutAt != nil && rec.CheckedOutAt.After(watermark) {
			batch = append(batch, exportRow{
				at:   *rec.CheckedOutAt,
				cols: []string{formatTimestamp(*rec.CheckedOutAt, s.loc), string(ClockOut), name, rec.Subteam},
			})
		}
	}
	sort.SliceStable(batch, func(i, j int) bool { return batch[i].at.Before(batch[j].at) })

	if len(batch) > 0 {
		rows := make([][]string, len(batch))
		for i, r := range batch {
			rows[i] = r.cols
		}
		if err := s.rows.AppendRows(ctx, rows); err != nil {
			// Watermark untouched; the same rows go out on the next run.
			return 0, fmt.Errorf("append rows: %w", err)
		}
	}

	if err := s.settings.SetLastExportAt(ctx, start); err != nil {
		return 0, fmt.Errorf("advance export watermark: %w", err)
	}
	rowsExported.Add(float64(len(batch)))
	log.WithField("rows", len(batch)).Debug("export stage complete")
	return len(batch), nil
}

// studentNames maps student ids to display names for row rendering.
func (s *Syncer) studentNames(ctx context.Context) (map[int64]string, error) {
	students, err := s.students.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	names := make(map[int64]string, len(students))
	for _, st := range students {
		names[st.ID] = st.Name
	}
	return names, nil
}
