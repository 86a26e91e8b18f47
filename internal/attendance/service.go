package attendance

import (
	"context"
	"errors"
	"time"
)

// TapStore is the slice of the repository the tap service needs.
type TapStore interface {
	GetForDay(ctx context.Context, studentID int64, day time.Time) (*Record, error)
	Create(ctx context.Context, rec Record) (Record, error)
	CheckOut(ctx context.Context, id int64, at time.Time) error
	Reopen(ctx context.Context, id int64, at time.Time) error
}

// Service coordinates local kiosk taps and deduplication.
type Service struct {
	store       TapStore
	dedupWindow time.Duration
	loc         *time.Location
	now         func() time.Time
}

// NewService creates a service backed by a store. The dedup window absorbs
// accidental double taps at the kiosk.
func NewService(store TapStore, dedupWindow time.Duration, loc *time.Location) *Service {
	if dedupWindow <= 0 {
		dedupWindow = 5 * time.Minute
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: store, dedupWindow: dedupWindow, loc: loc, now: time.Now}
}

// Tap toggles presence for today: first tap checks in, the next checks out,
// a tap after checkout reopens the day. Taps inside the dedup window return
// the current record unchanged.
func (s *Service) Tap(ctx context.Context, studentID int64, subteam string) (Record, error) {
	if studentID == 0 {
		return Record{}, errors.New("student id required")
	}
	now := s.now().UTC()
	day := dayOf(now, s.loc)

	rec, err := s.store.GetForDay(ctx, studentID, day)
	if err != nil {
		return Record{}, err
	}

	if rec == nil {
		created, err := s.store.Create(ctx, Record{
			StudentID:   studentID,
			Day:         day,
			CheckedInAt: now,
			Subteam:     subteam,
		})
		if errors.Is(err, ErrDuplicate) {
			// Two kiosks raced; the winner's record is the day's record.
			if existing, gerr := s.store.GetForDay(ctx, studentID, day); gerr == nil && existing != nil {
				return *existing, nil
			}
		}
		return created, err
	}

	if rec.Open() {
		if now.Sub(rec.CheckedInAt) < s.dedupWindow {
			return *rec, nil
		}
		if err := s.store.CheckOut(ctx, rec.ID, now); err != nil {
			return Record{}, err
		}
		rec.CheckedOutAt = &now
		return *rec, nil
	}

	if err := s.store.Reopen(ctx, rec.ID, now); err != nil {
		return Record{}, err
	}
	rec.CheckedInAt = now
	rec.CheckedOutAt = nil
	return *rec, nil
}

// dayOf buckets an instant into its calendar day in the display timezone.
func dayOf(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}
