package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicate is returned by Create when a record for the same
// (student, day) already exists. Concurrent importers rely on the
// UNIQUE (student_id, day) constraint and treat this as a benign outcome.
var ErrDuplicate = errors.New("attendance record already exists")

// Record is one student's presence on one calendar day. CheckedOutAt is nil
// while the student is still present.
type Record struct {
	ID           int64      `json:"id"`
	StudentID    int64      `json:"student_id"`
	Day          time.Time  `json:"day"`
	CheckedInAt  time.Time  `json:"checked_in_at"`
	CheckedOutAt *time.Time `json:"checked_out_at,omitempty"`
	Subteam      string     `json:"subteam"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Open reports whether the student is still checked in.
func (r Record) Open() bool { return r.CheckedOutAt == nil }

// Standing is one leaderboard row.
type Standing struct {
	StudentID int64   `json:"student_id"`
	Name      string  `json:"name"`
	Subteam   string  `json:"subteam"`
	Hours     float64 `json:"hours"`
	Days      int     `json:"days"`
}

// Repository persists attendance records in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const recordCols = `id, student_id, day, checked_in_at, checked_out_at, subteam, created_at, updated_at`

func scanRecord(row interface{ Scan(...any) error }) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.StudentID, &rec.Day, &rec.CheckedInAt, &rec.CheckedOutAt, &rec.Subteam, &rec.CreatedAt, &rec.UpdatedAt)
	return rec, err
}

// GetForDay returns the record for one student on one calendar day, nil when
// absent.
func (r *Repository) GetForDay(ctx context.Context, studentID int64, day time.Time) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordCols+` FROM attendance_records
		WHERE student_id = $1 AND day = $2
	`, studentID, day.Format("2006-01-02"))
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// ListByDay returns every record for one calendar day.
func (r *Repository) ListByDay(ctx context.Context, day time.Time) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordCols+` FROM attendance_records
		WHERE day = $1
		ORDER BY checked_in_at
	`, day.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// ListChangedSince returns records whose check-in or check-out happened
// strictly after the given instant. Feeds the export stage.
func (r *Repository) ListChangedSince(ctx context.Context, since time.Time) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordCols+` FROM attendance_records
		WHERE checked_in_at > $1 OR checked_out_at > $1
		ORDER BY checked_in_at
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

func collectRecords(rows *sql.Rows) ([]Record, error) {
	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// Create inserts a new record. Returns ErrDuplicate when the
// (student_id, day) constraint fires.
func (r *Repository) Create(ctx context.Context, rec Record) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (student_id, day, checked_in_at, checked_out_at, subteam)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+recordCols+`
	`, rec.StudentID, rec.Day.Format("2006-01-02"), rec.CheckedInAt, rec.CheckedOutAt, rec.Subteam)
	created, err := scanRecord(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Record{}, ErrDuplicate
		}
		return Record{}, err
	}
	return created, nil
}

// CheckOut closes an open record.
func (r *Repository) CheckOut(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE attendance_records
		SET checked_out_at = $2, updated_at = NOW()
		WHERE id = $1 AND checked_out_at IS NULL
	`, id, at)
	return err
}

// Reopen clears the checkout and moves the check-in to the new tap time.
// Local-tap path only; the importer never reopens records.
func (r *Repository) Reopen(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE attendance_records
		SET checked_in_at = $2, checked_out_at = NULL, updated_at = NOW()
		WHERE id = $1
	`, id, at)
	return err
}

// Leaderboard ranks students by hours present since the given instant. Open
// records count up to now.
func (r *Repository) Leaderboard(ctx context.Context, since time.Time) ([]Standing, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.name, s.subteam,
		       COALESCE(SUM(EXTRACT(EPOCH FROM (COALESCE(a.checked_out_at, NOW()) - a.checked_in_at))) / 3600, 0) AS hours,
		       COUNT(a.id) AS days
		FROM students s
		JOIN attendance_records a ON a.student_id = s.id
		WHERE a.checked_in_at >= $1
		GROUP BY s.id, s.name, s.subteam
		ORDER BY hours DESC
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Standing
	for rows.Next() {
		var st Standing
		if err := rows.Scan(&st.StudentID, &st.Name, &st.Subteam, &st.Hours, &st.Days); err != nil {
			return nil, err
		}
		res = append(res, st)
	}
	return res, rows.Err()
}
