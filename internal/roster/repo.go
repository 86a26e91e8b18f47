package roster

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a student lookup misses.
var ErrNotFound = errors.New("student not found")

// Student is a named roster entry. Name lookup is case-insensitive; the
// students table carries a unique index on lower(name).
type Student struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Subteam   string    `json:"subteam"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository persists roster data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// List returns all students ordered by name.
func (r *Repository) List(ctx context.Context) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, subteam, created_at
		FROM students
		ORDER BY lower(name)
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []Student
	for rows.Next() {
		var s Student
		if err := rows.Scan(&s.ID, &s.Name, &s.Subteam, &s.CreatedAt); err != nil {
			return nil, err
		}
		students = append(students, s)
	}
	return students, rows.Err()
}

// GetByID returns a single student.
func (r *Repository) GetByID(ctx context.Context, id int64) (Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, subteam, created_at FROM students WHERE id = $1
	`, id)
	var s Student
	if err := row.Scan(&s.ID, &s.Name, &s.Subteam, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Student{}, ErrNotFound
		}
		return Student{}, err
	}
	return s, nil
}

// FindByName looks a student up by case-insensitive name. Returns nil when
// no roster entry matches.
func (r *Repository) FindByName(ctx context.Context, name string) (*Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, subteam, created_at FROM students WHERE lower(name) = lower($1)
	`, strings.TrimSpace(name))
	var s Student
	if err := row.Scan(&s.ID, &s.Name, &s.Subteam, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// Ensure returns the student with the given name, creating it when missing.
// Safe under concurrent callers: the insert lands on the lower(name) unique
// index and losers fall back to the select.
func (r *Repository) Ensure(ctx context.Context, name, subteam string) (Student, bool, error) {
	name = strings.TrimSpace(name)
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO students (name, subteam)
		VALUES ($1, $2)
		ON CONFLICT (lower(name)) DO NOTHING
		RETURNING id, name, subteam, created_at
	`, name, subteam)
	var s Student
	err := row.Scan(&s.ID, &s.Name, &s.Subteam, &s.CreatedAt)
	if err == nil {
		return s, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Student{}, false, err
	}
	existing, err := r.FindByName(ctx, name)
	if err != nil {
		return Student{}, false, err
	}
	if existing == nil {
		return Student{}, false, ErrNotFound
	}
	return *existing, false, nil
}
