package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

const (
	timetableColumns = `id, student_id, name, year, semester, is_primary, created_at, updated_at`
	entryColumns     = `id, timetable_id, course_id, course_name, instructor, course_code, credits, schedule, color, created_at`
)

// TimetableRepository stores student timetables and their entries.
type TimetableRepository struct {
	db *sqlx.DB
}

// NewTimetableRepository creates a new instance of TimetableRepository.
func NewTimetableRepository(db *sqlx.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

// Create inserts a new timetable.
func (r *TimetableRepository) Create(ctx context.Context, timetable *models.Timetable) error {
	if timetable.ID == "" {
		timetable.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if timetable.CreatedAt.IsZero() {
		timetable.CreatedAt = now
	}
	timetable.UpdatedAt = now

	const query = `INSERT INTO timetables (id, student_id, name, year, semester, is_primary, created_at, updated_at) VALUES (:id, :student_id, :name, :year, :semester, :is_primary, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, timetable); err != nil {
		return fmt.Errorf("create timetable: %w", err)
	}
	return nil
}

// FindByID returns a timetable with its entries.
func (r *TimetableRepository) FindByID(ctx context.Context, id string) (*models.Timetable, error) {
	query := `SELECT ` + timetableColumns + ` FROM timetables WHERE id = $1 LIMIT 1`
	var timetable models.Timetable
	if err := r.db.GetContext(ctx, &timetable, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find timetable by id: %w", err)
	}
	entries, err := r.listEntries(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	timetable.Entries = entries[id]
	if timetable.Entries == nil {
		timetable.Entries = []models.TimetableEntry{}
	}
	return &timetable, nil
}

// List returns a student's timetables, newest first, with entries attached.
func (r *TimetableRepository) List(ctx context.Context, filter models.TimetableFilter) ([]models.Timetable, error) {
	conditions := []string{"student_id = $1"}
	args := []interface{}{filter.StudentID}
	if filter.Year > 0 {
		args = append(args, filter.Year)
		conditions = append(conditions, fmt.Sprintf("year = $%d", len(args)))
	}
	if filter.Semester != "" {
		args = append(args, filter.Semester)
		conditions = append(conditions, fmt.Sprintf("semester = $%d", len(args)))
	}
	query := `SELECT ` + timetableColumns + ` FROM timetables WHERE ` + strings.Join(conditions, " AND ") + ` ORDER BY is_primary DESC, created_at DESC`

	var timetables []models.Timetable
	if err := r.db.SelectContext(ctx, &timetables, query, args...); err != nil {
		return nil, fmt.Errorf("list timetables: %w", err)
	}
	if len(timetables) == 0 {
		return timetables, nil
	}

	ids := make([]string, len(timetables))
	for i := range timetables {
		ids[i] = timetables[i].ID
	}
	entries, err := r.listEntries(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range timetables {
		timetables[i].Entries = entries[timetables[i].ID]
		if timetables[i].Entries == nil {
			timetables[i].Entries = []models.TimetableEntry{}
		}
	}
	return timetables, nil
}

func (r *TimetableRepository) listEntries(ctx context.Context, timetableIDs []string) (map[string][]models.TimetableEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM timetable_entries WHERE timetable_id = ANY($1) ORDER BY created_at, id`
	var entries []models.TimetableEntry
	if err := r.db.SelectContext(ctx, &entries, query, pq.Array(timetableIDs)); err != nil {
		return nil, fmt.Errorf("list timetable entries: %w", err)
	}
	grouped := make(map[string][]models.TimetableEntry, len(timetableIDs))
	for _, entry := range entries {
		grouped[entry.TimetableID] = append(grouped[entry.TimetableID], entry)
	}
	return grouped, nil
}

// Delete removes a timetable; entries go with it through the foreign key cascade.
func (r *TimetableRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM timetables WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete timetable: %w", err)
	}
	return nil
}

// SetPrimary marks one timetable primary and clears the flag on the student's other timetables of the same term.
func (r *TimetableRepository) SetPrimary(ctx context.Context, timetable *models.Timetable) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin primary transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	const clearQuery = `UPDATE timetables SET is_primary = FALSE, updated_at = $4 WHERE student_id = $1 AND year = $2 AND semester = $3 AND is_primary`
	if _, err = tx.ExecContext(ctx, clearQuery, timetable.StudentID, timetable.Year, timetable.Semester, now); err != nil {
		return fmt.Errorf("clear primary timetables: %w", err)
	}
	const setQuery = `UPDATE timetables SET is_primary = TRUE, updated_at = $2 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, setQuery, timetable.ID, now); err != nil {
		return fmt.Errorf("set primary timetable: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit primary timetable: %w", err)
	}
	timetable.IsPrimary = true
	timetable.UpdatedAt = now
	return nil
}

// AddEntry inserts an entry into a timetable.
func (r *TimetableRepository) AddEntry(ctx context.Context, entry *models.TimetableEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Schedule == nil {
		entry.Schedule = models.ScheduleJSON{}
	}
	const query = `INSERT INTO timetable_entries (id, timetable_id, course_id, course_name, instructor, course_code, credits, schedule, color, created_at) VALUES (:id, :timetable_id, :course_id, :course_name, :instructor, :course_code, :credits, :schedule, :color, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("add timetable entry: %w", err)
	}
	return nil
}

// FindEntryOwner resolves an entry to its timetable and student.
func (r *TimetableRepository) FindEntryOwner(ctx context.Context, entryID string) (*models.EntryOwner, error) {
	const query = `SELECT e.id AS entry_id, e.timetable_id, t.student_id, e.course_id FROM timetable_entries e JOIN timetables t ON t.id = e.timetable_id WHERE e.id = $1 LIMIT 1`
	var owner models.EntryOwner
	if err := r.db.GetContext(ctx, &owner, query, entryID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find entry owner: %w", err)
	}
	return &owner, nil
}

// DeleteEntry removes a single entry.
func (r *TimetableRepository) DeleteEntry(ctx context.Context, entryID string) error {
	const query = `DELETE FROM timetable_entries WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, entryID); err != nil {
		return fmt.Errorf("delete timetable entry: %w", err)
	}
	return nil
}

// CountStudentCourseRefs counts the entries across all of a student's timetables that reference a course.
func (r *TimetableRepository) CountStudentCourseRefs(ctx context.Context, studentID, courseID string) (int, error) {
	const query = `SELECT COUNT(*) FROM timetable_entries e JOIN timetables t ON t.id = e.timetable_id WHERE t.student_id = $1 AND e.course_id = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, studentID, courseID); err != nil {
		return 0, fmt.Errorf("count course references: %w", err)
	}
	return count, nil
}
