package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

const courseColumns = `id, university, year, semester, course_code, campus, course_group, course_name, hours, credits, capacity, instructor, schedule, department, major, course_type, created_at, updated_at`

// CourseRepository persists canonical lectures keyed on (university, year, semester, course_code, campus).
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository creates a new instance of CourseRepository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// Upsert inserts the course or updates the row sharing its natural key. The returned outcome tells
// whether the row was newly inserted.
func (r *CourseRepository) Upsert(ctx context.Context, course *models.Course) (models.UpsertOutcome, error) {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now
	if course.Schedule == nil {
		course.Schedule = models.ScheduleJSON{}
	}

	const named = `INSERT INTO courses (id, university, year, semester, course_code, campus, course_group, course_name, hours, credits, capacity, instructor, schedule, department, major, course_type, created_at, updated_at)
VALUES (:id, :university, :year, :semester, :course_code, :campus, :course_group, :course_name, :hours, :credits, :capacity, :instructor, :schedule, :department, :major, :course_type, :created_at, :updated_at)
ON CONFLICT (university, year, semester, course_code, campus) DO UPDATE SET
course_group = EXCLUDED.course_group, course_name = EXCLUDED.course_name, hours = EXCLUDED.hours, credits = EXCLUDED.credits,
capacity = EXCLUDED.capacity, instructor = EXCLUDED.instructor, schedule = EXCLUDED.schedule, department = EXCLUDED.department,
major = EXCLUDED.major, course_type = EXCLUDED.course_type, updated_at = EXCLUDED.updated_at
RETURNING id, (xmax = 0) AS inserted`

	query, args, err := r.db.BindNamed(named, course)
	if err != nil {
		return models.UpsertOutcome{}, fmt.Errorf("bind course upsert: %w", err)
	}
	var out struct {
		ID       string `db:"id"`
		Inserted bool   `db:"inserted"`
	}
	if err := r.db.QueryRowxContext(ctx, query, args...).StructScan(&out); err != nil {
		return models.UpsertOutcome{}, fmt.Errorf("upsert course %s: %w", course.CourseCode, err)
	}
	course.ID = out.ID
	return models.UpsertOutcome{ID: out.ID, Inserted: out.Inserted}, nil
}

// FindByID returns a course by identifier.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses WHERE id = $1 LIMIT 1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find course by id: %w", err)
	}
	return &course, nil
}

// ListForGeneration returns every course of one university term, for building candidate pools.
func (r *CourseRepository) ListForGeneration(ctx context.Context, university string, year int, semester string) ([]models.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses WHERE university = $1 AND year = $2 AND semester = $3 ORDER BY course_code, campus`
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, university, year, semester); err != nil {
		return nil, fmt.Errorf("list courses for generation: %w", err)
	}
	return courses, nil
}

// List returns courses matching the filter ordered by code.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, error) {
	var conditions []string
	var args []interface{}
	if filter.University != "" {
		args = append(args, filter.University)
		conditions = append(conditions, fmt.Sprintf("university = $%d", len(args)))
	}
	if filter.Year > 0 {
		args = append(args, filter.Year)
		conditions = append(conditions, fmt.Sprintf("year = $%d", len(args)))
	}
	if filter.Semester != "" {
		args = append(args, filter.Semester)
		conditions = append(conditions, fmt.Sprintf("semester = $%d", len(args)))
	}

	query := `SELECT ` + courseColumns + ` FROM courses`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY course_code, campus"

	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}
