package models

import (
	"time"

	"github.com/noah-isme/campus-timetable-api/internal/catalog"
)

// Course is a persisted lecture, unique on (university, year, semester, course_code, campus).
type Course struct {
	ID         string       `db:"id" json:"id"`
	University string       `db:"university" json:"university"`
	Year       int          `db:"year" json:"year"`
	Semester   string       `db:"semester" json:"semester"`
	CourseCode string       `db:"course_code" json:"courseCode"`
	Campus     string       `db:"campus" json:"campus"`
	Group      string       `db:"course_group" json:"group"`
	CourseName string       `db:"course_name" json:"courseName"`
	Hours      int          `db:"hours" json:"hours"`
	Credits    float64      `db:"credits" json:"credits"`
	Capacity   int          `db:"capacity" json:"capacity"`
	Instructor string       `db:"instructor" json:"instructor"`
	Schedule   ScheduleJSON `db:"schedule" json:"schedule"`
	Department string       `db:"department" json:"department"`
	Major      string       `db:"major" json:"major"`
	CourseType string       `db:"course_type" json:"courseType"`
	CreatedAt  time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time    `db:"updated_at" json:"updatedAt"`
}

// Slots returns the schedule as catalog slots.
func (c Course) Slots() []catalog.ScheduleSlot {
	return []catalog.ScheduleSlot(c.Schedule)
}

// CourseFilter narrows course listings. Zero values are ignored.
type CourseFilter struct {
	University string
	Year       int
	Semester   string
}

// CourseListing decorates a course with the number of students holding it in a timetable.
type CourseListing struct {
	Course
	EnrolledCount int64 `json:"enrolledCount"`
}

// UpsertOutcome reports what a natural-key upsert did to one row.
type UpsertOutcome struct {
	ID       string
	Inserted bool
}
