package models

import "time"

// CustomCourseCode marks an entry that does not reference a catalog course.
const CustomCourseCode = "CUSTOM"

// Timetable is a student's named plan for one term.
type Timetable struct {
	ID        string           `db:"id" json:"id"`
	StudentID string           `db:"student_id" json:"studentId"`
	Name      string           `db:"name" json:"name"`
	Year      int              `db:"year" json:"year"`
	Semester  string           `db:"semester" json:"semester"`
	IsPrimary bool             `db:"is_primary" json:"isPrimary"`
	CreatedAt time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time        `db:"updated_at" json:"updatedAt"`
	Entries   []TimetableEntry `db:"-" json:"entries"`
}

// TimetableEntry is a course snapshot placed in a timetable. CourseID is nil for custom entries.
type TimetableEntry struct {
	ID          string       `db:"id" json:"id"`
	TimetableID string       `db:"timetable_id" json:"timetableId"`
	CourseID    *string      `db:"course_id" json:"courseId"`
	CourseName  string       `db:"course_name" json:"courseName"`
	Instructor  string       `db:"instructor" json:"instructor"`
	CourseCode  string       `db:"course_code" json:"courseCode"`
	Credits     float64      `db:"credits" json:"credits"`
	Schedule    ScheduleJSON `db:"schedule" json:"schedule"`
	Color       string       `db:"color" json:"color"`
	CreatedAt   time.Time    `db:"created_at" json:"createdAt"`
}

// TimetableFilter narrows a student's timetable listing.
type TimetableFilter struct {
	StudentID string
	Year      int
	Semester  string
}

// EntryOwner resolves an entry to its timetable and student.
type EntryOwner struct {
	EntryID     string  `db:"entry_id"`
	TimetableID string  `db:"timetable_id"`
	StudentID   string  `db:"student_id"`
	CourseID    *string `db:"course_id"`
}
