package dto

import "github.com/noah-isme/campus-timetable-api/internal/catalog"

// CreateTimetableRequest creates an empty timetable for a term.
type CreateTimetableRequest struct {
	Name     string `json:"name" validate:"required,max=128"`
	Year     int    `json:"year" validate:"required,min=2000,max=2100"`
	Semester string `json:"semester" validate:"required,max=16"`
}

// TimetableQuery filters a student's timetables.
type TimetableQuery struct {
	Year     int    `form:"year"`
	Semester string `form:"semester"`
}

// AddEntryRequest places a catalog course into a timetable.
type AddEntryRequest struct {
	CourseID string `json:"courseId" validate:"required"`
}

// AddCustomEntryRequest places a free-form block into a timetable.
type AddCustomEntryRequest struct {
	CourseName string                 `json:"courseName" validate:"required,max=255"`
	Instructor string                 `json:"instructor" validate:"max=255"`
	Schedule   []catalog.ScheduleSlot `json:"schedule" validate:"dive"`
}

// CourseQuery filters the course listing.
type CourseQuery struct {
	Year     int    `form:"year"`
	Semester string `form:"semester"`
}
