package dto

import "github.com/noah-isme/campus-timetable-api/internal/models"

// GenerateTimetableRequest asks for combinations around the fixed entries of a timetable.
type GenerateTimetableRequest struct {
	TimetableID      string   `json:"timetableId" validate:"required"`
	TargetDepartment string   `json:"targetDepartment"`
	MajorCount       int      `json:"majorCount" validate:"min=0,max=15"`
	GECount          int      `json:"geCount" validate:"min=0,max=15"`
	MinCredits       float64  `json:"minCredits" validate:"min=0"`
	MaxCredits       float64  `json:"maxCredits" validate:"gtefield=MinCredits"`
	PreferredDays    []string `json:"preferredDays" validate:"omitempty,dive,required"`
	AvoidLunch       bool     `json:"avoidLunch"`
	IncludeCyber     bool     `json:"includeCyber"`
}

// Combination is one proposed set of added courses.
type Combination struct {
	TotalCredits float64         `json:"totalCredits"`
	Score        int             `json:"score"`
	Courses      []models.Course `json:"courses"`
}

// GenerateTimetableResponse lists ranked combinations, two per credit total at most.
type GenerateTimetableResponse struct {
	Combinations []Combination `json:"combinations"`
	Message      string        `json:"message,omitempty"`
}
