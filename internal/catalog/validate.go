package catalog

import (
	"fmt"
	"regexp"
	"strings"
)

// Severity grades a data-quality issue.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
)

// Issue describes one data-quality finding for a lecture.
type Issue struct {
	LectureIndex int      `json:"lectureIndex"`
	CourseName   string   `json:"courseName"`
	Field        string   `json:"field"`
	Message      string   `json:"message"`
	Severity     Severity `json:"severity"`
}

// Report summarises the findings for a catalog. Valid is false whenever any issue was raised.
type Report struct {
	Valid         bool    `json:"valid"`
	TotalLectures int     `json:"totalLectures"`
	ErrorCount    int     `json:"errorCount"`
	WarningCount  int     `json:"warningCount"`
	Issues        []Issue `json:"issues"`
}

var numericOnly = regexp.MustCompile(`^\d+$`)

const (
	maxCredits = 20
	maxHours   = 50
)

// Validate runs static sanity checks over every lecture. It never mutates the catalog.
func Validate(c *Catalog) Report {
	report := Report{Valid: true, Issues: []Issue{}}
	if c == nil {
		return report
	}
	report.TotalLectures = len(c.Lectures)

	for i, lec := range c.Lectures {
		add := func(field, message string, severity Severity) {
			report.Issues = append(report.Issues, Issue{
				LectureIndex: i,
				CourseName:   lec.CourseName,
				Field:        field,
				Message:      message,
				Severity:     severity,
			})
			if severity == SeverityError {
				report.ErrorCount++
			} else {
				report.WarningCount++
			}
		}

		if len([]rune(lec.CourseCode)) < 2 {
			add("courseCode", "course code is missing or too short", SeverityError)
		}
		if strings.TrimSpace(lec.CourseName) == "" {
			add("courseName", "course name is missing", SeverityError)
		}
		if lec.Credits < 0 || lec.Credits > maxCredits {
			add("credits", fmt.Sprintf("credits out of range (%g)", lec.Credits), SeverityError)
		}
		if lec.Hours < 0 || lec.Hours > maxHours {
			add("hours", fmt.Sprintf("hours out of range (%d)", lec.Hours), SeverityError)
		}
		if float64(lec.Hours) > lec.Credits*3 {
			add("hours", fmt.Sprintf("hours (%d) too high for credits (%g)", lec.Hours, lec.Credits), SeverityWarning)
		}

		instructor := strings.TrimSpace(lec.Instructor)
		switch {
		case instructor == "":
			add("instructor", "instructor is missing", SeverityWarning)
		case numericOnly.MatchString(instructor):
			add("instructor", "instructor is numeric only", SeverityError)
		}

		if len(lec.Schedule) == 0 {
			add("schedule", "schedule is empty", SeverityWarning)
			continue
		}
		for _, slot := range lec.Schedule {
			if !slot.Day.Valid() {
				add("schedule.day", fmt.Sprintf("invalid day %q", slot.Day), SeverityError)
			}
			if !slot.IsCyber() && len(slot.Periods) == 0 {
				add("schedule.periods", "periods are empty", SeverityError)
			}
		}
	}

	report.Valid = len(report.Issues) == 0
	return report
}
