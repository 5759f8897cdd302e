package catalog

import (
	"fmt"
	"strings"
)

// Day enumerates the weekday of a schedule slot. Cyber marks an offering with no fixed meeting time.
type Day string

const (
	DayMon   Day = "Mon"
	DayTue   Day = "Tue"
	DayWed   Day = "Wed"
	DayThu   Day = "Thu"
	DayFri   Day = "Fri"
	DaySat   Day = "Sat"
	DaySun   Day = "Sun"
	DayCyber Day = "Cyber"
)

// Weekdays lists the timed days in calendar order.
var Weekdays = []Day{DayMon, DayTue, DayWed, DayThu, DayFri, DaySat, DaySun}

var koreanDays = map[string]Day{
	"월": DayMon,
	"화": DayTue,
	"수": DayWed,
	"목": DayThu,
	"금": DayFri,
	"토": DaySat,
	"일": DaySun,
}

// ParseDay accepts the canonical names, their lowercase forms and single-letter Korean weekday names.
func ParseDay(raw string) (Day, bool) {
	raw = strings.TrimSpace(raw)
	if day, ok := koreanDays[raw]; ok {
		return day, true
	}
	for _, day := range append(Weekdays, DayCyber) {
		if strings.EqualFold(raw, string(day)) {
			return day, true
		}
	}
	return "", false
}

// Index returns the calendar position of the day, with Cyber sorting last.
func (d Day) Index() int {
	for i, day := range Weekdays {
		if day == d {
			return i
		}
	}
	return len(Weekdays)
}

// Valid reports whether the day is a member of the enum.
func (d Day) Valid() bool {
	return d == DayCyber || d.Index() < len(Weekdays)
}

// CourseType classifies a lecture as major or general education.
type CourseType string

const (
	CourseTypeMajor   CourseType = "Major"
	CourseTypeGeneral CourseType = "General"
)

// ScheduleSlot is one meeting of a lecture.
type ScheduleSlot struct {
	Day      Day    `json:"day"`
	Periods  []int  `json:"periods"`
	Location string `json:"location"`
}

// IsCyber reports whether the slot is exempt from time conflict checks.
func (s ScheduleSlot) IsCyber() bool {
	return s.Day == DayCyber
}

// Key serialises the day and periods, e.g. "Mon1,2,3".
func (s ScheduleSlot) Key() string {
	parts := make([]string, len(s.Periods))
	for i, p := range s.Periods {
		parts[i] = fmt.Sprintf("%d", p)
	}
	return string(s.Day) + strings.Join(parts, ",")
}

// Lecture is one offered section in canonical form.
type Lecture struct {
	Group      string         `json:"group"`
	CourseCode string         `json:"courseCode"`
	CourseName string         `json:"courseName"`
	Hours      int            `json:"hours"`
	Credits    float64        `json:"credits"`
	Capacity   int            `json:"capacity"`
	Instructor string         `json:"instructor"`
	Schedule   []ScheduleSlot `json:"schedule"`
	Campus     string         `json:"campus,omitempty"`
	Department string         `json:"department,omitempty"`
	Major      string         `json:"major,omitempty"`
	CourseType CourseType     `json:"courseType,omitempty"`
}

// ScheduleKey serialises all slots in order; used as part of deduplication keys.
func (l Lecture) ScheduleKey() string {
	keys := make([]string, len(l.Schedule))
	for i, slot := range l.Schedule {
		keys[i] = slot.Key()
	}
	return strings.Join(keys, "|")
}

// Catalog is one scraped batch handed from an adapter to ingestion.
type Catalog struct {
	University string     `json:"university" validate:"required"`
	Campus     string     `json:"campus"`
	Department string     `json:"department"`
	Major      string     `json:"major"`
	Year       int        `json:"year" validate:"required,gte=2000,lte=2100"`
	Semester   string     `json:"semester" validate:"required"`
	CourseType CourseType `json:"courseType"`
	Lectures   []Lecture  `json:"lectures" validate:"dive"`
}
