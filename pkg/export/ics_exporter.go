package export

import (
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
)

// Event is a weekly recurring calendar entry.
type Event struct {
	UID         string
	Summary     string
	Location    string
	Description string
	Start       time.Time
	End         time.Time
	// Weeks is the number of weekly occurrences; values below 2 produce a single event.
	Weeks int
}

// ICSExporter renders events as an iCalendar feed.
type ICSExporter struct {
	productID string
	timezone  string
}

// NewICSExporter constructs an exporter announcing the given timezone in X-WR-TIMEZONE.
func NewICSExporter(productID, timezone string) *ICSExporter {
	if productID == "" {
		productID = "-//campus-timetable-api//timetable export//EN"
	}
	return &ICSExporter{productID: productID, timezone: timezone}
}

// Render serialises events into a calendar named name.
func (e *ICSExporter) Render(name string, events []Event, stamp time.Time) ([]byte, error) {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(e.productID)
	if name != "" {
		cal.SetXWRCalName(name)
	}
	if e.timezone != "" {
		cal.SetXWRTimezone(e.timezone)
	}

	for _, ev := range events {
		if ev.UID == "" {
			return nil, fmt.Errorf("event %q has no uid", ev.Summary)
		}
		if !ev.End.After(ev.Start) {
			return nil, fmt.Errorf("event %s ends before it starts", ev.UID)
		}
		vevent := cal.AddEvent(ev.UID)
		vevent.SetDtStampTime(stamp)
		vevent.SetStartAt(ev.Start)
		vevent.SetEndAt(ev.End)
		vevent.SetSummary(ev.Summary)
		if ev.Location != "" {
			vevent.SetLocation(ev.Location)
		}
		if ev.Description != "" {
			vevent.SetDescription(ev.Description)
		}
		if ev.Weeks > 1 {
			vevent.AddRrule(fmt.Sprintf("FREQ=WEEKLY;COUNT=%d", ev.Weeks))
		}
	}
	return []byte(cal.Serialize()), nil
}
