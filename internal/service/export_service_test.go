package service

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-timetable-api/internal/catalog"
	"github.com/noah-isme/campus-timetable-api/internal/models"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
	"github.com/noah-isme/campus-timetable-api/pkg/export"
)

type calendarStub struct {
	name   string
	events []export.Event
}

func (c *calendarStub) Render(name string, events []export.Event, stamp time.Time) ([]byte, error) {
	c.name, c.events = name, events
	return []byte("BEGIN:VCALENDAR"), nil
}

type gridStub struct {
	data export.Dataset
	grid *export.Grid
}

func (g *gridStub) Render(data export.Dataset, grid *export.Grid) ([]byte, error) {
	g.data, g.grid = data, grid
	return []byte("grid"), nil
}

func exportTimetable() *models.Timetable {
	courseID := "c1"
	return &models.Timetable{
		ID: "t1", StudentID: "s1", Name: "Plan A", Year: 2025, Semester: "1",
		Entries: []models.TimetableEntry{
			{ID: "e1", CourseID: &courseID, CourseCode: "CS101", CourseName: "자료구조", Instructor: "홍길동", Credits: 3,
				Schedule: models.ScheduleJSON{
					{Day: catalog.DayMon, Periods: []int{1, 2}, Location: "본관201"},
					{Day: catalog.DayWed, Periods: []int{3, 5, 6}, Location: "본관201"},
				}},
			{ID: "e2", CourseCode: models.CustomCourseCode, CourseName: "동아리", Credits: 0,
				Schedule: models.ScheduleJSON{{Day: catalog.DaySat, Periods: []int{11}}, {Day: catalog.DayCyber}}},
		},
	}
}

func newExportFixture(t *testing.T, renderers ExportRenderers, cfg ExportConfig) *ExportService {
	t.Helper()
	svc, err := NewExportService(&generatorTimetableStub{timetable: exportTimetable()}, renderers, cfg, nil)
	require.NoError(t, err)
	return svc
}

func TestExportCSV(t *testing.T) {
	svc := newExportFixture(t, ExportRenderers{}, ExportConfig{})

	result, err := svc.Export(context.Background(), "s1", "t1", "CSV")
	require.NoError(t, err)
	assert.Equal(t, "timetable_2025-1_Plan_A.csv", result.Filename)
	assert.Equal(t, "text/csv; charset=utf-8", result.ContentType)
	body := string(bytes.TrimPrefix(result.Data, []byte{0xEF, 0xBB, 0xBF}))
	assert.True(t, strings.HasPrefix(body, "Code,Course,Instructor,Credits,Schedule,Location"))
	assert.Contains(t, body, "CS101,자료구조,홍길동,3,\"Mon1,2 Wed3,5,6\",본관201")
}

func TestExportGridWidensToWeekend(t *testing.T) {
	pdf := &gridStub{}
	svc := newExportFixture(t, ExportRenderers{PDF: pdf}, ExportConfig{})

	_, err := svc.Export(context.Background(), "s1", "t1", ExportFormatPDF)
	require.NoError(t, err)
	require.NotNil(t, pdf.grid)
	assert.Equal(t, []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}, pdf.grid.Columns)
	assert.Len(t, pdf.grid.Rows, 11)
	assert.Equal(t, "자료구조 (본관201)", pdf.grid.At(0, 0))
	assert.Equal(t, "자료구조 (본관201)", pdf.grid.At(4, 2))
	assert.Equal(t, "동아리", pdf.grid.At(10, 5))
	assert.Equal(t, "2025-1 Plan A", pdf.data.Title)
}

func TestExportICSUsesTermStartAndPeriodClock(t *testing.T) {
	ics := &calendarStub{}
	svc := newExportFixture(t, ExportRenderers{ICS: ics}, ExportConfig{
		Timezone:     "Asia/Seoul",
		FirstPeriod:  "09:00",
		PeriodLength: 50 * time.Minute,
		TermWeeks:    16,
		TermStarts:   map[string]string{"2025-1": "2025-03-04"},
	})

	result, err := svc.Export(context.Background(), "s1", "t1", ExportFormatICS)
	require.NoError(t, err)
	assert.Equal(t, "text/calendar; charset=utf-8", result.ContentType)
	assert.Equal(t, "Timetable Plan A", ics.name)

	// Mon 1-2, Wed 3, Wed 5-6, Sat 11; the cyber slot has no event.
	require.Len(t, ics.events, 4)
	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)

	monday := ics.events[0]
	assert.WithinDuration(t, time.Date(2025, 3, 10, 9, 0, 0, 0, seoul), monday.Start, 0)
	assert.WithinDuration(t, time.Date(2025, 3, 10, 10, 40, 0, 0, seoul), monday.End, 0)
	assert.Equal(t, 16, monday.Weeks)
	assert.Equal(t, "본관201", monday.Location)

	wednesday := ics.events[1]
	assert.WithinDuration(t, time.Date(2025, 3, 5, 10, 40, 0, 0, seoul), wednesday.Start, 0)
	assert.WithinDuration(t, time.Date(2025, 3, 5, 11, 30, 0, 0, seoul), wednesday.End, 0)
	assert.WithinDuration(t, time.Date(2025, 3, 5, 12, 20, 0, 0, seoul), ics.events[2].Start, 0)
	assert.WithinDuration(t, time.Date(2025, 3, 8, 17, 20, 0, 0, seoul), ics.events[3].Start, 0)
	assert.NotEqual(t, ics.events[1].UID, ics.events[2].UID)
}

func TestExportICSDefaultTermStart(t *testing.T) {
	ics := &calendarStub{}
	svc := newExportFixture(t, ExportRenderers{ICS: ics}, ExportConfig{})

	_, err := svc.Export(context.Background(), "s1", "t1", ExportFormatICS)
	require.NoError(t, err)
	// 2025-03-01 is a Saturday, so the first Monday is the 3rd.
	assert.Equal(t, 3, ics.events[0].Start.Day())
	assert.Equal(t, time.Monday, ics.events[0].Start.Weekday())
}

func TestExportRejectsUnknownFormatAndForeignTimetable(t *testing.T) {
	svc := newExportFixture(t, ExportRenderers{}, ExportConfig{})

	_, err := svc.Export(context.Background(), "s1", "t1", "docx")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Export(context.Background(), "other", "t1", ExportFormatCSV)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestNewExportServiceRejectsBadClock(t *testing.T) {
	_, err := NewExportService(nil, ExportRenderers{}, ExportConfig{FirstPeriod: "9am"}, nil)
	require.Error(t, err)
	_, err = NewExportService(nil, ExportRenderers{}, ExportConfig{Timezone: "Mars/Olympus"}, nil)
	require.Error(t, err)
}

func TestPeriodRuns(t *testing.T) {
	assert.Equal(t, [][2]int{{1, 3}, {5, 5}, {7, 8}}, periodRuns([]int{8, 1, 2, 3, 5, 7, 2}))
	assert.Empty(t, periodRuns(nil))
}
