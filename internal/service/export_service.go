package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/catalog"
	"github.com/noah-isme/campus-timetable-api/internal/models"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
	"github.com/noah-isme/campus-timetable-api/pkg/export"
)

// Export formats accepted by ExportService.
const (
	ExportFormatCSV  = "csv"
	ExportFormatPDF  = "pdf"
	ExportFormatICS  = "ics"
	ExportFormatXLSX = "xlsx"
)

var exportContentTypes = map[string]string{
	ExportFormatCSV:  "text/csv; charset=utf-8",
	ExportFormatPDF:  "application/pdf",
	ExportFormatICS:  "text/calendar; charset=utf-8",
	ExportFormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

var exportHeaders = []string{"Code", "Course", "Instructor", "Credits", "Schedule", "Location"}

const minGridPeriods = 9

type exportTimetableReader interface {
	FindByID(ctx context.Context, id string) (*models.Timetable, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type gridRenderer interface {
	Render(data export.Dataset, grid *export.Grid) ([]byte, error)
}

type calendarRenderer interface {
	Render(name string, events []export.Event, stamp time.Time) ([]byte, error)
}

// ExportConfig maps periods onto wall-clock time. TermStarts is keyed "year-semester", e.g. "2025-1",
// with dates in 2006-01-02 form.
type ExportConfig struct {
	Timezone      string
	FirstPeriod   string
	PeriodLength  time.Duration
	TermWeeks     int
	TermStarts    map[string]string
	CalendarTitle string
}

// ExportResult is a rendered timetable ready to be served.
type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportRenderers bundles the format encoders. Nil members fall back to the defaults.
type ExportRenderers struct {
	CSV  csvRenderer
	PDF  gridRenderer
	XLSX gridRenderer
	ICS  calendarRenderer
}

// ExportService renders a student's timetable as CSV, PDF, iCalendar or XLSX.
type ExportService struct {
	timetables exportTimetableReader
	renderers  ExportRenderers
	logger     *zap.Logger
	cfg        ExportConfig
	location   *time.Location
	firstStart time.Duration
	now        func() time.Time
}

// NewExportService constructs an ExportService. An unknown timezone or malformed first period is a
// configuration error.
func NewExportService(timetables exportTimetableReader, renderers ExportRenderers, cfg ExportConfig, logger *zap.Logger) (*ExportService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Asia/Seoul"
	}
	if cfg.FirstPeriod == "" {
		cfg.FirstPeriod = "09:00"
	}
	if cfg.PeriodLength <= 0 {
		cfg.PeriodLength = time.Hour
	}
	if cfg.TermWeeks <= 0 {
		cfg.TermWeeks = 15
	}
	if cfg.CalendarTitle == "" {
		cfg.CalendarTitle = "Timetable"
	}

	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load export timezone %q: %w", cfg.Timezone, err)
	}
	first, err := time.Parse("15:04", cfg.FirstPeriod)
	if err != nil {
		return nil, fmt.Errorf("parse first period %q: %w", cfg.FirstPeriod, err)
	}

	if renderers.CSV == nil {
		renderers.CSV = export.NewCSVExporter(true)
	}
	if renderers.PDF == nil {
		renderers.PDF = export.NewPDFExporter("")
	}
	if renderers.XLSX == nil {
		renderers.XLSX = export.NewXLSXExporter()
	}
	if renderers.ICS == nil {
		renderers.ICS = export.NewICSExporter("", cfg.Timezone)
	}

	return &ExportService{
		timetables: timetables,
		renderers:  renderers,
		logger:     logger,
		cfg:        cfg,
		location:   location,
		firstStart: time.Duration(first.Hour())*time.Hour + time.Duration(first.Minute())*time.Minute,
		now:        time.Now,
	}, nil
}

// Export renders the timetable in the requested format.
func (s *ExportService) Export(ctx context.Context, studentID, timetableID, format string) (*ExportResult, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	contentType, ok := exportContentTypes[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format: "+format)
	}

	timetable, err := s.timetables.FindByID(ctx, timetableID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	if timetable.StudentID != studentID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
	}

	var payload []byte
	switch format {
	case ExportFormatCSV:
		payload, err = s.renderers.CSV.Render(s.dataset(timetable))
	case ExportFormatPDF:
		payload, err = s.renderers.PDF.Render(s.dataset(timetable), weeklyGrid(timetable.Entries))
	case ExportFormatXLSX:
		payload, err = s.renderers.XLSX.Render(s.dataset(timetable), weeklyGrid(timetable.Entries))
	case ExportFormatICS:
		var events []export.Event
		events, err = s.events(timetable)
		if err != nil {
			return nil, err
		}
		payload, err = s.renderers.ICS.Render(s.cfg.CalendarTitle+" "+timetable.Name, events, s.now().UTC())
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	s.logger.Debug("timetable exported", zap.String("timetable_id", timetable.ID), zap.String("format", format), zap.Int("bytes", len(payload)))
	return &ExportResult{
		Filename:    exportFilename(timetable, format),
		ContentType: contentType,
		Data:        payload,
	}, nil
}

func (s *ExportService) dataset(timetable *models.Timetable) export.Dataset {
	rows := make([]map[string]string, 0, len(timetable.Entries))
	for _, entry := range timetable.Entries {
		slots := []catalog.ScheduleSlot(entry.Schedule)
		keys := make([]string, 0, len(slots))
		locations := make([]string, 0, len(slots))
		for _, slot := range slots {
			keys = append(keys, slot.Key())
			if slot.Location != "" {
				locations = append(locations, slot.Location)
			}
		}
		rows = append(rows, map[string]string{
			"Code":       entry.CourseCode,
			"Course":     entry.CourseName,
			"Instructor": entry.Instructor,
			"Credits":    strconv.FormatFloat(entry.Credits, 'f', -1, 64),
			"Schedule":   strings.Join(keys, " "),
			"Location":   strings.Join(dedupe(locations), ", "),
		})
	}
	return export.Dataset{
		Title:   fmt.Sprintf("%d-%s %s", timetable.Year, timetable.Semester, timetable.Name),
		Headers: exportHeaders,
		Rows:    rows,
	}
}

// weeklyGrid lays timed slots onto Mon-Fri, widening to the weekend only when an entry meets then.
func weeklyGrid(entries []models.TimetableEntry) *export.Grid {
	days := []catalog.Day{catalog.DayMon, catalog.DayTue, catalog.DayWed, catalog.DayThu, catalog.DayFri}
	maxPeriod := minGridPeriods
	weekend := map[catalog.Day]bool{}
	for _, entry := range entries {
		for _, slot := range entry.Schedule {
			if slot.Day == catalog.DaySat || slot.Day == catalog.DaySun {
				weekend[slot.Day] = true
			}
			for _, p := range slot.Periods {
				if p > maxPeriod {
					maxPeriod = p
				}
			}
		}
	}
	for _, day := range []catalog.Day{catalog.DaySat, catalog.DaySun} {
		if weekend[day] {
			days = append(days, day)
		}
	}

	columns := make([]string, len(days))
	column := make(map[catalog.Day]int, len(days))
	for i, day := range days {
		columns[i] = string(day)
		column[day] = i
	}
	rows := make([]string, maxPeriod)
	for i := range rows {
		rows[i] = strconv.Itoa(i + 1)
	}

	grid := export.NewGrid(columns, rows)
	for _, entry := range entries {
		for _, slot := range entry.Schedule {
			col, ok := column[slot.Day]
			if !ok {
				continue
			}
			label := entry.CourseName
			if slot.Location != "" {
				label += " (" + slot.Location + ")"
			}
			for _, p := range slot.Periods {
				grid.Set(p-1, col, label)
			}
		}
	}
	return grid
}

func (s *ExportService) events(timetable *models.Timetable) ([]export.Event, error) {
	termStart, err := s.termStart(timetable.Year, timetable.Semester)
	if err != nil {
		return nil, err
	}

	var events []export.Event
	for _, entry := range timetable.Entries {
		for i, slot := range entry.Schedule {
			if slot.IsCyber() || len(slot.Periods) == 0 {
				continue
			}
			day := firstWeekday(termStart, slot.Day)
			for j, run := range periodRuns(slot.Periods) {
				start := day.Add(s.firstStart + time.Duration(run[0]-1)*s.cfg.PeriodLength)
				end := day.Add(s.firstStart + time.Duration(run[1])*s.cfg.PeriodLength)
				events = append(events, export.Event{
					UID:         fmt.Sprintf("%s-%d-%d@campus-timetable", entry.ID, i, j),
					Summary:     entry.CourseName,
					Location:    slot.Location,
					Description: strings.TrimSpace(entry.CourseCode + " " + entry.Instructor),
					Start:       start,
					End:         end,
					Weeks:       s.cfg.TermWeeks,
				})
			}
		}
	}
	return events, nil
}

// termStart returns midnight of the configured first day of term. Without configuration the first
// Monday of March serves semester 1 and the first Monday of September serves semester 2.
func (s *ExportService) termStart(year int, semester string) (time.Time, error) {
	key := fmt.Sprintf("%d-%s", year, semester)
	if raw, ok := s.cfg.TermStarts[key]; ok {
		start, err := time.ParseInLocation("2006-01-02", raw, s.location)
		if err != nil {
			return time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "invalid term start for "+key)
		}
		return start, nil
	}
	var month time.Month
	switch semester {
	case "1":
		month = time.March
	case "2":
		month = time.September
	default:
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "no term start configured for "+key)
	}
	return firstWeekday(time.Date(year, month, 1, 0, 0, 0, 0, s.location), catalog.DayMon), nil
}

// firstWeekday returns the first date on or after from that falls on day.
func firstWeekday(from time.Time, day catalog.Day) time.Time {
	target := (day.Index() + 1) % 7 // catalog weeks start Monday, time.Weekday starts Sunday
	offset := (target - int(from.Weekday()) + 7) % 7
	return from.AddDate(0, 0, offset)
}

// periodRuns groups periods into contiguous [first, last] ranges.
func periodRuns(periods []int) [][2]int {
	sorted := append([]int(nil), periods...)
	sort.Ints(sorted)
	var runs [][2]int
	for _, p := range sorted {
		if n := len(runs); n > 0 && (p == runs[n-1][1]+1 || p == runs[n-1][1]) {
			runs[n-1][1] = p
			continue
		}
		runs = append(runs, [2]int{p, p})
	}
	return runs
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func exportFilename(timetable *models.Timetable, format string) string {
	return fmt.Sprintf("timetable_%d-%s_%s.%s", timetable.Year, sanitizeFilename(timetable.Semester), sanitizeFilename(timetable.Name), format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_", "\"", "")
	result := []rune(replacer.Replace(raw))
	if len(result) > 100 {
		result = result[:100]
	}
	return string(result)
}
