package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/dto"
	"github.com/noah-isme/campus-timetable-api/internal/models"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
)

// EntryPalette is cycled through as entries are added to a timetable.
var EntryPalette = []string{"#FFDDDD", "#DDEEFF", "#DDFFDD", "#FFFFAA", "#EEDDFF", "#FFDDEE", "#E0E0E0", "#F5F5DC"}

type timetableStore interface {
	Create(ctx context.Context, timetable *models.Timetable) error
	FindByID(ctx context.Context, id string) (*models.Timetable, error)
	List(ctx context.Context, filter models.TimetableFilter) ([]models.Timetable, error)
	Delete(ctx context.Context, id string) error
	SetPrimary(ctx context.Context, timetable *models.Timetable) error
	AddEntry(ctx context.Context, entry *models.TimetableEntry) error
	FindEntryOwner(ctx context.Context, entryID string) (*models.EntryOwner, error)
	DeleteEntry(ctx context.Context, entryID string) error
	CountStudentCourseRefs(ctx context.Context, studentID, courseID string) (int, error)
}

type courseFinder interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type enrollmentCounter interface {
	Associate(ctx context.Context, courseID, studentID string) (int64, error)
	Disassociate(ctx context.Context, courseID, studentID string) (int64, error)
}

// TimetableService manages a student's timetables and keeps the per-course enrolment counters in step.
type TimetableService struct {
	timetables timetableStore
	courses    courseFinder
	counters   enrollmentCounter
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewTimetableService creates a timetable service. counters may be nil.
func NewTimetableService(timetables timetableStore, courses courseFinder, counters enrollmentCounter, validate *validator.Validate, logger *zap.Logger) *TimetableService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimetableService{timetables: timetables, courses: courses, counters: counters, validator: validate, logger: logger}
}

// List returns the student's timetables, primary first.
func (s *TimetableService) List(ctx context.Context, studentID string, query dto.TimetableQuery) ([]models.Timetable, error) {
	items, err := s.timetables.List(ctx, models.TimetableFilter{
		StudentID: studentID,
		Year:      query.Year,
		Semester:  strings.TrimSpace(query.Semester),
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetables")
	}
	return items, nil
}

// Get returns a timetable owned by the student.
func (s *TimetableService) Get(ctx context.Context, studentID, id string) (*models.Timetable, error) {
	return s.owned(ctx, studentID, id)
}

// Create stores an empty timetable.
func (s *TimetableService) Create(ctx context.Context, studentID string, req dto.CreateTimetableRequest) (*models.Timetable, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable payload")
	}
	timetable := &models.Timetable{
		StudentID: studentID,
		Name:      strings.TrimSpace(req.Name),
		Year:      req.Year,
		Semester:  strings.TrimSpace(req.Semester),
		Entries:   []models.TimetableEntry{},
	}
	if err := s.timetables.Create(ctx, timetable); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create timetable")
	}
	return timetable, nil
}

// Delete removes a timetable with its entries and releases the student's counter membership for courses
// no longer referenced anywhere else.
func (s *TimetableService) Delete(ctx context.Context, studentID, id string) error {
	timetable, err := s.owned(ctx, studentID, id)
	if err != nil {
		return err
	}
	if err := s.timetables.Delete(ctx, timetable.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete timetable")
	}

	seen := make(map[string]struct{})
	for _, entry := range timetable.Entries {
		if entry.CourseID == nil {
			continue
		}
		if _, ok := seen[*entry.CourseID]; ok {
			continue
		}
		seen[*entry.CourseID] = struct{}{}
		s.release(ctx, studentID, *entry.CourseID)
	}
	return nil
}

// SetPrimary marks the timetable primary for its term.
func (s *TimetableService) SetPrimary(ctx context.Context, studentID, id string) (*models.Timetable, error) {
	timetable, err := s.owned(ctx, studentID, id)
	if err != nil {
		return nil, err
	}
	if err := s.timetables.SetPrimary(ctx, timetable); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set primary timetable")
	}
	return timetable, nil
}

// AddEntry snapshots a catalog course into the timetable.
func (s *TimetableService) AddEntry(ctx context.Context, studentID, timetableID string, req dto.AddEntryRequest) (*models.TimetableEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid entry payload")
	}
	timetable, err := s.owned(ctx, studentID, timetableID)
	if err != nil {
		return nil, err
	}
	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	for _, entry := range timetable.Entries {
		if entry.CourseID != nil && *entry.CourseID == course.ID {
			return nil, appErrors.Clone(appErrors.ErrConflict, "course already in timetable")
		}
	}

	refs, err := s.timetables.CountStudentCourseRefs(ctx, studentID, course.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add entry")
	}

	courseID := course.ID
	entry := &models.TimetableEntry{
		TimetableID: timetable.ID,
		CourseID:    &courseID,
		CourseName:  course.CourseName,
		Instructor:  course.Instructor,
		CourseCode:  course.CourseCode,
		Credits:     course.Credits,
		Schedule:    course.Schedule,
		Color:       paletteColor(len(timetable.Entries)),
	}
	if err := s.timetables.AddEntry(ctx, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add entry")
	}
	if refs == 0 && s.counters != nil {
		if _, err := s.counters.Associate(ctx, course.ID, studentID); err != nil {
			s.logger.Warn("failed to associate lecture", zap.String("course_id", course.ID), zap.Error(err))
		}
	}
	return entry, nil
}

// AddCustomEntry places a free-form block that references no catalog course.
func (s *TimetableService) AddCustomEntry(ctx context.Context, studentID, timetableID string, req dto.AddCustomEntryRequest) (*models.TimetableEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid custom entry payload")
	}
	for _, slot := range req.Schedule {
		if !slot.Day.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid schedule day: "+string(slot.Day))
		}
	}
	timetable, err := s.owned(ctx, studentID, timetableID)
	if err != nil {
		return nil, err
	}
	entry := &models.TimetableEntry{
		TimetableID: timetable.ID,
		CourseName:  strings.TrimSpace(req.CourseName),
		Instructor:  strings.TrimSpace(req.Instructor),
		CourseCode:  models.CustomCourseCode,
		Schedule:    models.ScheduleJSON(req.Schedule),
		Color:       paletteColor(len(timetable.Entries)),
	}
	if err := s.timetables.AddEntry(ctx, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add entry")
	}
	return entry, nil
}

// DeleteEntry removes one entry from a timetable the student owns.
func (s *TimetableService) DeleteEntry(ctx context.Context, studentID, entryID string) error {
	owner, err := s.timetables.FindEntryOwner(ctx, entryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "timetable entry not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load entry")
	}
	if owner.StudentID != studentID {
		return appErrors.Clone(appErrors.ErrNotFound, "timetable entry not found")
	}
	if err := s.timetables.DeleteEntry(ctx, entryID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete entry")
	}
	if owner.CourseID != nil {
		s.release(ctx, studentID, *owner.CourseID)
	}
	return nil
}

func (s *TimetableService) owned(ctx context.Context, studentID, id string) (*models.Timetable, error) {
	timetable, err := s.timetables.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	if timetable.StudentID != studentID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
	}
	return timetable, nil
}

// release drops the student from the course counter once no entry of theirs references it.
func (s *TimetableService) release(ctx context.Context, studentID, courseID string) {
	if s.counters == nil {
		return
	}
	refs, err := s.timetables.CountStudentCourseRefs(ctx, studentID, courseID)
	if err != nil {
		s.logger.Warn("failed to count course references", zap.String("course_id", courseID), zap.Error(err))
		return
	}
	if refs > 0 {
		return
	}
	if _, err := s.counters.Disassociate(ctx, courseID, studentID); err != nil {
		s.logger.Warn("failed to disassociate lecture", zap.String("course_id", courseID), zap.Error(err))
	}
}

func paletteColor(index int) string {
	return EntryPalette[index%len(EntryPalette)]
}
