package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/dto"
	"github.com/noah-isme/campus-timetable-api/internal/models"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
)

type courseLister interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, error)
}

type enrollmentCountReader interface {
	Counts(ctx context.Context, courseIDs []string) (map[string]int64, error)
}

// CourseService lists persisted courses for students.
type CourseService struct {
	courses  courseLister
	counters enrollmentCountReader
	logger   *zap.Logger
}

// NewCourseService creates a course service. counters may be nil, in which case every count is zero.
func NewCourseService(courses courseLister, counters enrollmentCountReader, logger *zap.Logger) *CourseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{courses: courses, counters: counters, logger: logger}
}

// List returns the courses of the caller's university with how many students hold each one.
// A counter store outage degrades to zero counts.
func (s *CourseService) List(ctx context.Context, university string, query dto.CourseQuery) ([]models.CourseListing, error) {
	university = NormalizeUniversity(university)
	if university == "" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token carries no university")
	}
	courses, err := s.courses.List(ctx, models.CourseFilter{
		University: university,
		Year:       query.Year,
		Semester:   strings.TrimSpace(query.Semester),
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}

	counts := map[string]int64{}
	if s.counters != nil && len(courses) > 0 {
		ids := make([]string, len(courses))
		for i, course := range courses {
			ids[i] = course.ID
		}
		if fetched, err := s.counters.Counts(ctx, ids); err != nil {
			s.logger.Warn("failed to read enrolment counters", zap.Error(err))
		} else {
			counts = fetched
		}
	}

	out := make([]models.CourseListing, len(courses))
	for i, course := range courses {
		out[i] = models.CourseListing{Course: course, EnrolledCount: counts[course.ID]}
	}
	return out, nil
}
