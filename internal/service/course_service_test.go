package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-timetable-api/internal/dto"
	"github.com/noah-isme/campus-timetable-api/internal/models"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
)

type courseListerStub struct {
	filter  models.CourseFilter
	courses []models.Course
	err     error
}

func (s *courseListerStub) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, error) {
	s.filter = filter
	return s.courses, s.err
}

type countReaderStub struct {
	counts map[string]int64
	err    error
}

func (s countReaderStub) Counts(ctx context.Context, courseIDs []string) (map[string]int64, error) {
	return s.counts, s.err
}

func TestCourseServiceListAttachesCounts(t *testing.T) {
	lister := &courseListerStub{courses: []models.Course{{ID: "a", CourseCode: "CS1"}, {ID: "b", CourseCode: "CS2"}}}
	svc := NewCourseService(lister, countReaderStub{counts: map[string]int64{"a": 4}}, nil)

	out, err := svc.List(context.Background(), "가천대학교(글로벌)", dto.CourseQuery{Year: 2025, Semester: " 1 "})
	require.NoError(t, err)
	assert.Equal(t, models.CourseFilter{University: "가천대학교", Year: 2025, Semester: "1"}, lister.filter)
	require.Len(t, out, 2)
	assert.Equal(t, int64(4), out[0].EnrolledCount)
	assert.Zero(t, out[1].EnrolledCount)
	assert.Equal(t, "CS2", out[1].CourseCode)
}

func TestCourseServiceCounterOutageDegrades(t *testing.T) {
	lister := &courseListerStub{courses: []models.Course{{ID: "a"}}}
	svc := NewCourseService(lister, countReaderStub{err: errors.New("redis down")}, nil)

	out, err := svc.List(context.Background(), "을지대학교", dto.CourseQuery{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Zero(t, out[0].EnrolledCount)
}

func TestCourseServiceRequiresUniversity(t *testing.T) {
	svc := NewCourseService(&courseListerStub{}, nil, nil)
	_, err := svc.List(context.Background(), " ", dto.CourseQuery{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceRepositoryError(t *testing.T) {
	svc := NewCourseService(&courseListerStub{err: errors.New("db")}, nil, nil)
	_, err := svc.List(context.Background(), "을지대학교", dto.CourseQuery{})
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}
