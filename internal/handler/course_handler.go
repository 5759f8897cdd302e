package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-timetable-api/internal/dto"
	"github.com/noah-isme/campus-timetable-api/internal/models"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
	"github.com/noah-isme/campus-timetable-api/pkg/response"
)

type courseCatalog interface {
	List(ctx context.Context, university string, query dto.CourseQuery) ([]models.CourseListing, error)
}

// CourseHandler exposes the course listing.
type CourseHandler struct {
	service courseCatalog
}

// NewCourseHandler constructs the handler.
func NewCourseHandler(svc courseCatalog) *CourseHandler {
	return &CourseHandler{service: svc}
}

// List godoc
// @Summary List courses of the caller's university
// @Description Each course carries the number of students holding it in a timetable.
// @Tags Courses
// @Produce json
// @Param year query int false "Academic year"
// @Param semester query string false "Semester"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var query dto.CourseQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid course query"))
		return
	}
	courses, err := h.service.List(c.Request.Context(), claims.University, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, map[string]interface{}{"count": len(courses)})
}
