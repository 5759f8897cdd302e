package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-timetable-api/internal/dto"
	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/internal/service"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
	"github.com/noah-isme/campus-timetable-api/pkg/response"
)

type timetableManager interface {
	List(ctx context.Context, studentID string, query dto.TimetableQuery) ([]models.Timetable, error)
	Create(ctx context.Context, studentID string, req dto.CreateTimetableRequest) (*models.Timetable, error)
	Delete(ctx context.Context, studentID, id string) error
	SetPrimary(ctx context.Context, studentID, id string) (*models.Timetable, error)
	AddEntry(ctx context.Context, studentID, timetableID string, req dto.AddEntryRequest) (*models.TimetableEntry, error)
	AddCustomEntry(ctx context.Context, studentID, timetableID string, req dto.AddCustomEntryRequest) (*models.TimetableEntry, error)
	DeleteEntry(ctx context.Context, studentID, entryID string) error
}

type timetableGenerator interface {
	Generate(ctx context.Context, studentID, university string, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error)
}

type timetableExporter interface {
	Export(ctx context.Context, studentID, timetableID, format string) (*service.ExportResult, error)
}

// TimetableHandler exposes student timetable endpoints.
type TimetableHandler struct {
	timetables timetableManager
	generator  timetableGenerator
	exporter   timetableExporter
}

// NewTimetableHandler constructs the handler.
func NewTimetableHandler(timetables timetableManager, generator timetableGenerator, exporter timetableExporter) *TimetableHandler {
	return &TimetableHandler{timetables: timetables, generator: generator, exporter: exporter}
}

// List godoc
// @Summary List the caller's timetables
// @Tags Timetables
// @Produce json
// @Param year query int false "Academic year"
// @Param semester query string false "Semester"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /timetables [get]
func (h *TimetableHandler) List(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var query dto.TimetableQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid timetable query"))
		return
	}
	items, err := h.timetables.List(c.Request.Context(), claims.UserID, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items)
}

// Create godoc
// @Summary Create an empty timetable
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body dto.CreateTimetableRequest true "Timetable payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /timetables [post]
func (h *TimetableHandler) Create(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.CreateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid timetable payload"))
		return
	}
	timetable, err := h.timetables.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, timetable)
}

// Delete godoc
// @Summary Delete a timetable with its entries
// @Tags Timetables
// @Param id path string true "Timetable ID"
// @Success 204
// @Security BearerAuth
// @Router /timetables/{id} [delete]
func (h *TimetableHandler) Delete(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	if err := h.timetables.Delete(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// SetPrimary godoc
// @Summary Mark a timetable primary for its term
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /timetables/{id}/primary [put]
func (h *TimetableHandler) SetPrimary(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	timetable, err := h.timetables.SetPrimary(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, timetable)
}

// AddEntry godoc
// @Summary Add a catalog course to a timetable
// @Tags Timetables
// @Accept json
// @Produce json
// @Param id path string true "Timetable ID"
// @Param payload body dto.AddEntryRequest true "Entry payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /timetables/{id}/entries [post]
func (h *TimetableHandler) AddEntry(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.AddEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid entry payload"))
		return
	}
	entry, err := h.timetables.AddEntry(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// AddCustomEntry godoc
// @Summary Add a free-form block to a timetable
// @Tags Timetables
// @Accept json
// @Produce json
// @Param id path string true "Timetable ID"
// @Param payload body dto.AddCustomEntryRequest true "Custom entry payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /timetables/{id}/custom-entries [post]
func (h *TimetableHandler) AddCustomEntry(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.AddCustomEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid custom entry payload"))
		return
	}
	entry, err := h.timetables.AddCustomEntry(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// DeleteEntry godoc
// @Summary Remove an entry from a timetable
// @Tags Timetables
// @Param entryId path string true "Entry ID"
// @Success 204
// @Security BearerAuth
// @Router /timetables/entries/{entryId} [delete]
func (h *TimetableHandler) DeleteEntry(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	if err := h.timetables.DeleteEntry(c.Request.Context(), claims.UserID, c.Param("entryId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Generate godoc
// @Summary Propose course combinations around a timetable's fixed entries
// @Description Returns at most two combinations per credit total, ascending by credits. An empty list carries a message.
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body dto.GenerateTimetableRequest true "Generation constraints"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /timetables/generate [post]
func (h *TimetableHandler) Generate(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.GenerateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
		return
	}
	result, err := h.generator.Generate(c.Request.Context(), claims.UserID, claims.University, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Export godoc
// @Summary Download a timetable
// @Tags Timetables
// @Produce octet-stream
// @Param id path string true "Timetable ID"
// @Param format query string true "csv, pdf, ics or xlsx"
// @Success 200 {file} file
// @Security BearerAuth
// @Router /timetables/{id}/export [get]
func (h *TimetableHandler) Export(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	result, err := h.exporter.Export(c.Request.Context(), claims.UserID, c.Param("id"), c.DefaultQuery("format", service.ExportFormatCSV))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.Filename, result.ContentType, result.Data)
}
