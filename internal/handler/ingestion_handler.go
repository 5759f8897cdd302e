package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-timetable-api/internal/catalog"
	"github.com/noah-isme/campus-timetable-api/internal/dto"
	"github.com/noah-isme/campus-timetable-api/internal/models"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
	"github.com/noah-isme/campus-timetable-api/pkg/response"
)

const defaultMaxUploadBytes = 20 << 20

type ingestionRunner interface {
	Ingest(ctx context.Context, req dto.IngestionRequest) (*dto.IngestionResponse, error)
	Preview(ctx context.Context, req dto.IngestionRequest) (*dto.PreviewResponse, error)
	IngestDocument(ctx context.Context, req dto.DocumentIngestionRequest, pdf []byte) (*dto.IngestionResponse, error)
	PreviewDocument(ctx context.Context, req dto.DocumentIngestionRequest, pdf []byte) (*dto.PreviewResponse, error)
	Save(ctx context.Context, result *catalog.Catalog) (*models.IngestionCounts, error)
	EnqueueJob(req dto.IngestionRequest) (*models.IngestionJob, error)
	Job(id string) (*models.IngestionJob, error)
}

// IngestionHandler exposes the admin ingestion endpoints.
type IngestionHandler struct {
	service        ingestionRunner
	maxUploadBytes int64
}

// NewIngestionHandler constructs the handler. maxUploadBytes caps document uploads.
func NewIngestionHandler(svc ingestionRunner, maxUploadBytes int64) *IngestionHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &IngestionHandler{service: svc, maxUploadBytes: maxUploadBytes}
}

// Trigger godoc
// @Summary Scrape an institution and save its catalog
// @Tags Ingestion
// @Accept json
// @Produce json
// @Param payload body dto.IngestionRequest true "Ingestion payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /ingestions [post]
func (h *IngestionHandler) Trigger(c *gin.Context) {
	req, ok := bindIngestion(c)
	if !ok {
		return
	}
	result, err := h.service.Ingest(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Preview godoc
// @Summary Scrape an institution without saving
// @Description Returns the catalog with its data-quality report.
// @Tags Ingestion
// @Accept json
// @Produce json
// @Param payload body dto.IngestionRequest true "Ingestion payload"
// @Success 200 {object} response.Envelope
// @Router /ingestions/preview [post]
func (h *IngestionHandler) Preview(c *gin.Context) {
	req, ok := bindIngestion(c)
	if !ok {
		return
	}
	result, err := h.service.Preview(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// TriggerDocument godoc
// @Summary Extract a catalog from an uploaded PDF and save it
// @Tags Ingestion
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Timetable PDF"
// @Param institutionId formData string true "Institution identifier"
// @Param year formData int true "Academic year"
// @Param term formData string true "Term"
// @Success 200 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Router /ingestions/document [post]
func (h *IngestionHandler) TriggerDocument(c *gin.Context) {
	req, pdf, ok := h.bindDocument(c)
	if !ok {
		return
	}
	result, err := h.service.IngestDocument(c.Request.Context(), req, pdf)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// PreviewDocument godoc
// @Summary Extract a catalog from an uploaded PDF without saving
// @Tags Ingestion
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Timetable PDF"
// @Param institutionId formData string true "Institution identifier"
// @Param year formData int true "Academic year"
// @Param term formData string true "Term"
// @Success 200 {object} response.Envelope
// @Router /ingestions/preview/document [post]
func (h *IngestionHandler) PreviewDocument(c *gin.Context) {
	req, pdf, ok := h.bindDocument(c)
	if !ok {
		return
	}
	result, err := h.service.PreviewDocument(c.Request.Context(), req, pdf)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Save godoc
// @Summary Save a reviewed catalog
// @Description Upserts a catalog, typically one returned by a preview and corrected by hand.
// @Tags Ingestion
// @Accept json
// @Produce json
// @Param payload body catalog.Catalog true "Catalog"
// @Success 200 {object} response.Envelope
// @Router /ingestions/save [post]
func (h *IngestionHandler) Save(c *gin.Context) {
	var payload catalog.Catalog
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid catalog payload"))
		return
	}
	counts, err := h.service.Save(c.Request.Context(), &payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, counts)
}

// EnqueueJob godoc
// @Summary Schedule an ingestion in the background
// @Tags Ingestion
// @Accept json
// @Produce json
// @Param payload body dto.IngestionRequest true "Ingestion payload"
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /ingestions/jobs [post]
func (h *IngestionHandler) EnqueueJob(c *gin.Context) {
	req, ok := bindIngestion(c)
	if !ok {
		return
	}
	job, err := h.service.EnqueueJob(req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, dto.JobAcceptedResponse{JobID: job.ID, Status: job.Status})
}

// Job godoc
// @Summary Get background ingestion status
// @Tags Ingestion
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /ingestions/jobs/{id} [get]
func (h *IngestionHandler) Job(c *gin.Context) {
	job, err := h.service.Job(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job)
}

func bindIngestion(c *gin.Context) (dto.IngestionRequest, bool) {
	var req dto.IngestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid ingestion payload"))
		return req, false
	}
	req.InstitutionID = strings.TrimSpace(req.InstitutionID)
	req.Mode = strings.ToLower(strings.TrimSpace(req.Mode))
	return req, true
}

func (h *IngestionHandler) bindDocument(c *gin.Context) (dto.DocumentIngestionRequest, []byte, bool) {
	var req dto.DocumentIngestionRequest
	if c.Request.ContentLength > h.maxUploadBytes {
		response.Error(c, appErrors.Clone(appErrors.ErrPayloadTooLarge, "document exceeds upload limit"))
		return req, nil, false
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)

	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, uploadError(err, "invalid document ingestion payload"))
		return req, nil, false
	}
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, uploadError(err, "document file is required"))
		return req, nil, false
	}
	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "document must be a PDF"))
		return req, nil, false
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read document"))
		return req, nil, false
	}
	defer file.Close()

	pdf, err := io.ReadAll(file)
	if err != nil {
		response.Error(c, uploadError(err, "failed to read document"))
		return req, nil, false
	}
	req.InstitutionID = strings.TrimSpace(req.InstitutionID)
	return req, pdf, true
}

func uploadError(err error, message string) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return appErrors.Wrap(err, appErrors.ErrPayloadTooLarge.Code, appErrors.ErrPayloadTooLarge.Status, "document exceeds upload limit")
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message)
}
