package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-timetable-api/internal/catalog"
	"github.com/noah-isme/campus-timetable-api/internal/dto"
	"github.com/noah-isme/campus-timetable-api/internal/models"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
)

type ingestionRunnerMock struct {
	request    dto.IngestionRequest
	document   dto.DocumentIngestionRequest
	pdf        []byte
	saved      *catalog.Catalog
	ingestErr  error
	previewed  bool
	jobs       map[string]*models.IngestionJob
	enqueueErr error
}

func (m *ingestionRunnerMock) Ingest(ctx context.Context, req dto.IngestionRequest) (*dto.IngestionResponse, error) {
	m.request = req
	if m.ingestErr != nil {
		return nil, m.ingestErr
	}
	return &dto.IngestionResponse{Catalog: &catalog.Catalog{University: "을지대학교"}, InsertedCount: 3, UpdatedCount: 1}, nil
}

func (m *ingestionRunnerMock) Preview(ctx context.Context, req dto.IngestionRequest) (*dto.PreviewResponse, error) {
	m.request = req
	m.previewed = true
	return &dto.PreviewResponse{Catalog: &catalog.Catalog{University: "을지대학교"}}, nil
}

func (m *ingestionRunnerMock) IngestDocument(ctx context.Context, req dto.DocumentIngestionRequest, pdf []byte) (*dto.IngestionResponse, error) {
	m.document = req
	m.pdf = pdf
	return &dto.IngestionResponse{Catalog: &catalog.Catalog{University: "백석대학교"}, InsertedCount: 1}, nil
}

func (m *ingestionRunnerMock) PreviewDocument(ctx context.Context, req dto.DocumentIngestionRequest, pdf []byte) (*dto.PreviewResponse, error) {
	m.document = req
	m.pdf = pdf
	m.previewed = true
	return &dto.PreviewResponse{Catalog: &catalog.Catalog{University: "백석대학교"}}, nil
}

func (m *ingestionRunnerMock) Save(ctx context.Context, result *catalog.Catalog) (*models.IngestionCounts, error) {
	m.saved = result
	return &models.IngestionCounts{InsertedCount: len(result.Lectures), TotalCount: len(result.Lectures)}, nil
}

func (m *ingestionRunnerMock) EnqueueJob(req dto.IngestionRequest) (*models.IngestionJob, error) {
	if m.enqueueErr != nil {
		return nil, m.enqueueErr
	}
	job := &models.IngestionJob{ID: "job-1", InstitutionID: req.InstitutionID, Status: models.IngestionJobQueued}
	if m.jobs == nil {
		m.jobs = map[string]*models.IngestionJob{}
	}
	m.jobs[job.ID] = job
	return job, nil
}

func (m *ingestionRunnerMock) Job(id string) (*models.IngestionJob, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "ingestion job not found")
	}
	return job, nil
}

func newIngestionRouter(mock *ingestionRunnerMock, limit int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewIngestionHandler(mock, limit)
	router := gin.New()
	router.POST("/ingestions", h.Trigger)
	router.POST("/ingestions/preview", h.Preview)
	router.POST("/ingestions/document", h.TriggerDocument)
	router.POST("/ingestions/preview/document", h.PreviewDocument)
	router.POST("/ingestions/save", h.Save)
	router.POST("/ingestions/jobs", h.EnqueueJob)
	router.GET("/ingestions/jobs/:id", h.Job)
	return router
}

func documentBody(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("institutionId", " baekseok-major "))
	require.NoError(t, writer.WriteField("year", strconv.Itoa(2025)))
	require.NoError(t, writer.WriteField("term", "1"))
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestIngestionTriggerNormalisesPayload(t *testing.T) {
	mock := &ingestionRunnerMock{}
	router := newIngestionRouter(mock, 0)

	payload := `{"institutionId":" eulji-general ","year":2025,"term":"1","sourceUrl":"https://example.edu/list","mode":" Markup "}`
	req := httptest.NewRequest(http.MethodPost, "/ingestions", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "eulji-general", mock.request.InstitutionID)
	assert.Equal(t, dto.IngestionModeMarkup, mock.request.Mode)

	var body struct {
		Data dto.IngestionResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Data.InsertedCount)
	assert.Equal(t, 1, body.Data.UpdatedCount)
}

func TestIngestionTriggerRejectsMalformedJSON(t *testing.T) {
	router := newIngestionRouter(&ingestionRunnerMock{}, 0)

	req := httptest.NewRequest(http.MethodPost, "/ingestions", bytes.NewBufferString(`{"institutionId":`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), appErrors.ErrValidation.Code)
}

func TestIngestionTriggerPropagatesServiceError(t *testing.T) {
	mock := &ingestionRunnerMock{ingestErr: appErrors.Clone(appErrors.ErrAdapterNotFound, "no adapter registered for unknown")}
	router := newIngestionRouter(mock, 0)

	payload := `{"institutionId":"unknown","year":2025,"term":"1","sourceUrl":"https://example.edu","mode":"markup"}`
	req := httptest.NewRequest(http.MethodPost, "/ingestions", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "ADAPTER_NOT_FOUND")
}

func TestIngestionPreviewDoesNotSave(t *testing.T) {
	mock := &ingestionRunnerMock{}
	router := newIngestionRouter(mock, 0)

	payload := `{"institutionId":"gachon-general","year":2025,"term":"2","sourceUrl":"https://example.edu","mode":"interactive"}`
	req := httptest.NewRequest(http.MethodPost, "/ingestions/preview", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mock.previewed)
	assert.Nil(t, mock.saved)
}

func TestIngestionDocumentUpload(t *testing.T) {
	mock := &ingestionRunnerMock{}
	router := newIngestionRouter(mock, 0)

	body, contentType := documentBody(t, "timetable.PDF", []byte("%PDF-1.7 fake"))
	req := httptest.NewRequest(http.MethodPost, "/ingestions/document", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "baekseok-major", mock.document.InstitutionID)
	assert.Equal(t, 2025, mock.document.Year)
	assert.Equal(t, "1", mock.document.Term)
	assert.Equal(t, []byte("%PDF-1.7 fake"), mock.pdf)
}

func TestIngestionDocumentRejectsNonPDF(t *testing.T) {
	mock := &ingestionRunnerMock{}
	router := newIngestionRouter(mock, 0)

	body, contentType := documentBody(t, "timetable.xlsx", []byte("PK"))
	req := httptest.NewRequest(http.MethodPost, "/ingestions/preview/document", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, mock.previewed)
}

func TestIngestionDocumentRejectsOversizedUpload(t *testing.T) {
	mock := &ingestionRunnerMock{}
	router := newIngestionRouter(mock, 64)

	body, contentType := documentBody(t, "timetable.pdf", bytes.Repeat([]byte("x"), 512))
	req := httptest.NewRequest(http.MethodPost, "/ingestions/document", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Contains(t, w.Body.String(), "PAYLOAD_TOO_LARGE")
	assert.Nil(t, mock.pdf)
}

func TestIngestionSaveBindsCatalog(t *testing.T) {
	mock := &ingestionRunnerMock{}
	router := newIngestionRouter(mock, 0)

	payload := `{"university":"을지대학교","year":2025,"semester":"1","lectures":[{"courseCode":"A1","courseName":"간호학개론","credits":3}]}`
	req := httptest.NewRequest(http.MethodPost, "/ingestions/save", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mock.saved)
	require.Len(t, mock.saved.Lectures, 1)
	assert.Equal(t, "A1", mock.saved.Lectures[0].CourseCode)
}

func TestIngestionJobLifecycle(t *testing.T) {
	mock := &ingestionRunnerMock{}
	router := newIngestionRouter(mock, 0)

	payload := `{"institutionId":"eulji-general","year":2025,"term":"1","sourceUrl":"https://example.edu","mode":"markup"}`
	req := httptest.NewRequest(http.MethodPost, "/ingestions/jobs", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	var accepted struct {
		Data dto.JobAcceptedResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))
	assert.Equal(t, "job-1", accepted.Data.JobID)
	assert.Equal(t, models.IngestionJobQueued, accepted.Data.Status)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ingestions/jobs/job-1", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ingestions/jobs/missing", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestIngestionEnqueueQueueFull(t *testing.T) {
	mock := &ingestionRunnerMock{enqueueErr: appErrors.Clone(appErrors.ErrConflict, "ingestion queue is full")}
	router := newIngestionRouter(mock, 0)

	payload := `{"institutionId":"eulji-general","year":2025,"term":"1","sourceUrl":"https://example.edu","mode":"markup"}`
	req := httptest.NewRequest(http.MethodPost, "/ingestions/jobs", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusConflict, w.Code)
}
