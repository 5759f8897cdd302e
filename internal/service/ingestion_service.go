package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/adapter"
	"github.com/noah-isme/campus-timetable-api/internal/adapter/document"
	"github.com/noah-isme/campus-timetable-api/internal/catalog"
	"github.com/noah-isme/campus-timetable-api/internal/dto"
	"github.com/noah-isme/campus-timetable-api/internal/models"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
	"github.com/noah-isme/campus-timetable-api/pkg/jobs"
)

type adapterResolver interface {
	Markup(institution string) (adapter.MarkupParser, adapter.Fetcher, error)
	Interactive(institution string) (adapter.InteractiveSession, error)
}

type documentExtractor interface {
	Extract(ctx context.Context, institution string, pdf []byte, year int, term string) (*catalog.Catalog, error)
}

type courseUpserter interface {
	Upsert(ctx context.Context, course *models.Course) (models.UpsertOutcome, error)
}

type snapshotStore interface {
	Put(institution, ext string, data []byte) (string, error)
	Read(name string) ([]byte, error)
}

type ingestionObserver interface {
	ObserveIngestion(institution, mode, outcome string, duration time.Duration)
	ObserveUpsert(institution string, inserted, updated int)
	JobStarted()
	JobFinished()
}

// IngestionConfig bounds each adapter call and configures the asynchronous job queue.
type IngestionConfig struct {
	StaticTimeout      time.Duration
	InteractiveTimeout time.Duration
	DocumentTimeout    time.Duration
	JobWorkers         int
	JobBuffer          int
	JobRetries         int
	JobTTL             time.Duration
	// MaxPeriod bounds periods accepted by Save. Zero means catalog.DefaultMaxPeriod.
	MaxPeriod int
}

// IngestionService runs source adapters and upserts their catalogs.
type IngestionService struct {
	registry  adapterResolver
	sessions  adapter.SessionFactory
	documents documentExtractor
	courses   courseUpserter
	snapshots snapshotStore
	metrics   ingestionObserver
	validator *validator.Validate
	logger    *zap.Logger
	cfg       IngestionConfig

	queue *jobs.Queue[dto.IngestionRequest]
	store *jobStore
}

// NewIngestionService wires ingestion dependencies. snapshots and metrics may be nil.
func NewIngestionService(
	registry adapterResolver,
	sessions adapter.SessionFactory,
	documents documentExtractor,
	courses courseUpserter,
	snapshots snapshotStore,
	metrics ingestionObserver,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg IngestionConfig,
) *IngestionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.StaticTimeout <= 0 {
		cfg.StaticTimeout = 60 * time.Second
	}
	if cfg.InteractiveTimeout <= 0 {
		cfg.InteractiveTimeout = 15 * time.Minute
	}
	if cfg.DocumentTimeout <= 0 {
		cfg.DocumentTimeout = 5 * time.Minute
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 24 * time.Hour
	}
	s := &IngestionService{
		registry:  registry,
		sessions:  sessions,
		documents: documents,
		courses:   courses,
		snapshots: snapshots,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		store:     newJobStore(cfg.JobTTL),
	}
	s.queue = jobs.NewQueue("ingestion", s.runJob, jobs.QueueConfig{
		Workers:    cfg.JobWorkers,
		BufferSize: cfg.JobBuffer,
		MaxRetries: cfg.JobRetries,
		RetryDelay: 30 * time.Second,
		Logger:     logger,
	})
	s.queue.OnFailure(s.failJob)
	return s
}

// Start launches the job workers.
func (s *IngestionService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop cancels running jobs and waits for the workers.
func (s *IngestionService) Stop() {
	s.queue.Stop()
}

// Ingest scrapes the institution and saves the result.
func (s *IngestionService) Ingest(ctx context.Context, req dto.IngestionRequest) (*dto.IngestionResponse, error) {
	result, err := s.scrape(ctx, req)
	if err != nil {
		return nil, err
	}
	counts, err := s.Save(ctx, result)
	if err != nil {
		return nil, err
	}
	return &dto.IngestionResponse{Catalog: result, InsertedCount: counts.InsertedCount, UpdatedCount: counts.UpdatedCount, FailedCount: counts.FailedCount}, nil
}

// Preview scrapes the institution and returns the catalog with its data-quality report, saving nothing.
func (s *IngestionService) Preview(ctx context.Context, req dto.IngestionRequest) (*dto.PreviewResponse, error) {
	result, err := s.scrape(ctx, req)
	if err != nil {
		return nil, err
	}
	return &dto.PreviewResponse{Catalog: result, Report: catalog.Validate(result)}, nil
}

// IngestDocument extracts a catalog from an uploaded PDF and saves it.
func (s *IngestionService) IngestDocument(ctx context.Context, req dto.DocumentIngestionRequest, pdf []byte) (*dto.IngestionResponse, error) {
	result, err := s.extract(ctx, req, pdf)
	if err != nil {
		return nil, err
	}
	counts, err := s.Save(ctx, result)
	if err != nil {
		return nil, err
	}
	return &dto.IngestionResponse{Catalog: result, InsertedCount: counts.InsertedCount, UpdatedCount: counts.UpdatedCount, FailedCount: counts.FailedCount}, nil
}

// PreviewDocument extracts a catalog from an uploaded PDF without saving it.
func (s *IngestionService) PreviewDocument(ctx context.Context, req dto.DocumentIngestionRequest, pdf []byte) (*dto.PreviewResponse, error) {
	result, err := s.extract(ctx, req, pdf)
	if err != nil {
		return nil, err
	}
	return &dto.PreviewResponse{Catalog: result, Report: catalog.Validate(result)}, nil
}

// ReparseSnapshot runs a markup parser over a stored HTML snapshot, optionally saving the result.
func (s *IngestionService) ReparseSnapshot(ctx context.Context, institution, name string, year int, term string, save bool) (*dto.IngestionResponse, error) {
	if s.snapshots == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "snapshot archive is disabled")
	}
	parser, _, err := s.registry.Markup(institution)
	if err != nil {
		return nil, s.mapError(institution, err)
	}
	raw, err := s.snapshots.Read(name)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "snapshot not found")
	}
	result, err := parser.Parse(string(raw), year, term)
	if err != nil {
		return nil, s.mapError(institution, adapter.FetchError(institution, adapter.StageParse, err))
	}
	resp := &dto.IngestionResponse{Catalog: result}
	if save {
		counts, err := s.Save(ctx, result)
		if err != nil {
			return nil, err
		}
		resp.InsertedCount, resp.UpdatedCount, resp.FailedCount = counts.InsertedCount, counts.UpdatedCount, counts.FailedCount
	}
	return resp, nil
}

// Save upserts every lecture on its natural key. Lecture campus, department and major fall back to the
// catalog values; course type falls back to the catalog type, then Major.
func (s *IngestionService) Save(ctx context.Context, result *catalog.Catalog) (*models.IngestionCounts, error) {
	if result == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "catalog is required")
	}
	if err := s.validator.Struct(result); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid catalog payload")
	}

	courses := make([]*models.Course, 0, len(result.Lectures))
	for i, lecture := range result.Lectures {
		schedule, err := catalog.NormalizeSlots(lecture.Schedule, s.cfg.MaxPeriod)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status,
				fmt.Sprintf("invalid schedule for lecture %d (%s): %v", i, lecture.CourseName, err))
		}
		lecture.Schedule = schedule
		course := courseFromLecture(result, lecture)
		if course.CourseCode == "" {
			s.logger.Debug("lecture without course code skipped", zap.String("course_name", lecture.CourseName))
			continue
		}
		courses = append(courses, course)
	}

	counts := &models.IngestionCounts{}
	var lastErr error
	for _, course := range courses {
		outcome, err := s.courses.Upsert(ctx, course)
		if err != nil {
			counts.FailedCount++
			lastErr = err
			s.logger.Warn("course upsert failed", zap.String("course_code", course.CourseCode), zap.String("campus", course.Campus), zap.Error(err))
			continue
		}
		if outcome.Inserted {
			counts.InsertedCount++
		} else {
			counts.UpdatedCount++
		}
		counts.TotalCount++
	}
	if counts.TotalCount == 0 && lastErr != nil {
		return nil, appErrors.Wrap(lastErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save courses")
	}

	if s.metrics != nil {
		s.metrics.ObserveUpsert(result.University, counts.InsertedCount, counts.UpdatedCount)
	}
	s.logger.Info("catalog saved",
		zap.String("university", result.University),
		zap.Int("year", result.Year),
		zap.String("semester", result.Semester),
		zap.Int("inserted", counts.InsertedCount),
		zap.Int("updated", counts.UpdatedCount),
		zap.Int("total", counts.TotalCount),
		zap.Int("failed", counts.FailedCount),
	)
	return counts, nil
}

func courseFromLecture(result *catalog.Catalog, lecture catalog.Lecture) *models.Course {
	courseType := lecture.CourseType
	if courseType == "" {
		courseType = result.CourseType
	}
	if courseType == "" {
		courseType = catalog.CourseTypeMajor
	}
	schedule := models.ScheduleJSON(lecture.Schedule)
	if schedule == nil {
		schedule = models.ScheduleJSON{}
	}
	return &models.Course{
		University: result.University,
		Year:       result.Year,
		Semester:   result.Semester,
		CourseCode: strings.TrimSpace(lecture.CourseCode),
		Campus:     fallback(lecture.Campus, result.Campus),
		Group:      lecture.Group,
		CourseName: lecture.CourseName,
		Hours:      lecture.Hours,
		Credits:    lecture.Credits,
		Capacity:   lecture.Capacity,
		Instructor: lecture.Instructor,
		Schedule:   schedule,
		Department: fallback(lecture.Department, result.Department),
		Major:      fallback(lecture.Major, result.Major),
		CourseType: string(courseType),
	}
}

func fallback(value, alt string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return alt
}

func (s *IngestionService) scrape(ctx context.Context, req dto.IngestionRequest) (*catalog.Catalog, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid ingestion payload")
	}

	started := time.Now()
	var (
		result *catalog.Catalog
		err    error
	)
	switch req.Mode {
	case dto.IngestionModeMarkup:
		result, err = s.runMarkup(ctx, req)
	case dto.IngestionModeInteractive:
		result, err = s.runInteractive(ctx, req)
	default:
		err = appErrors.Clone(appErrors.ErrValidation, "unsupported ingestion mode: "+req.Mode)
	}
	s.observe(req.InstitutionID, req.Mode, started, err)
	if err != nil {
		return nil, s.mapError(req.InstitutionID, err)
	}
	return result, nil
}

func (s *IngestionService) runMarkup(ctx context.Context, req dto.IngestionRequest) (*catalog.Catalog, error) {
	parser, fetcher, err := s.registry.Markup(req.InstitutionID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StaticTimeout)
	defer cancel()

	s.logger.Info("markup ingestion started", zap.String("institution", req.InstitutionID), zap.String("url", req.SourceURL))
	html, err := fetcher.Fetch(ctx, req.SourceURL)
	if err != nil {
		return nil, timeoutAware(ctx, req.InstitutionID, adapter.StageFetch, err)
	}
	s.snapshot(req.InstitutionID, "html", []byte(html))

	result, err := parser.Parse(html, req.Year, req.Term)
	if err != nil {
		return nil, adapter.FetchError(req.InstitutionID, adapter.StageParse, err)
	}
	return result, nil
}

func (s *IngestionService) runInteractive(ctx context.Context, req dto.IngestionRequest) (*catalog.Catalog, error) {
	session, err := s.registry.Interactive(req.InstitutionID)
	if err != nil {
		return nil, err
	}
	if s.sessions == nil {
		return nil, adapter.FetchError(req.InstitutionID, adapter.StageSession, errors.New("browser sessions are not configured"))
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.InteractiveTimeout)
	defer cancel()

	page, err := s.sessions.Open(ctx)
	if err != nil {
		return nil, timeoutAware(ctx, req.InstitutionID, adapter.StageSession, err)
	}
	defer func() {
		if closeErr := page.Close(); closeErr != nil {
			s.logger.Warn("failed to release browser session", zap.String("institution", req.InstitutionID), zap.Error(closeErr))
		}
	}()

	s.logger.Info("interactive ingestion started", zap.String("institution", req.InstitutionID), zap.String("url", req.SourceURL))
	result, err := session.Execute(ctx, page, req.SourceURL, req.Year, req.Term)
	if err != nil {
		return nil, timeoutAware(ctx, req.InstitutionID, adapter.StageScrape, err)
	}
	return result, nil
}

func (s *IngestionService) extract(ctx context.Context, req dto.DocumentIngestionRequest, pdf []byte) (*catalog.Catalog, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid document ingestion payload")
	}
	if len(pdf) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "document file is required")
	}
	if s.documents == nil {
		return nil, s.mapError(req.InstitutionID, fmt.Errorf("%w: %s", document.ErrProcessorNotFound, req.InstitutionID))
	}

	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.cfg.DocumentTimeout)
	defer cancel()

	s.snapshot(req.InstitutionID, "pdf", pdf)
	result, err := s.documents.Extract(ctx, req.InstitutionID, pdf, req.Year, req.Term)
	if err != nil {
		err = timeoutAware(ctx, req.InstitutionID, adapter.StageProcess, err)
	}
	s.observe(req.InstitutionID, dto.IngestionModeDocument, started, err)
	if err != nil {
		return nil, s.mapError(req.InstitutionID, err)
	}
	return result, nil
}

func (s *IngestionService) snapshot(institution, ext string, data []byte) {
	if s.snapshots == nil {
		return
	}
	name, err := s.snapshots.Put(institution, ext, data)
	if err != nil {
		s.logger.Warn("failed to archive source snapshot", zap.String("institution", institution), zap.Error(err))
		return
	}
	s.logger.Debug("source snapshot archived", zap.String("institution", institution), zap.String("snapshot", name))
}

func (s *IngestionService) observe(institution, mode string, started time.Time, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	var fetchErr *adapter.SourceFetchError
	switch {
	case err == nil:
	case errors.As(err, &fetchErr):
		outcome = fetchErr.Stage
	case appErrors.StatusOf(err) < http.StatusInternalServerError:
		outcome = "rejected"
	default:
		outcome = "error"
	}
	s.metrics.ObserveIngestion(institution, mode, outcome, time.Since(started))
}

// timeoutAware reports a deadline as the timeout stage, otherwise tags err with stage unless an adapter did.
func timeoutAware(ctx context.Context, institution, stage string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &adapter.SourceFetchError{Institution: institution, Stage: adapter.StageTimeout, Err: err}
	}
	return adapter.FetchError(institution, stage, err)
}

func (s *IngestionService) mapError(institution string, err error) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	var fetchErr *adapter.SourceFetchError
	switch {
	case errors.Is(err, adapter.ErrAdapterNotFound):
		return appErrors.Wrap(err, appErrors.ErrAdapterNotFound.Code, appErrors.ErrAdapterNotFound.Status, "no adapter registered for "+institution)
	case errors.Is(err, document.ErrProcessorNotFound):
		return appErrors.Wrap(err, appErrors.ErrProcessorNotFound.Code, appErrors.ErrProcessorNotFound.Status, "no document processor configured for "+institution)
	case errors.As(err, &fetchErr):
		s.logger.Error("source fetch failed", zap.String("institution", fetchErr.Institution), zap.String("stage", fetchErr.Stage), zap.Error(fetchErr.Err))
		return appErrors.Wrap(err, appErrors.ErrSourceFetch.Code, appErrors.ErrSourceFetch.Status, fmt.Sprintf("source fetch failed for %s at %s", fetchErr.Institution, fetchErr.Stage))
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "ingestion failed")
	}
}

// --- asynchronous jobs ---

// EnqueueJob validates the request and schedules it on the worker queue.
func (s *IngestionService) EnqueueJob(req dto.IngestionRequest) (*models.IngestionJob, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid ingestion payload")
	}
	job := models.IngestionJob{
		ID:            uuid.NewString(),
		InstitutionID: req.InstitutionID,
		Mode:          req.Mode,
		Year:          req.Year,
		Term:          req.Term,
		SourceURL:     req.SourceURL,
		Status:        models.IngestionJobQueued,
		CreatedAt:     time.Now().UTC(),
	}
	s.store.Save(job)

	if err := s.queue.TryEnqueue(jobs.Job[dto.IngestionRequest]{ID: job.ID, Type: req.Mode, Payload: req}); err != nil {
		s.store.Delete(job.ID)
		if errors.Is(err, jobs.ErrQueueFull) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "ingestion queue is full")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue ingestion")
	}
	if s.metrics != nil {
		s.metrics.JobStarted()
	}
	return &job, nil
}

// Job returns the status of an asynchronous ingestion.
func (s *IngestionService) Job(id string) (*models.IngestionJob, error) {
	job, ok := s.store.Get(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "ingestion job not found")
	}
	return &job, nil
}

func (s *IngestionService) runJob(ctx context.Context, job jobs.Job[dto.IngestionRequest]) error {
	s.store.Update(job.ID, func(record *models.IngestionJob) {
		now := time.Now().UTC()
		record.Status = models.IngestionJobRunning
		record.StartedAt = &now
	})

	resp, err := s.Ingest(ctx, job.Payload)
	if err != nil {
		if appErrors.StatusOf(err) < http.StatusInternalServerError {
			s.failJob(job, err)
			return nil
		}
		return err
	}

	s.store.Update(job.ID, func(record *models.IngestionJob) {
		now := time.Now().UTC()
		record.Status = models.IngestionJobSucceeded
		record.FinishedAt = &now
		record.Error = ""
		record.Counts = &models.IngestionCounts{
			InsertedCount: resp.InsertedCount,
			UpdatedCount:  resp.UpdatedCount,
			TotalCount:    resp.InsertedCount + resp.UpdatedCount,
			FailedCount:   resp.FailedCount,
		}
	})
	if s.metrics != nil {
		s.metrics.JobFinished()
	}
	return nil
}

func (s *IngestionService) failJob(job jobs.Job[dto.IngestionRequest], err error) {
	s.store.Update(job.ID, func(record *models.IngestionJob) {
		now := time.Now().UTC()
		record.Status = models.IngestionJobFailed
		record.FinishedAt = &now
		record.Error = appErrors.FromError(err).Message
	})
	if s.metrics != nil {
		s.metrics.JobFinished()
	}
}

type jobStore struct {
	ttl   time.Duration
	mu    sync.RWMutex
	items map[string]models.IngestionJob
}

func newJobStore(ttl time.Duration) *jobStore {
	return &jobStore{ttl: ttl, items: make(map[string]models.IngestionJob)}
}

func (s *jobStore) Save(job models.IngestionJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked(time.Now())
	s.items[job.ID] = job
}

func (s *jobStore) Update(id string, fn func(*models.IngestionJob)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.items[id]
	if !ok {
		return
	}
	fn(&job)
	s.items[id] = job
}

func (s *jobStore) Get(id string) (models.IngestionJob, bool) {
	s.mu.RLock()
	job, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return models.IngestionJob{}, false
	}
	if time.Since(job.CreatedAt) > s.ttl {
		s.Delete(id)
		return models.IngestionJob{}, false
	}
	return job, true
}

func (s *jobStore) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}

func (s *jobStore) evictLocked(now time.Time) {
	for id, job := range s.items {
		if now.Sub(job.CreatedAt) > s.ttl {
			delete(s.items, id)
		}
	}
}
