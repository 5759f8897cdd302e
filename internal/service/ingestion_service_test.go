package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/campus-timetable-api/internal/adapter"
	"github.com/noah-isme/campus-timetable-api/internal/adapter/document"
	"github.com/noah-isme/campus-timetable-api/internal/catalog"
	"github.com/noah-isme/campus-timetable-api/internal/dto"
	"github.com/noah-isme/campus-timetable-api/internal/models"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
)

type parserStub struct {
	result *catalog.Catalog
	err    error
	html   string
}

func (p *parserStub) Parse(html string, year int, term string) (*catalog.Catalog, error) {
	p.html = html
	if p.err != nil {
		return nil, p.err
	}
	out := *p.result
	out.Year, out.Semester = year, term
	return &out, nil
}

// countingParser returns result and counts calls across worker goroutines.
type countingParser struct {
	result *catalog.Catalog
	calls  atomic.Int32
}

func (p *countingParser) Parse(html string, year int, term string) (*catalog.Catalog, error) {
	p.calls.Add(1)
	out := *p.result
	out.Year, out.Semester = year, term
	return &out, nil
}

type fetcherStub struct {
	html string
	err  error
}

func (f fetcherStub) Fetch(ctx context.Context, url string) (string, error) {
	return f.html, f.err
}

type interactiveStub struct {
	execute func(ctx context.Context, page adapter.Page) (*catalog.Catalog, error)
}

func (s interactiveStub) Execute(ctx context.Context, page adapter.Page, entryURL string, year int, term string) (*catalog.Catalog, error) {
	return s.execute(ctx, page)
}

type registryStub struct {
	parser      adapter.MarkupParser
	fetcher     adapter.Fetcher
	interactive adapter.InteractiveSession
}

func (r registryStub) Markup(institution string) (adapter.MarkupParser, adapter.Fetcher, error) {
	if r.parser == nil || institution != "eulji-general" {
		return nil, nil, fmt.Errorf("markup %q: %w", institution, adapter.ErrAdapterNotFound)
	}
	return r.parser, r.fetcher, nil
}

func (r registryStub) Interactive(institution string) (adapter.InteractiveSession, error) {
	if r.interactive == nil || institution != "gachon-general" {
		return nil, fmt.Errorf("interactive %q: %w", institution, adapter.ErrAdapterNotFound)
	}
	return r.interactive, nil
}

type pageStub struct {
	closed   bool
	closeErr error
}

func (p *pageStub) Navigate(ctx context.Context, url string) error { return nil }
func (p *pageStub) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	return nil
}
func (p *pageStub) Click(ctx context.Context, selector string) (bool, error) { return true, nil }
func (p *pageStub) ComboOptions(ctx context.Context, buttonSelector string) ([]string, error) {
	return nil, nil
}
func (p *pageStub) ComboSelect(ctx context.Context, buttonSelector, option string) error { return nil }
func (p *pageStub) HTML(ctx context.Context, selector string) (string, error)           { return "", nil }
func (p *pageStub) Focus(ctx context.Context, selector string) error                     { return nil }
func (p *pageStub) ScrollDown(ctx context.Context) error                                 { return nil }
func (p *pageStub) Close() error {
	p.closed = true
	return p.closeErr
}

type sessionsStub struct {
	page *pageStub
	err  error
}

func (s sessionsStub) Open(ctx context.Context) (adapter.Page, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.page, nil
}

type extractorStub struct {
	result *catalog.Catalog
	err    error
}

func (e extractorStub) Extract(ctx context.Context, institution string, pdf []byte, year int, term string) (*catalog.Catalog, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.result, nil
}

// upsertStub emulates the natural-key unique index.
type upsertStub struct {
	mu    sync.Mutex
	rows  map[string]models.Course
	calls int
	err   error
	// failCodes fails only the listed course codes.
	failCodes map[string]bool
}

func newUpsertStub() *upsertStub {
	return &upsertStub{rows: make(map[string]models.Course)}
}

func (u *upsertStub) Upsert(ctx context.Context, course *models.Course) (models.UpsertOutcome, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	if u.err != nil {
		return models.UpsertOutcome{}, u.err
	}
	if u.failCodes[course.CourseCode] {
		return models.UpsertOutcome{}, errors.New("deadlock detected")
	}
	key := fmt.Sprintf("%s|%d|%s|%s|%s", course.University, course.Year, course.Semester, course.CourseCode, course.Campus)
	existing, ok := u.rows[key]
	if ok {
		course.ID = existing.ID
	} else {
		course.ID = fmt.Sprintf("c%d", len(u.rows)+1)
	}
	u.rows[key] = *course
	return models.UpsertOutcome{ID: course.ID, Inserted: !ok}, nil
}

type snapshotStub struct {
	puts  map[string][]byte
	files map[string][]byte
}

func (s *snapshotStub) Put(institution, ext string, data []byte) (string, error) {
	name := institution + "/snap." + ext
	s.puts[name] = data
	return name, nil
}

func (s *snapshotStub) Read(name string) ([]byte, error) {
	data, ok := s.files[name]
	if !ok {
		return nil, errors.New("missing")
	}
	return data, nil
}

func euljiCatalog() *catalog.Catalog {
	return &catalog.Catalog{
		University: "을지대학교",
		Campus:     "성남",
		Department: "교양학부",
		Major:      "N/A",
		CourseType: catalog.CourseTypeGeneral,
		Year:       2025,
		Semester:   "1",
		Lectures: []catalog.Lecture{
			{CourseCode: "GE100", CourseName: "글쓰기", Credits: 3, Instructor: "김교수",
				Schedule: []catalog.ScheduleSlot{{Day: catalog.DayMon, Periods: []int{1, 2, 3}, Location: "공401"}}},
			{CourseCode: "GE200", CourseName: "체육", Credits: 1, Instructor: "박교수", Campus: "대전", CourseType: catalog.CourseTypeMajor},
		},
	}
}

func newIngestionFixture(registry registryStub, sessions adapter.SessionFactory, docs documentExtractor, logger *zap.Logger, cfg IngestionConfig) (*IngestionService, *upsertStub, *snapshotStub) {
	upserts := newUpsertStub()
	snaps := &snapshotStub{puts: map[string][]byte{}, files: map[string][]byte{}}
	svc := NewIngestionService(registry, sessions, docs, upserts, snaps, NewMetricsService(), nil, logger, cfg)
	return svc, upserts, snaps
}

func markupRequest() dto.IngestionRequest {
	return dto.IngestionRequest{InstitutionID: "eulji-general", Year: 2025, Term: "1", SourceURL: "https://www.eulji.ac.kr/timetable", Mode: dto.IngestionModeMarkup}
}

func TestIngestMarkupSavesWithFallbacks(t *testing.T) {
	parser := &parserStub{result: euljiCatalog()}
	svc, upserts, snaps := newIngestionFixture(registryStub{parser: parser, fetcher: fetcherStub{html: "<table/>"}}, nil, nil, nil, IngestionConfig{})

	resp, err := svc.Ingest(context.Background(), markupRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, resp.InsertedCount)
	assert.Zero(t, resp.UpdatedCount)
	assert.Equal(t, "<table/>", parser.html)
	assert.Contains(t, snaps.puts, "eulji-general/snap.html")

	first := upserts.rows["을지대학교|2025|1|GE100|성남"]
	assert.Equal(t, "교양학부", first.Department)
	assert.Equal(t, "N/A", first.Major)
	assert.Equal(t, string(catalog.CourseTypeGeneral), first.CourseType)
	assert.Equal(t, "공401", first.Slots()[0].Location)

	second := upserts.rows["을지대학교|2025|1|GE200|대전"]
	assert.Equal(t, string(catalog.CourseTypeMajor), second.CourseType)
}

func TestSaveIsIdempotentAndUpdatesInPlace(t *testing.T) {
	svc, upserts, _ := newIngestionFixture(registryStub{}, nil, nil, nil, IngestionConfig{})

	batch := euljiCatalog()
	counts, err := svc.Save(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, models.IngestionCounts{InsertedCount: 2, UpdatedCount: 0, TotalCount: 2}, *counts)

	batch.Lectures[0].Instructor = "이교수"
	counts, err = svc.Save(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, models.IngestionCounts{InsertedCount: 0, UpdatedCount: 2, TotalCount: 2}, *counts)

	assert.Len(t, upserts.rows, 2)
	row := upserts.rows["을지대학교|2025|1|GE100|성남"]
	assert.Equal(t, "이교수", row.Instructor)
	assert.Equal(t, "c1", row.ID)
}

func TestSaveRejectsInvalidCatalog(t *testing.T) {
	svc, upserts, _ := newIngestionFixture(registryStub{}, nil, nil, nil, IngestionConfig{})

	_, err := svc.Save(context.Background(), &catalog.Catalog{Year: 2025, Semester: "1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Zero(t, upserts.calls)
}

func TestSaveNormalizesAndRejectsSlots(t *testing.T) {
	svc, upserts, _ := newIngestionFixture(registryStub{}, nil, nil, nil, IngestionConfig{})

	batch := euljiCatalog()
	batch.Lectures[0].Schedule = []catalog.ScheduleSlot{{Day: catalog.DayTue, Periods: []int{3, -1, 3, 2}, Location: "공401"}}
	_, err := svc.Save(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, []catalog.ScheduleSlot{{Day: catalog.DayTue, Periods: []int{2, 3}, Location: "공401"}},
		upserts.rows["을지대학교|2025|1|GE100|성남"].Slots())

	calls := upserts.calls
	for _, schedule := range [][]catalog.ScheduleSlot{
		{{Day: "Funday", Periods: []int{3}}},
		{{Day: catalog.DayMon, Periods: []int{}}},
		{{Day: catalog.DayWed, Periods: []int{0, -4}}},
	} {
		bad := euljiCatalog()
		bad.Lectures[1].Schedule = schedule
		_, err := svc.Save(context.Background(), bad)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	}
	assert.Equal(t, calls, upserts.calls)
}

func TestSaveContinuesPastFailedRows(t *testing.T) {
	svc, upserts, _ := newIngestionFixture(registryStub{}, nil, nil, nil, IngestionConfig{})
	upserts.failCodes = map[string]bool{"GE100": true}

	counts, err := svc.Save(context.Background(), euljiCatalog())
	require.NoError(t, err)
	assert.Equal(t, models.IngestionCounts{InsertedCount: 1, TotalCount: 1, FailedCount: 1}, *counts)
	assert.Contains(t, upserts.rows, "을지대학교|2025|1|GE200|대전")

	upserts.failCodes["GE200"] = true
	_, err = svc.Save(context.Background(), euljiCatalog())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestIngestionJobClientErrorsAreNotRetried(t *testing.T) {
	bad := euljiCatalog()
	bad.Lectures[0].Schedule = []catalog.ScheduleSlot{{Day: "Funday", Periods: []int{1}}}
	parser := &countingParser{result: bad}
	svc, _, _ := newIngestionFixture(registryStub{parser: parser, fetcher: fetcherStub{html: "x"}}, nil, nil, nil,
		IngestionConfig{JobWorkers: 1, JobBuffer: 4, JobRetries: 3})
	svc.Start(context.Background())
	defer svc.Stop()

	job, err := svc.EnqueueJob(markupRequest())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		current, err := svc.Job(job.ID)
		return err == nil && current.Status == models.IngestionJobFailed
	}, 2*time.Second, 5*time.Millisecond)

	current, err := svc.Job(job.ID)
	require.NoError(t, err)
	assert.Contains(t, current.Error, "unknown day")
	assert.Equal(t, int32(1), parser.calls.Load())
}

func TestIngestUnknownAdapter(t *testing.T) {
	svc, _, _ := newIngestionFixture(registryStub{}, nil, nil, nil, IngestionConfig{})

	req := markupRequest()
	req.InstitutionID = "nowhere"
	_, err := svc.Ingest(context.Background(), req)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrAdapterNotFound.Code, appErr.Code)
	assert.Equal(t, 404, appErr.Status)
	assert.ErrorIs(t, err, adapter.ErrAdapterNotFound)
}

func TestIngestFetchFailureIsSourceFetch(t *testing.T) {
	svc, _, _ := newIngestionFixture(registryStub{parser: &parserStub{result: euljiCatalog()}, fetcher: fetcherStub{err: errors.New("503")}}, nil, nil, nil, IngestionConfig{})

	_, err := svc.Ingest(context.Background(), markupRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSourceFetch.Code, appErrors.FromError(err).Code)
	assert.Contains(t, appErrors.FromError(err).Message, "eulji-general at fetch")

	var fetchErr *adapter.SourceFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, adapter.StageFetch, fetchErr.Stage)
}

func TestPreviewReturnsReportWithoutSaving(t *testing.T) {
	svc, upserts, _ := newIngestionFixture(registryStub{parser: &parserStub{result: euljiCatalog()}, fetcher: fetcherStub{html: "x"}}, nil, nil, nil, IngestionConfig{})

	resp, err := svc.Preview(context.Background(), markupRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Report.TotalLectures)
	assert.Len(t, resp.Catalog.Lectures, 2)
	assert.Zero(t, upserts.calls)
}

func TestIngestInteractiveTimeoutReleasesSession(t *testing.T) {
	page := &pageStub{}
	session := interactiveStub{execute: func(ctx context.Context, page adapter.Page) (*catalog.Catalog, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	svc, _, _ := newIngestionFixture(registryStub{interactive: session}, sessionsStub{page: page}, nil, nil, IngestionConfig{InteractiveTimeout: 20 * time.Millisecond})

	_, err := svc.Ingest(context.Background(), dto.IngestionRequest{
		InstitutionID: "gachon-general", Year: 2025, Term: "1", SourceURL: "https://sg.gachon.ac.kr/main", Mode: dto.IngestionModeInteractive,
	})
	require.Error(t, err)
	var fetchErr *adapter.SourceFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, adapter.StageTimeout, fetchErr.Stage)
	assert.Equal(t, appErrors.ErrSourceFetch.Code, appErrors.FromError(err).Code)
	assert.True(t, page.closed)
}

func TestIngestInteractiveReleaseErrorIsLoggedNotReturned(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	page := &pageStub{closeErr: errors.New("browser gone")}
	session := interactiveStub{execute: func(ctx context.Context, page adapter.Page) (*catalog.Catalog, error) {
		return nil, &adapter.SourceFetchError{Institution: "gachon-general", Stage: adapter.StageFilter, Err: errors.New("combo missing")}
	}}
	svc, _, _ := newIngestionFixture(registryStub{interactive: session}, sessionsStub{page: page}, nil, zap.New(core), IngestionConfig{})

	_, err := svc.Preview(context.Background(), dto.IngestionRequest{
		InstitutionID: "gachon-general", Year: 2025, Term: "1", SourceURL: "https://sg.gachon.ac.kr/main", Mode: dto.IngestionModeInteractive,
	})
	var fetchErr *adapter.SourceFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, adapter.StageFilter, fetchErr.Stage)
	assert.Equal(t, 1, logs.FilterMessage("failed to release browser session").Len())
}

func TestIngestInteractiveSessionOpenFailure(t *testing.T) {
	session := interactiveStub{execute: func(ctx context.Context, page adapter.Page) (*catalog.Catalog, error) {
		t.Fatal("execute must not run without a page")
		return nil, nil
	}}
	svc, _, _ := newIngestionFixture(registryStub{interactive: session}, sessionsStub{err: errors.New("no chrome")}, nil, nil, IngestionConfig{})

	_, err := svc.Preview(context.Background(), dto.IngestionRequest{
		InstitutionID: "gachon-general", Year: 2025, Term: "1", SourceURL: "https://sg.gachon.ac.kr/main", Mode: dto.IngestionModeInteractive,
	})
	var fetchErr *adapter.SourceFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, adapter.StageSession, fetchErr.Stage)
}

func TestIngestDocument(t *testing.T) {
	docCatalog := &catalog.Catalog{
		University: "백석대학교", Campus: "천안", Department: "공과대학", Major: "컴퓨터공학", Year: 2025, Semester: "1",
		CourseType: catalog.CourseTypeMajor,
		Lectures:   []catalog.Lecture{{CourseCode: "CS101", CourseName: "자료구조", Credits: 3}},
	}
	svc, upserts, snaps := newIngestionFixture(registryStub{}, nil, extractorStub{result: docCatalog}, nil, IngestionConfig{})

	req := dto.DocumentIngestionRequest{InstitutionID: "baekseok-major", Year: 2025, Term: "1"}
	resp, err := svc.IngestDocument(context.Background(), req, []byte("%PDF-1.7"))
	require.NoError(t, err)
	assert.Equal(t, 1, resp.InsertedCount)
	assert.Contains(t, snaps.puts, "baekseok-major/snap.pdf")
	assert.Equal(t, "컴퓨터공학", upserts.rows["백석대학교|2025|1|CS101|천안"].Major)

	_, err = svc.PreviewDocument(context.Background(), req, nil)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestIngestDocumentUnknownProcessor(t *testing.T) {
	svc, _, _ := newIngestionFixture(registryStub{}, nil, extractorStub{err: fmt.Errorf("%w: x", document.ErrProcessorNotFound)}, nil, IngestionConfig{})

	_, err := svc.PreviewDocument(context.Background(), dto.DocumentIngestionRequest{InstitutionID: "x", Year: 2025, Term: "1"}, []byte("%PDF"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrProcessorNotFound.Code, appErrors.FromError(err).Code)
}

func TestReparseSnapshot(t *testing.T) {
	parser := &parserStub{result: euljiCatalog()}
	svc, upserts, snaps := newIngestionFixture(registryStub{parser: parser, fetcher: fetcherStub{}}, nil, nil, nil, IngestionConfig{})
	snaps.files["eulji-general/old.html"] = []byte("<html>archived</html>")

	resp, err := svc.ReparseSnapshot(context.Background(), "eulji-general", "eulji-general/old.html", 2025, "2", true)
	require.NoError(t, err)
	assert.Equal(t, "<html>archived</html>", parser.html)
	assert.Equal(t, "2", resp.Catalog.Semester)
	assert.Equal(t, 2, resp.InsertedCount)
	assert.Equal(t, 2, upserts.calls)

	_, err = svc.ReparseSnapshot(context.Background(), "eulji-general", "missing.html", 2025, "2", false)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestIngestionJobsLifecycle(t *testing.T) {
	parser := &parserStub{result: euljiCatalog()}
	svc, _, _ := newIngestionFixture(registryStub{parser: parser, fetcher: fetcherStub{html: "x"}}, nil, nil, nil, IngestionConfig{JobWorkers: 1, JobBuffer: 4})
	svc.Start(context.Background())
	defer svc.Stop()

	job, err := svc.EnqueueJob(markupRequest())
	require.NoError(t, err)
	assert.Equal(t, models.IngestionJobQueued, job.Status)

	require.Eventually(t, func() bool {
		current, err := svc.Job(job.ID)
		return err == nil && current.Status == models.IngestionJobSucceeded
	}, 2*time.Second, 5*time.Millisecond)
	current, err := svc.Job(job.ID)
	require.NoError(t, err)
	require.NotNil(t, current.Counts)
	assert.Equal(t, 2, current.Counts.TotalCount)
	assert.NotNil(t, current.StartedAt)

	failing := markupRequest()
	failing.InstitutionID = "nowhere"
	failed, err := svc.EnqueueJob(failing)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		current, err := svc.Job(failed.ID)
		return err == nil && current.Status == models.IngestionJobFailed
	}, 2*time.Second, 5*time.Millisecond)
	current, err = svc.Job(failed.ID)
	require.NoError(t, err)
	assert.Contains(t, current.Error, "no adapter registered")

	_, err = svc.Job("unknown")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestEnqueueJobValidates(t *testing.T) {
	svc, _, _ := newIngestionFixture(registryStub{}, nil, nil, nil, IngestionConfig{})
	_, err := svc.EnqueueJob(dto.IngestionRequest{InstitutionID: "eulji-general", Mode: "ftp"})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestJobStoreExpires(t *testing.T) {
	store := newJobStore(time.Minute)
	store.Save(models.IngestionJob{ID: "old", CreatedAt: time.Now().Add(-2 * time.Minute)})
	store.Save(models.IngestionJob{ID: "new", CreatedAt: time.Now()})

	_, ok := store.Get("old")
	assert.False(t, ok)
	_, ok = store.Get("new")
	assert.True(t, ok)
}
