package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-timetable-api/internal/catalog"
	"github.com/noah-isme/campus-timetable-api/internal/dto"
)

type batchRunnerStub struct {
	mu        sync.Mutex
	inFlight  int32
	maxFlight int32
	previews  []string
	failFor   string
}

func (s *batchRunnerStub) enter() {
	n := atomic.AddInt32(&s.inFlight, 1)
	for {
		max := atomic.LoadInt32(&s.maxFlight)
		if n <= max || atomic.CompareAndSwapInt32(&s.maxFlight, max, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	atomic.AddInt32(&s.inFlight, -1)
}

func (s *batchRunnerStub) Ingest(ctx context.Context, req dto.IngestionRequest) (*dto.IngestionResponse, error) {
	s.enter()
	if req.InstitutionID == s.failFor {
		return nil, errors.New("source unreachable")
	}
	return &dto.IngestionResponse{
		Catalog:       &catalog.Catalog{Lectures: make([]catalog.Lecture, 3)},
		InsertedCount: 2,
		UpdatedCount:  1,
	}, nil
}

func (s *batchRunnerStub) Preview(ctx context.Context, req dto.IngestionRequest) (*dto.PreviewResponse, error) {
	s.enter()
	s.mu.Lock()
	s.previews = append(s.previews, req.InstitutionID)
	s.mu.Unlock()
	return &dto.PreviewResponse{Catalog: &catalog.Catalog{Lectures: make([]catalog.Lecture, 5)}}, nil
}

func writeTargets(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "targets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadTargetsAppliesDefaults(t *testing.T) {
	path := writeTargets(t, `
year: 2025
term: "1"
mode: markup
targets:
  - institutionId: " eulji-general "
    sourceUrl: https://example.edu/board
  - institutionId: gachon-general
    sourceUrl: https://example.edu/search
    mode: Interactive
    term: "2"
`)

	targets, err := loadTargets(path)

	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, dto.IngestionRequest{InstitutionID: "eulji-general", Year: 2025, Term: "1", SourceURL: "https://example.edu/board", Mode: "markup"}, targets[0])
	assert.Equal(t, "interactive", targets[1].Mode)
	assert.Equal(t, "2", targets[1].Term)
	assert.Equal(t, 2025, targets[1].Year)
}

func TestLoadTargetsRejectsEmptyList(t *testing.T) {
	_, err := loadTargets(writeTargets(t, "year: 2025\n"))
	require.Error(t, err)

	_, err = loadTargets(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestRunBatchBoundsConcurrencyAndKeepsOrder(t *testing.T) {
	runner := &batchRunnerStub{failFor: "b"}
	targets := []dto.IngestionRequest{{InstitutionID: "a"}, {InstitutionID: "b"}, {InstitutionID: "c"}, {InstitutionID: "d"}}

	results, err := runBatch(context.Background(), runner, targets, 2, false)

	require.EqualError(t, err, "1 of 4 targets failed")
	require.Len(t, results, 4)
	assert.LessOrEqual(t, atomic.LoadInt32(&runner.maxFlight), int32(2))
	for i, r := range results {
		assert.Equal(t, targets[i].InstitutionID, r.InstitutionID)
	}
	assert.EqualError(t, results[1].Err, "source unreachable")
	assert.Equal(t, 3, results[0].Lectures)
	assert.Equal(t, 2, results[3].Inserted)
	assert.Equal(t, 1, results[3].Updated)
}

func TestRunBatchPreview(t *testing.T) {
	runner := &batchRunnerStub{}

	results, err := runBatch(context.Background(), runner, []dto.IngestionRequest{{InstitutionID: "a"}}, 0, true)

	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, runner.previews)
	assert.Equal(t, 5, results[0].Lectures)
	assert.Zero(t, results[0].Inserted)
}
