package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/adapter/interactive"
	"github.com/noah-isme/campus-timetable-api/internal/adapter/markup"
	"github.com/noah-isme/campus-timetable-api/internal/catalog"
	"github.com/noah-isme/campus-timetable-api/pkg/config"
	"github.com/noah-isme/campus-timetable-api/pkg/storage"
)

func TestNewRegistryRegistersBundledAdapters(t *testing.T) {
	for _, board := range []bool{false, true} {
		cfg := &config.Config{Ingestion: config.IngestionConfig{BoardFetch: board}}
		registry := NewRegistry(cfg, nil, catalog.DefaultClassifier(), catalog.DefaultTokenizer(), zap.NewNop())

		institutions := registry.Institutions()
		assert.Equal(t, []string{markup.EuljiInstitution}, institutions["markup"])
		assert.Equal(t, []string{interactive.GachonInstitution}, institutions["interactive"])

		_, fetcher, err := registry.Markup(markup.EuljiInstitution)
		require.NoError(t, err)
		if board {
			assert.IsType(t, &markup.BoardFetcher{}, fetcher)
		} else {
			assert.IsType(t, &markup.HTTPFetcher{}, fetcher)
		}
	}
}

func TestNewRegistryAppliesGachonTiming(t *testing.T) {
	cfg := &config.Config{Ingestion: config.IngestionConfig{
		ScrollStopAfter: 5,
		FilterSettle:    1500 * time.Millisecond,
		YearSettle:      700 * time.Millisecond,
		GridSettle:      2 * time.Second,
		ScrollSettle:    250 * time.Millisecond,
	}}
	registry := NewRegistry(cfg, nil, catalog.DefaultClassifier(), catalog.DefaultTokenizer(), zap.NewNop())

	session, err := registry.Interactive(interactive.GachonInstitution)
	require.NoError(t, err)
	gachon, ok := session.(*interactive.GachonGeneral)
	require.True(t, ok)
	got := gachon.Config()
	assert.Equal(t, 5, got.StopAfter)
	assert.Equal(t, 1500*time.Millisecond, got.FilterSettle)
	assert.Equal(t, 700*time.Millisecond, got.YearSettle)
	assert.Equal(t, 2*time.Second, got.GridSettle)
	assert.Equal(t, 250*time.Millisecond, got.ScrollSettle)
}

func TestNewTokenizerAppliesMaxPeriod(t *testing.T) {
	assert.Equal(t, catalog.DefaultMaxPeriod, NewTokenizer(config.IngestionConfig{}).MaxPeriod)

	tokenizer := NewTokenizer(config.IngestionConfig{MaxPeriod: 20})
	slots := tokenizer.Parse("목17~18", "")
	require.Len(t, slots, 1)
	assert.Equal(t, []int{17, 18}, slots[0].Periods)
}

func TestNewClassifierOverlaysKeywords(t *testing.T) {
	defaults := catalog.DefaultClassifier()

	classifier := NewClassifier(config.ClassifierConfig{MajorKeywords: []string{"간호"}})

	assert.Equal(t, []string{"간호"}, classifier.MajorKeywords)
	assert.Equal(t, defaults.GeneralKeywords, classifier.GeneralKeywords)
	assert.Equal(t, catalog.CourseTypeMajor, classifier.Classify("간호대학 전용", ""))
	assert.Equal(t, catalog.CourseTypeGeneral, classifier.Classify("학과 전용", ""))
}

func TestPruneSnapshotsRunsUntilCancelled(t *testing.T) {
	dir := t.TempDir()
	archive, err := storage.NewArchive(dir)
	require.NoError(t, err)
	name, err := archive.Put("eulji-general", "html", []byte("<table></table>"))
	require.NoError(t, err)
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, name), old, old))

	c := &Container{Archive: archive, logger: zap.NewNop()}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.PruneSnapshots(ctx, time.Hour, time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, err := archive.Read(name)
		return err != nil
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestPruneSnapshotsWithoutArchive(t *testing.T) {
	c := &Container{logger: zap.NewNop()}
	c.PruneSnapshots(context.Background(), time.Hour, time.Millisecond)
}
