package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 24*time.Hour, cfg.JWT.TokenTTL)
	assert.Equal(t, 15*time.Minute, cfg.Ingestion.InteractiveTimeout)
	assert.EqualValues(t, 20*1024*1024, cfg.Ingestion.MaxUploadBytes)
	assert.Equal(t, 500, cfg.Generator.MaxCombinations)
	assert.Equal(t, "Asia/Seoul", cfg.Export.Timezone)
	assert.Empty(t, cfg.Export.TermStarts)
	assert.Nil(t, cfg.Classifier.GeneralKeywords)
	assert.Equal(t, time.Second, cfg.Ingestion.FilterSettle)
	assert.Equal(t, 500*time.Millisecond, cfg.Ingestion.ScrollSettle)
	assert.Equal(t, 15, cfg.Ingestion.MaxPeriod)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ENV", EnvProduction)
	t.Setenv("PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("INGESTION_STATIC_TIMEOUT", "90s")
	t.Setenv("INGESTION_DOCUMENT_TIMEOUT", "soon")
	t.Setenv("INGESTION_BOARD_FETCH", "true")
	t.Setenv("INGESTION_YEAR_SETTLE", "750ms")
	t.Setenv("INGESTION_MAX_PERIOD", "18")
	t.Setenv("GENERATOR_SEED", "42")
	t.Setenv("CLASSIFIER_MAJOR_KEYWORDS", "학과,전공")
	t.Setenv("EXPORT_TERM_STARTS", "2025-1=2025-03-04, 2025-2=2025-09-01, broken")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvProduction, cfg.Env)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 90*time.Second, cfg.Ingestion.StaticTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Ingestion.DocumentTimeout)
	assert.True(t, cfg.Ingestion.BoardFetch)
	assert.Equal(t, 750*time.Millisecond, cfg.Ingestion.YearSettle)
	assert.Equal(t, 18, cfg.Ingestion.MaxPeriod)
	assert.EqualValues(t, 42, cfg.Generator.Seed)
	assert.Equal(t, []string{"학과", "전공"}, cfg.Classifier.MajorKeywords)
	assert.Equal(t, map[string]string{"2025-1": "2025-03-04", "2025-2": "2025-09-01"}, cfg.Export.TermStarts)
}
