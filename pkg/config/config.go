package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Browser    BrowserConfig
	Ingestion  IngestionConfig
	Document   DocumentConfig
	Generator  GeneratorConfig
	Classifier ClassifierConfig
	Export     ExportConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret   string
	Issuer   string
	TokenTTL time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// BrowserConfig configures the headless browser used by interactive adapters and board fetches.
type BrowserConfig struct {
	Headless       bool
	BinPath        string
	ControlURL     string
	UserAgent      string
	PageTimeout    time.Duration
	ListboxTimeout time.Duration
}

// IngestionConfig bounds adapter calls and the asynchronous ingestion queue.
type IngestionConfig struct {
	StaticTimeout      time.Duration
	InteractiveTimeout time.Duration
	DocumentTimeout    time.Duration
	ScrollStopAfter    int
	FilterSettle       time.Duration
	YearSettle         time.Duration
	GridSettle         time.Duration
	ScrollSettle       time.Duration
	MaxPeriod          int
	BoardFetch         bool
	MaxUploadBytes     int64
	JobWorkers         int
	JobBuffer          int
	JobRetries         int
	JobTTL             time.Duration
	SnapshotDir        string
	SnapshotRetention  time.Duration
}

// DocumentConfig configures the document-understanding client. Processors is the raw
// "id=endpoint|strategy,..." override list.
type DocumentConfig struct {
	APIKey     string
	Model      string
	Processors string
}

// GeneratorConfig tunes the schedule generation search and scoring.
type GeneratorConfig struct {
	MaxCombinations int
	EdgePenalty     int
	EarlyPeriodMax  int
	LatePeriodMin   int
	GapPenalty      int
	LunchPeriod     int
	Seed            int64
}

// ClassifierConfig overrides the course type keyword lists. Empty lists keep the built-in ones.
type ClassifierConfig struct {
	GeneralKeywords []string
	MajorKeywords   []string
}

// ExportConfig maps periods onto wall-clock time for calendar exports.
type ExportConfig struct {
	Timezone      string
	FirstPeriod   string
	PeriodLength  time.Duration
	TermWeeks     int
	TermStarts    map[string]string
	CalendarTitle string
	PDFFont       string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:   v.GetString("JWT_SECRET"),
		Issuer:   v.GetString("JWT_ISSUER"),
		TokenTTL: parseDuration(v.GetString("JWT_TOKEN_TTL"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Browser = BrowserConfig{
		Headless:       v.GetBool("BROWSER_HEADLESS"),
		BinPath:        v.GetString("BROWSER_BIN"),
		ControlURL:     v.GetString("BROWSER_CONTROL_URL"),
		UserAgent:      v.GetString("BROWSER_USER_AGENT"),
		PageTimeout:    parseDuration(v.GetString("BROWSER_PAGE_TIMEOUT"), 60*time.Second),
		ListboxTimeout: parseDuration(v.GetString("BROWSER_LISTBOX_TIMEOUT"), 10*time.Second),
	}

	cfg.Ingestion = IngestionConfig{
		StaticTimeout:      parseDuration(v.GetString("INGESTION_STATIC_TIMEOUT"), 60*time.Second),
		InteractiveTimeout: parseDuration(v.GetString("INGESTION_INTERACTIVE_TIMEOUT"), 15*time.Minute),
		DocumentTimeout:    parseDuration(v.GetString("INGESTION_DOCUMENT_TIMEOUT"), 5*time.Minute),
		ScrollStopAfter:    v.GetInt("INGESTION_SCROLL_STOP_AFTER"),
		FilterSettle:       parseDuration(v.GetString("INGESTION_FILTER_SETTLE"), time.Second),
		YearSettle:         parseDuration(v.GetString("INGESTION_YEAR_SETTLE"), 500*time.Millisecond),
		GridSettle:         parseDuration(v.GetString("INGESTION_GRID_SETTLE"), time.Second),
		ScrollSettle:       parseDuration(v.GetString("INGESTION_SCROLL_SETTLE"), 500*time.Millisecond),
		MaxPeriod:          v.GetInt("INGESTION_MAX_PERIOD"),
		BoardFetch:         v.GetBool("INGESTION_BOARD_FETCH"),
		MaxUploadBytes:     v.GetInt64("INGESTION_MAX_UPLOAD_BYTES"),
		JobWorkers:         v.GetInt("INGESTION_JOB_WORKERS"),
		JobBuffer:          v.GetInt("INGESTION_JOB_BUFFER"),
		JobRetries:         v.GetInt("INGESTION_JOB_RETRIES"),
		JobTTL:             parseDuration(v.GetString("INGESTION_JOB_TTL"), 24*time.Hour),
		SnapshotDir:        v.GetString("INGESTION_SNAPSHOT_DIR"),
		SnapshotRetention:  parseDuration(v.GetString("INGESTION_SNAPSHOT_RETENTION"), 30*24*time.Hour),
	}

	cfg.Document = DocumentConfig{
		APIKey:     v.GetString("GENAI_API_KEY"),
		Model:      v.GetString("GENAI_MODEL"),
		Processors: v.GetString("DOCUMENT_PROCESSORS"),
	}

	cfg.Generator = GeneratorConfig{
		MaxCombinations: v.GetInt("GENERATOR_MAX_COMBINATIONS"),
		EdgePenalty:     v.GetInt("GENERATOR_EDGE_PENALTY"),
		EarlyPeriodMax:  v.GetInt("GENERATOR_EARLY_PERIOD_MAX"),
		LatePeriodMin:   v.GetInt("GENERATOR_LATE_PERIOD_MIN"),
		GapPenalty:      v.GetInt("GENERATOR_GAP_PENALTY"),
		LunchPeriod:     v.GetInt("GENERATOR_LUNCH_PERIOD"),
		Seed:            v.GetInt64("GENERATOR_SEED"),
	}

	cfg.Classifier = ClassifierConfig{
		GeneralKeywords: splitAndTrim(v.GetString("CLASSIFIER_GENERAL_KEYWORDS")),
		MajorKeywords:   splitAndTrim(v.GetString("CLASSIFIER_MAJOR_KEYWORDS")),
	}

	cfg.Export = ExportConfig{
		Timezone:      v.GetString("EXPORT_TIMEZONE"),
		FirstPeriod:   v.GetString("EXPORT_FIRST_PERIOD"),
		PeriodLength:  parseDuration(v.GetString("EXPORT_PERIOD_LENGTH"), time.Hour),
		TermWeeks:     v.GetInt("EXPORT_TERM_WEEKS"),
		TermStarts:    parsePairs(v.GetString("EXPORT_TERM_STARTS")),
		CalendarTitle: v.GetString("EXPORT_CALENDAR_TITLE"),
		PDFFont:       v.GetString("EXPORT_PDF_FONT"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "campus_timetable")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", false)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "campus-timetable-api")
	v.SetDefault("JWT_TOKEN_TTL", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("BROWSER_HEADLESS", true)
	v.SetDefault("BROWSER_BIN", "")
	v.SetDefault("BROWSER_CONTROL_URL", "")
	v.SetDefault("BROWSER_USER_AGENT", "")
	v.SetDefault("BROWSER_PAGE_TIMEOUT", "60s")
	v.SetDefault("BROWSER_LISTBOX_TIMEOUT", "10s")

	v.SetDefault("INGESTION_STATIC_TIMEOUT", "60s")
	v.SetDefault("INGESTION_INTERACTIVE_TIMEOUT", "15m")
	v.SetDefault("INGESTION_DOCUMENT_TIMEOUT", "5m")
	v.SetDefault("INGESTION_SCROLL_STOP_AFTER", 3)
	v.SetDefault("INGESTION_FILTER_SETTLE", "1s")
	v.SetDefault("INGESTION_YEAR_SETTLE", "500ms")
	v.SetDefault("INGESTION_GRID_SETTLE", "1s")
	v.SetDefault("INGESTION_SCROLL_SETTLE", "500ms")
	v.SetDefault("INGESTION_MAX_PERIOD", 15)
	v.SetDefault("INGESTION_BOARD_FETCH", false)
	v.SetDefault("INGESTION_MAX_UPLOAD_BYTES", 20*1024*1024)
	v.SetDefault("INGESTION_JOB_WORKERS", 1)
	v.SetDefault("INGESTION_JOB_BUFFER", 16)
	v.SetDefault("INGESTION_JOB_RETRIES", 0)
	v.SetDefault("INGESTION_JOB_TTL", "24h")
	v.SetDefault("INGESTION_SNAPSHOT_DIR", "./snapshots")
	v.SetDefault("INGESTION_SNAPSHOT_RETENTION", "720h")

	v.SetDefault("GENAI_API_KEY", "")
	v.SetDefault("GENAI_MODEL", "gemini-2.5-flash")
	v.SetDefault("DOCUMENT_PROCESSORS", "")

	v.SetDefault("GENERATOR_MAX_COMBINATIONS", 500)
	v.SetDefault("GENERATOR_EDGE_PENALTY", 10)
	v.SetDefault("GENERATOR_EARLY_PERIOD_MAX", 2)
	v.SetDefault("GENERATOR_LATE_PERIOD_MIN", 8)
	v.SetDefault("GENERATOR_GAP_PENALTY", 1)
	v.SetDefault("GENERATOR_LUNCH_PERIOD", 4)
	v.SetDefault("GENERATOR_SEED", 0)

	v.SetDefault("CLASSIFIER_GENERAL_KEYWORDS", "")
	v.SetDefault("CLASSIFIER_MAJOR_KEYWORDS", "")

	v.SetDefault("EXPORT_TIMEZONE", "Asia/Seoul")
	v.SetDefault("EXPORT_FIRST_PERIOD", "09:00")
	v.SetDefault("EXPORT_PERIOD_LENGTH", "1h")
	v.SetDefault("EXPORT_TERM_WEEKS", 15)
	v.SetDefault("EXPORT_TERM_STARTS", "")
	v.SetDefault("EXPORT_CALENDAR_TITLE", "Timetable")
	v.SetDefault("EXPORT_PDF_FONT", "")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// parsePairs reads "key=value,key=value" lists. Entries without "=" are ignored.
func parsePairs(raw string) map[string]string {
	out := make(map[string]string)
	for _, part := range splitAndTrim(raw) {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if key != "" && value != "" {
			out[key] = value
		}
	}
	return out
}
