// Package app wires repositories, adapters and services from configuration. The HTTP server and the
// operator CLI share it.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/adapter"
	"github.com/noah-isme/campus-timetable-api/internal/adapter/document"
	"github.com/noah-isme/campus-timetable-api/internal/adapter/interactive"
	"github.com/noah-isme/campus-timetable-api/internal/adapter/markup"
	"github.com/noah-isme/campus-timetable-api/internal/catalog"
	"github.com/noah-isme/campus-timetable-api/internal/repository"
	"github.com/noah-isme/campus-timetable-api/internal/service"
	"github.com/noah-isme/campus-timetable-api/pkg/cache"
	"github.com/noah-isme/campus-timetable-api/pkg/config"
	"github.com/noah-isme/campus-timetable-api/pkg/database"
	"github.com/noah-isme/campus-timetable-api/pkg/export"
	"github.com/noah-isme/campus-timetable-api/pkg/storage"
)

// Container holds the long-lived dependencies of a process.
type Container struct {
	DB       *sqlx.DB
	Redis    *redis.Client
	Archive  *storage.Archive
	Registry *adapter.Registry

	Auth       *service.AuthService
	Metrics    *service.MetricsService
	Ingestion  *service.IngestionService
	Courses    *service.CourseService
	Timetables *service.TimetableService
	Generator  *service.ScheduleGeneratorService
	Exports    *service.ExportService

	logger *zap.Logger
}

type documentExtractor interface {
	Extract(ctx context.Context, institution string, pdf []byte, year int, term string) (*catalog.Catalog, error)
}

type snapshotStore interface {
	Put(institution, ext string, data []byte) (string, error)
	Read(name string) ([]byte, error)
}

// Build connects to postgres, optionally to redis, and constructs every service. Redis is optional:
// without it enrolment counts read as zero.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db.DB, database.MigrateUp, logger); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	c := &Container{DB: db, logger: logger}

	rdb, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logger.Warn("redis unavailable, enrolment counters disabled", zap.Error(err))
	} else {
		c.Redis = rdb
	}

	var snapshots snapshotStore
	if cfg.Ingestion.SnapshotDir != "" {
		archive, err := storage.NewArchive(cfg.Ingestion.SnapshotDir)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("open snapshot archive: %w", err)
		}
		c.Archive = archive
		snapshots = archive
	}

	var documents documentExtractor
	if cfg.Document.APIKey != "" {
		extractor, err := newExtractor(ctx, cfg, NewTokenizer(cfg.Ingestion), logger)
		if err != nil {
			c.Close()
			return nil, err
		}
		documents = extractor
	} else {
		logger.Warn("GENAI_API_KEY not set, document ingestion disabled")
	}

	classifier := NewClassifier(cfg.Classifier)
	tokenizer := NewTokenizer(cfg.Ingestion)
	sessions := interactive.NewRodSessions(browserConfig(cfg.Browser), logger.Named("browser"))
	c.Registry = NewRegistry(cfg, sessions, classifier, tokenizer, logger)

	courses := repository.NewCourseRepository(db)
	timetables := repository.NewTimetableRepository(db)

	c.Metrics = service.NewMetricsService()
	c.Auth = service.NewAuthService(nil, logger, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.TokenTTL,
		Issuer:            cfg.JWT.Issuer,
	})
	c.Ingestion = service.NewIngestionService(c.Registry, sessions, documents, courses, snapshots, c.Metrics, nil, logger.Named("ingestion"), service.IngestionConfig{
		StaticTimeout:      cfg.Ingestion.StaticTimeout,
		InteractiveTimeout: cfg.Ingestion.InteractiveTimeout,
		DocumentTimeout:    cfg.Ingestion.DocumentTimeout,
		JobWorkers:         cfg.Ingestion.JobWorkers,
		JobBuffer:          cfg.Ingestion.JobBuffer,
		JobRetries:         cfg.Ingestion.JobRetries,
		JobTTL:             cfg.Ingestion.JobTTL,
		MaxPeriod:          cfg.Ingestion.MaxPeriod,
	})
	c.Generator = service.NewScheduleGeneratorService(timetables, courses, c.Metrics, nil, logger.Named("generator"), service.ScheduleGeneratorConfig{
		MaxCombinations: cfg.Generator.MaxCombinations,
		EdgePenalty:     cfg.Generator.EdgePenalty,
		EarlyPeriodMax:  cfg.Generator.EarlyPeriodMax,
		LatePeriodMin:   cfg.Generator.LatePeriodMin,
		GapPenalty:      cfg.Generator.GapPenalty,
		LunchPeriod:     cfg.Generator.LunchPeriod,
		Seed:            cfg.Generator.Seed,
	})

	if c.Redis != nil {
		counters := repository.NewCounterRepository(c.Redis)
		c.Courses = service.NewCourseService(courses, counters, logger)
		c.Timetables = service.NewTimetableService(timetables, courses, counters, nil, logger)
	} else {
		c.Courses = service.NewCourseService(courses, nil, logger)
		c.Timetables = service.NewTimetableService(timetables, courses, nil, nil, logger)
	}

	c.Exports, err = service.NewExportService(timetables, service.ExportRenderers{
		PDF: export.NewPDFExporter(cfg.Export.PDFFont),
	}, service.ExportConfig{
		Timezone:      cfg.Export.Timezone,
		FirstPeriod:   cfg.Export.FirstPeriod,
		PeriodLength:  cfg.Export.PeriodLength,
		TermWeeks:     cfg.Export.TermWeeks,
		TermStarts:    cfg.Export.TermStarts,
		CalendarTitle: cfg.Export.CalendarTitle,
	}, logger)
	if err != nil {
		c.Close()
		return nil, err
	}

	return c, nil
}

// PruneSnapshots deletes archived sources older than retention every interval until ctx ends.
func (c *Container) PruneSnapshots(ctx context.Context, retention, interval time.Duration) {
	if c.Archive == nil || retention <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		removed, err := c.Archive.Prune(retention)
		if err != nil {
			c.logger.Warn("snapshot prune failed", zap.Error(err))
		} else if len(removed) > 0 {
			c.logger.Info("snapshots pruned", zap.Int("removed", len(removed)))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Ping checks postgres. It backs the readiness probe.
func (c *Container) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// Close releases the database and redis connections.
func (c *Container) Close() {
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			c.logger.Warn("failed to close database", zap.Error(err))
		}
	}
}

// NewRegistry registers the bundled adapters. The static source fetches through a plain GET unless
// board navigation is enabled.
func NewRegistry(cfg *config.Config, sessions adapter.SessionFactory, classifier catalog.Classifier, tokenizer catalog.Tokenizer, logger *zap.Logger) *adapter.Registry {
	registry := adapter.NewRegistry(markup.NewHTTPFetcher(nil, cfg.Browser.UserAgent))

	var fetcher adapter.Fetcher
	if cfg.Ingestion.BoardFetch {
		fetcher = markup.NewBoardFetcher(sessions, markup.BoardConfig{LoadTimeout: cfg.Browser.PageTimeout}, logger.Named("board"))
	}
	registry.RegisterMarkup(markup.EuljiInstitution, markup.NewEuljiGeneral(classifier, tokenizer, logger.Named(markup.EuljiInstitution)), fetcher)
	registry.RegisterInteractive(interactive.GachonInstitution, interactive.NewGachonGeneral(interactive.GachonConfig{
		StopAfter:    cfg.Ingestion.ScrollStopAfter,
		FilterSettle: cfg.Ingestion.FilterSettle,
		YearSettle:   cfg.Ingestion.YearSettle,
		GridSettle:   cfg.Ingestion.GridSettle,
		ScrollSettle: cfg.Ingestion.ScrollSettle,
	}, classifier, tokenizer, logger.Named(interactive.GachonInstitution)))
	return registry
}

// NewClassifier overlays configured keyword lists on the defaults.
func NewClassifier(cfg config.ClassifierConfig) catalog.Classifier {
	classifier := catalog.DefaultClassifier()
	if len(cfg.GeneralKeywords) > 0 {
		classifier.GeneralKeywords = cfg.GeneralKeywords
	}
	if len(cfg.MajorKeywords) > 0 {
		classifier.MajorKeywords = cfg.MajorKeywords
	}
	return classifier
}

// NewTokenizer applies the configured period bound to the default tokenizer.
func NewTokenizer(cfg config.IngestionConfig) catalog.Tokenizer {
	tokenizer := catalog.DefaultTokenizer()
	if cfg.MaxPeriod > 0 {
		tokenizer.MaxPeriod = cfg.MaxPeriod
	}
	return tokenizer
}

func newExtractor(ctx context.Context, cfg *config.Config, tokenizer catalog.Tokenizer, logger *zap.Logger) (*document.Extractor, error) {
	processors, err := document.ParseProcessors(cfg.Document.Processors, document.DefaultProcessors())
	if err != nil {
		return nil, fmt.Errorf("parse DOCUMENT_PROCESSORS: %w", err)
	}
	client, err := document.NewGenAIClient(ctx, cfg.Document.APIKey, cfg.Document.Model)
	if err != nil {
		return nil, err
	}
	return document.NewExtractor(client, processors, tokenizer, logger.Named("document")), nil
}

func browserConfig(cfg config.BrowserConfig) interactive.BrowserConfig {
	return interactive.BrowserConfig{
		Headless:       cfg.Headless,
		BinPath:        cfg.BinPath,
		ControlURL:     cfg.ControlURL,
		UserAgent:      cfg.UserAgent,
		PageTimeout:    cfg.PageTimeout,
		ListboxTimeout: cfg.ListboxTimeout,
	}
}
