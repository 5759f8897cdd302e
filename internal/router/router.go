package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/handler"
	"github.com/noah-isme/campus-timetable-api/internal/middleware"
	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/internal/service"
	"github.com/noah-isme/campus-timetable-api/pkg/config"
	"github.com/noah-isme/campus-timetable-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/campus-timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/campus-timetable-api/pkg/middleware/requestid"
)

// Handlers groups the HTTP handlers mounted by Setup.
type Handlers struct {
	Ingestion *handler.IngestionHandler
	Course    *handler.CourseHandler
	Timetable *handler.TimetableHandler
	Metrics   *handler.MetricsHandler
}

// Setup builds the gin engine with global middleware, ops endpoints and the versioned API.
func Setup(cfg *config.Config, h Handlers, auth *service.AuthService, metrics *service.MetricsService, logr *zap.Logger) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	if metrics != nil {
		r.Use(middleware.Metrics(metrics))
	}

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(auth))
	{
		ingestions := api.Group("/ingestions", middleware.RequireRoles(models.RoleAdmin))
		{
			ingestions.POST("", h.Ingestion.Trigger)
			ingestions.POST("/document", h.Ingestion.TriggerDocument)
			ingestions.POST("/preview", h.Ingestion.Preview)
			ingestions.POST("/preview/document", h.Ingestion.PreviewDocument)
			ingestions.POST("/save", h.Ingestion.Save)
			ingestions.POST("/jobs", h.Ingestion.EnqueueJob)
			ingestions.GET("/jobs/:id", h.Ingestion.Job)
		}

		student := api.Group("", middleware.RequireRoles(models.RoleStudent))
		{
			student.GET("/courses", h.Course.List)

			timetables := student.Group("/timetables")
			{
				timetables.GET("", h.Timetable.List)
				timetables.POST("", h.Timetable.Create)
				timetables.POST("/generate", h.Timetable.Generate)
				timetables.DELETE("/entries/:entryId", h.Timetable.DeleteEntry)
				timetables.DELETE("/:id", h.Timetable.Delete)
				timetables.PUT("/:id/primary", h.Timetable.SetPrimary)
				timetables.POST("/:id/entries", h.Timetable.AddEntry)
				timetables.POST("/:id/custom-entries", h.Timetable.AddCustomEntry)
				timetables.GET("/:id/export", h.Timetable.Export)
			}
		}
	}

	return r
}
