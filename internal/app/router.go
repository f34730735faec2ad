package app

import (
	"crew_assessment_backend/docs"
	"crew_assessment_backend/internal/config"
	"crew_assessment_backend/internal/middleware"
	"crew_assessment_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	api := router.Group("/api")
	{
		api.GET("/health", c.health.HealthCheck)
		api.POST("/admin/login", c.auth.Login)

		// Session creation is open; everything on an existing session
		// requires its token.
		api.POST("/assessments", c.assessment.Create)
	}

	session := router.Group("/api/assessments/:id")
	session.Use(middleware.SessionMiddleware(cfg.JWT.Secret, repos.assessment, a.services.integrity))
	{
		session.POST("/start", c.assessment.Start)
		session.POST("/responses", c.assessment.SubmitResponse)
		session.POST("/responses/speaking", c.assessment.SubmitSpeakingResponse)
		session.POST("/complete", c.assessment.Complete)
		session.GET("/status", c.assessment.GetStatus)
		session.POST("/integrity/events", c.assessment.ReportIntegrityEvent)
	}

	admin := router.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(cfg.JWT.Secret), middleware.AdminRequired())
	{
		admin.GET("/assessments", c.assessment.List)
		admin.GET("/assessments/:id", c.assessment.GetDetail)
		admin.POST("/assessments/:id/flag", c.assessment.Flag)
		admin.GET("/questions", c.question.List)
	}
}
