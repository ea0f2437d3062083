package app

import (
	"puls_survey/docs"
	"puls_survey/internal/config"
	"puls_survey/internal/middleware"
	"puls_survey/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	if cfg.Server.Mode != gin.ReleaseMode {
		router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))
	}

	router.GET("/metrics", monitoring.PrometheusHandler())

	api := router.Group("/api")

	// 1. 公共路由
	api.POST("/login", c.gateway.Login)
	api.GET("/health", c.health.HealthCheck)
	api.POST("/check_phone_duplicate", middleware.OptionalBearer(), c.gateway.CheckPhoneDuplicate)

	// 2. 需要凭证的路由，凭证原样转发给上游
	auth := api.Group("")
	auth.Use(middleware.RequireBearer())
	{
		auth.GET("/profile-questions", c.gateway.ProfileQuestions)
		auth.POST("/add-profile-data", c.gateway.AddProfileData)
		auth.POST("/profile-submit", c.gateway.AddProfileData)

		auth.GET("/questions", c.gateway.Questions)
		auth.POST("/questions", c.gateway.Questions)
		auth.GET("/questionnaires/:studyTypeId/audio", c.gateway.AudioQuestionnaires)

		auth.POST("/survey_results", c.gateway.SurveyResults)

		auth.POST("/upload-video", c.upload.UploadVideo)
		auth.POST("/upload-audio", c.upload.UploadAudio)
	}
}
