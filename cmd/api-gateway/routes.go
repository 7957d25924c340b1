package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/staff-card-api/internal/middleware"
	"github.com/noah-isme/staff-card-api/internal/models"
	"github.com/noah-isme/staff-card-api/pkg/config"
	"github.com/noah-isme/staff-card-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/staff-card-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/staff-card-api/pkg/middleware/requestid"
)

func newRouter(cfg *config.Config, a *app, logr *zap.Logger) *gin.Engine {
	r := gin.New()
	r.MaxMultipartMemory = cfg.Uploads.MaxSheetSizeBytes
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(a.metrics))

	r.GET("/health", a.metricsH.Health)
	r.GET("/metrics", a.metricsH.Prometheus)
	r.Static("/uploads", a.photos.Dir())

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/login", a.authH.Login)

	authed := api.Group("")
	authed.Use(middleware.JWT(a.auth))

	admin := middleware.RequireRoles(models.RoleAdmin)
	professor := middleware.RequireRoles(models.RoleProfessor)

	authed.GET("/me", a.authH.Me)
	authed.GET("/professeurs", a.professorH.List)
	authed.POST("/professeurs", admin, a.professorH.Create)
	authed.GET("/professeurs/me", professor, a.professorH.Me)
	authed.PUT("/professeurs/me", professor, a.professorH.UpdateMe)
	authed.GET("/professeurs/:id", middleware.RBAC(string(models.RoleAdmin), middleware.AllowSelf), a.professorH.Get)
	authed.DELETE("/professeurs/:id", admin, a.professorH.Delete)
	authed.POST("/upload-excel", admin, a.professorH.UploadExcel)

	authed.GET("/generate-card/:id", middleware.RBAC(string(models.RoleAdmin), middleware.AllowSelf), a.cardH.GenerateCard)
	authed.GET("/generate-cards", admin, a.cardH.GenerateCards)

	authed.GET("/metrics/summary", admin, a.metricsH.Summary)

	return r
}
