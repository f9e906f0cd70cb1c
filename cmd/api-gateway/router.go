package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/tutoring-booking-api/api/swagger"
	"github.com/noah-isme/tutoring-booking-api/internal/handler"
	"github.com/noah-isme/tutoring-booking-api/internal/middleware"
	"github.com/noah-isme/tutoring-booking-api/internal/models"
	"github.com/noah-isme/tutoring-booking-api/internal/service"
	"github.com/noah-isme/tutoring-booking-api/pkg/config"
	"github.com/noah-isme/tutoring-booking-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/tutoring-booking-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/tutoring-booking-api/pkg/middleware/requestid"
)

type routes struct {
	sessions     *service.SessionService
	policy       *service.AdminPolicy
	metrics      *service.MetricsService
	availability *handler.AvailabilityHandler
	lessons      *handler.LessonHandler
	admin        *handler.AdminHandler
	profiles     *handler.ProfileHandler
	reports      *handler.ReportHandler
	sweep        *handler.SweepHandler
	health       *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, h routes) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(h.metrics, "/metrics", "/health", "/ready"))

	r.GET("/health", h.health.Health)
	r.GET("/ready", h.health.Ready)
	r.GET("/metrics", h.health.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.GET("/public/reports/:token", h.reports.Download)
	api.POST("/internal/lessons/sweep", middleware.SweepToken(cfg.Sweep.Token), h.sweep.Sweep)

	authed := api.Group("")
	authed.Use(middleware.JWT(h.sessions))

	teacher := middleware.RequireRoles(models.RoleTeacher)
	booker := middleware.RequireRoles(models.RoleStudent, models.RoleParent)
	reviewer := middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin)
	admin := middleware.RequireAdmin(h.policy)

	authed.POST("/availability", teacher, h.availability.Declare)
	authed.DELETE("/availability/:id", teacher, h.availability.Retract)
	authed.POST("/availability/:id/claim", booker, h.lessons.Claim)
	authed.GET("/teachers", h.profiles.ListTeachers)
	authed.GET("/teachers/:id/availability", h.availability.ListOpen)

	authed.POST("/lessons", booker, h.lessons.Submit)
	authed.GET("/lessons", h.lessons.List)
	authed.GET("/lessons/calendar.ics", h.lessons.Calendar)
	authed.GET("/lessons/:id", h.lessons.Get)
	authed.GET("/lessons/:id/summary", h.lessons.Summary)
	authed.POST("/lessons/:id/approve", reviewer, h.lessons.Approve)
	authed.POST("/lessons/:id/reject", reviewer, h.lessons.Reject)
	authed.POST("/lessons/:id/complete", teacher, h.lessons.Complete)
	authed.POST("/lessons/:id/follow-up", reviewer, h.lessons.FollowUp)

	authed.GET("/me/teacher-profile", teacher, h.profiles.GetTeacher)
	authed.PUT("/me/teacher-profile", teacher, h.profiles.UpdateTeacher)
	authed.GET("/me/student-profile", middleware.RequireRoles(models.RoleStudent), h.profiles.GetStudent)
	authed.PUT("/me/student-profile", middleware.RequireRoles(models.RoleStudent), h.profiles.UpdateStudent)

	adminGroup := authed.Group("/admin", admin)
	adminGroup.GET("/lessons/pending", h.admin.Pending)
	adminGroup.GET("/lessons/export.csv", h.admin.Export)
	adminGroup.PUT("/users/:id/role", h.admin.ChangeRole)
	return r
}
