package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/bimbel-api/internal/handler"
	"github.com/noah-isme/bimbel-api/internal/middleware"
	"github.com/noah-isme/bimbel-api/internal/models"
	"github.com/noah-isme/bimbel-api/internal/service"
	"github.com/noah-isme/bimbel-api/pkg/config"
	"github.com/noah-isme/bimbel-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/bimbel-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/bimbel-api/pkg/middleware/requestid"
)

// Handlers bundles every HTTP handler the router mounts.
type Handlers struct {
	Auth       *handler.AuthHandler
	User       *handler.UserHandler
	Course     *handler.CourseHandler
	Batch      *handler.BatchHandler
	Membership *handler.MembershipHandler
	Schedule   *handler.ScheduleHandler
	Notice     *handler.NoticeHandler
	Assignment *handler.AssignmentHandler
	Attendance *handler.AttendanceHandler
	Fee        *handler.FeeHandler
	Media      *handler.MediaHandler
	Metrics    *handler.MetricsHandler
}

// New assembles the gin engine with middleware and all route groups.
func New(cfg *config.Config, logr *zap.Logger, authService *service.AuthService, metrics *service.MetricsService, h Handlers) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Signed media links carry their own authorization in the token.
	r.GET("/media/files/:token", h.Media.Serve)

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/register", h.User.Register)
		auth.POST("/login", h.Auth.Login)
		auth.POST("/refresh", h.Auth.Refresh)
	}

	authed := api.Group("")
	authed.Use(middleware.JWT(authService))

	authed.POST("/auth/logout", h.Auth.Logout)
	authed.POST("/auth/change-password", h.Auth.ChangePassword)

	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	staffOnly := middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher)

	users := authed.Group("/users", adminOnly)
	{
		users.GET("", h.User.List)
		users.GET("/:id", h.User.Get)
		users.POST("/:id/approve", h.User.Approve)
		users.POST("/:id/reject", h.User.Reject)
		users.PUT("/:id", h.User.Update)
	}

	courses := authed.Group("/courses")
	{
		courses.GET("", h.Course.List)
		courses.GET("/:id", h.Course.Get)
		courses.POST("", adminOnly, h.Course.Create)
		courses.PUT("/:id", adminOnly, h.Course.Update)
		courses.DELETE("/:id", adminOnly, h.Course.Delete)
	}

	batches := authed.Group("/batches")
	{
		batches.GET("", h.Batch.List)
		batches.GET("/:id", h.Batch.Get)
		batches.POST("", adminOnly, h.Batch.Create)
		batches.PUT("/:id", adminOnly, h.Batch.Update)
		batches.DELETE("/:id", adminOnly, h.Batch.Delete)
	}

	memberships := authed.Group("/memberships", adminOnly)
	{
		memberships.GET("", h.Membership.List)
		memberships.POST("", h.Membership.Enroll)
		memberships.POST("/:id/transfer", h.Membership.Transfer)
		memberships.POST("/:id/leave", h.Membership.Leave)
	}

	schedules := authed.Group("/schedules")
	{
		schedules.GET("", h.Schedule.List)
		schedules.POST("", adminOnly, h.Schedule.Create)
		schedules.PUT("/:id", adminOnly, h.Schedule.Update)
		schedules.DELETE("/:id", adminOnly, h.Schedule.Delete)
	}

	notices := authed.Group("/notices")
	{
		notices.GET("", h.Notice.List)
		notices.GET("/:id", h.Notice.Get)
		notices.POST("", staffOnly, h.Notice.Create)
		notices.PUT("/:id", staffOnly, h.Notice.Update)
		notices.DELETE("/:id", staffOnly, h.Notice.Delete)
	}

	assignments := authed.Group("/assignments")
	{
		assignments.GET("", h.Assignment.List)
		assignments.POST("", staffOnly, h.Assignment.Create)
		assignments.PUT("/:id", staffOnly, h.Assignment.Update)
		assignments.DELETE("/:id", staffOnly, h.Assignment.Delete)
	}

	attendance := authed.Group("/attendance")
	{
		attendance.GET("", h.Attendance.List)
		attendance.POST("", staffOnly, h.Attendance.Mark)
		attendance.GET("/:batchId/summary", staffOnly, h.Attendance.Summary)
		attendance.GET("/:batchId/summary/export", staffOnly, h.Attendance.ExportCSV)
	}

	fees := authed.Group("/fees")
	{
		fees.GET("", h.Fee.List)
		fees.GET("/:id/receipt", h.Fee.Receipt)
		fees.POST("/generate", adminOnly, h.Fee.Generate)
		fees.POST("/:id/pay", adminOnly, h.Fee.Pay)
		fees.POST("/:id/waive", adminOnly, h.Fee.Waive)
	}

	media := authed.Group("/media")
	{
		media.GET("", h.Media.List)
		media.GET("/:id/download", h.Media.Download)
		media.POST("", staffOnly, h.Media.Upload)
		media.DELETE("/:id", staffOnly, h.Media.Delete)
	}

	return r
}
