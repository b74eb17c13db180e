package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/handler"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	StudentPortal *handler.StudentPortalHandler
	WS            *handler.WSHandler
	Monitor       *handler.MonitorHandler
	System        *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	limiter *middleware.RateLimiter,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())
	router.Use(metrics.Middleware())

	router.GET("/health", handlers.System.Health)
	router.GET("/metrics", metrics.Handler())

	// ─── Student API ───────────────────────────────────────────────────
	student := router.Group("/api/v1/student")
	student.Use(limiter.Middleware(), middleware.NoStore(), middleware.RequireStudentJWT(authService))
	{
		student.GET("/exams/:exam_id/intro", handlers.StudentPortal.GetExamIntro)
	}

	// ─── Admin API ─────────────────────────────────────────────────────
	admin := router.Group("/api/v1/admin")
	admin.Use(middleware.RequireAdminJWT(authService))
	{
		admin.GET("/exams/:exam_id/monitor", handlers.Monitor.MonitorExamSSE)
	}

	// ─── WebSocket ─────────────────────────────────────────────────────
	wsGroup := router.Group("/ws/v1/student")
	wsGroup.Use(limiter.Middleware(), middleware.RequireStudentWSAuth(authService))
	{
		wsGroup.GET("/exams/:exam_id/session", handlers.WS.ExamSession)
	}

	return router
}
