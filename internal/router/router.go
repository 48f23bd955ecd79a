package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/vigilcbt/vigil-backend/internal/config"
	"github.com/vigilcbt/vigil-backend/internal/handler"
	"github.com/vigilcbt/vigil-backend/internal/middleware"
	"github.com/vigilcbt/vigil-backend/internal/response"
	"github.com/vigilcbt/vigil-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Session *handler.SessionHandler
	WS      *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	tokenService *service.TokenService,
	handlers *Handlers,
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
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally.
	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for the launch endpoint: it is the only route reachable
	// with an unverified credential.
	launchLimiter := middleware.NewRateLimiter(cfg.LaunchRateLimit, time.Minute)

	// ─── 1. Launch (Credential in Query, Rate Limited) ─────────────────
	launch := router.Group("/api/v1/session")
	launch.Use(launchLimiter.Middleware())
	{
		launch.GET("/launch", handlers.Session.Launch)
	}

	// ─── 2. Session Group (Entry Credential) ───────────────────────────
	sessionAPI := router.Group("/api/v1/session")
	sessionAPI.Use(middleware.RequireEntryCredential(tokenService))
	{
		sessionAPI.POST("/exams/:exam_id/security-checks", handlers.Session.RunSecurityChecks)
		sessionAPI.POST("/exams/:exam_id/start", handlers.Session.Start)
		sessionAPI.GET("/exams/:exam_id/state", handlers.Session.State)
		sessionAPI.POST("/exams/:exam_id/submit", handlers.Session.Submit)
	}

	// ─── 3. WebSocket Group (Entry Credential via Query) ───────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireEntryCredential(tokenService))
	{
		ws.GET("/session/:exam_id/stream", handlers.WS.SessionStream)
	}

	return router
}
