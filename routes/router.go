package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/cppla/dailyink/clock"
	"github.com/cppla/dailyink/config"
	"github.com/cppla/dailyink/controllers"
	"github.com/cppla/dailyink/middleware"
	"github.com/cppla/dailyink/services"
	"github.com/cppla/dailyink/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(cfg config.AppConfig, db *gorm.DB, svc *services.Writing, clk *clock.Resolver) *gin.Engine {
	switch strings.ToLower(cfg.App.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Access log goes to its own rolling file, not the application log
	gl, err := utils.NewRollingFileLogger(cfg.App.GinLogPath, cfg.Log)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, true))
	} else {
		// fallback to default recovery if logger failed to init
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.App.AllowedOrigins) == 1 && cfg.App.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.App.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	writingController := controllers.NewWritingController(svc)
	statsController := controllers.NewStatsController(db, clk)
	configController := controllers.NewConfigController(cfg)

	limiter := middleware.NewRateLimiter(cfg.App.RateLimitPerMinute)
	api := r.Group("/api/v1")

	// Public read-only endpoints
	api.GET("/stats", limiter.Handler("stats"), statsController.GetStats)
	api.GET("/config/quota", configController.GetQuota)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired(), limiter.Handler("api"))
	protected.POST("/submissions", writingController.Submit)
	protected.POST("/submissions/:id/feedback", writingController.GiveFeedback)
	protected.GET("/submissions/:id/feedback", writingController.ReceivedFeedback)
	protected.GET("/me/status", writingController.Status)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
	})

	return r
}
