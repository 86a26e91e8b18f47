package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"shiftboard/internal/attendance"
	"shiftboard/internal/auth"
	"shiftboard/internal/config"
	"shiftboard/internal/httpapi"
	"shiftboard/internal/httpmiddleware"
	"shiftboard/internal/logging"
	"shiftboard/internal/roster"
	"shiftboard/internal/settings"
	"shiftboard/internal/sheets"
	"shiftboard/internal/sheetsync"
	"shiftboard/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logging.New(cfg.LogLevel)

	// Set Gin mode based on environment
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, log); err != nil {
		log.WithError(err).Fatal("http server failed")
	}
}

func runHTTP(cfg config.App, log *logrus.Logger) error {
	db, err := store.NewDB(context.Background(), cfg.DatabaseURL, store.Options{
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	loc, err := time.LoadLocation(cfg.DisplayTimezone)
	if err != nil {
		log.WithError(err).Warnf("invalid DISPLAY_TIMEZONE %q, using UTC", cfg.DisplayTimezone)
		loc = time.UTC
	}

	students := roster.NewRepository(db.Client)
	records := attendance.NewRepository(db.Client)
	taps := attendance.NewService(records, cfg.TapDedupWindow, loc)
	syncCfg := settings.NewSyncSettings(settings.NewRepository(db.Client))

	// Sheets collaborator (nil when not configured; sync becomes a no-op)
	var rows sheetsync.RowSource
	if cfg.SheetsConfigured() {
		client, err := sheets.New(context.Background(), sheets.Config{
			SpreadsheetID:   cfg.SheetsSpreadsheetID,
			Range:           cfg.SheetsRange,
			CredentialsFile: cfg.SheetsCredentialsFile,
			CredentialsJSON: cfg.SheetsCredentialsJSON,
		})
		if err != nil {
			return err
		}
		rows = client
		log.WithField("spreadsheet", cfg.SheetsSpreadsheetID).Info("Google Sheets sync configured")
	} else {
		log.Info("Google Sheets not configured (SHEETS_SPREADSHEET_ID / credentials not set), sync disabled")
	}

	syncer := sheetsync.New(sheetsync.Config{
		Rows:     rows,
		Students: students,
		Records:  records,
		Settings: syncCfg,
		Log:      log,
		Location: loc,
	})

	h := httpapi.New(cfg, log, students, records, taps, syncer, syncCfg, loc)

	r := gin.New()

	// Recovery middleware
	r.Use(gin.Recovery())

	// Custom logger
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))

	// CORS + security headers
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.RequestID())

	// Rate limiting: cross-process window via redis, in-process fallback
	rate := httpmiddleware.NewRedisWindow(redisClient.Client, "shiftboard:ratelimit", cfg.RateLimitPerMin)
	r.Use(rate.GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	r.POST("/v1/auth/login", h.Login)
	r.POST("/v1/taps", h.Tap)
	r.GET("/v1/students", h.ListStudents)
	r.GET("/v1/attendance", h.ListAttendance)
	r.GET("/v1/leaderboard", h.Leaderboard)

	adminGroup := r.Group("/v1/admin", auth.AdminAuth(cfg.JWTSigningKey, cfg.JWTIssuer))
	adminGroup.POST("/students", h.CreateStudent)
	adminGroup.GET("/settings/sync", h.GetSyncSettings)
	adminGroup.PUT("/settings/sync", h.PutSyncSettings)
	adminGroup.POST("/sync", h.ManualSync)

	r.POST("/v1/cron/sync", auth.SyncAuth(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.SyncSharedSecret), h.CronSync)

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server forced shutdown")
	}

	log.Info("server exited")
	return nil
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Sync-Secret")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
