package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/goalstash/goalstash/internal/handler"
	"github.com/goalstash/goalstash/internal/health"
	"github.com/goalstash/goalstash/internal/identity"
	"github.com/goalstash/goalstash/internal/ledger"
	"github.com/goalstash/goalstash/internal/webhooks"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("stashd exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	// ── Configuration ────────────────────────────────────────────────────────
	viper.SetConfigName("stashd")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.issuer_url", "")
	viper.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	viper.SetDefault("server.rate_limit_rps", 20)
	viper.SetDefault("server.rate_limit_burst", 0) // 0 means 2*rps
	viper.SetDefault("server.rate_limit_stale_after", "10m")
	viper.SetDefault("server.operator_secret", "")
	viper.SetDefault("database.url", "")
	viper.SetDefault("identity.key_dir", "keys")
	viper.SetDefault("identity.token_ttl_seconds", 3600)
	viper.SetDefault("webhooks.health_interval", "5m")
	viper.SetDefault("webhooks.health_fail_threshold", 3)

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
		logger.Warn("no config file found, using defaults and env vars")
	}

	operatorSecret := viper.GetString("server.operator_secret")
	if operatorSecret == "" {
		return fmt.Errorf("server.operator_secret must be set (env SERVER_OPERATOR_SECRET)")
	}
	secretHash, err := bcrypt.GenerateFromPassword([]byte(operatorSecret), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash operator secret: %w", err)
	}

	// ── Storage ──────────────────────────────────────────────────────────────
	var (
		store    ledger.Store
		hookRepo webhooks.Repository
	)
	dbURL := viper.GetString("database.url")
	if dbURL != "" {
		db, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer db.Close()

		if err := db.Ping(context.Background()); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		logger.Info("connected to postgres")

		store = ledger.NewPostgresStore(db, logger)
		hookRepo = webhooks.NewPostgresRepository(db)
	} else {
		logger.Warn("database.url not set — using in-memory storage; state is lost on restart")
		store = ledger.NewMemoryStore()
		hookRepo = webhooks.NewMemoryRepository()
	}

	// ── Identity ─────────────────────────────────────────────────────────────
	keyDir := viper.GetString("identity.key_dir")
	key, err := identity.LoadOrCreateKey(keyDir)
	if err != nil {
		return fmt.Errorf("signing key setup failed: %w", err)
	}
	logger.Info("signing key ready", zap.String("key_dir", keyDir))

	httpPort := viper.GetInt("server.port")
	issuerURL := viper.GetString("server.issuer_url")
	if issuerURL == "" {
		issuerURL = fmt.Sprintf("http://localhost:%d", httpPort)
	}
	tokenTTL := time.Duration(viper.GetInt("identity.token_ttl_seconds")) * time.Second
	tokens := identity.NewTokenIssuer(key, issuerURL, tokenTTL)

	// ── Wire up layers ────────────────────────────────────────────────────────
	hookSvc := webhooks.NewService(hookRepo, logger)
	hookSvc.SetMetricsRecorder(handler.RecordWebhookDelivery)

	svc := ledger.NewService(store, hookSvc, logger)

	ledgerHandler := handler.NewLedgerHandler(svc, logger)
	tokenHandler := handler.NewTokenHandler(tokens, secretHash, logger)
	webhookHandler := handler.NewWebhookHandler(hookSvc, logger)

	// ── HTTP Router ───────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	// CORS
	corsOrigins := viper.GetStringSlice("server.cors_origins")
	corsConfig := cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !containsWildcard(corsOrigins),
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Security headers
	router.Use(func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	})

	// Request body size limit (1 MB)
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
		c.Next()
	})

	// Per-IP rate limiting
	rps := viper.GetInt("server.rate_limit_rps")
	if rps > 0 {
		staleAfter, err := time.ParseDuration(viper.GetString("server.rate_limit_stale_after"))
		if err != nil {
			return fmt.Errorf("parse server.rate_limit_stale_after: %w", err)
		}
		router.Use(handler.RateLimiter(handler.RateLimitConfig{
			RPS:        rps,
			Burst:      viper.GetInt("server.rate_limit_burst"),
			StaleAfter: staleAfter,
		}))
	}

	router.Use(requestLogger(logger))
	router.Use(handler.PrometheusMiddleware())

	// Health and metrics (public, no auth)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", handler.MetricsHandler())

	// API v1
	v1 := router.Group("/api/v1")
	tokenHandler.Register(v1)

	authed := v1.Group("", identity.RequireAccount(tokens))
	ledgerHandler.Register(authed)
	webhookHandler.Register(authed)

	// ── Server ────────────────────────────────────────────────────────────────
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", httpPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// ── Background: probe webhook endpoints, deactivate dead ones ────────────
	healthInterval, err := time.ParseDuration(viper.GetString("webhooks.health_interval"))
	if err != nil {
		return fmt.Errorf("parse webhooks.health_interval: %w", err)
	}
	prober := webhooks.NewProber(hookRepo)
	checker := health.New(prober, prober, health.Config{
		CheckInterval: healthInterval,
		FailThreshold: viper.GetInt("webhooks.health_fail_threshold"),
	}, logger)
	checkerQuit := make(chan os.Signal)
	go checker.Start(checkerQuit)

	go func() {
		logger.Info("stashd HTTP listening", zap.Int("port", httpPort))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP listen error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ──────────────────────────────────────────────────────
	<-quit
	logger.Info("shutting down stashd...")
	close(checkerQuit)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	// Let in-flight webhook deliveries drain.
	hookSvc.Wait()

	logger.Info("stashd stopped")
	return nil
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
