package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"classroll/internal/attendance"
	"classroll/internal/auth"
	"classroll/internal/config"
	"classroll/internal/device"
	"classroll/internal/erpclient"
	"classroll/internal/handler"
	"classroll/internal/httpmiddleware"
	"classroll/internal/logging"
	"classroll/internal/metrics"
	"classroll/internal/rostercache"
	"classroll/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger setup failed: %v", err)
	}

	if err := runHTTP(cfg, logger); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App, logger logr.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Register(prometheus.DefaultRegisterer)

	db, err := store.NewDB(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Printf("warning: db not reachable: %v", err)
	}
	if db == nil {
		return err
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		log.Printf("warning: schema not ensured: %v", err)
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	erp := erpclient.New(cfg.ERPBaseURL, cfg.ERPTimeout, logger.WithName("erp"))
	gateways := func(token string) attendance.Gateway {
		client := erp.WithToken(token)
		if !cfg.RosterCache {
			return client
		}
		return rostercache.Wrap(client, redisClient.Client, cfg.RosterCacheTTL, logger.WithName("rostercache"))
	}

	registry := handler.NewRegistry(cfg.SessionIdleTTL)
	issuer := auth.NewIssuer(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
	api := handler.New(logger.WithName("api"), erp, gateways, registry, issuer, device.NewRepository(db.Client))

	ipLimit := httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin*2, cfg.RateLimitPerMin*2)
	sessionLimit := httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.RequestID())
	r.Use(httpmiddleware.ScopedLogger(logger.WithName("api")))
	r.Use(ipLimit.GinMiddleware(httpmiddleware.ByClientIP))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Healthy(c.Request.Context())
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy, "sessions": registry.Len()})
	})

	api.Register(r, sessionLimit.GinMiddleware(httpmiddleware.BySession))

	go registry.Run(ctx, time.Minute, logger.WithName("registry"))
	go sweepLimiters(ctx, ipLimit, sessionLimit)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ERPTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Println("Shutting down server...")

	// Give outstanding requests, including in-flight submits, time to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ERPTimeout+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

func corsConfig(origins string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", httpmiddleware.RequestIDHeader},
		ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           24 * time.Hour,
	}
	if origins == "" || origins == "*" {
		cfg.AllowAllOrigins = true
		return cfg
	}
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowOrigins = append(cfg.AllowOrigins, o)
		}
	}
	return cfg
}

func sweepLimiters(ctx context.Context, limiters ...*httpmiddleware.SimpleTokenBucket) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, l := range limiters {
				l.Sweep()
			}
		}
	}
}
