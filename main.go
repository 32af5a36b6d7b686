package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"lg/nutrition-log-api/db"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		newLogger("info").Fatalw("load config failed", "error", err)
	}
	log := newLogger(cfg.LogLevel)
	defer log.Sync()

	if cfg.MigrateOnStart {
		if err := db.Up(cfg.DBURL); err != nil {
			log.Fatalw("migrations failed", "error", err)
		}
		log.Info("migrations applied")
	}

	ctx := context.Background()
	pool, err := getDBPool(ctx, cfg.DBURL)
	if err != nil {
		log.Fatalw("database unavailable", "error", err)
	}
	defer pool.Close()
	log.Info("DB pool ready")

	if cfg.OpenAIAPIKey == "" {
		log.Warn("OPENAI_API_KEY is not set; analyze and chat routes will fail")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	limiter := newRateLimiter(cfg.RateLimitPerMinute)
	defer limiter.stop()

	h := &Handler{
		store:     newPGStore(pool),
		log:       log,
		inference: newInferenceClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.InferenceTimeout),
		metrics:   newMetrics(reg),
		gatherer:  reg,
		limiter:   limiter,
		now:       time.Now,
	}
	if cfg.S3Bucket != "" {
		thumbs, err := newS3Thumbnails(ctx, cfg.S3Bucket, cfg.S3Region, cfg.ThumbnailBaseURL)
		if err != nil {
			log.Fatalw("thumbnail storage unavailable", "error", err)
		}
		h.thumbnails = thumbs
	}

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.SetTrustedProxies(nil)
	h.registerRoutes(router)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infow("starting HTTP server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("HTTP server failed", "error", err)
		}
	}()

	// Wait for termination signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("HTTP server shutdown failed", "error", err)
	}
}
