package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Handler holds shared dependencies for all route handlers.
type Handler struct {
	store      Store
	log        *zap.SugaredLogger
	inference  *inferenceClient
	thumbnails thumbnailStore // nil when no bucket is configured
	metrics    *metrics
	gatherer   prometheus.Gatherer
	limiter    *rateLimiter
	now        func() time.Time // overridable for tests
}

// apiError returns a consistent JSON error response: {"error": "message"}.
func apiError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

/* ─── Request helpers ────────────────────────────────────────────────── */

// today returns the current calendar date as YYYY-MM-DD.
func (h *Handler) today() string {
	return h.now().Format(dateLayout)
}

// resolveDate returns date, or today when empty. Any other value must parse
// as YYYY-MM-DD.
func (h *Handler) resolveDate(date string) (string, error) {
	if date == "" {
		return h.today(), nil
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		return "", fmt.Errorf("invalid date %q, expected YYYY-MM-DD", date)
	}
	return date, nil
}

// loadProfile returns the user's profile. A user who never saved one gets an
// empty profile, which computes fallback targets.
func (h *Handler) loadProfile(ctx context.Context, userID int) (Profile, error) {
	p, err := h.store.GetProfile(ctx, userID)
	if errors.Is(err, errNotFound) {
		return Profile{UserID: userID, MedicalConditions: []string{}}, nil
	}
	return p, err
}

// targetsFor loads the profile and computes today's targets from it.
func (h *Handler) targetsFor(ctx context.Context, userID int) (Profile, DailyTargets, error) {
	p, err := h.loadProfile(ctx, userID)
	if err != nil {
		return Profile{}, DailyTargets{}, err
	}
	return p, computeTargets(&p, h.now()), nil
}

func (h *Handler) tracker(c *gin.Context) *Tracker {
	t := newTracker(h.store, c.GetInt("user_id"))
	t.now = h.now
	return t
}

/* ─── Server setup ────────────────────────────────────────────────────── */

// getDBPool creates a connection pool. We use a pool (not a single conn) because
// Neon closes idle connections after ~5 minutes.
func getDBPool(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse DB URL: %w", err)
	}
	// Use simple query protocol to avoid "cached plan must not change result type"
	// errors from Neon's server-side prepared statement cache after schema changes.
	config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// registerRoutes registers all API routes on the router.
func (h *Handler) registerRoutes(router *gin.Engine) {
	router.Use(requestLogger(h.log), h.metrics.middleware())

	// Public routes
	router.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(metricsHandler(h.gatherer)))
	router.POST("/api/login", h.login)

	// Authenticated routes
	api := router.Group("/api", h.authMiddleware())
	api.GET("/profile", h.getProfile)
	api.PUT("/profile", h.putProfile)
	api.GET("/profile/targets", h.getTargets)
	api.GET("/daily-log", h.getDailyLog)
	api.POST("/daily-log/food", h.addFood)
	api.POST("/daily-log/exercise", h.recordExercise)
	api.POST("/daily-log/sleep", h.logSleepSession)
	api.PUT("/daily-log/sleep", h.setSleepHours)
	api.GET("/daily-log/report", h.getNutritionReport)
	api.GET("/daily-log/progress", h.getProgress)
	api.GET("/daily-log/earliest-date", h.getEarliestLogDate)
	api.GET("/activities", h.getActivities)

	// Inference routes share a per-user limiter.
	ai := api.Group("", h.limiter.middleware(h.metrics.rateLimited.Inc))
	ai.POST("/analyze/text", h.analyzeText)
	ai.POST("/analyze/image", h.analyzeImage)
	ai.POST("/chat", h.chat)
}
