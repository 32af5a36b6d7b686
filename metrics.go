package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics holds the service's Prometheus instruments.
type metrics struct {
	httpRequests     *prometheus.CounterVec
	foodEntries      *prometheus.CounterVec
	exerciseCalories prometheus.Counter
	inference        *prometheus.CounterVec
	inferenceLatency *prometheus.HistogramVec
	rateLimited      prometheus.Counter
	loginFailures    prometheus.Counter
}

// newMetrics creates the instruments and registers them on reg.
func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nutrition_http_requests_total",
			Help: "HTTP responses by route and status code.",
		}, []string{"route", "status_code"}),
		foodEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nutrition_food_entries_total",
			Help: "Food entries logged, by meal slot and source.",
		}, []string{"slot", "source"}),
		exerciseCalories: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nutrition_exercise_calories_total",
			Help: "Exercise calories recorded across all users.",
		}),
		inference: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nutrition_inference_requests_total",
			Help: "Inference calls by kind and outcome.",
		}, []string{"kind", "outcome"}),
		inferenceLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nutrition_inference_latency_seconds",
			Help:    "Inference call latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nutrition_rate_limited_total",
			Help: "Requests rejected by the per-user inference limiter.",
		}),
		loginFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nutrition_login_failures_total",
			Help: "Rejected login attempts.",
		}),
	}

	reg.MustRegister(
		m.httpRequests,
		m.foodEntries,
		m.exerciseCalories,
		m.inference,
		m.inferenceLatency,
		m.rateLimited,
		m.loginFailures,
	)
	return m
}

func (m *metrics) recordFoodEntry(slot MealSlot, isAI bool) {
	source := "manual"
	if isAI {
		source = "ai"
	}
	m.foodEntries.WithLabelValues(string(slot), source).Inc()
}

func (m *metrics) recordExercise(calories int) {
	m.exerciseCalories.Add(float64(calories))
}

// recordInference counts one call; outcome is "food", "reply" or "error".
func (m *metrics) recordInference(kind, outcome string, d time.Duration) {
	m.inference.WithLabelValues(kind, outcome).Inc()
	m.inferenceLatency.WithLabelValues(kind).Observe(d.Seconds())
}

// middleware counts every response by matched route.
func (m *metrics) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// metricsHandler serves the Prometheus scrape endpoint for gatherer.
func metricsHandler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
