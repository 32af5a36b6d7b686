package main

import (
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// maxSleepHours caps a direct sleep edit; sessions may still add past it.
const maxSleepHours = 24

// getDailyLog returns the day's meals, cached totals, and targets.
// GET /api/daily-log?date=YYYY-MM-DD (defaults to today). A day with nothing
// logged returns a zeroed log; nothing is written.
func (h *Handler) getDailyLog(c *gin.Context) {
	userID := c.GetInt("user_id")
	date, err := h.resolveDate(c.Query("date"))
	if err != nil {
		apiError(c, http.StatusBadRequest, err.Error())
		return
	}

	_, targets, err := h.targetsFor(c, userID)
	if err != nil {
		h.log.Errorw("load profile failed", "user_id", userID, "error", err)
		apiError(c, http.StatusInternalServerError, "failed to fetch profile")
		return
	}
	l, err := h.tracker(c).getLog(c, date)
	if err != nil {
		h.log.Errorw("load daily log failed", "user_id", userID, "date", date, "error", err)
		apiError(c, http.StatusInternalServerError, "failed to fetch daily log")
		return
	}

	c.JSON(http.StatusOK, l.summary(targets))
}

// addFood logs one confirmed food entry into a meal slot.
// POST /api/daily-log/food. Defaults date to today if omitted.
func (h *Handler) addFood(c *gin.Context) {
	userID := c.GetInt("user_id")

	var body addFoodRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	date, err := h.resolveDate(body.Date)
	if err != nil {
		apiError(c, http.StatusBadRequest, err.Error())
		return
	}
	if !body.Slot.valid() {
		apiError(c, http.StatusBadRequest, errInvalidSlot.Error())
		return
	}
	body.Name = strings.TrimSpace(body.Name)
	if body.Name == "" {
		apiError(c, http.StatusBadRequest, "name is required")
		return
	}
	if body.Calories < 0 || hasNegative(body.Nutrients) {
		apiError(c, http.StatusBadRequest, "calories and nutrients must not be negative")
		return
	}

	_, targets, err := h.targetsFor(c, userID)
	if err != nil {
		h.log.Errorw("load profile failed", "user_id", userID, "error", err)
		apiError(c, http.StatusInternalServerError, "failed to fetch profile")
		return
	}
	l, err := h.tracker(c).addFood(c, date, body.Slot, FoodEntry{
		Name:      body.Name,
		Calories:  body.Calories,
		Nutrients: body.Nutrients,
		Thumbnail: body.Thumbnail,
		IsAI:      body.IsAI,
	})
	if err != nil {
		h.log.Errorw("add food failed", "user_id", userID, "date", date, "error", err)
		apiError(c, http.StatusInternalServerError, "failed to log food")
		return
	}
	h.metrics.recordFoodEntry(body.Slot, body.IsAI)

	c.JSON(http.StatusCreated, l.summary(targets))
}

// recordExercise adds burned calories to the day. With "calories" set the
// entry is manual; otherwise calories are estimated from activity and minutes.
// POST /api/daily-log/exercise.
func (h *Handler) recordExercise(c *gin.Context) {
	userID := c.GetInt("user_id")

	var body exerciseRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	date, err := h.resolveDate(body.Date)
	if err != nil {
		apiError(c, http.StatusBadRequest, err.Error())
		return
	}

	var calories int
	switch {
	case body.Calories != nil:
		if *body.Calories < 0 {
			apiError(c, http.StatusBadRequest, "calories must not be negative")
			return
		}
		calories = *body.Calories
	case strings.TrimSpace(body.Activity) == "":
		apiError(c, http.StatusBadRequest, "activity or calories is required")
		return
	case body.Minutes < 0:
		apiError(c, http.StatusBadRequest, "minutes must not be negative")
		return
	default:
		calories = estimateCalories(strings.TrimSpace(body.Activity), body.Minutes)
	}

	_, targets, err := h.targetsFor(c, userID)
	if err != nil {
		h.log.Errorw("load profile failed", "user_id", userID, "error", err)
		apiError(c, http.StatusInternalServerError, "failed to fetch profile")
		return
	}
	l, err := h.tracker(c).recordExercise(c, date, calories)
	if err != nil {
		h.log.Errorw("record exercise failed", "user_id", userID, "date", date, "error", err)
		apiError(c, http.StatusInternalServerError, "failed to record exercise")
		return
	}
	h.metrics.recordExercise(calories)

	c.JSON(http.StatusOK, l.summary(targets))
}

// logSleepSession adds one sleep session, in minutes, to the day.
// POST /api/daily-log/sleep.
func (h *Handler) logSleepSession(c *gin.Context) {
	userID := c.GetInt("user_id")

	var body sleepRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	date, err := h.resolveDate(body.Date)
	if err != nil {
		apiError(c, http.StatusBadRequest, err.Error())
		return
	}
	if body.Minutes == nil || *body.Minutes < 0 {
		apiError(c, http.StatusBadRequest, "minutes is required and must not be negative")
		return
	}

	_, targets, err := h.targetsFor(c, userID)
	if err != nil {
		h.log.Errorw("load profile failed", "user_id", userID, "error", err)
		apiError(c, http.StatusInternalServerError, "failed to fetch profile")
		return
	}
	l, err := h.tracker(c).logSleepSession(c, date, *body.Minutes)
	if err != nil {
		h.log.Errorw("log sleep failed", "user_id", userID, "date", date, "error", err)
		apiError(c, http.StatusInternalServerError, "failed to log sleep")
		return
	}

	c.JSON(http.StatusOK, l.summary(targets))
}

// setSleepHours replaces the day's sleep total.
// PUT /api/daily-log/sleep.
func (h *Handler) setSleepHours(c *gin.Context) {
	userID := c.GetInt("user_id")

	var body sleepRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	date, err := h.resolveDate(body.Date)
	if err != nil {
		apiError(c, http.StatusBadRequest, err.Error())
		return
	}
	if body.Hours == nil || *body.Hours < 0 || *body.Hours > maxSleepHours {
		apiError(c, http.StatusBadRequest, "hours is required and must be between 0 and 24")
		return
	}

	_, targets, err := h.targetsFor(c, userID)
	if err != nil {
		h.log.Errorw("load profile failed", "user_id", userID, "error", err)
		apiError(c, http.StatusInternalServerError, "failed to fetch profile")
		return
	}
	l, err := h.tracker(c).setSleepHours(c, date, *body.Hours)
	if err != nil {
		h.log.Errorw("set sleep failed", "user_id", userID, "date", date, "error", err)
		apiError(c, http.StatusInternalServerError, "failed to set sleep")
		return
	}

	c.JSON(http.StatusOK, l.summary(targets))
}

// getNutritionReport returns calorie balance and each nutrient's progress
// against its budget. Percentages are clamped to 100; current values are not.
// GET /api/daily-log/report?date=YYYY-MM-DD (defaults to today).
func (h *Handler) getNutritionReport(c *gin.Context) {
	userID := c.GetInt("user_id")
	date, err := h.resolveDate(c.Query("date"))
	if err != nil {
		apiError(c, http.StatusBadRequest, err.Error())
		return
	}

	_, targets, err := h.targetsFor(c, userID)
	if err != nil {
		h.log.Errorw("load profile failed", "user_id", userID, "error", err)
		apiError(c, http.StatusInternalServerError, "failed to fetch profile")
		return
	}
	l, err := h.tracker(c).getLog(c, date)
	if err != nil {
		h.log.Errorw("load daily log failed", "user_id", userID, "date", date, "error", err)
		apiError(c, http.StatusInternalServerError, "failed to fetch daily log")
		return
	}

	consumed := l.consumedCalories()
	c.JSON(http.StatusOK, nutritionReport{
		Date:             date,
		CaloriesTarget:   targets.Calories,
		CaloriesFood:     consumed,
		CaloriesExercise: l.ExerciseCalories,
		CaloriesLeft:     l.remainingCalories(targets),
		CaloriesPercent:  nutrientPercentage(float64(consumed), float64(targets.Calories)),
		SleepHours:       l.SleepHours,
		Nutrients:        nutrientReport(l.Totals, targets),
	})
}

// getProgress returns per-day totals and aggregate stats for a date range.
// GET /api/daily-log/progress?start=YYYY-MM-DD&end=YYYY-MM-DD. Both params required.
// Only days with a saved log are returned (no gap-filling; the frontend handles that).
// Each day is measured against the current target, as targets are not stored.
func (h *Handler) getProgress(c *gin.Context) {
	userID := c.GetInt("user_id")
	start := c.Query("start")
	end := c.Query("end")

	if start == "" || end == "" {
		apiError(c, http.StatusBadRequest, "start and end query params are required")
		return
	}
	if _, err := time.Parse(dateLayout, start); err != nil {
		apiError(c, http.StatusBadRequest, "invalid start, expected YYYY-MM-DD")
		return
	}
	if _, err := time.Parse(dateLayout, end); err != nil {
		apiError(c, http.StatusBadRequest, "invalid end, expected YYYY-MM-DD")
		return
	}
	if start > end {
		apiError(c, http.StatusBadRequest, "start must not be after end")
		return
	}

	_, targets, err := h.targetsFor(c, userID)
	if err != nil {
		h.log.Errorw("load profile failed", "user_id", userID, "error", err)
		apiError(c, http.StatusInternalServerError, "failed to fetch profile")
		return
	}
	rows, err := h.store.ListDailyLogs(c, userID, start, end)
	if err != nil {
		h.log.Errorw("list daily logs failed", "user_id", userID, "error", err)
		apiError(c, http.StatusInternalServerError, "failed to fetch progress data")
		return
	}

	c.JSON(http.StatusOK, buildProgress(rows, targets.Calories))
}

// buildProgress turns stored aggregate rows into the progress response.
func buildProgress(rows []dailyLogRow, budget int) progressResponse {
	days := make([]daySummary, 0, len(rows))
	var stats progressStats
	var sleep float64
	for _, row := range rows {
		food := row.Breakfast + row.Lunch + row.Dinner + row.Snack
		left := budget - food + row.Exercise
		days = append(days, daySummary{
			Date:             row.Date,
			CalorieBudget:    budget,
			CaloriesFood:     food,
			CaloriesExercise: row.Exercise,
			CaloriesLeft:     left,
			SleepHours:       row.Sleep,
			Totals:           row.Nutrients,
		})
		stats.DaysTracked++
		if left >= 0 {
			stats.DaysOnBudget++
		}
		stats.AvgCaloriesFood += food
		stats.AvgCaloriesExercise += row.Exercise
		sleep += row.Sleep
	}

	// Convert totals to averages.
	if stats.DaysTracked > 0 {
		stats.AvgCaloriesFood /= stats.DaysTracked
		stats.AvgCaloriesExercise /= stats.DaysTracked
		stats.AvgSleepHours = math.Round(sleep/float64(stats.DaysTracked)*10) / 10
	}
	return progressResponse{Days: days, Stats: stats}
}

// getEarliestLogDate returns the earliest date the user has a saved log.
// GET /api/daily-log/earliest-date. Used by the frontend to compute the "All Time" range start.
// Returns { "date": "YYYY-MM-DD" } or { "date": null } if nothing is logged.
func (h *Handler) getEarliestLogDate(c *gin.Context) {
	userID := c.GetInt("user_id")

	date, err := h.store.EarliestLogDate(c, userID)
	if err != nil {
		h.log.Errorw("earliest log date failed", "user_id", userID, "error", err)
		apiError(c, http.StatusInternalServerError, "failed to fetch earliest date")
		return
	}

	c.JSON(http.StatusOK, gin.H{"date": date})
}

// getActivities lists the recommended quick-log activities with estimates.
// GET /api/activities.
func (h *Handler) getActivities(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"activities":          listRecommendedActivities(),
		"coefficients":        activityCoefficients,
		"default_coefficient": defaultCoefficient,
	})
}

func hasNegative(n Nutrients) bool {
	for _, v := range []float64{
		n.ProteinG, n.CarbsG, n.FatG, n.FiberG, n.SugarG, n.SaturatedFatG,
		n.PolyunsaturatedFatG, n.MonounsaturatedFatG, n.CholesterolMg, n.SodiumMg, n.PotassiumMg,
	} {
		if v < 0 {
			return true
		}
	}
	return false
}
