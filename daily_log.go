package main

import (
	"errors"
	"math"
)

var errInvalidSlot = errors.New("slot must be one of: breakfast, lunch, dinner, snack")

// DailyLog is one user's record for one calendar date. Meals is the source of
// truth; SlotCalories and Totals are caches recomputed on every food mutation
// so reads are O(1).
type DailyLog struct {
	Date             string
	Meals            map[MealSlot][]FoodEntry
	SlotCalories     map[MealSlot]int
	Totals           Nutrients
	ExerciseCalories int
	SleepHours       float64
}

// newDailyLog returns a zeroed log for date. Callers decide whether to persist it.
func newDailyLog(date string) *DailyLog {
	l := &DailyLog{
		Date:         date,
		Meals:        make(map[MealSlot][]FoodEntry, len(mealSlots)),
		SlotCalories: make(map[MealSlot]int, len(mealSlots)),
	}
	for _, s := range mealSlots {
		l.Meals[s] = []FoodEntry{}
		l.SlotCalories[s] = 0
	}
	return l
}

// addFood appends e to slot in arrival order and recomputes the cached totals.
// There is no dedup: each call is a new real-world event.
func (l *DailyLog) addFood(slot MealSlot, e FoodEntry) error {
	if !slot.valid() {
		return errInvalidSlot
	}
	e.Position = len(l.Meals[slot])
	l.Meals[slot] = append(l.Meals[slot], e)
	l.recompute()
	return nil
}

// recompute rebuilds SlotCalories and Totals by summation over Meals.
func (l *DailyLog) recompute() {
	var totals Nutrients
	for _, s := range mealSlots {
		cal := 0
		for _, e := range l.Meals[s] {
			cal += e.Calories
			totals = totals.add(e.Nutrients)
		}
		l.SlotCalories[s] = cal
	}
	l.Totals = totals
}

// recordExercise adds calories burned by one logged activity.
func (l *DailyLog) recordExercise(calories int) {
	l.ExerciseCalories += calories
}

// logSleepSession adds one sleep session, given in minutes, to the day's hours.
func (l *DailyLog) logSleepSession(minutes float64) {
	l.SleepHours += minutes / 60
}

// setSleepHours replaces the day's sleep value outright.
func (l *DailyLog) setSleepHours(hours float64) {
	l.SleepHours = hours
}

// consumedCalories is the sum of all meal-slot calories for the day.
func (l *DailyLog) consumedCalories() int {
	total := 0
	for _, s := range mealSlots {
		total += l.SlotCalories[s]
	}
	return total
}

// remainingCalories = target - consumed + exercise. The value may go
// negative; clamping is a display concern.
func (l *DailyLog) remainingCalories(t DailyTargets) int {
	return t.Calories - l.consumedCalories() + l.ExerciseCalories
}

// summary builds the GET /api/daily-log response from the log and targets.
func (l *DailyLog) summary(t DailyTargets) dailySummary {
	return dailySummary{
		Date:             l.Date,
		Meals:            l.Meals,
		SlotCalories:     l.SlotCalories,
		Totals:           l.Totals,
		CaloriesFood:     l.consumedCalories(),
		CaloriesExercise: l.ExerciseCalories,
		CaloriesLeft:     l.remainingCalories(t),
		SleepHours:       l.SleepHours,
		Targets:          t,
	}
}

// nutrientPercentage returns current as a percentage of budget, clamped to
// 100 for display. A non-positive budget yields 0.
func nutrientPercentage(current, budget float64) float64 {
	if budget <= 0 {
		return 0
	}
	return math.Min(current/budget*100, 100)
}

// nutrientReport pairs each tracked nutrient with its budget, in display order.
func nutrientReport(totals Nutrients, t DailyTargets) []nutrientProgress {
	rows := []nutrientProgress{
		{Key: "protein", Current: totals.ProteinG, Budget: float64(t.ProteinG), Unit: "g"},
		{Key: "carbs", Current: totals.CarbsG, Budget: float64(t.CarbsG), Unit: "g"},
		{Key: "fat", Current: totals.FatG, Budget: float64(t.FatG), Unit: "g"},
		{Key: "fiber", Current: totals.FiberG, Budget: float64(t.FiberG), Unit: "g"},
		{Key: "sugar", Current: totals.SugarG, Budget: float64(t.SugarG), Unit: "g"},
		{Key: "saturated_fat", Current: totals.SaturatedFatG, Budget: float64(t.SaturatedFatG), Unit: "g"},
		{Key: "polyunsaturated_fat", Current: totals.PolyunsaturatedFatG, Budget: float64(t.PolyunsaturatedFatG), Unit: "g"},
		{Key: "monounsaturated_fat", Current: totals.MonounsaturatedFatG, Budget: float64(t.MonounsaturatedFatG), Unit: "g"},
		{Key: "cholesterol", Current: totals.CholesterolMg, Budget: float64(t.CholesterolMg), Unit: "mg"},
		{Key: "sodium", Current: totals.SodiumMg, Budget: float64(t.SodiumMg), Unit: "mg"},
		{Key: "potassium", Current: totals.PotassiumMg, Budget: float64(t.PotassiumMg), Unit: "mg"},
	}
	for i := range rows {
		rows[i].Percent = nutrientPercentage(rows[i].Current, rows[i].Budget)
	}
	return rows
}
