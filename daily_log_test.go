package main

import (
	"errors"
	"math"
	"testing"
)

func egg() FoodEntry {
	return FoodEntry{Name: "Egg", Calories: 78, Nutrients: Nutrients{ProteinG: 6.3, FatG: 5.3, CholesterolMg: 186, SodiumMg: 62}}
}

func rice() FoodEntry {
	return FoodEntry{Name: "Rice", Calories: 205, Nutrients: Nutrients{ProteinG: 4.3, CarbsG: 44.5, FiberG: 0.6}}
}

func TestNewDailyLog_Zeroed(t *testing.T) {
	l := newDailyLog("2025-06-15")
	for _, s := range mealSlots {
		if len(l.Meals[s]) != 0 || l.SlotCalories[s] != 0 {
			t.Errorf("slot %s not empty", s)
		}
	}
	if l.consumedCalories() != 0 || l.ExerciseCalories != 0 || l.SleepHours != 0 {
		t.Errorf("new log not zeroed: %+v", l)
	}
	if l.Totals != (Nutrients{}) {
		t.Errorf("totals = %+v, want zero", l.Totals)
	}
}

func TestAddFood_AppendsAndRecomputes(t *testing.T) {
	l := newDailyLog("2025-06-15")
	if err := l.addFood(SlotBreakfast, egg()); err != nil {
		t.Fatal(err)
	}
	if err := l.addFood(SlotBreakfast, egg()); err != nil {
		t.Fatal(err)
	}
	if err := l.addFood(SlotLunch, rice()); err != nil {
		t.Fatal(err)
	}

	if got := len(l.Meals[SlotBreakfast]); got != 2 {
		t.Fatalf("breakfast entries = %d, want 2 (no dedup)", got)
	}
	for i, e := range l.Meals[SlotBreakfast] {
		if e.Position != i {
			t.Errorf("entry %d position = %d", i, e.Position)
		}
	}
	if l.SlotCalories[SlotBreakfast] != 156 || l.SlotCalories[SlotLunch] != 205 {
		t.Errorf("slot calories = %v", l.SlotCalories)
	}
	if l.consumedCalories() != 361 {
		t.Errorf("consumed = %d, want 361", l.consumedCalories())
	}
	if math.Abs(l.Totals.ProteinG-16.9) > 1e-9 {
		t.Errorf("protein = %v, want 16.9", l.Totals.ProteinG)
	}
	if l.Totals.CholesterolMg != 372 {
		t.Errorf("cholesterol = %v, want 372", l.Totals.CholesterolMg)
	}
}

func TestAddFood_InvalidSlot(t *testing.T) {
	l := newDailyLog("2025-06-15")
	err := l.addFood("brunch", egg())
	if !errors.Is(err, errInvalidSlot) {
		t.Fatalf("err = %v, want errInvalidSlot", err)
	}
	if l.consumedCalories() != 0 {
		t.Error("invalid slot must not change the log")
	}
}

// TestAddFood_OrderIndependentTotals verifies day totals do not depend on the
// order entries arrive in.
func TestAddFood_OrderIndependentTotals(t *testing.T) {
	a := newDailyLog("2025-06-15")
	a.addFood(SlotBreakfast, egg())
	a.addFood(SlotDinner, rice())

	b := newDailyLog("2025-06-15")
	b.addFood(SlotDinner, rice())
	b.addFood(SlotBreakfast, egg())

	if a.Totals != b.Totals {
		t.Errorf("totals differ: %+v vs %+v", a.Totals, b.Totals)
	}
	if a.consumedCalories() != b.consumedCalories() {
		t.Errorf("consumed differs: %d vs %d", a.consumedCalories(), b.consumedCalories())
	}
}

func TestRecordExercise_Additive(t *testing.T) {
	l := newDailyLog("2025-06-15")
	l.recordExercise(240)
	l.recordExercise(60)
	if l.ExerciseCalories != 300 {
		t.Errorf("exercise = %d, want 300", l.ExerciseCalories)
	}
}

func TestSleep(t *testing.T) {
	l := newDailyLog("2025-06-15")
	l.logSleepSession(360)
	l.logSleepSession(90)
	if l.SleepHours != 7.5 {
		t.Errorf("after sessions sleep = %v, want 7.5", l.SleepHours)
	}
	l.setSleepHours(8)
	if l.SleepHours != 8 {
		t.Errorf("after set sleep = %v, want 8", l.SleepHours)
	}
}

// TestRemainingCalories_Unclamped verifies the balance can go negative.
func TestRemainingCalories_Unclamped(t *testing.T) {
	l := newDailyLog("2025-06-15")
	l.addFood(SlotDinner, FoodEntry{Name: "Feast", Calories: 2400})
	l.recordExercise(300)

	got := l.remainingCalories(DailyTargets{Calories: 2000})
	if got != -100 {
		t.Errorf("remaining = %d, want -100", got)
	}
}

func TestNutrientPercentage(t *testing.T) {
	cases := []struct {
		name            string
		current, budget float64
		want            float64
	}{
		{"half", 50, 100, 50},
		{"exact", 100, 100, 100},
		{"over budget clamps", 250, 100, 100},
		{"zero budget", 10, 0, 0},
		{"negative budget", 10, -5, 0},
		{"nothing eaten", 0, 100, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := nutrientPercentage(tc.current, tc.budget); got != tc.want {
				t.Errorf("nutrientPercentage(%v, %v) = %v, want %v", tc.current, tc.budget, got, tc.want)
			}
		})
	}
}

// TestNutrientReport_CurrentNotClamped verifies the report keeps the real
// intake even when the percentage is capped.
func TestNutrientReport_CurrentNotClamped(t *testing.T) {
	targets := budgetsFor(fallbackCalories)
	rows := nutrientReport(Nutrients{ProteinG: 300, SodiumMg: 1150}, targets)

	if len(rows) != 11 {
		t.Fatalf("rows = %d, want 11", len(rows))
	}
	byKey := map[string]nutrientProgress{}
	for _, r := range rows {
		byKey[r.Key] = r
	}
	if p := byKey["protein"]; p.Current != 300 || p.Percent != 100 || p.Budget != 150 {
		t.Errorf("protein row = %+v", p)
	}
	if s := byKey["sodium"]; s.Percent != 50 || s.Unit != "mg" {
		t.Errorf("sodium row = %+v", s)
	}
}

func TestSummary(t *testing.T) {
	l := newDailyLog("2025-06-15")
	l.addFood(SlotLunch, rice())
	l.recordExercise(50)

	s := l.summary(DailyTargets{Calories: 2000})
	if s.CaloriesFood != 205 || s.CaloriesExercise != 50 || s.CaloriesLeft != 1845 {
		t.Errorf("summary = %+v", s)
	}
	if s.Date != "2025-06-15" || s.Targets.Calories != 2000 {
		t.Errorf("summary date/targets = %s/%d", s.Date, s.Targets.Calories)
	}
}
