package main

import (
	"math"
	"time"
)

// fallbackCalories is the daily target used when weight, height, or date of
// birth is missing. Budgets are still derived from it so the report has
// something to measure against.
const fallbackCalories = 2000

// activityMultipliers maps activity level strings to their TDEE multiplier.
// "medium" and "moderate" are the same tier under two product vocabularies.
// Unknown levels fall back to the low multiplier (see activityMultiplier).
var activityMultipliers = map[string]float64{
	"low":      1.2,
	"medium":   1.55,
	"moderate": 1.55,
	"high":     1.725,
}

// goalAdjustments maps goals to a daily kcal offset applied after TDEE.
var goalAdjustments = map[string]float64{
	"lose":      -500,
	"loss":      -500,
	"maintain":  0,
	"undecided": 0,
	"gain":      500,
}

// validGenders is used for input validation in putProfile.
var validGenders = map[string]bool{"male": true, "female": true}

// calculateAge returns whole years between dob and today, comparing calendar
// month/day so a birthday not yet reached this year counts one year less.
func calculateAge(dob, today time.Time) int {
	age := today.Year() - dob.Year()
	if today.Month() < dob.Month() || (today.Month() == dob.Month() && today.Day() < dob.Day()) {
		age--
	}
	return age
}

// calculateBMR uses Mifflin-St Jeor: +5 for male, -161 otherwise.
func calculateBMR(weightKG, heightCM float64, age int, gender string) float64 {
	bmr := 10*weightKG + 6.25*heightCM - 5*float64(age)
	if gender == "male" {
		return bmr + 5
	}
	return bmr - 161
}

func activityMultiplier(level string) float64 {
	if m, ok := activityMultipliers[level]; ok {
		return m
	}
	return activityMultipliers["low"]
}

func goalAdjustment(goal string) float64 {
	return goalAdjustments[goal] // unknown goals adjust by 0
}

// computeTargets turns a profile into daily calorie, macro, and micronutrient
// budgets. It never fails: a profile missing weight, height, or date of birth
// gets the fallbackCalories target with Fallback=true. Implausible but numeric
// inputs are applied as-is.
func computeTargets(p *Profile, today time.Time) DailyTargets {
	if p == nil || p.WeightKG == nil || *p.WeightKG <= 0 ||
		p.HeightCM == nil || *p.HeightCM <= 0 ||
		p.DateOfBirth == nil || p.DateOfBirth.IsZero() {
		t := budgetsFor(fallbackCalories)
		t.Fallback = true
		return t
	}

	age := calculateAge(p.DateOfBirth.Time, today)
	bmr := calculateBMR(*p.WeightKG, *p.HeightCM, age, p.Gender)
	tdee := bmr * activityMultiplier(p.ActivityLevel)

	// Use math.Round to avoid systematic under-reporting from truncation.
	t := budgetsFor(int(math.Round(tdee + goalAdjustment(p.Goal))))
	t.BMR = int(math.Round(bmr))
	t.TDEE = int(math.Round(tdee))
	return t
}

// budgetsFor derives macro and micronutrient budgets from a calorie target.
// Protein and carbs are 4 kcal/g, fat 9 kcal/g.
func budgetsFor(calories int) DailyTargets {
	cal := float64(calories)
	fat := round(cal * 0.30 / 9)
	return DailyTargets{
		Calories:            calories,
		ProteinG:            round(cal * 0.30 / 4),
		CarbsG:              round(cal * 0.40 / 4),
		FatG:                fat,
		FiberG:              25,
		SugarG:              round(cal * 0.10 / 4),
		SaturatedFatG:       round(cal * 0.10 / 9),
		PolyunsaturatedFatG: round(float64(fat) * 0.30),
		MonounsaturatedFatG: round(float64(fat) * 0.40),
		CholesterolMg:       300,
		SodiumMg:            2300,
		PotassiumMg:         3500,
	}
}

func round(f float64) int {
	return int(math.Round(f))
}

// calculateBMI returns weight / height_m², rounded to one decimal.
// Returns 0 when height is not positive.
func calculateBMI(weightKG, heightCM float64) float64 {
	if heightCM <= 0 {
		return 0
	}
	h := heightCM / 100
	return math.Round(weightKG/(h*h)*10) / 10
}

// bmiCategory labels a BMI value using the WHO adult bands.
func bmiCategory(bmi float64) string {
	switch {
	case bmi <= 0:
		return ""
	case bmi < 18.5:
		return "underweight"
	case bmi < 25:
		return "normal"
	case bmi < 30:
		return "overweight"
	default:
		return "obese"
	}
}
