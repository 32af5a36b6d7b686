package main

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// dateLayout is the calendar-date key format used for daily logs.
const dateLayout = "2006-01-02"

// DateOnly wraps time.Time to serialize as "YYYY-MM-DD" in JSON.
type DateOnly struct{ time.Time }

func (d DateOnly) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Time.Format(dateLayout) + `"`), nil
}

func (d *DateOnly) UnmarshalJSON(b []byte) error {
	t, err := time.Parse(`"`+dateLayout+`"`, string(b))
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// ScanDate implements pgtype.DateScanner so pgx can scan PostgreSQL date
// columns (OID 1082) into DateOnly. NULL values zero the time and return nil
// so that *DateOnly pointer fields can be set to nil by pgx's NULL handling.
func (d *DateOnly) ScanDate(v pgtype.Date) error {
	if !v.Valid {
		d.Time = time.Time{}
		return nil
	}
	d.Time = v.Time
	return nil
}

/* ─── Domain structs ─────────────────────────────────────────────────── */

// user maps to the users table. AuthToken and Password are hidden from JSON responses.
type user struct {
	ID        int        `json:"id" db:"id"`
	Username  string     `json:"username" db:"username"`
	Email     string     `json:"email" db:"email"`
	AuthToken string     `json:"-" db:"auth_token"`
	Password  string     `json:"-" db:"password"`
	CreatedAt *time.Time `json:"created_at" db:"created_at"`
}

// MealSlot is one of the four logging buckets within a day.
type MealSlot string

const (
	SlotBreakfast MealSlot = "breakfast"
	SlotLunch     MealSlot = "lunch"
	SlotDinner    MealSlot = "dinner"
	SlotSnack     MealSlot = "snack"
)

// mealSlots is the fixed iteration order for slots. Totals are always summed
// in this order so results do not depend on map iteration.
var mealSlots = []MealSlot{SlotBreakfast, SlotLunch, SlotDinner, SlotSnack}

func (s MealSlot) valid() bool {
	switch s {
	case SlotBreakfast, SlotLunch, SlotDinner, SlotSnack:
		return true
	}
	return false
}

// Profile maps to the profiles table. One row per user. Numeric body fields
// are nullable so a freshly created user still yields fallback targets.
type Profile struct {
	UserID            int        `json:"user_id"            db:"user_id"`
	Name              string     `json:"name"               db:"name"`
	HeightCM          *float64   `json:"height_cm"          db:"height_cm"`
	WeightKG          *float64   `json:"weight_kg"          db:"weight_kg"`
	TargetWeightKG    *float64   `json:"target_weight_kg"   db:"target_weight_kg"`
	DateOfBirth       *DateOnly  `json:"date_of_birth"      db:"date_of_birth"`
	Gender            string     `json:"gender"             db:"gender"`
	ActivityLevel     string     `json:"activity_level"     db:"activity_level"`
	Goal              string     `json:"goal"               db:"goal"`
	HealthPurpose     string     `json:"health_purpose"     db:"health_purpose"`
	MedicalConditions []string   `json:"medical_conditions" db:"medical_conditions"`
	IsOnboarded       bool       `json:"is_onboarded"       db:"is_onboarded"`
	MemberSince       *time.Time `json:"member_since"       db:"member_since"`
}

// Nutrients holds the eleven tracked nutrient quantities. Grams unless the
// field name says mg.
type Nutrients struct {
	ProteinG            float64 `json:"protein_g"             db:"protein_g"`
	CarbsG              float64 `json:"carbs_g"               db:"carbs_g"`
	FatG                float64 `json:"fat_g"                 db:"fat_g"`
	FiberG              float64 `json:"fiber_g"               db:"fiber_g"`
	SugarG              float64 `json:"sugar_g"               db:"sugar_g"`
	SaturatedFatG       float64 `json:"saturated_fat_g"       db:"saturated_fat_g"`
	PolyunsaturatedFatG float64 `json:"polyunsaturated_fat_g" db:"polyunsaturated_fat_g"`
	MonounsaturatedFatG float64 `json:"monounsaturated_fat_g" db:"monounsaturated_fat_g"`
	CholesterolMg       float64 `json:"cholesterol_mg"        db:"cholesterol_mg"`
	SodiumMg            float64 `json:"sodium_mg"             db:"sodium_mg"`
	PotassiumMg         float64 `json:"potassium_mg"          db:"potassium_mg"`
}

// add returns the field-wise sum of n and o.
func (n Nutrients) add(o Nutrients) Nutrients {
	return Nutrients{
		ProteinG:            n.ProteinG + o.ProteinG,
		CarbsG:              n.CarbsG + o.CarbsG,
		FatG:                n.FatG + o.FatG,
		FiberG:              n.FiberG + o.FiberG,
		SugarG:              n.SugarG + o.SugarG,
		SaturatedFatG:       n.SaturatedFatG + o.SaturatedFatG,
		PolyunsaturatedFatG: n.PolyunsaturatedFatG + o.PolyunsaturatedFatG,
		MonounsaturatedFatG: n.MonounsaturatedFatG + o.MonounsaturatedFatG,
		CholesterolMg:       n.CholesterolMg + o.CholesterolMg,
		SodiumMg:            n.SodiumMg + o.SodiumMg,
		PotassiumMg:         n.PotassiumMg + o.PotassiumMg,
	}
}

// FoodEntry is one logged food item. Immutable once logged.
type FoodEntry struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Calories  int        `json:"calories"`
	Nutrients            // embedded so nutrient keys sit at the top level in JSON
	Thumbnail *string    `json:"thumbnail,omitempty"`
	IsAI      bool       `json:"is_ai"`
	Position  int        `json:"position"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// DailyTargets is derived from a Profile on every read and never stored.
type DailyTargets struct {
	Calories            int  `json:"calories"`
	ProteinG            int  `json:"protein_g"`
	CarbsG              int  `json:"carbs_g"`
	FatG                int  `json:"fat_g"`
	FiberG              int  `json:"fiber_g"`
	SugarG              int  `json:"sugar_g"`
	SaturatedFatG       int  `json:"saturated_fat_g"`
	PolyunsaturatedFatG int  `json:"polyunsaturated_fat_g"`
	MonounsaturatedFatG int  `json:"monounsaturated_fat_g"`
	CholesterolMg       int  `json:"cholesterol_mg"`
	SodiumMg            int  `json:"sodium_mg"`
	PotassiumMg         int  `json:"potassium_mg"`
	BMR                 int  `json:"bmr"`
	TDEE                int  `json:"tdee"`
	Fallback            bool `json:"fallback"`
}

/* ─── Response shapes ────────────────────────────────────────────────── */

// dailySummary is the response shape for GET /api/daily-log.
// Includes the day's itemized meals, targets, and computed totals.
type dailySummary struct {
	Date             string                   `json:"date"`
	Meals            map[MealSlot][]FoodEntry `json:"meals"`
	SlotCalories     map[MealSlot]int         `json:"slot_calories"`
	Totals           Nutrients                `json:"totals"`
	CaloriesFood     int                      `json:"calories_food"`
	CaloriesExercise int                      `json:"calories_exercise"`
	CaloriesLeft     int                      `json:"calories_left"`
	SleepHours       float64                  `json:"sleep_hours"`
	Targets          DailyTargets             `json:"targets"`
}

// nutrientProgress is one row of the nutrition report.
type nutrientProgress struct {
	Key     string  `json:"key"`
	Current float64 `json:"current"`
	Budget  float64 `json:"budget"`
	Unit    string  `json:"unit"`
	Percent float64 `json:"percent"`
}

// nutritionReport is the response shape for GET /api/daily-log/report.
type nutritionReport struct {
	Date             string             `json:"date"`
	CaloriesTarget   int                `json:"calories_target"`
	CaloriesFood     int                `json:"calories_food"`
	CaloriesExercise int                `json:"calories_exercise"`
	CaloriesLeft     int                `json:"calories_left"`
	CaloriesPercent  float64            `json:"calories_percent"`
	SleepHours       float64            `json:"sleep_hours"`
	Nutrients        []nutrientProgress `json:"nutrients"`
}

// daySummary is one day's entry in GET /api/daily-log/progress.
type daySummary struct {
	Date             DateOnly  `json:"date"`
	CalorieBudget    int       `json:"calorie_budget"`
	CaloriesFood     int       `json:"calories_food"`
	CaloriesExercise int       `json:"calories_exercise"`
	CaloriesLeft     int       `json:"calories_left"`
	SleepHours       float64   `json:"sleep_hours"`
	Totals           Nutrients `json:"totals"`
}

// progressStats aggregates a date range for the progress report.
type progressStats struct {
	DaysTracked         int     `json:"days_tracked"`
	DaysOnBudget        int     `json:"days_on_budget"`
	AvgCaloriesFood     int     `json:"avg_calories_food"`
	AvgCaloriesExercise int     `json:"avg_calories_exercise"`
	AvgSleepHours       float64 `json:"avg_sleep_hours"`
}

// progressResponse is the response shape for GET /api/daily-log/progress.
type progressResponse struct {
	Days  []daySummary  `json:"days"`
	Stats progressStats `json:"stats"`
}

/* ─── Request shapes ─────────────────────────────────────────────────── */

// addFoodRequest is the request body for POST /api/daily-log/food.
type addFoodRequest struct {
	Date      string   `json:"date"`
	Slot      MealSlot `json:"slot"`
	Name      string   `json:"name"`
	Calories  int      `json:"calories"`
	Nutrients
	Thumbnail *string `json:"thumbnail"`
	IsAI      bool    `json:"is_ai"`
}

// exerciseRequest is the request body for POST /api/daily-log/exercise.
// When Calories is set the entry is manual and Minutes is ignored.
type exerciseRequest struct {
	Date     string `json:"date"`
	Activity string `json:"activity"`
	Minutes  int    `json:"minutes"`
	Calories *int   `json:"calories"`
}

// sleepRequest is the request body for both sleep endpoints: POST takes
// Minutes (one session), PUT takes Hours (direct edit).
type sleepRequest struct {
	Date    string   `json:"date"`
	Minutes *float64 `json:"minutes"`
	Hours   *float64 `json:"hours"`
}

// putProfileRequest is the request body for PUT /api/profile.
// All fields are pointers; only non-nil fields are written.
type putProfileRequest struct {
	Name              *string   `json:"name"`
	HeightCM          *float64  `json:"height_cm"`
	WeightKG          *float64  `json:"weight_kg"`
	TargetWeightKG    *float64  `json:"target_weight_kg"`
	DateOfBirth       *string   `json:"date_of_birth"` // YYYY-MM-DD
	Gender            *string   `json:"gender"`
	ActivityLevel     *string   `json:"activity_level"`
	Goal              *string   `json:"goal"`
	HealthPurpose     *string   `json:"health_purpose"`
	MedicalConditions *[]string `json:"medical_conditions"`
	IsOnboarded       *bool     `json:"is_onboarded"`
}
