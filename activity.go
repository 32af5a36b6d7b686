package main

// activityCoefficients maps a named activity to its estimated kcal burned per
// minute. Names match what the client sends, including the recommended cards.
var activityCoefficients = map[string]int{
	"Running":        10,
	"Walking":        4,
	"Gym":            7,
	"Swimming":       8,
	"Morning Jog":    8,
	"HIIT Cardio":    15,
	"Yoga Flow":      3,
	"Weight Lifting": 5,
}

// defaultCoefficient is used for activities not in activityCoefficients.
const defaultCoefficient = 5

// recommendedActivity is one quick-log card served by GET /api/activities.
type recommendedActivity struct {
	Name          string `json:"name"`
	Minutes       int    `json:"minutes"`
	KcalPerMinute int    `json:"kcal_per_minute"`
	Calories      int    `json:"calories"`
}

var recommendedActivities = []recommendedActivity{
	{Name: "Morning Jog", Minutes: 30},
	{Name: "HIIT Cardio", Minutes: 20},
	{Name: "Yoga Flow", Minutes: 45},
	{Name: "Weight Lifting", Minutes: 40},
}

// estimateCalories returns minutes × the activity's per-minute coefficient.
// Non-positive durations burn nothing.
func estimateCalories(activity string, minutes int) int {
	if minutes <= 0 {
		return 0
	}
	coef, ok := activityCoefficients[activity]
	if !ok {
		coef = defaultCoefficient
	}
	return minutes * coef
}

// listRecommendedActivities fills the per-minute and estimated totals for each card.
func listRecommendedActivities() []recommendedActivity {
	out := make([]recommendedActivity, len(recommendedActivities))
	for i, a := range recommendedActivities {
		a.KcalPerMinute = activityCoefficients[a.Name]
		a.Calories = estimateCalories(a.Name, a.Minutes)
		out[i] = a
	}
	return out
}
