package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// profileResponse is the profile plus everything derived from it.
type profileResponse struct {
	Profile
	Age         *int         `json:"age"`
	BMI         float64      `json:"bmi"`
	BMICategory string       `json:"bmi_category"`
	Targets     DailyTargets `json:"targets"`
}

func (h *Handler) profileResponse(p Profile) profileResponse {
	now := h.now()
	resp := profileResponse{Profile: p, Targets: computeTargets(&p, now)}
	if p.DateOfBirth != nil && !p.DateOfBirth.IsZero() {
		age := calculateAge(p.DateOfBirth.Time, now)
		resp.Age = &age
	}
	if p.WeightKG != nil && p.HeightCM != nil {
		resp.BMI = calculateBMI(*p.WeightKG, *p.HeightCM)
		resp.BMICategory = bmiCategory(resp.BMI)
	}
	return resp
}

// getProfile returns the authenticated user's profile with computed targets
// and BMI. A user who never saved a profile gets an empty one.
// GET /api/profile.
func (h *Handler) getProfile(c *gin.Context) {
	userID := c.GetInt("user_id")

	p, err := h.loadProfile(c, userID)
	if err != nil {
		h.log.Errorw("load profile failed", "user_id", userID, "error", err)
		apiError(c, http.StatusInternalServerError, "failed to fetch profile")
		return
	}

	c.JSON(http.StatusOK, h.profileResponse(p))
}

// getTargets returns just the computed daily targets.
// GET /api/profile/targets.
func (h *Handler) getTargets(c *gin.Context) {
	userID := c.GetInt("user_id")

	_, targets, err := h.targetsFor(c, userID)
	if err != nil {
		h.log.Errorw("load profile failed", "user_id", userID, "error", err)
		apiError(c, http.StatusInternalServerError, "failed to fetch profile")
		return
	}

	c.JSON(http.StatusOK, targets)
}

// putProfile updates only the provided profile fields and creates the row on
// first save. PUT /api/profile. Uses pointer fields in the request body to
// distinguish "not provided" from zero. Only non-nil fields get written.
func (h *Handler) putProfile(c *gin.Context) {
	userID := c.GetInt("user_id")

	var body putProfileRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := validateProfileRequest(&body, h.now()); msg != "" {
		apiError(c, http.StatusBadRequest, msg)
		return
	}

	p, err := h.loadProfile(c, userID)
	if err != nil {
		h.log.Errorw("load profile failed", "user_id", userID, "error", err)
		apiError(c, http.StatusInternalServerError, "failed to fetch profile")
		return
	}
	if !applyProfileRequest(&p, &body) {
		apiError(c, http.StatusBadRequest, "no fields to update")
		return
	}

	saved, err := h.store.SaveProfile(c, p)
	if err != nil {
		h.log.Errorw("save profile failed", "user_id", userID, "error", err)
		apiError(c, http.StatusInternalServerError, "failed to update profile")
		return
	}

	c.JSON(http.StatusOK, h.profileResponse(saved))
}

// validateProfileRequest returns an error message, or "" when body is valid.
// Unknown enum values are rejected here because they would silently produce
// default multipliers in every later target calculation.
func validateProfileRequest(body *putProfileRequest, now time.Time) string {
	if body.HeightCM != nil && *body.HeightCM <= 0 {
		return "height_cm must be positive"
	}
	if body.WeightKG != nil && *body.WeightKG <= 0 {
		return "weight_kg must be positive"
	}
	if body.TargetWeightKG != nil && *body.TargetWeightKG <= 0 {
		return "target_weight_kg must be positive"
	}
	if body.DateOfBirth != nil {
		dob, err := time.Parse(dateLayout, *body.DateOfBirth)
		if err != nil {
			return "invalid date_of_birth, expected YYYY-MM-DD"
		}
		if dob.After(now) {
			return "date_of_birth must not be in the future"
		}
	}
	if body.Gender != nil && !validGenders[*body.Gender] {
		return "gender must be one of: male, female"
	}
	if body.ActivityLevel != nil {
		if _, ok := activityMultipliers[*body.ActivityLevel]; !ok {
			return "activity_level must be one of: low, medium, moderate, high"
		}
	}
	if body.Goal != nil {
		if _, ok := goalAdjustments[*body.Goal]; !ok {
			return "goal must be one of: lose, loss, maintain, gain, undecided"
		}
	}
	return ""
}

// applyProfileRequest copies non-nil fields of body onto p and reports
// whether anything was provided. body must already be validated.
func applyProfileRequest(p *Profile, body *putProfileRequest) bool {
	changed := false
	if body.Name != nil {
		p.Name = strings.TrimSpace(*body.Name)
		changed = true
	}
	if body.HeightCM != nil {
		p.HeightCM = body.HeightCM
		changed = true
	}
	if body.WeightKG != nil {
		p.WeightKG = body.WeightKG
		changed = true
	}
	if body.TargetWeightKG != nil {
		p.TargetWeightKG = body.TargetWeightKG
		changed = true
	}
	if body.DateOfBirth != nil {
		dob, _ := time.Parse(dateLayout, *body.DateOfBirth)
		p.DateOfBirth = &DateOnly{dob}
		changed = true
	}
	if body.Gender != nil {
		p.Gender = *body.Gender
		changed = true
	}
	if body.ActivityLevel != nil {
		p.ActivityLevel = *body.ActivityLevel
		changed = true
	}
	if body.Goal != nil {
		p.Goal = *body.Goal
		changed = true
	}
	if body.HealthPurpose != nil {
		p.HealthPurpose = *body.HealthPurpose
		changed = true
	}
	if body.MedicalConditions != nil {
		p.MedicalConditions = *body.MedicalConditions
		changed = true
	}
	if body.IsOnboarded != nil {
		p.IsOnboarded = *body.IsOnboarded
		changed = true
	}
	return changed
}
