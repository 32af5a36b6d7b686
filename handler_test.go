package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const testToken = "tok-alice"

// testNow is the clock every handler test runs at.
var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	h      *Handler
	store  *memStore
	router *gin.Engine
}

// setupHandlerTest builds a Handler over a memStore with one user ("alice",
// password "secret") and routes inference calls to openAIURL.
func setupHandlerTest(t *testing.T, openAIURL string, ratePerMinute int) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := newMemStore()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	store.users["alice"] = user{ID: 1, Username: "alice", AuthToken: testToken, Password: string(hash)}

	limiter := newRateLimiter(ratePerMinute)
	t.Cleanup(limiter.stop)

	reg := prometheus.NewRegistry()
	h := &Handler{
		store:     store,
		log:       zap.NewNop().Sugar(),
		inference: newInferenceClient("test-key", openAIURL+"/v1", "gpt-4o-mini", 5*time.Second),
		metrics:   newMetrics(reg),
		gatherer:  reg,
		limiter:   limiter,
		now:       func() time.Time { return testNow },
	}
	router := gin.New()
	h.registerRoutes(router)
	return &testEnv{h: h, store: store, router: router}
}

// do sends an authenticated JSON request.
func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to parse response %q: %v", w.Body.String(), err)
	}
	return v
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	return decode[map[string]string](t, w)["error"]
}

/* ─── Auth ───────────────────────────────────────────────────────────── */

func TestLogin(t *testing.T) {
	env := setupHandlerTest(t, "http://unused", 60)

	cases := []struct {
		name   string
		body   string
		status int
	}{
		{"valid", `{"username":"alice","password":"secret"}`, http.StatusOK},
		{"wrong password", `{"username":"alice","password":"nope"}`, http.StatusUnauthorized},
		{"unknown user", `{"username":"bob","password":"secret"}`, http.StatusUnauthorized},
		{"bad body", `not json`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/login", strings.NewReader(tc.body))
			w := httptest.NewRecorder()
			env.router.ServeHTTP(w, req)
			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, w.Code, w.Body.String())
			}
			if tc.status == http.StatusOK {
				if tok := decode[map[string]any](t, w)["token"]; tok != testToken {
					t.Errorf("token = %v, want %s", tok, testToken)
				}
			}
		})
	}
}

func TestLogin_CountsFailures(t *testing.T) {
	env := setupHandlerTest(t, "http://unused", 60)
	for _, body := range []string{
		`{"username":"alice","password":"nope"}`,
		`{"username":"mallory","password":"secret"}`,
		`{"username":"alice","password":"secret"}`,
	} {
		env.router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/api/login", strings.NewReader(body)))
	}

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(w.Body.String(), "nutrition_login_failures_total 2") {
		t.Errorf("expected 2 failed logins in metrics")
	}
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"  Bearer   abc  ", "abc", true},
		{"Bearer ", "", false},
		{"Bearer", "", false},
		{"Basic abc", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.header, func(t *testing.T) {
			token, ok := bearerToken(tc.header)
			if token != tc.token || ok != tc.ok {
				t.Errorf("bearerToken(%q) = %q, %v; want %q, %v", tc.header, token, ok, tc.token, tc.ok)
			}
		})
	}
}

func TestAuthMiddleware(t *testing.T) {
	env := setupHandlerTest(t, "http://unused", 60)

	for name, header := range map[string]string{
		"missing":     "",
		"not bearer":  "Basic abc",
		"empty token": "Bearer   ",
		"bad token":   "Bearer nope",
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/daily-log", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			w := httptest.NewRecorder()
			env.router.ServeHTTP(w, req)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", w.Code)
			}
		})
	}
}

/* ─── Daily log ──────────────────────────────────────────────────────── */

func TestGetDailyLog_EmptyDayUsesFallback(t *testing.T) {
	env := setupHandlerTest(t, "http://unused", 60)

	w := env.do("GET", "/api/daily-log", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	s := decode[dailySummary](t, w)
	if s.Date != "2025-06-15" {
		t.Errorf("date = %s, want today", s.Date)
	}
	if !s.Targets.Fallback || s.Targets.Calories != 2000 || s.CaloriesLeft != 2000 {
		t.Errorf("targets = %+v, left = %d", s.Targets, s.CaloriesLeft)
	}
	if len(s.Meals[SlotBreakfast]) != 0 {
		t.Error("expected empty meals")
	}
	if env.store.saveCalls != 0 {
		t.Error("reading a day must not persist it")
	}
}

func TestGetDailyLog_InvalidDate(t *testing.T) {
	env := setupHandlerTest(t, "http://unused", 60)
	if w := env.do("GET", "/api/daily-log?date=June", ""); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestAddFood(t *testing.T) {
	env := setupHandlerTest(t, "http://unused", 60)

	w := env.do("POST", "/api/daily-log/food",
		`{"slot":"breakfast","name":"Scrambled Eggs","calories":180,"protein_g":14,"fat_g":12,"is_ai":true}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	env.do("POST", "/api/daily-log/food", `{"slot":"breakfast","name":"Toast","calories":80,"carbs_g":15}`)

	s := decode[dailySummary](t, env.do("GET", "/api/daily-log?date=2025-06-15", ""))
	if len(s.Meals[SlotBreakfast]) != 2 {
		t.Fatalf("breakfast entries = %d, want 2", len(s.Meals[SlotBreakfast]))
	}
	if s.Meals[SlotBreakfast][0].Name != "Scrambled Eggs" || !s.Meals[SlotBreakfast][0].IsAI {
		t.Errorf("first entry = %+v", s.Meals[SlotBreakfast][0])
	}
	if s.SlotCalories[SlotBreakfast] != 260 || s.CaloriesFood != 260 || s.CaloriesLeft != 1740 {
		t.Errorf("slot=%d food=%d left=%d", s.SlotCalories[SlotBreakfast], s.CaloriesFood, s.CaloriesLeft)
	}
	if s.Totals.ProteinG != 14 || s.Totals.CarbsG != 15 {
		t.Errorf("totals = %+v", s.Totals)
	}
}

func TestAddFood_Validation(t *testing.T) {
	env := setupHandlerTest(t, "http://unused", 60)

	cases := []struct {
		name string
		body string
	}{
		{"unknown slot", `{"slot":"brunch","name":"Eggs","calories":100}`},
		{"missing name", `{"slot":"lunch","name":"  ","calories":100}`},
		{"negative calories", `{"slot":"lunch","name":"Eggs","calories":-1}`},
		{"negative nutrient", `{"slot":"lunch","name":"Eggs","calories":10,"sodium_mg":-5}`},
		{"bad date", `{"date":"2025-13-01","slot":"lunch","name":"Eggs","calories":10}`},
		{"bad body", `{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if w := env.do("POST", "/api/daily-log/food", tc.body); w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
	if env.store.saveCalls != 0 {
		t.Error("invalid requests reached the store")
	}
}

func TestAddFood_StoreFailure(t *testing.T) {
	env := setupHandlerTest(t, "http://unused", 60)
	env.store.saveErr = errors.New("db down")

	w := env.do("POST", "/api/daily-log/food", `{"slot":"lunch","name":"Rice","calories":200}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if msg := errorMessage(t, w); msg != "failed to log food" {
		t.Errorf("error = %q", msg)
	}
}

func TestRecordExercise(t *testing.T) {
	env := setupHandlerTest(t, "http://unused", 60)

	w := env.do("POST", "/api/daily-log/exercise", `{"activity":"Running","minutes":30}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := decode[dailySummary](t, w).CaloriesExercise; got != 300 {
		t.Errorf("exercise = %d, want 300", got)
	}

	// Manual entries bypass estimation and are additive.
	w = env.do("POST", "/api/daily-log/exercise", `{"activity":"Climbing","calories":125}`)
	s := decode[dailySummary](t, w)
	if s.CaloriesExercise != 425 || s.CaloriesLeft != 2425 {
		t.Errorf("exercise = %d, left = %d", s.CaloriesExercise, s.CaloriesLeft)
	}

	for _, body := range []string{`{"minutes":30}`, `{"activity":"Running","minutes":-1}`, `{"calories":-10}`} {
		if w := env.do("POST", "/api/daily-log/exercise", body); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, w.Code)
		}
	}
}

func TestSleepEndpoints(t *testing.T) {
	env := setupHandlerTest(t, "http://unused", 60)

	env.do("POST", "/api/daily-log/sleep", `{"minutes":420}`)
	w := env.do("POST", "/api/daily-log/sleep", `{"minutes":30}`)
	if got := decode[dailySummary](t, w).SleepHours; got != 7.5 {
		t.Errorf("after sessions sleep = %v, want 7.5", got)
	}

	w = env.do("PUT", "/api/daily-log/sleep", `{"hours":6}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := decode[dailySummary](t, w).SleepHours; got != 6 {
		t.Errorf("after set sleep = %v, want 6", got)
	}

	for _, tc := range []struct{ method, body string }{
		{"POST", `{}`},
		{"POST", `{"minutes":-10}`},
		{"PUT", `{"hours":25}`},
		{"PUT", `{"minutes":60}`},
	} {
		if w := env.do(tc.method, "/api/daily-log/sleep", tc.body); w.Code != http.StatusBadRequest {
			t.Errorf("%s %s: expected 400, got %d", tc.method, tc.body, w.Code)
		}
	}
}

func TestNutritionReport(t *testing.T) {
	env := setupHandlerTest(t, "http://unused", 60)
	env.do("POST", "/api/daily-log/food", `{"slot":"dinner","name":"Steak","calories":2400,"protein_g":300,"sodium_mg":1150}`)
	env.do("POST", "/api/daily-log/exercise", `{"calories":300}`)

	w := env.do("GET", "/api/daily-log/report", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	r := decode[nutritionReport](t, w)
	if r.CaloriesLeft != -100 {
		t.Errorf("calories left = %d, want -100", r.CaloriesLeft)
	}
	if r.CaloriesPercent != 100 {
		t.Errorf("calories percent = %v, want 100", r.CaloriesPercent)
	}
	for _, n := range r.Nutrients {
		switch n.Key {
		case "protein":
			if n.Current != 300 || n.Percent != 100 {
				t.Errorf("protein = %+v", n)
			}
		case "sodium":
			if n.Percent != 50 {
				t.Errorf("sodium = %+v", n)
			}
		}
	}
}

func TestProgress(t *testing.T) {
	env := setupHandlerTest(t, "http://unused", 60)
	env.do("POST", "/api/daily-log/food", `{"date":"2025-06-10","slot":"lunch","name":"Pizza","calories":2500}`)
	env.do("POST", "/api/daily-log/food", `{"date":"2025-06-12","slot":"lunch","name":"Salad","calories":1500}`)
	env.do("PUT", "/api/daily-log/sleep", `{"date":"2025-06-12","hours":8}`)
	env.do("POST", "/api/daily-log/food", `{"date":"2025-06-20","slot":"lunch","name":"Soup","calories":300}`)

	w := env.do("GET", "/api/daily-log/progress?start=2025-06-01&end=2025-06-15", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	p := decode[progressResponse](t, w)
	if len(p.Days) != 2 {
		t.Fatalf("days = %d, want 2", len(p.Days))
	}
	if p.Days[0].Date.Format(dateLayout) != "2025-06-10" || p.Days[0].CaloriesLeft != -500 {
		t.Errorf("first day = %+v", p.Days[0])
	}
	want := progressStats{DaysTracked: 2, DaysOnBudget: 1, AvgCaloriesFood: 2000, AvgSleepHours: 4}
	if p.Stats != want {
		t.Errorf("stats = %+v, want %+v", p.Stats, want)
	}

	for _, q := range []string{"?start=2025-06-01", "?start=2025-06-15&end=2025-06-01", "?start=x&end=2025-06-01"} {
		if w := env.do("GET", "/api/daily-log/progress"+q, ""); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, w.Code)
		}
	}
}

func TestEarliestLogDate(t *testing.T) {
	env := setupHandlerTest(t, "http://unused", 60)

	if got := decode[map[string]*string](t, env.do("GET", "/api/daily-log/earliest-date", ""))["date"]; got != nil {
		t.Errorf("date = %v, want null", *got)
	}
	env.do("POST", "/api/daily-log/exercise", `{"date":"2025-05-02","calories":100}`)
	env.do("POST", "/api/daily-log/exercise", `{"date":"2025-04-30","calories":100}`)
	got := decode[map[string]*string](t, env.do("GET", "/api/daily-log/earliest-date", ""))["date"]
	if got == nil || *got != "2025-04-30" {
		t.Errorf("date = %v, want 2025-04-30", got)
	}
}

func TestGetActivities(t *testing.T) {
	env := setupHandlerTest(t, "http://unused", 60)
	w := env.do("GET", "/api/activities", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	resp := decode[struct {
		Activities []recommendedActivity `json:"activities"`
		Default    int                   `json:"default_coefficient"`
	}](t, w)
	if len(resp.Activities) != 4 || resp.Default != 5 {
		t.Errorf("response = %+v", resp)
	}
}

/* ─── Profile ────────────────────────────────────────────────────────── */

func TestProfile_PutThenTargets(t *testing.T) {
	env := setupHandlerTest(t, "http://unused", 60)

	w := env.do("PUT", "/api/profile", `{"name":"Alice","gender":"male","date_of_birth":"1995-06-15",
		"height_cm":175,"weight_kg":70,"activity_level":"moderate","goal":"maintain","medical_conditions":["hypertension"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	p := decode[profileResponse](t, w)
	if p.Targets.Calories != 2556 || p.BMI != 22.9 || p.BMICategory != "normal" {
		t.Errorf("targets=%d bmi=%v category=%s", p.Targets.Calories, p.BMI, p.BMICategory)
	}
	if p.Age == nil || *p.Age != 30 {
		t.Errorf("age = %v, want 30", p.Age)
	}

	// Partial update keeps the other fields.
	env.do("PUT", "/api/profile", `{"goal":"lose"}`)
	targets := decode[DailyTargets](t, env.do("GET", "/api/profile/targets", ""))
	if targets.Calories != 2056 || targets.Fallback {
		t.Errorf("targets = %+v, want 2056", targets)
	}

	got := decode[profileResponse](t, env.do("GET", "/api/profile", ""))
	if got.Name != "Alice" || len(got.MedicalConditions) != 1 {
		t.Errorf("profile = %+v", got.Profile)
	}
}

func TestProfile_GetWithoutRow(t *testing.T) {
	env := setupHandlerTest(t, "http://unused", 60)
	w := env.do("GET", "/api/profile", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	p := decode[profileResponse](t, w)
	if !p.Targets.Fallback || p.Age != nil || p.BMI != 0 {
		t.Errorf("profile = %+v", p)
	}
}

func TestProfile_Validation(t *testing.T) {
	env := setupHandlerTest(t, "http://unused", 60)

	cases := []struct {
		name string
		body string
		msg  string
	}{
		{"empty", `{}`, "no fields to update"},
		{"gender", `{"gender":"other"}`, "gender must be one of: male, female"},
		{"activity", `{"activity_level":"extreme"}`, "activity_level must be one of: low, medium, moderate, high"},
		{"goal", `{"goal":"bulk"}`, "goal must be one of: lose, loss, maintain, gain, undecided"},
		{"height", `{"height_cm":0}`, "height_cm must be positive"},
		{"weight", `{"weight_kg":-70}`, "weight_kg must be positive"},
		{"dob format", `{"date_of_birth":"15/06/1995"}`, "invalid date_of_birth, expected YYYY-MM-DD"},
		{"dob future", `{"date_of_birth":"2030-01-01"}`, "date_of_birth must not be in the future"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do("PUT", "/api/profile", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
			if msg := errorMessage(t, w); msg != tc.msg {
				t.Errorf("error = %q, want %q", msg, tc.msg)
			}
		})
	}
}

/* ─── Ops ────────────────────────────────────────────────────────────── */

func TestHealthAndMetrics(t *testing.T) {
	env := setupHandlerTest(t, "http://unused", 60)
	env.do("POST", "/api/daily-log/food", `{"slot":"snack","name":"Apple","calories":95}`)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("health: expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	body := w.Body.String()
	for _, want := range []string{
		`nutrition_food_entries_total{slot="snack",source="manual"} 1`,
		`nutrition_http_requests_total{route="/api/daily-log/food",status_code="201"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}
