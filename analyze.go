package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
	openai "github.com/sashabaranov/go-openai"
)

/* ─── Request / Response types ───────────────────────────────────────── */

// analyzeTextRequest is the request body for POST /api/analyze/text.
type analyzeTextRequest struct {
	Query string `json:"query"`
	Date  string `json:"date"`
}

// chatRequest is the request body for POST /api/chat.
type chatRequest struct {
	Message string `json:"message"`
	Date    string `json:"date"`
}

// maxImageBytes bounds uploaded meal photos.
const maxImageBytes = 10 << 20

// imageAnalysisName is the placeholder name the model uses when a photo holds
// no recognisable food. Results carrying it are replies, not food estimates.
const imageAnalysisName = "Image Analysis"

// minHealthTipLen is the length a health tip must exceed to be shown.
const minHealthTipLen = 10

// errEmptyCompletion is returned when the model sends back no choices.
var errEmptyCompletion = errors.New("no choices in completion")

// analysisResult is what every inference call returns. A food estimate has
// FoodName and Calories set; a conversational answer only has Reply.
type analysisResult struct {
	FoodName string `json:"food_name,omitempty"`
	Calories *int   `json:"calories,omitempty"`
	Nutrients
	Reply     string  `json:"reply"`
	HealthTip string  `json:"health_tip,omitempty"`
	Thumbnail *string `json:"thumbnail,omitempty"`
	IsFood    bool    `json:"is_food"`
}

// isFood reports whether r is a loggable food estimate.
func (r *analysisResult) isFood() bool {
	return r.FoodName != "" && r.Calories != nil && r.FoodName != imageAnalysisName
}

// userContext is sent with every inference call so estimates and replies can
// reference the user's body and the day's energy balance.
type userContext struct {
	Profile userContextProfile `json:"profile"`
	Stats   userContextStats   `json:"stats"`
}

type userContextProfile struct {
	Name              string   `json:"name"`
	Gender            string   `json:"gender"`
	Age               *int     `json:"age"`
	HeightCM          *float64 `json:"height_cm"`
	WeightKG          *float64 `json:"weight_kg"`
	MedicalConditions []string `json:"medical_conditions"`
}

type userContextStats struct {
	TargetCalories    int `json:"target_calories"`
	ConsumedCalories  int `json:"consumed_calories"`
	RemainingCalories int `json:"remaining_calories"`
}

// buildUserContext summarises p and the day's log for the model.
func buildUserContext(p *Profile, l *DailyLog, t DailyTargets, today time.Time) userContext {
	uc := userContext{
		Profile: userContextProfile{
			Name:              p.Name,
			Gender:            p.Gender,
			HeightCM:          p.HeightCM,
			WeightKG:          p.WeightKG,
			MedicalConditions: p.MedicalConditions,
		},
		Stats: userContextStats{
			TargetCalories:    t.Calories,
			ConsumedCalories:  l.consumedCalories(),
			RemainingCalories: l.remainingCalories(t),
		},
	}
	if p.DateOfBirth != nil && !p.DateOfBirth.IsZero() {
		age := calculateAge(p.DateOfBirth.Time, today)
		uc.Profile.Age = &age
	}
	if uc.Profile.MedicalConditions == nil {
		uc.Profile.MedicalConditions = []string{}
	}
	return uc
}

/* ─── Prompts ────────────────────────────────────────────────────────── */

const foodResultFields = `- "food_name" (string, title case)
- "calories" (integer kcal for the whole portion)
- "protein_g", "carbs_g", "fat_g", "fiber_g", "sugar_g", "saturated_fat_g",
  "polyunsaturated_fat_g", "monounsaturated_fat_g" (numbers, grams)
- "cholesterol_mg", "sodium_mg", "potassium_mg" (numbers, milligrams)
- "reply" (one or two friendly sentences describing the estimate)
- "health_tip" (one short tip relevant to the user's conditions and remaining calories, or "")`

const textAnalysisPrompt = `You are a nutrition assistant. The user describes something they ate.
If it is food, return a JSON object with:
` + foodResultFields + `

If the message is not a food description, return {"reply": ""}.
Always give your best estimate for vague portions. Return only valid JSON.

User context:
%s`

const imageAnalysisPrompt = `You are a nutrition assistant. The user sent a photo of a meal, possibly with a note.
If the photo shows food, return a JSON object with:
` + foodResultFields + `

If no food is visible, return {"food_name": "` + imageAnalysisName + `", "reply": "<what you see, and a request for a food photo>"}.
Return only valid JSON.

User context:
%s`

const chatPrompt = `You are a friendly nutrition coach inside a food-logging app.
Answer the user's message briefly, using their context when it helps.
Return a JSON object {"reply": "<your answer>"}. Return only valid JSON.

User context:
%s`

/* ─── Client ─────────────────────────────────────────────────────────── */

// inferenceClient calls an OpenAI-compatible chat completions API.
type inferenceClient struct {
	client   *openai.Client
	model    string
	timeout  time.Duration
	sanitize *bluemonday.Policy
}

// newInferenceClient builds a client. baseURL may be empty for the public API.
func newInferenceClient(apiKey, baseURL, model string, timeout time.Duration) *inferenceClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &inferenceClient{
		client:   openai.NewClientWithConfig(cfg),
		model:    model,
		timeout:  timeout,
		sanitize: bluemonday.StrictPolicy(),
	}
}

// analyzeText estimates nutrition for a free-text food description.
func (ic *inferenceClient) analyzeText(ctx context.Context, query string, uc userContext) (*analysisResult, error) {
	system, err := withContext(textAnalysisPrompt, uc)
	if err != nil {
		return nil, err
	}
	return ic.complete(ctx, 0, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
		{Role: openai.ChatMessageRoleUser, Content: query},
	})
}

// analyzeImage estimates nutrition for a meal photo, with an optional note.
func (ic *inferenceClient) analyzeImage(ctx context.Context, img []byte, contentType, prompt string, uc userContext) (*analysisResult, error) {
	system, err := withContext(imageAnalysisPrompt, uc)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(prompt) == "" {
		prompt = "What is in this meal?"
	}
	dataURL := "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(img)
	return ic.complete(ctx, 0, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
		{Role: openai.ChatMessageRoleUser, MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: prompt},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
				URL:    dataURL,
				Detail: openai.ImageURLDetailAuto,
			}},
		}},
	})
}

// chat answers a conversational message.
func (ic *inferenceClient) chat(ctx context.Context, message string, uc userContext) (*analysisResult, error) {
	system, err := withContext(chatPrompt, uc)
	if err != nil {
		return nil, err
	}
	return ic.complete(ctx, 0.7, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
		{Role: openai.ChatMessageRoleUser, Content: message},
	})
}

// complete sends one JSON-mode request under the client timeout and parses
// the first choice into an analysisResult.
func (ic *inferenceClient) complete(ctx context.Context, temperature float32, messages []openai.ChatCompletionMessage) (*analysisResult, error) {
	ctx, cancel := context.WithTimeout(ctx, ic.timeout)
	defer cancel()

	resp, err := ic.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       ic.model,
		Messages:    messages,
		Temperature: temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errEmptyCompletion
	}
	return ic.parse(resp.Choices[0].Message.Content)
}

// parse decodes model output and cleans it for display.
func (ic *inferenceClient) parse(content string) (*analysisResult, error) {
	// Models sometimes send fractional calories; accept them and round.
	var raw struct {
		analysisResult
		Calories *float64 `json:"calories"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("parse completion: %w", err)
	}
	r := raw.analysisResult
	if raw.Calories != nil {
		cal := round(*raw.Calories)
		r.Calories = &cal
	}
	r.FoodName = ic.plainText(r.FoodName)
	r.Reply = ic.plainText(r.Reply)
	r.HealthTip = ic.plainText(r.HealthTip)
	if utf8.RuneCountInString(r.HealthTip) <= minHealthTipLen {
		r.HealthTip = ""
	}
	r.Thumbnail = nil
	r.IsFood = r.isFood()
	if r.IsFood && r.Reply == "" {
		r.Reply = fmt.Sprintf("I found %s (~%d kcal).", r.FoodName, *r.Calories)
	}
	return &r, nil
}

// plainText strips any markup from model output. The strict policy escapes
// entities, so they are decoded again to keep "&" and quotes readable.
func (ic *inferenceClient) plainText(s string) string {
	return strings.TrimSpace(html.UnescapeString(ic.sanitize.Sanitize(s)))
}

func withContext(prompt string, uc userContext) (string, error) {
	b, err := json.Marshal(uc)
	if err != nil {
		return "", fmt.Errorf("marshal user context: %w", err)
	}
	return fmt.Sprintf(prompt, b), nil
}

/* ─── Handlers ───────────────────────────────────────────────────────── */

// analyzeText handles POST /api/analyze/text. The description is first
// analysed as food; anything that is not a food estimate, including a failed
// estimate, is answered by the chat model instead. Nothing is logged: the client confirms through
// POST /api/daily-log/food.
func (h *Handler) analyzeText(c *gin.Context) {
	var req analyzeTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		apiError(c, http.StatusBadRequest, "query is required")
		return
	}
	uc, ok := h.userContextFor(c, req.Date)
	if !ok {
		return
	}

	res, err := h.infer(c, "text", func(ctx context.Context) (*analysisResult, error) {
		return h.inference.analyzeText(ctx, req.Query, uc)
	})
	if err != nil || !res.IsFood {
		res, err = h.infer(c, "chat", func(ctx context.Context) (*analysisResult, error) {
			return h.inference.chat(ctx, req.Query, uc)
		})
		if err == nil {
			res.IsFood = false
		}
	}
	if err != nil {
		apiError(c, http.StatusBadGateway, "could not analyze")
		return
	}

	c.JSON(http.StatusOK, res)
}

// analyzeImage handles POST /api/analyze/image (multipart: image, optional
// prompt and date). When the photo is food and thumbnail storage is
// configured, the photo is uploaded and its URL returned as "thumbnail".
func (h *Handler) analyzeImage(c *gin.Context) {
	userID := c.GetInt("user_id")

	fh, err := c.FormFile("image")
	if err != nil {
		apiError(c, http.StatusBadRequest, "image is required")
		return
	}
	if fh.Size > maxImageBytes {
		apiError(c, http.StatusRequestEntityTooLarge, "image must be 10MB or smaller")
		return
	}
	f, err := fh.Open()
	if err != nil {
		apiError(c, http.StatusBadRequest, "could not read image")
		return
	}
	img, err := io.ReadAll(io.LimitReader(f, maxImageBytes))
	f.Close()
	if err != nil || len(img) == 0 {
		apiError(c, http.StatusBadRequest, "could not read image")
		return
	}
	contentType := http.DetectContentType(img)
	if !strings.HasPrefix(contentType, "image/") {
		apiError(c, http.StatusBadRequest, "file is not an image")
		return
	}

	uc, ok := h.userContextFor(c, c.PostForm("date"))
	if !ok {
		return
	}
	prompt := strings.TrimSpace(c.PostForm("prompt"))

	res, err := h.infer(c, "image", func(ctx context.Context) (*analysisResult, error) {
		return h.inference.analyzeImage(ctx, img, contentType, prompt, uc)
	})
	if err != nil {
		apiError(c, http.StatusBadGateway, "could not analyze")
		return
	}

	if res.IsFood && h.thumbnails != nil {
		url, err := h.thumbnails.Put(c, thumbnailKey(userID, contentType), contentType, img)
		if err != nil {
			// The estimate is still usable without a photo.
			h.log.Warnw("thumbnail upload failed", "user_id", userID, "error", err)
		} else {
			res.Thumbnail = &url
		}
	}

	c.JSON(http.StatusOK, res)
}

// chat handles POST /api/chat.
func (h *Handler) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		apiError(c, http.StatusBadRequest, "message is required")
		return
	}
	uc, ok := h.userContextFor(c, req.Date)
	if !ok {
		return
	}

	res, err := h.infer(c, "chat", func(ctx context.Context) (*analysisResult, error) {
		return h.inference.chat(ctx, req.Message, uc)
	})
	if err != nil {
		apiError(c, http.StatusBadGateway, "could not analyze")
		return
	}
	// Chat answers are never loggable food.
	res.IsFood = false

	c.JSON(http.StatusOK, res)
}

// userContextFor builds the inference context for date (default today). On
// failure it has already written the error response.
func (h *Handler) userContextFor(c *gin.Context, date string) (userContext, bool) {
	userID := c.GetInt("user_id")
	date, err := h.resolveDate(date)
	if err != nil {
		apiError(c, http.StatusBadRequest, err.Error())
		return userContext{}, false
	}
	p, targets, err := h.targetsFor(c, userID)
	if err != nil {
		h.log.Errorw("load profile failed", "user_id", userID, "error", err)
		apiError(c, http.StatusInternalServerError, "failed to fetch profile")
		return userContext{}, false
	}
	l, err := h.tracker(c).getLog(c, date)
	if err != nil {
		h.log.Errorw("load daily log failed", "user_id", userID, "date", date, "error", err)
		apiError(c, http.StatusInternalServerError, "failed to fetch daily log")
		return userContext{}, false
	}
	return buildUserContext(&p, l, targets, h.now()), true
}

// infer runs one inference call, recording its outcome and latency.
func (h *Handler) infer(c *gin.Context, kind string, call func(context.Context) (*analysisResult, error)) (*analysisResult, error) {
	start := time.Now()
	res, err := call(c.Request.Context())
	outcome := "reply"
	switch {
	case err != nil:
		outcome = "error"
		h.log.Warnw("inference failed", "kind", kind, "user_id", c.GetInt("user_id"), "error", err)
	case res.IsFood:
		outcome = "food"
	}
	h.metrics.recordInference(kind, outcome, time.Since(start))
	return res, err
}
