package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"coach-llm/internal/domain"
	"coach-llm/internal/llm"
	"coach-llm/internal/repository"
	"coach-llm/internal/service"
	"coach-llm/internal/templates"
)

type mockLimiter struct {
	allow   bool
	variant string
}

func (m *mockLimiter) Allow(_ context.Context, variant, _ string) bool {
	m.variant = variant
	return m.allow
}

type testAPI struct {
	router   *gin.Engine
	llm      *llm.MockClient
	feedback *repository.MemoryFeedbackRepository
}

func setupAPI(t *testing.T, limiter service.StartLimiter) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cat, err := templates.Load("")
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	logger := zap.NewNop()
	store := repository.NewMemorySessionStore(time.Hour)
	programs := repository.NewMemoryProgramRepository()
	for i, title := range []string{"Psychologie", "Marketing", "Design"} {
		p := domain.StudyProgram{ID: title, Title: title, Degree: []string{"B.Sc.", "B.A.", "M.A."}[i], StudyForm: "Vollzeit"}
		if err := programs.Upsert(context.Background(), p, []float32{1, float32(i)}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	mock := &llm.MockClient{Response: "Schön, dass du da bist.", Embedding: []float32{1, 0}}
	feedbackRepo := repository.NewMemoryFeedbackRepository()

	composer := service.NewPromptComposer(cat, nil)
	locks := service.NewSessionLocks()
	conv := service.NewConversationService(cat, composer, store, mock, logger, service.WithSessionLocks(locks))
	match := service.NewMatchService(cat, composer, store, programs, mock, mock, locks, logger)
	fb := service.NewFeedbackService(store, feedbackRepo, nil, "", logger)
	tokens := service.NewSessionTokenService("secret", time.Hour)

	r := NewRouter(logger, RouterConfig{
		Tokens:   tokens,
		Forms:    NewFormHandler(logger, cat),
		Sessions: NewSessionHandler(logger, cat, conv, match, fb, tokens, limiter),
	})
	return &testAPI{router: r, llm: mock, feedback: feedbackRepo}
}

func performRequest(r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func (a *testAPI) createSession(t *testing.T, variant string) string {
	t.Helper()
	rec := performRequest(a.router, http.MethodPost, "/sessions", "", map[string]string{"variant": variant, "locale": "de"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	token, _ := decodeBody(t, rec)["token"].(string)
	if token == "" {
		t.Fatalf("expected session token")
	}
	return token
}

var coachStart = map[string]any{
	"goal": "career",
	"answers": map[string]any{
		"work_values": []string{"Sicherheit & Stabilität"},
		"strengths":   "zuhören",
	},
}

func TestFormHandler(t *testing.T) {
	a := setupAPI(t, nil)

	if rec := performRequest(a.router, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	rec := performRequest(a.router, http.MethodGet, "/variants", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if variants, _ := decodeBody(t, rec)["variants"].([]any); len(variants) != 4 {
		t.Fatalf("expected 4 variants, got %v", variants)
	}

	rec = performRequest(a.router, http.MethodGet, "/variants/coach/form?locale=en", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	form, _ := decodeBody(t, rec)["form"].(map[string]any)
	if form["code"] != "en" {
		t.Fatalf("expected en form, got %v", form["code"])
	}
	if _, leaked := form["base_prompt"]; leaked {
		t.Fatalf("prompts must not be exposed in the form")
	}

	if rec := performRequest(a.router, http.MethodGet, "/variants/nope/form", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
	if rec := performRequest(a.router, http.MethodGet, "/variants/coach/form?locale=fr", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestCreateSession_Errors(t *testing.T) {
	a := setupAPI(t, nil)

	if rec := performRequest(a.router, http.MethodPost, "/sessions", "", map[string]string{}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	rec := performRequest(a.router, http.MethodPost, "/sessions", "", map[string]string{"variant": "nope"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rec.Code)
	}

	limiter := &mockLimiter{allow: false}
	limited := setupAPI(t, limiter)
	rec = performRequest(limited.router, http.MethodPost, "/sessions", "", map[string]string{"variant": "coach"})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", rec.Code)
	}
	if limiter.variant != "coach" {
		t.Fatalf("expected limiter keyed by variant, got %q", limiter.variant)
	}
	if decodeBody(t, rec)["error"] != "Zu viele neue Sitzungen. Bitte warte kurz." {
		t.Fatalf("expected localized rate limit message, got %s", rec.Body.String())
	}
}

func TestSessionEndpoints_RequireToken(t *testing.T) {
	a := setupAPI(t, nil)
	if rec := performRequest(a.router, http.MethodGet, "/session", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestChatFlow_UntilLimit(t *testing.T) {
	a := setupAPI(t, nil)
	token := a.createSession(t, "coach")

	rec := performRequest(a.router, http.MethodPost, "/session/messages", token, map[string]string{"content": "hallo"})
	if rec.Code != http.StatusConflict || decodeBody(t, rec)["code"] != "invalid_state" {
		t.Fatalf("expected 409 invalid_state before start, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = performRequest(a.router, http.MethodPost, "/session/start", token, coachStart)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	session, _ := decodeBody(t, rec)["session"].(map[string]any)
	if session["state"] != "active" || session["count"].(float64) != 1 {
		t.Fatalf("unexpected session after start: %v", session)
	}
	if transcript, _ := session["transcript"].([]any); len(transcript) != 1 {
		t.Fatalf("transcript must hide the system prompt: %v", transcript)
	}

	for i := 0; i < 5; i++ {
		rec = performRequest(a.router, http.MethodPost, "/session/messages", token, map[string]string{"content": "weiter"})
		if rec.Code != http.StatusCreated {
			t.Fatalf("turn %d: expected status 201, got %d", i+1, rec.Code)
		}
	}
	body := decodeBody(t, rec)
	session, _ = body["session"].(map[string]any)
	if session["state"] != "limited" || session["cta"] == nil {
		t.Fatalf("expected limited session with cta, got %v", session)
	}

	calls := a.llm.CallCount()
	rec = performRequest(a.router, http.MethodPost, "/session/messages", token, map[string]string{"content": "noch was"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rec.Code)
	}
	body = decodeBody(t, rec)
	if body["code"] != "limited" || body["cta"] == nil {
		t.Fatalf("expected limited error with cta, got %v", body)
	}
	if a.llm.CallCount() != calls {
		t.Fatalf("limited session must not call the model")
	}

	rec = performRequest(a.router, http.MethodPost, "/session/feedback", token, map[string]string{"rating": "up", "comment": "super"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(a.feedback.List()) != 1 {
		t.Fatalf("expected stored feedback")
	}

	rec = performRequest(a.router, http.MethodPost, "/session/restart", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body = decodeBody(t, rec)
	session, _ = body["session"].(map[string]any)
	if session["state"] != "unstarted" || session["count"].(float64) != 0 {
		t.Fatalf("unexpected session after restart: %v", session)
	}
	if next, _ := body["token"].(string); next == "" {
		t.Fatalf("expected new token after restart")
	}
}

func TestStart_ValidationAndCompletionErrors(t *testing.T) {
	a := setupAPI(t, nil)
	token := a.createSession(t, "vision")

	rec := performRequest(a.router, http.MethodPost, "/session/start", token, map[string]any{
		"answers": map[string]any{"studies": "Informatik"},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	missing, _ := body["missing"].([]any)
	if len(missing) != 2 || body["error"] != "Bitte fülle alle Felder aus." {
		t.Fatalf("unexpected validation body: %v", body)
	}

	a.llm.Err = errors.New("upstream down")
	rec = performRequest(a.router, http.MethodPost, "/session/start", token, map[string]any{
		"answers": map[string]any{"studies": "Informatik", "goals": "Teamleitung", "values": []string{"Teamarbeit"}},
	})
	if rec.Code != http.StatusBadGateway || decodeBody(t, rec)["code"] != "completion" {
		t.Fatalf("expected 502 completion, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSetLocale(t *testing.T) {
	a := setupAPI(t, nil)
	token := a.createSession(t, "coach")

	rec := performRequest(a.router, http.MethodPut, "/session/locale", token, map[string]string{"locale": "en"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	session, _ := decodeBody(t, rec)["session"].(map[string]any)
	if session["locale"] != "en" {
		t.Fatalf("expected en locale, got %v", session["locale"])
	}

	rec = performRequest(a.router, http.MethodPut, "/session/locale", token, map[string]string{"locale": "fr"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rec.Code)
	}
}

func TestMatches(t *testing.T) {
	a := setupAPI(t, nil)
	token := a.createSession(t, "matcher")

	rec := performRequest(a.router, http.MethodPost, "/session/feedback", token, map[string]string{"rating": "up"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("feedback before the limit must be rejected, got %d", rec.Code)
	}

	rec = performRequest(a.router, http.MethodPost, "/session/matches", token, map[string]any{
		"answers": map[string]any{"interests": "Menschen"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if matches, _ := body["matches"].([]any); len(matches) != 3 {
		t.Fatalf("expected 3 matches, got %v", body["matches"])
	}
	session, _ := body["session"].(map[string]any)
	if session["unit"] != "requests" || session["remaining"].(float64) != 4 {
		t.Fatalf("unexpected quota view: %v", session)
	}

	rec = performRequest(a.router, http.MethodPost, "/session/matches", token, map[string]any{
		"answers": map[string]any{"study_forms": []string{"Dual"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body = decodeBody(t, rec)
	if matches, _ := body["matches"].([]any); len(matches) != 0 || body["notice"] == nil {
		t.Fatalf("expected empty result with notice, got %v", body)
	}

	chat := a.createSession(t, "coach")
	rec = performRequest(a.router, http.MethodPost, "/session/matches", chat, map[string]any{"answers": map[string]any{}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for chat variant, got %d", rec.Code)
	}
}
