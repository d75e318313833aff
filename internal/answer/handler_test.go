package answer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"awsquiz/internal/ai"
	"awsquiz/internal/question"

	"github.com/go-chi/chi/v5"
)

type mockAnswerService struct {
	fn func(ctx context.Context, questionID, lang string) (*Result, Outcome, error)
}

func (m *mockAnswerService) GetOrCompute(ctx context.Context, questionID, lang string) (*Result, Outcome, error) {
	return m.fn(ctx, questionID, lang)
}

func checkAnswerReq(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/api/ai/check-answer", strings.NewReader(body))
}

func TestCheckAnswerOK(t *testing.T) {
	h := &Handler{svc: &mockAnswerService{
		fn: func(ctx context.Context, questionID, lang string) (*Result, Outcome, error) {
			if questionID != "abc" || lang != "en" {
				t.Errorf("unexpected args %q %q", questionID, lang)
			}
			return &Result{CorrectAnswers: []string{"A", "C"}, Explanation: "both"}, OutcomeCreated, nil
		},
	}}

	rec := httptest.NewRecorder()
	h.CheckAnswer(rec, checkAnswerReq(`{"questionId":"abc"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var res Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(res.CorrectAnswers) != 2 || res.Explanation != "both" || res.HasTranslation {
		t.Fatalf("unexpected payload %+v", res)
	}
}

func TestCheckAnswerMissingID(t *testing.T) {
	h := &Handler{svc: &mockAnswerService{}}

	rec := httptest.NewRecorder()
	h.CheckAnswer(rec, checkAnswerReq(`{"lang":"en"}`))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCheckAnswerNotFound(t *testing.T) {
	h := &Handler{svc: &mockAnswerService{
		fn: func(ctx context.Context, questionID, lang string) (*Result, Outcome, error) {
			return nil, 0, question.ErrQuestionNotFound
		},
	}}

	rec := httptest.NewRecorder()
	h.CheckAnswer(rec, checkAnswerReq(`{"questionId":"missing"}`))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCheckAnswerProviderUnavailable(t *testing.T) {
	h := &Handler{svc: &mockAnswerService{
		fn: func(ctx context.Context, questionID, lang string) (*Result, Outcome, error) {
			return nil, 0, ai.ErrProviderUnavailable
		},
	}}

	rec := httptest.NewRecorder()
	h.CheckAnswer(rec, checkAnswerReq(`{"questionId":"abc"}`))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestCheckAnswerStoreInconsistent(t *testing.T) {
	h := &Handler{svc: &mockAnswerService{
		fn: func(ctx context.Context, questionID, lang string) (*Result, Outcome, error) {
			return nil, 0, ErrStoreInconsistent
		},
	}}

	rec := httptest.NewRecorder()
	h.CheckAnswer(rec, checkAnswerReq(`{"questionId":"abc"}`))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestGetCached(t *testing.T) {
	store := newMemStore()
	ru := "ru text"
	store.entries["abc"] = Entry{QuestionID: "abc", CorrectAnswers: []string{"B"}, Explanation: "primary", ExplanationRU: &ru}
	h := &Handler{store: store}

	r := chi.NewRouter()
	r.Get("/api/ai-cache/{questionID}", h.GetCached)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ai-cache/abc?lang=ru", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var res Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !res.HasTranslation || res.Explanation != "ru text" {
		t.Fatalf("unexpected payload %+v", res)
	}
}

func TestGetCachedNotFound(t *testing.T) {
	h := &Handler{store: newMemStore()}

	r := chi.NewRouter()
	r.Get("/api/ai-cache/{questionID}", h.GetCached)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ai-cache/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
