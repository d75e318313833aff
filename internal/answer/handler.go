package answer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"awsquiz/internal/ai"
	"awsquiz/internal/app/apiresp"
	"awsquiz/internal/question"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc   answerService
	store Store
}

type answerService interface {
	GetOrCompute(ctx context.Context, questionID, lang string) (*Result, Outcome, error)
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, store: svc.store}
}

type checkAnswerRequest struct {
	QuestionID string `json:"questionId"`
	Lang       string `json:"lang"`
}

// CheckAnswer handles POST /api/ai/check-answer.
func (h *Handler) CheckAnswer(w http.ResponseWriter, r *http.Request) {
	var req checkAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.QuestionID = strings.TrimSpace(req.QuestionID)
	if req.QuestionID == "" {
		apiresp.WriteError(w, http.StatusBadRequest, "Question ID required")
		return
	}
	lang := req.Lang
	if lang == "" {
		lang = "en"
	}

	res, _, err := h.svc.GetOrCompute(r.Context(), req.QuestionID, lang)
	if err != nil {
		switch {
		case errors.Is(err, question.ErrQuestionNotFound):
			apiresp.WriteError(w, http.StatusNotFound, "Question not found")
		case errors.Is(err, ai.ErrProviderUnavailable):
			apiresp.WriteError(w, http.StatusBadGateway, err.Error())
		default:
			apiresp.WriteError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	apiresp.WriteJSON(w, http.StatusOK, res)
}

// GetCached handles GET /api/ai-cache/{questionID}. Pure cache read, no
// computation is triggered.
func (h *Handler) GetCached(w http.ResponseWriter, r *http.Request) {
	questionID := chi.URLParam(r, "questionID")
	lang := r.URL.Query().Get("lang")
	if lang == "" {
		lang = "en"
	}

	entry, err := h.store.GetEntry(r.Context(), questionID)
	if err != nil {
		apiresp.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if entry == nil {
		apiresp.WriteError(w, http.StatusNotFound, "Not found")
		return
	}

	apiresp.WriteJSON(w, http.StatusOK, entry.result(lang))
}
