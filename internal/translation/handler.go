package translation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"awsquiz/internal/ai"
	"awsquiz/internal/app/apiresp"
	"awsquiz/internal/question"
)

type Handler struct {
	svc translationService
}

type translationService interface {
	GetOrCompute(ctx context.Context, questionID string) (*Result, Outcome, error)
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type translateRequest struct {
	QuestionID string `json:"questionId"`
}

// TranslateQuestion handles POST /api/ai/translate-question.
func (h *Handler) TranslateQuestion(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.QuestionID = strings.TrimSpace(req.QuestionID)
	if req.QuestionID == "" {
		apiresp.WriteError(w, http.StatusBadRequest, "Question ID required")
		return
	}

	res, _, err := h.svc.GetOrCompute(r.Context(), req.QuestionID)
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
