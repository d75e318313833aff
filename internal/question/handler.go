package question

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"awsquiz/internal/app/apiresp"
)

type Handler struct {
	svc questionService
}

type questionService interface {
	ListPaginated(ctx context.Context, page, perPage int, search, lang string) (*Page, error)
	Random(ctx context.Context, lang string) (*View, error)
	Stats(ctx context.Context) (*Stats, error)
	Ingest(ctx context.Context, raw []byte) (*IngestReport, error)
	ExportExcel(ctx context.Context) ([]byte, error)
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Paginated handles GET /api/questions/paginated.
func (h *Handler) Paginated(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := intParam(q.Get("page"), 1)
	perPage := intParam(q.Get("per_page"), 12)
	search := q.Get("search")
	lang := langParam(q.Get("lang"))

	result, err := h.svc.ListPaginated(r.Context(), page, perPage, search, lang)
	if err != nil {
		apiresp.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	apiresp.WriteJSON(w, http.StatusOK, result)
}

// Upload handles POST /api/questions/upload.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 32<<20))
	if err != nil || len(raw) == 0 {
		apiresp.WriteError(w, http.StatusBadRequest, "No data provided")
		return
	}

	report, err := h.svc.Ingest(r.Context(), raw)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoQuestions):
			apiresp.WriteError(w, http.StatusBadRequest, "No questions found in file")
		case errors.Is(err, ErrInvalidInput):
			apiresp.WriteError(w, http.StatusBadRequest, "invalid export file")
		default:
			apiresp.WriteError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	apiresp.WriteJSON(w, http.StatusOK, map[string]any{
		"message":    "Successfully processed!",
		"new":        report.New,
		"duplicates": report.Duplicates,
		"total":      report.Total,
	})
}

// Random handles GET /api/questions/random.
func (h *Handler) Random(w http.ResponseWriter, r *http.Request) {
	lang := langParam(r.URL.Query().Get("lang"))

	v, err := h.svc.Random(r.Context(), lang)
	if err != nil {
		if errors.Is(err, ErrQuestionNotFound) {
			apiresp.WriteError(w, http.StatusNotFound, "No questions available")
			return
		}
		apiresp.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	apiresp.WriteJSON(w, http.StatusOK, v)
}

// GetStats handles GET /api/stats.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		apiresp.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	apiresp.WriteJSON(w, http.StatusOK, stats)
}

// ExportExcel handles GET /api/admin/questions/export.
func (h *Handler) ExportExcel(w http.ResponseWriter, r *http.Request) {
	data, err := h.svc.ExportExcel(r.Context())
	if err != nil {
		apiresp.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="questions.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func intParam(v string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func langParam(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return "en"
	}
	return v
}
