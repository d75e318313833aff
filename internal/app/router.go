package app

import (
	"database/sql"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"awsquiz/internal/ai"
	"awsquiz/internal/answer"
	"awsquiz/internal/app/apiresp"
	"awsquiz/internal/app/observability"
	"awsquiz/internal/keylock"
	"awsquiz/internal/question"
	"awsquiz/internal/translation"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(cfg Config, db *sql.DB) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	collector := observability.NewCollector(db)
	r.Use(collector.Middleware)

	aiClient := ai.NewClient(ai.ClientConfig{
		APIKey: cfg.OpenAIAPIKey,
		Model:  cfg.OpenAIModel,
	})
	locks := keylock.New()
	aiLimiter := NewSlidingLimiter(cfg.AIRateLimitPerMin, time.Minute)

	questionSvc := question.NewService(db)
	questionHandler := question.NewHandler(questionSvc)

	answerSvc := answer.NewService(answer.NewPostgresStore(db), questionSvc, aiClient, aiClient, locks)
	answerHandler := answer.NewHandler(answerSvc)

	translationSvc := translation.NewService(translation.NewPostgresStore(db), questionSvc, aiClient, locks)
	translationHandler := translation.NewHandler(translationSvc)

	r.Get("/metrics", collector.MetricsHandler)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", healthHandler(db))
		api.Get("/stats", questionHandler.GetStats)

		api.Get("/questions/paginated", questionHandler.Paginated)
		api.Get("/questions/random", questionHandler.Random)
		api.Get("/ai-cache/{questionID}", answerHandler.GetCached)

		api.Group(func(limited chi.Router) {
			limited.Use(RateLimitMiddleware(aiLimiter))
			limited.Post("/ai/check-answer", answerHandler.CheckAnswer)
			limited.Post("/ai/translate-question", translationHandler.TranslateQuestion)
		})

		api.Group(func(admin chi.Router) {
			admin.Use(RequireAdminToken(cfg.AdminTokenHash))
			admin.Post("/questions/upload", questionHandler.Upload)
			admin.Get("/admin/questions/export", questionHandler.ExportExcel)
		})
	})

	r.NotFound(spaHandler(cfg.StaticDir))

	return r
}

func healthHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			apiresp.WriteJSON(w, http.StatusInternalServerError, map[string]any{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
		apiresp.WriteJSON(w, http.StatusOK, map[string]any{
			"status":    "healthy",
			"database":  "connected",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// spaHandler serves the built frontend: real files as-is, everything
// else falls back to index.html for client-side routing.
func spaHandler(staticDir string) http.HandlerFunc {
	fs := http.FileServer(http.Dir(staticDir))
	return func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(staticDir, filepath.Clean("/"+r.URL.Path))
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			fs.ServeHTTP(w, r)
			return
		}
		http.ServeFile(w, r, filepath.Join(staticDir, "index.html"))
	}
}
