package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/correctme/examgrader/internal/auth"
	"github.com/correctme/examgrader/internal/grading"
	appI18n "github.com/correctme/examgrader/internal/i18n"
	"github.com/correctme/examgrader/internal/llm"
	"github.com/correctme/examgrader/internal/llm/prompts"
	"github.com/correctme/examgrader/internal/model"
	"github.com/correctme/examgrader/internal/store"
)

const maxBodyBytes = 10 << 20

// Extractor reads a photographed answer sheet.
type Extractor interface {
	ExtractAnswers(ctx context.Context, image []byte, mimeType string, hint prompts.ExtractData) (llm.Extraction, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store     *store.Store
	engine    *grading.Engine
	tokens    *auth.Service
	extractor Extractor
	config    model.ServerConfig

	createSubmission func(context.Context, model.Submission) (model.Submission, error)
}

// New creates a new Handler. extractor may be nil, which disables
// answer-sheet extraction.
func New(s *store.Store, eng *grading.Engine, tokens *auth.Service, extractor Extractor, cfg model.ServerConfig) (*Handler, error) {
	if s == nil || eng == nil || tokens == nil {
		return nil, errors.New("handler: store, engine and token service are required")
	}
	return &Handler{
		store:            s,
		engine:           eng,
		tokens:           tokens,
		extractor:        extractor,
		config:           cfg,
		createSubmission: s.CreateSubmission,
	}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", h.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Get("/me", h.handleMe)
			r.Get("/dashboard/summary", h.handleDashboardSummary)

			r.Group(func(r chi.Router) {
				r.Use(requireRole(model.UserRoleInstructor, model.UserRoleAdmin))
				r.Get("/exams", h.handleListExams)
				r.Post("/exams", h.handlePutExam)
				r.Get("/exams/latest", h.handleLatestExam)
				r.Get("/exams/latest/submissions", h.handleLatestExamSubmissions)
				r.Get("/exams/{examID}", h.handleGetExam)
				r.Get("/exams/{examID}/submissions", h.handleListSubmissions)
				r.Post("/exams/{examID}/regrade", h.handleRegradeExam)
				r.Get("/exams/{examID}/export", h.handleExportExam)
				r.Post("/submissions", h.handleCreateSubmission)
				r.Get("/submissions/latest", h.handleLatestSubmission)
				r.Get("/submissions/{submissionID}", h.handleGetSubmission)
				r.Post("/submissions/{submissionID}/regrade", h.handleRegradeSubmission)
				r.Post("/extract-answers", h.handleExtractAnswers)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(requireRole(model.UserRoleAdmin))
				r.Get("/users", h.handleListUsers)
				r.Post("/users", h.handleCreateUser)
				r.Post("/users/{userID}/toggle-active", h.handleToggleUserActive)
				r.Post("/exams/upload", h.handleUploadExams)
			})
		})
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"driver":     h.store.Driver(),
		"lang":       h.config.Lang,
		"allow_near": h.config.AllowNear,
		"extraction": h.extractor != nil,
	})
}

// engineFor returns the grading engine with feedback in the request's language.
func (h *Handler) engineFor(r *http.Request) *grading.Engine {
	return h.engine.With(grading.WithMessages(appI18n.FeedbackMessages(r.Context())))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msgID string) {
	writeJSON(w, status, map[string]string{"error": appI18n.T(r.Context(), msgID)})
}

// writeDomainError maps grading sentinels to status codes; anything else is
// logged and reported as an internal error.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, grading.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "ErrNotFound")
	case errors.Is(err, grading.ErrIncompleteInput):
		writeError(w, r, http.StatusBadRequest, "ErrIncompleteInput")
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, r, http.StatusInternalServerError, "ErrInternal")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		slog.Debug("bad request body", "path", r.URL.Path, "error", err)
		writeError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return false
	}
	return true
}
