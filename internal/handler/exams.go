package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/correctme/examgrader/internal/grading"
	appI18n "github.com/correctme/examgrader/internal/i18n"
	"github.com/correctme/examgrader/internal/model"
)

func (h *Handler) handleListExams(w http.ResponseWriter, r *http.Request) {
	exams, err := h.store.ListExams(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exams)
}

func (h *Handler) handlePutExam(w http.ResponseWriter, r *http.Request) {
	var exam model.Exam
	if !decodeJSON(w, r, &exam) {
		return
	}
	if len(exam.AnswerKey) == 0 {
		writeError(w, r, http.StatusBadRequest, "ErrIncompleteInput")
		return
	}
	saved, err := h.store.PutExam(r.Context(), exam)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	slog.Info("saved exam", "exam_id", saved.ID, "questions", len(saved.AnswerKey))
	writeJSON(w, http.StatusCreated, saved)
}

func (h *Handler) handleGetExam(w http.ResponseWriter, r *http.Request) {
	exam, err := h.store.GetExam(r.Context(), chi.URLParam(r, "examID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exam)
}

func (h *Handler) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	examID := chi.URLParam(r, "examID")
	if _, err := h.store.GetExam(r.Context(), examID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	subs, err := h.store.ListSubmissionsByExam(r.Context(), examID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

func (h *Handler) handleExportExam(w http.ResponseWriter, r *http.Request) {
	export, err := h.store.ExportExam(r.Context(), chi.URLParam(r, "examID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, export)
}

type createSubmissionRequest struct {
	ExamID            string      `json:"exam_id"`
	StudentName       string      `json:"student_name"`
	AnswersStructured model.Value `json:"answers_structured"`
	// Grade runs the grading engine right after storing the submission.
	Grade bool `json:"grade"`
}

type submissionResponse struct {
	model.Submission
	GradingError string `json:"grading_error,omitempty"`
}

func (h *Handler) handleCreateSubmission(w http.ResponseWriter, r *http.Request) {
	var req createSubmissionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ExamID) == "" {
		writeError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return
	}

	sub, err := h.createSubmission(r.Context(), model.Submission{
		ExamID:            req.ExamID,
		StudentName:       strings.TrimSpace(req.StudentName),
		AnswersStructured: req.AnswersStructured,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := submissionResponse{Submission: sub}
	if req.Grade {
		if _, err := h.engineFor(r).ScoreSubmission(r.Context(), sub.ID); err != nil {
			if !errors.Is(err, grading.ErrIncompleteInput) {
				writeDomainError(w, r, err)
				return
			}
			resp.GradingError = appI18n.T(r.Context(), "ErrIncompleteInput")
		} else if resp.Submission, err = h.store.GetSubmission(r.Context(), sub.ID); err != nil {
			writeDomainError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	sub, err := h.store.GetSubmission(r.Context(), chi.URLParam(r, "submissionID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *Handler) handleRegradeSubmission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "submissionID")
	if _, err := h.engineFor(r).ScoreSubmission(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	sub, err := h.store.GetSubmission(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

type regradeFailure struct {
	SubmissionID string `json:"submission_id"`
	Error        string `json:"error"`
}

type regradeExamResponse struct {
	ExamID  string           `json:"exam_id"`
	Graded  int              `json:"graded"`
	Failed  []regradeFailure `json:"failed"`
	Message string           `json:"message"`
}

func (h *Handler) handleRegradeExam(w http.ResponseWriter, r *http.Request) {
	examID := chi.URLParam(r, "examID")
	if _, err := h.store.GetExam(r.Context(), examID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	ids, err := h.store.SubmissionIDsByExam(r.Context(), examID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := regradeExamResponse{ExamID: examID, Failed: []regradeFailure{}}
	for _, item := range h.engineFor(r).GradeBatch(r.Context(), ids) {
		switch {
		case item.Err == nil:
			resp.Graded++
		case errors.Is(item.Err, grading.ErrIncompleteInput):
			resp.Failed = append(resp.Failed, regradeFailure{item.SubmissionID, appI18n.T(r.Context(), "ErrIncompleteInput")})
		case errors.Is(item.Err, grading.ErrNotFound):
			resp.Failed = append(resp.Failed, regradeFailure{item.SubmissionID, appI18n.T(r.Context(), "ErrNotFound")})
		default:
			slog.Error("regrade failed", "submission_id", item.SubmissionID, "error", item.Err)
			resp.Failed = append(resp.Failed, regradeFailure{item.SubmissionID, appI18n.T(r.Context(), "ErrInternal")})
		}
	}
	resp.Message = appI18n.Tp(r.Context(), "SubmissionsGraded", resp.Graded)
	slog.Info("regraded exam", "exam_id", examID, "graded", resp.Graded, "failed", len(resp.Failed))
	writeJSON(w, http.StatusOK, resp)
}
