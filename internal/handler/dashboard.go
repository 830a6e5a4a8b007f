package handler

import (
	"net/http"
	"slices"

	"github.com/correctme/examgrader/internal/model"
)

// handleDashboardSummary aggregates over every exam, or over one exam when
// the exam_id query parameter is set.
func (h *Handler) handleDashboardSummary(w http.ResponseWriter, r *http.Request) {
	examID := r.URL.Query().Get("exam_id")
	if examID == "" {
		examID = r.URL.Query().Get("examId")
	}
	sum, err := h.store.DashboardSummary(r.Context(), examID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *Handler) handleLatestExam(w http.ResponseWriter, r *http.Request) {
	exam, err := h.store.LatestExam(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exam)
}

type examSubmissionsResponse struct {
	Exam  model.Exam         `json:"exam"`
	Items []model.Submission `json:"items"`
}

// handleLatestExamSubmissions lists the newest exam's submissions, newest first.
func (h *Handler) handleLatestExamSubmissions(w http.ResponseWriter, r *http.Request) {
	exam, err := h.store.LatestExam(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	subs, err := h.store.ListSubmissionsByExam(r.Context(), exam.ID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	slices.Reverse(subs)
	writeJSON(w, http.StatusOK, examSubmissionsResponse{Exam: exam, Items: subs})
}

func (h *Handler) handleLatestSubmission(w http.ResponseWriter, r *http.Request) {
	sub, err := h.store.LatestSubmission(r.Context(), r.URL.Query().Get("student_name"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}
