package handler

import (
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	"golang.org/x/sync/errgroup"

	appI18n "github.com/correctme/examgrader/internal/i18n"
	"github.com/correctme/examgrader/internal/llm"
	"github.com/correctme/examgrader/internal/llm/prompts"
	"github.com/correctme/examgrader/internal/model"
)

type extractedSheet struct {
	Filename     string          `json:"filename"`
	Extraction   *llm.Extraction `json:"extraction,omitempty"`
	SubmissionID string          `json:"submission_id,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// handleExtractAnswers reads uploaded answer-sheet images with the vision
// model. With exam_id and save=true each extraction is stored as a
// submission of that exam and graded; a sheet that cannot be stored carries
// its own error and the others are still reported.
func (h *Handler) handleExtractAnswers(w http.ResponseWriter, r *http.Request) {
	if h.extractor == nil {
		writeError(w, r, http.StatusServiceUnavailable, "ErrExtractionDisabled")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		files = r.MultipartForm.File["file"]
	}
	if len(files) == 0 {
		writeError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return
	}

	var hint prompts.ExtractData
	examID := r.FormValue("exam_id")
	if examID != "" {
		exam, err := h.store.GetExam(r.Context(), examID)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		hint = prompts.ExtractData{ExamTitle: exam.Title, NumQuestions: len(exam.AnswerKey)}
	}
	save, _ := strconv.ParseBool(r.FormValue("save"))
	save = save && examID != ""

	sheets := make([]extractedSheet, len(files))
	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(max(h.config.Concurrency, 1))
	for i, fh := range files {
		g.Go(func() error {
			sheets[i].Filename = fh.Filename
			data, mimeType, err := readUpload(fh)
			if err != nil {
				sheets[i].Error = err.Error()
				return nil
			}
			ex, err := h.extractor.ExtractAnswers(ctx, data, mimeType, hint)
			if err != nil {
				slog.Warn("extraction failed", "filename", fh.Filename, "error", err)
				sheets[i].Error = err.Error()
				return nil
			}
			sheets[i].Extraction = &ex
			return nil
		})
	}
	_ = g.Wait()

	ok := 0
	for i := range sheets {
		if sheets[i].Extraction == nil {
			continue
		}
		ok++
		if !save {
			continue
		}
		sub, err := h.createSubmission(r.Context(), model.Submission{
			ExamID:            examID,
			StudentName:       sheets[i].Extraction.StudentName,
			AnswersStructured: sheets[i].Extraction.Answers,
		})
		if err != nil {
			slog.Error("storing extracted submission failed", "filename", sheets[i].Filename, "error", err)
			sheets[i].Error = appI18n.T(r.Context(), "ErrInternal")
			continue
		}
		sheets[i].SubmissionID = sub.ID
		if _, err := h.engineFor(r).ScoreSubmission(r.Context(), sub.ID); err != nil {
			slog.Warn("grading extracted submission failed", "submission_id", sub.ID, "error", err)
		}
	}
	if ok == 0 {
		writeError(w, r, http.StatusBadGateway, "ErrExtractionFailed")
		return
	}

	slog.Info("extracted answer sheets", "files", len(files), "ok", ok, "saved", save)
	writeJSON(w, http.StatusOK, map[string]any{"results": sheets})
}

func readUpload(fh *multipart.FileHeader) ([]byte, string, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, "", err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", err
	}
	mimeType := fh.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	return data, mimeType, nil
}
