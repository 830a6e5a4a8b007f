package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/correctme/examgrader/internal/model"
)

// ImportResult reports what an import did with a file.
type ImportResult struct {
	Count     int  `json:"count"`
	Unchanged bool `json:"unchanged,omitempty"` // same bytes as the last import
	Changed   bool `json:"changed,omitempty"`   // differs from the last import and was skipped
}

// SubmissionImport is one entry of a submissions import file.
type SubmissionImport struct {
	ID                string      `json:"id,omitempty"`
	ExamID            string      `json:"exam_id"`
	StudentName       string      `json:"student_name,omitempty"`
	AnswersStructured model.Value `json:"answers_structured"`
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ImportExams upserts the exams of a JSON array file. A file whose hash
// matches its last import is skipped; a changed file is imported again,
// replacing the answer keys of exams with the same id.
func (s *Store) ImportExams(ctx context.Context, name string, data []byte) (ImportResult, error) {
	hash := sha256sum(data)
	stored, err := s.GetImportedFileHash(ctx, name)
	if err != nil {
		return ImportResult{}, fmt.Errorf("check import status for %s: %w", name, err)
	}
	if stored == hash {
		slog.Info("exams file unchanged, skipping", "path", name)
		return ImportResult{Unchanged: true}, nil
	}

	var exams []model.Exam
	if err := json.Unmarshal(data, &exams); err != nil {
		return ImportResult{}, fmt.Errorf("parse %s: %w", name, err)
	}
	for _, e := range exams {
		if _, err := s.PutExam(ctx, e); err != nil {
			return ImportResult{}, fmt.Errorf("import exam from %s: %w", name, err)
		}
	}
	if err := s.SetImportedFileHash(ctx, name, hash); err != nil {
		return ImportResult{}, fmt.Errorf("record import for %s: %w", name, err)
	}
	slog.Info("imported exams", "path", name, "count", len(exams))
	return ImportResult{Count: len(exams)}, nil
}

// ImportSubmissions stores the submissions of a JSON array file. A file
// already imported is never imported twice: unchanged files are skipped
// silently and changed ones with a warning, so earlier results stay intact.
func (s *Store) ImportSubmissions(ctx context.Context, name string, data []byte) (ImportResult, []string, error) {
	hash := sha256sum(data)
	stored, err := s.GetImportedFileHash(ctx, name)
	if err != nil {
		return ImportResult{}, nil, fmt.Errorf("check import status for %s: %w", name, err)
	}
	if stored == hash {
		slog.Info("submissions file unchanged, skipping", "path", name)
		return ImportResult{Unchanged: true}, nil, nil
	}
	if stored != "" {
		slog.Warn("submissions file changed since last import, skipping to avoid duplicates", "path", name)
		return ImportResult{Changed: true}, nil, nil
	}

	var entries []SubmissionImport
	if err := json.Unmarshal(data, &entries); err != nil {
		return ImportResult{}, nil, fmt.Errorf("parse %s: %w", name, err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		sub, err := s.CreateSubmission(ctx, model.Submission{
			ID:                e.ID,
			ExamID:            e.ExamID,
			StudentName:       e.StudentName,
			AnswersStructured: e.AnswersStructured,
		})
		if err != nil {
			return ImportResult{}, nil, fmt.Errorf("import submission from %s: %w", name, err)
		}
		ids = append(ids, sub.ID)
	}
	if err := s.SetImportedFileHash(ctx, name, hash); err != nil {
		return ImportResult{}, nil, fmt.Errorf("record import for %s: %w", name, err)
	}
	slog.Info("imported submissions", "path", name, "count", len(ids))
	return ImportResult{Count: len(ids)}, ids, nil
}
