package store

import (
	"context"
	"fmt"
	"time"

	"github.com/correctme/examgrader/internal/grading"
	"github.com/correctme/examgrader/internal/model"
)

// ExportExam builds export-ready results for every submission of an exam.
// Ungraded submissions are listed with Graded=false and no question rows.
func (s *Store) ExportExam(ctx context.Context, examID string) (model.ExamExport, error) {
	exam, err := s.GetExam(ctx, examID)
	if err != nil {
		return model.ExamExport{}, err
	}
	subs, err := s.ListSubmissionsByExam(ctx, examID)
	if err != nil {
		return model.ExamExport{}, fmt.Errorf("list submissions: %w", err)
	}

	var maxPoints float64
	for _, item := range exam.AnswerKey {
		_, total := grading.Expand(item)
		maxPoints += total
	}

	results := make([]model.StudentResult, 0, len(subs))
	for _, sub := range subs {
		sr := model.StudentResult{
			SubmissionID: sub.ID,
			StudentName:  sub.StudentName,
			Graded:       sub.Score != nil,
			Feedback:     sub.Feedback,
			SubmittedAt:  sub.CreatedAt,
			GradedAt:     sub.GradedAt,
		}
		if sub.Score != nil {
			sr.Score = *sub.Score
		}
		if sub.ScoreRaw != nil {
			sr.ScoreRaw = *sub.ScoreRaw
		}
		for _, d := range sub.GradingDetails {
			sr.Questions = append(sr.Questions, model.QuestionResult{
				QuestionID: d.QuestionID,
				Points:     d.Points,
				Awarded:    d.Awarded,
				Student:    d.Student,
			})
		}
		results = append(results, sr)
	}

	return model.ExamExport{
		ExamID:       exam.ID,
		Title:        exam.Title,
		ExportedAt:   time.Now().UTC(),
		NumQuestions: len(exam.AnswerKey),
		MaxPoints:    maxPoints,
		Results:      results,
	}, nil
}
