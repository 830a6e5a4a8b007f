package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/correctme/examgrader/internal/grading"
	"github.com/correctme/examgrader/internal/model"
)

func ptr(f float64) *float64 { return &f }

func TestSummarize(t *testing.T) {
	// Wednesday; the week starts on Monday 2026-10-12.
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	monday := time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC)
	lastWeek := monday.AddDate(0, 0, -3)

	tests := []struct {
		name      string
		rows      []scoreRow
		corrected int
		pending   int
		average   float64
		buckets   [5]int
		week      [7]int
		top       []model.StudentAverage
	}{
		{
			name: "empty",
			top:  []model.StudentAverage{},
		},
		{
			name: "ungraded only",
			rows: []scoreRow{
				{student: "Ada", created: monday},
				{student: "Bob", created: lastWeek},
			},
			pending: 2,
			week:    [7]int{1, 0, 0, 0, 0, 0, 0},
			top:     []model.StudentAverage{},
		},
		{
			name: "bucket edges",
			rows: []scoreRow{
				{student: "Ada", score: ptr(0), created: monday},
				{student: "Ada", score: ptr(4), created: monday.AddDate(0, 0, 2)},
				{student: "Bob", score: ptr(12), created: lastWeek},
				{student: "Bob", score: ptr(20), created: monday.AddDate(0, 0, 6)},
				{student: "", score: ptr(16), created: lastWeek},
			},
			corrected: 5,
			average:   10.4,
			buckets:   [5]int{1, 1, 0, 1, 2},
			week:      [7]int{1, 0, 1, 0, 0, 0, 1},
			top: []model.StudentAverage{
				{StudentName: "Bob", Grade: 16},
				{StudentName: "Student", Grade: 16},
				{StudentName: "Ada", Grade: 2},
			},
		},
		{
			name: "out of range score is averaged but not bucketed",
			rows: []scoreRow{
				{student: "Ada", score: ptr(25), created: lastWeek},
				{student: "Bob", score: ptr(10), created: lastWeek},
				{student: "Cy", created: lastWeek},
			},
			corrected: 2,
			pending:   1,
			average:   17.5,
			buckets:   [5]int{0, 0, 1, 0, 0},
			top: []model.StudentAverage{
				{StudentName: "Ada", Grade: 25},
				{StudentName: "Bob", Grade: 10},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := summarize(tt.rows, now)
			if got.Submissions != len(tt.rows) || got.Corrected != tt.corrected || got.Pending != tt.pending {
				t.Errorf("counts = %d/%d/%d", got.Submissions, got.Corrected, got.Pending)
			}
			if got.AverageGrade != tt.average {
				t.Errorf("average = %v, want %v", got.AverageGrade, tt.average)
			}
			for i, b := range got.GradeDistribution {
				if b.Bucket != gradeBuckets[i] || b.Count != tt.buckets[i] {
					t.Errorf("bucket %d = %+v, want %d", i, b, tt.buckets[i])
				}
			}
			for i, d := range got.SubmissionsThisWeek {
				if d.Day != weekdays[i] || d.Count != tt.week[i] {
					t.Errorf("day %d = %+v, want %d", i, d, tt.week[i])
				}
			}
			if len(got.TopStudents) != len(tt.top) {
				t.Fatalf("top = %+v", got.TopStudents)
			}
			for i := range tt.top {
				if got.TopStudents[i] != tt.top[i] {
					t.Errorf("top[%d] = %+v, want %+v", i, got.TopStudents[i], tt.top[i])
				}
			}
		})
	}
}

func TestSummarizeKeepsFiveTopStudents(t *testing.T) {
	var rows []scoreRow
	for i, name := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		rows = append(rows, scoreRow{student: name, score: ptr(float64(i))})
	}
	top := summarize(rows, time.Now()).TopStudents
	if len(top) != 5 || top[0].StudentName != "g" || top[4].StudentName != "c" {
		t.Errorf("top = %+v", top)
	}
}

func TestDashboardSummary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertTestExam(t, s, "a", `[{"expected_answer":"x"}]`)
	insertTestExam(t, s, "b", `[{"expected_answer":"x"}]`)

	graded := insertTestSubmission(t, s, "a", `{"Q1":"x"}`)
	insertTestSubmission(t, s, "a", `{"Q1":"y"}`)
	other := insertTestSubmission(t, s, "b", `{"Q1":"x"}`)
	for id, score := range map[string]float64{graded.ID: 20, other.ID: 6} {
		if err := s.UpdateSubmissionResult(ctx, id, model.Result{Score: score, MaxPoints: 1}); err != nil {
			t.Fatalf("UpdateSubmissionResult: %v", err)
		}
	}

	all, err := s.DashboardSummary(ctx, "")
	if err != nil {
		t.Fatalf("DashboardSummary: %v", err)
	}
	if all.Exams != 2 || all.Submissions != 3 || all.Corrected != 2 || all.Pending != 1 || all.AverageGrade != 13 {
		t.Errorf("all = %+v", all)
	}

	one, err := s.DashboardSummary(ctx, "a")
	if err != nil {
		t.Fatalf("DashboardSummary(a): %v", err)
	}
	if one.ExamID != "a" || one.Submissions != 2 || one.Corrected != 1 || one.AverageGrade != 20 {
		t.Errorf("exam a = %+v", one)
	}
	if one.GradeDistribution[4].Count != 1 {
		t.Errorf("distribution = %+v", one.GradeDistribution)
	}

	if _, err := s.DashboardSummary(ctx, "missing"); !errors.Is(err, grading.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLatest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.LatestExam(ctx); !errors.Is(err, grading.ErrNotFound) {
		t.Errorf("LatestExam on empty store: %v", err)
	}
	if _, err := s.LatestSubmission(ctx, ""); !errors.Is(err, grading.ErrNotFound) {
		t.Errorf("LatestSubmission on empty store: %v", err)
	}

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "new"} {
		if _, err := s.PutExam(ctx, model.Exam{ID: id, CreatedAt: base.Add(time.Duration(i) * time.Hour)}); err != nil {
			t.Fatalf("PutExam: %v", err)
		}
	}
	exam, err := s.LatestExam(ctx)
	if err != nil || exam.ID != "new" {
		t.Errorf("LatestExam = %q, %v", exam.ID, err)
	}

	subs := []model.Submission{
		{ID: "s1", ExamID: "old", StudentName: "Ada", CreatedAt: base},
		{ID: "s2", ExamID: "new", StudentName: "Ada", CreatedAt: base.Add(2 * time.Hour)},
		{ID: "s3", ExamID: "new", StudentName: "Bob", CreatedAt: base.Add(time.Hour)},
	}
	for _, sub := range subs {
		sub.AnswersStructured = model.Map()
		if _, err := s.CreateSubmission(ctx, sub); err != nil {
			t.Fatalf("CreateSubmission: %v", err)
		}
	}

	for student, want := range map[string]string{"": "s2", "Ada": "s2", "Bob": "s3"} {
		got, err := s.LatestSubmission(ctx, student)
		if err != nil || got.ID != want {
			t.Errorf("LatestSubmission(%q) = %q, %v; want %s", student, got.ID, err, want)
		}
	}
	if _, err := s.LatestSubmission(ctx, "Cy"); !errors.Is(err, grading.ErrNotFound) {
		t.Errorf("unknown student: %v", err)
	}
}
