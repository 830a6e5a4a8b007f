package store

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/correctme/examgrader/internal/model"
)

var gradeBuckets = []string{"0-4", "4-8", "8-12", "12-16", "16-20"}

var weekdays = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

const topStudents = 5

// scoreRow is the slice of a submission the dashboard aggregates over.
type scoreRow struct {
	student string
	score   *float64
	created time.Time
}

// DashboardSummary aggregates submission counts, the average grade, the
// grade histogram, this week's submissions and the best students. An empty
// examID covers every exam.
func (s *Store) DashboardSummary(ctx context.Context, examID string) (model.DashboardSummary, error) {
	var exams int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM exams`).Scan(&exams); err != nil {
		return model.DashboardSummary{}, fmt.Errorf("count exams: %w", err)
	}

	query := `SELECT student_name, score, created_at FROM submissions`
	var args []any
	if examID != "" {
		if _, err := s.GetExam(ctx, examID); err != nil {
			return model.DashboardSummary{}, err
		}
		query += ` WHERE exam_id = $1`
		args = append(args, examID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return model.DashboardSummary{}, fmt.Errorf("dashboard submissions: %w", err)
	}
	defer rows.Close()

	var scored []scoreRow
	for rows.Next() {
		var (
			r       scoreRow
			score   sql.NullFloat64
			created int64
		)
		if err := rows.Scan(&r.student, &score, &created); err != nil {
			return model.DashboardSummary{}, err
		}
		if score.Valid {
			r.score = &score.Float64
		}
		r.created = fromUnix(created)
		scored = append(scored, r)
	}
	if err := rows.Err(); err != nil {
		return model.DashboardSummary{}, err
	}

	sum := summarize(scored, time.Now())
	sum.ExamID = examID
	sum.Exams = exams
	return sum, nil
}

func summarize(rows []scoreRow, now time.Time) model.DashboardSummary {
	sum := model.DashboardSummary{
		Submissions:         len(rows),
		GradeDistribution:   make([]model.GradeBucket, len(gradeBuckets)),
		SubmissionsThisWeek: make([]model.DayCount, len(weekdays)),
		TopStudents:         []model.StudentAverage{},
	}
	for i, b := range gradeBuckets {
		sum.GradeDistribution[i].Bucket = b
	}
	for i, d := range weekdays {
		sum.SubmissionsThisWeek[i].Day = d
	}

	weekStart := startOfWeek(now)
	var total float64
	type acc struct {
		total float64
		n     int
	}
	perStudent := map[string]*acc{}
	for _, r := range rows {
		if !r.created.Before(weekStart) && r.created.Before(weekStart.AddDate(0, 0, 7)) {
			sum.SubmissionsThisWeek[(int(r.created.Weekday())+6)%7].Count++
		}
		if r.score == nil {
			continue
		}
		score := *r.score
		sum.Corrected++
		total += score
		if i := bucketIndex(score); i >= 0 {
			sum.GradeDistribution[i].Count++
		}
		name := r.student
		if name == "" {
			name = "Student"
		}
		a := perStudent[name]
		if a == nil {
			a = &acc{}
			perStudent[name] = a
		}
		a.total += score
		a.n++
	}
	sum.Pending = max(sum.Submissions-sum.Corrected, 0)
	if sum.Corrected > 0 {
		sum.AverageGrade = round1(total / float64(sum.Corrected))
	}

	for name, a := range perStudent {
		sum.TopStudents = append(sum.TopStudents, model.StudentAverage{StudentName: name, Grade: round1(a.total / float64(a.n))})
	}
	slices.SortFunc(sum.TopStudents, func(a, b model.StudentAverage) int {
		if c := cmp.Compare(b.Grade, a.Grade); c != 0 {
			return c
		}
		return cmp.Compare(a.StudentName, b.StudentName)
	})
	if len(sum.TopStudents) > topStudents {
		sum.TopStudents = sum.TopStudents[:topStudents]
	}
	return sum
}

// bucketIndex places a 0-20 score in a 4-point bucket; 20 belongs to the
// last one and out-of-range scores to none.
func bucketIndex(score float64) int {
	switch {
	case score < 0 || score > 20:
		return -1
	case score == 20:
		return len(gradeBuckets) - 1
	default:
		return int(score / 4)
	}
}

func startOfWeek(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -((int(t.Weekday()) + 6) % 7))
}

func round1(x float64) float64 { return math.Round(x*10) / 10 }

// LatestExam returns the most recently created exam.
func (s *Store) LatestExam(ctx context.Context) (model.Exam, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM exams ORDER BY created_at DESC, id DESC LIMIT 1`).Scan(&id)
	if err != nil {
		return model.Exam{}, notFound("exam", "latest", err)
	}
	return s.GetExam(ctx, id)
}

// LatestSubmission returns the newest submission, optionally restricted to
// one student.
func (s *Store) LatestSubmission(ctx context.Context, studentName string) (model.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions`
	var args []any
	if studentName != "" {
		query += ` WHERE student_name = $1`
		args = append(args, studentName)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT 1`
	sub, err := scanSubmission(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return model.Submission{}, notFound("submission", "latest", err)
	}
	return sub, nil
}
