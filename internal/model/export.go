package model

import "time"

// ExamExport is the top-level JSON structure for exam result export.
type ExamExport struct {
	ExamID       string          `json:"exam_id"`
	Title        string          `json:"title"`
	ExportedAt   time.Time       `json:"exported_at"`
	NumQuestions int             `json:"num_questions"`
	MaxPoints    float64         `json:"max_points"`
	Results      []StudentResult `json:"results"`
}

// StudentResult holds one graded submission for export.
type StudentResult struct {
	SubmissionID string           `json:"submission_id"`
	StudentName  string           `json:"student_name"`
	Graded       bool             `json:"graded"`
	Score        float64          `json:"score"`
	ScoreRaw     float64          `json:"score_raw"`
	Feedback     string           `json:"feedback"`
	Questions    []QuestionResult `json:"questions"`
	SubmittedAt  time.Time        `json:"submitted_at"`
	GradedAt     *time.Time       `json:"graded_at,omitempty"`
}

// QuestionResult holds per-question data for export.
type QuestionResult struct {
	QuestionID string  `json:"question_id"`
	Points     float64 `json:"points"`
	Awarded    float64 `json:"awarded"`
	Student    Value   `json:"student"`
}

// DashboardSummary aggregates grading progress over all exams or one exam.
// Scores are on the 0-20 scale.
type DashboardSummary struct {
	ExamID              string           `json:"exam_id,omitempty"`
	Exams               int              `json:"exams"`
	Submissions         int              `json:"submissions"`
	Corrected           int              `json:"corrected"`
	Pending             int              `json:"pending"`
	AverageGrade        float64          `json:"average_grade"`
	GradeDistribution   []GradeBucket    `json:"grade_distribution"`
	SubmissionsThisWeek []DayCount       `json:"submissions_this_week"`
	TopStudents         []StudentAverage `json:"top_students"`
}

// GradeBucket counts graded submissions whose score falls in a 4-point range.
type GradeBucket struct {
	Bucket string `json:"bucket"`
	Count  int    `json:"count"`
}

// DayCount counts submissions created on one weekday of the current week.
type DayCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

// StudentAverage is a student's mean score over their graded submissions.
type StudentAverage struct {
	StudentName string  `json:"student_name"`
	Grade       float64 `json:"grade"`
}
