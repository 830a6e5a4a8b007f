package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleStudent is a student user role.
	UserRoleStudent UserRole = "student"
	// UserRoleInstructor is an instructor user role.
	UserRoleInstructor UserRole = "instructor"
	// UserRoleAdmin is an admin user role.
	UserRoleAdmin UserRole = "admin"
)

// User represents a system user.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// QuestionType selects the comparison rule applied to a question or subpart.
type QuestionType string

const (
	TypeText      QuestionType = "text"
	TypeShortText QuestionType = "short_text"
	TypeMCQSingle QuestionType = "mcq_single"
	TypeTrueFalse QuestionType = "true_false"
	TypeNumeric   QuestionType = "numeric"
	TypeRegex     QuestionType = "regex"
)

// OrDefault returns t, or TypeText when t is empty.
func (t QuestionType) OrDefault() QuestionType {
	if t == "" {
		return TypeText
	}
	return t
}

// SubpartSpec is an explicitly authored subpart of an answer-key item.
// Expected falls back to Answer for older answer keys.
type SubpartSpec struct {
	ID       LooseString  `json:"id,omitempty"`
	Type     QuestionType `json:"type,omitempty"`
	Expected Value        `json:"expected,omitzero"`
	Answer   Value        `json:"answer,omitzero"`
	Points   Value        `json:"points,omitzero"`
}

// AnswerKeyItem is one exam question of an answer key.
type AnswerKeyItem struct {
	QuestionID     LooseString   `json:"question_id,omitempty"`
	Type           QuestionType  `json:"type,omitempty"`
	ExpectedAnswer Value         `json:"expected_answer"`
	Subparts       []SubpartSpec `json:"subparts,omitempty"`
}

// Subpart is one atomic gradable blank produced by expanding an AnswerKeyItem.
type Subpart struct {
	ID       string       `json:"id"`
	Type     QuestionType `json:"type"`
	Expected Value        `json:"expected"`
	Points   float64      `json:"points"`
}

// Exam holds an answer key and its title.
type Exam struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	AnswerKey []AnswerKeyItem `json:"answer_key"`
	CreatedAt time.Time       `json:"created_at"`
}

// ExamSummary is an exam listing entry without the answer key.
type ExamSummary struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	NumQuestions   int       `json:"num_questions"`
	NumSubmissions int       `json:"num_submissions"`
	CreatedAt      time.Time `json:"created_at"`
}

// Submission is one student's attempt at an exam. AnswersStructured maps a
// question key (question_id or Q1, Q2, ...) to a raw answer of any shape.
// The grading fields are nil until the submission has been graded.
type Submission struct {
	ID                string          `json:"id"`
	ExamID            string          `json:"exam_id"`
	StudentName       string          `json:"student_name,omitempty"`
	AnswersStructured Value           `json:"answers_structured"`
	Score             *float64        `json:"score,omitempty"`
	ScoreRaw          *float64        `json:"score_raw,omitempty"`
	MaxPoints         *float64        `json:"max_points,omitempty"`
	Feedback          string          `json:"feedback,omitempty"`
	GradingDetails    []GradingDetail `json:"grading_details,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	GradedAt          *time.Time      `json:"graded_at,omitempty"`
}

// SubpartDetail records how a single subpart was graded.
type SubpartDetail struct {
	SubID    string       `json:"sub_id"`
	Type     QuestionType `json:"type"`
	Points   float64      `json:"points"`
	Awarded  float64      `json:"awarded"`
	Expected Value        `json:"expected"`
	Student  Value        `json:"student"`
}

// GradingDetail records how one question was graded.
type GradingDetail struct {
	Index             int             `json:"index"`
	QuestionID        string          `json:"question_id"`
	MatchedStudentKey *string         `json:"matched_student_key"`
	Type              QuestionType    `json:"type"`
	Points            float64         `json:"points"`
	Awarded           float64         `json:"awarded"`
	Expected          Value           `json:"expected"`
	Student           Value           `json:"student"`
	Subparts          []SubpartDetail `json:"subparts"`
}

// Result is the outcome of grading a submission against an answer key.
type Result struct {
	Score          float64         `json:"score"`
	ScoreRaw       float64         `json:"score_raw"`
	MaxPoints      float64         `json:"max_points"`
	Feedback       string          `json:"feedback"`
	GradingDetails []GradingDetail `json:"grading_details"`
}

// ServerConfig holds runtime parameters set via CLI flags.
type ServerConfig struct {
	Lang        string   // default feedback language
	AllowNear   bool     // half credit for near-miss text answers
	CORSOrigins []string // allowed browser origins for the API
	Concurrency int      // parallel regrades for whole-exam regrades
	LLMEnabled  bool     // answer-sheet extraction endpoint available
}
