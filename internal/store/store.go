package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/correctme/examgrader/internal/grading"
	"github.com/correctme/examgrader/internal/model"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

// Driver names a supported database backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Store is the SQL-backed repository for exams, submissions and users.
// Every query uses $n placeholders, which both drivers accept.
type Store struct {
	db     *sql.DB
	driver Driver
}

// New opens (or creates) a SQLite database file. ":memory:" gives a private
// in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		dsn = "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	return Open(context.Background(), DriverSQLite, dsn)
}

// Open connects to the given driver and ensures the schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*Store, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite"
	case DriverPostgres:
		drvName = "pgx"
	default:
		return nil, fmt.Errorf("unsupported driver: %q", driver)
	}
	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == DriverSQLite {
		// One writer; also keeps a :memory: database on a single connection.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Driver reports which backend the store talks to.
func (s *Store) Driver() Driver { return s.driver }

func (s *Store) migrate(ctx context.Context) error {
	schema := schemaSQLite
	if s.driver == DriverPostgres {
		schema = schemaPostgres
	}
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const schemaSQLite = `
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS exams (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	answer_key_json TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS submissions (
	id TEXT PRIMARY KEY,
	exam_id TEXT NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
	student_name TEXT NOT NULL DEFAULT '',
	answers_json TEXT NOT NULL,
	score REAL,
	score_raw REAL,
	max_points REAL,
	feedback TEXT NOT NULL DEFAULT '',
	grading_details_json TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	graded_at INTEGER
);

CREATE INDEX IF NOT EXISTS submissions_exam_idx ON submissions(exam_id);

CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS imported_files (
	path TEXT PRIMARY KEY,
	sha256 TEXT NOT NULL,
	imported_at INTEGER NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS exams (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	answer_key_json TEXT NOT NULL,
	created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS submissions (
	id TEXT PRIMARY KEY,
	exam_id TEXT NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
	student_name TEXT NOT NULL DEFAULT '',
	answers_json TEXT NOT NULL,
	score DOUBLE PRECISION,
	score_raw DOUBLE PRECISION,
	max_points DOUBLE PRECISION,
	feedback TEXT NOT NULL DEFAULT '',
	grading_details_json TEXT NOT NULL DEFAULT '',
	created_at BIGINT NOT NULL,
	graded_at BIGINT
);

CREATE INDEX IF NOT EXISTS submissions_exam_idx ON submissions(exam_id);

CREATE TABLE IF NOT EXISTS users (
	id BIGSERIAL PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS imported_files (
	path TEXT PRIMARY KEY,
	sha256 TEXT NOT NULL,
	imported_at BIGINT NOT NULL
);
`

// Timestamps are stored as Unix nanoseconds so both backends sort them the same.
func toUnix(t time.Time) int64 { return t.UnixNano() }

func fromUnix(n int64) time.Time { return time.Unix(0, n).UTC() }

func notFound(what, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, grading.ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", what, id, err)
}

// PutExam inserts an exam or replaces the title and answer key of an
// existing one. A missing ID is generated.
func (s *Store) PutExam(ctx context.Context, e model.Exam) (model.Exam, error) {
	if strings.TrimSpace(e.ID) == "" {
		e.ID = uuid.NewString()
	}
	if e.AnswerKey == nil {
		e.AnswerKey = []model.AnswerKeyItem{}
	}
	keyJSON, err := json.Marshal(e.AnswerKey)
	if err != nil {
		return model.Exam{}, fmt.Errorf("encode answer key: %w", err)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO exams (id, title, answer_key_json, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, answer_key_json = EXCLUDED.answer_key_json`,
		e.ID, e.Title, string(keyJSON), toUnix(e.CreatedAt),
	)
	if err != nil {
		return model.Exam{}, fmt.Errorf("put exam %s: %w", e.ID, err)
	}
	return s.GetExam(ctx, e.ID)
}

// GetExam returns an exam with its answer key.
func (s *Store) GetExam(ctx context.Context, id string) (model.Exam, error) {
	var (
		e       model.Exam
		keyJSON string
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, answer_key_json, created_at FROM exams WHERE id = $1`, id,
	).Scan(&e.ID, &e.Title, &keyJSON, &created)
	if err != nil {
		return model.Exam{}, notFound("exam", id, err)
	}
	if err := json.Unmarshal([]byte(keyJSON), &e.AnswerKey); err != nil {
		return model.Exam{}, fmt.Errorf("decode answer key of exam %s: %w", id, err)
	}
	e.CreatedAt = fromUnix(created)
	return e, nil
}

// GetAnswerKey satisfies grading.Repository.
func (s *Store) GetAnswerKey(ctx context.Context, examID string) (model.Exam, error) {
	return s.GetExam(ctx, examID)
}

// ListExams returns exam summaries, newest first.
func (s *Store) ListExams(ctx context.Context) ([]model.ExamSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.id, e.title, e.answer_key_json, e.created_at,
		        (SELECT COUNT(*) FROM submissions sub WHERE sub.exam_id = e.id)
		 FROM exams e ORDER BY e.created_at DESC, e.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	defer rows.Close()
	exams := []model.ExamSummary{}
	for rows.Next() {
		var (
			sum     model.ExamSummary
			keyJSON string
			created int64
		)
		if err := rows.Scan(&sum.ID, &sum.Title, &keyJSON, &created, &sum.NumSubmissions); err != nil {
			return nil, err
		}
		var key []json.RawMessage
		if err := json.Unmarshal([]byte(keyJSON), &key); err != nil {
			return nil, fmt.Errorf("decode answer key of exam %s: %w", sum.ID, err)
		}
		sum.NumQuestions = len(key)
		sum.CreatedAt = fromUnix(created)
		exams = append(exams, sum)
	}
	return exams, rows.Err()
}

// CreateSubmission stores an ungraded submission. The exam must exist.
func (s *Store) CreateSubmission(ctx context.Context, sub model.Submission) (model.Submission, error) {
	if _, err := s.GetExam(ctx, sub.ExamID); err != nil {
		return model.Submission{}, err
	}
	if strings.TrimSpace(sub.ID) == "" {
		sub.ID = uuid.NewString()
	}
	answers, err := json.Marshal(sub.AnswersStructured)
	if err != nil {
		return model.Submission{}, fmt.Errorf("encode answers: %w", err)
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO submissions (id, exam_id, student_name, answers_json, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		sub.ID, sub.ExamID, sub.StudentName, string(answers), toUnix(sub.CreatedAt),
	)
	if err != nil {
		return model.Submission{}, fmt.Errorf("create submission: %w", err)
	}
	return s.GetSubmission(ctx, sub.ID)
}

const submissionColumns = `id, exam_id, student_name, answers_json, score, score_raw, max_points,
	feedback, grading_details_json, created_at, graded_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(r rowScanner) (model.Submission, error) {
	var (
		sub                       model.Submission
		answers, details          string
		score, scoreRaw, maxPoint sql.NullFloat64
		created                   int64
		graded                    sql.NullInt64
	)
	if err := r.Scan(&sub.ID, &sub.ExamID, &sub.StudentName, &answers, &score, &scoreRaw, &maxPoint,
		&sub.Feedback, &details, &created, &graded); err != nil {
		return model.Submission{}, err
	}
	v, err := model.ParseValue([]byte(answers))
	if err != nil {
		return model.Submission{}, fmt.Errorf("decode answers of %s: %w", sub.ID, err)
	}
	sub.AnswersStructured = v
	if details != "" {
		if err := json.Unmarshal([]byte(details), &sub.GradingDetails); err != nil {
			return model.Submission{}, fmt.Errorf("decode grading details of %s: %w", sub.ID, err)
		}
	}
	if score.Valid {
		sub.Score = &score.Float64
	}
	if scoreRaw.Valid {
		sub.ScoreRaw = &scoreRaw.Float64
	}
	if maxPoint.Valid {
		sub.MaxPoints = &maxPoint.Float64
	}
	sub.CreatedAt = fromUnix(created)
	if graded.Valid {
		t := fromUnix(graded.Int64)
		sub.GradedAt = &t
	}
	return sub, nil
}

// GetSubmission returns a submission with any stored grading result.
func (s *Store) GetSubmission(ctx context.Context, id string) (model.Submission, error) {
	sub, err := scanSubmission(s.db.QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id))
	if err != nil {
		return model.Submission{}, notFound("submission", id, err)
	}
	return sub, nil
}

// ListSubmissionsByExam returns the submissions of an exam in creation order.
func (s *Store) ListSubmissionsByExam(ctx context.Context, examID string) ([]model.Submission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE exam_id = $1 ORDER BY created_at, id`, examID)
	if err != nil {
		return nil, fmt.Errorf("list submissions of exam %s: %w", examID, err)
	}
	defer rows.Close()
	subs := []model.Submission{}
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// SubmissionIDsByExam returns the ids of an exam's submissions in creation order.
func (s *Store) SubmissionIDsByExam(ctx context.Context, examID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM submissions WHERE exam_id = $1 ORDER BY created_at, id`, examID)
	if err != nil {
		return nil, fmt.Errorf("list submissions of exam %s: %w", examID, err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateSubmissionResult replaces every grading field of a submission in a
// single statement.
func (s *Store) UpdateSubmissionResult(ctx context.Context, id string, res model.Result) error {
	details, err := json.Marshal(res.GradingDetails)
	if err != nil {
		return fmt.Errorf("encode grading details: %w", err)
	}
	out, err := s.db.ExecContext(ctx,
		`UPDATE submissions
		 SET score = $1, score_raw = $2, max_points = $3, feedback = $4,
		     grading_details_json = $5, graded_at = $6
		 WHERE id = $7`,
		res.Score, res.ScoreRaw, res.MaxPoints, res.Feedback, string(details), toUnix(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("update submission %s: %w", id, err)
	}
	n, err := out.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("submission %s: %w", id, grading.ErrNotFound)
	}
	return nil
}
