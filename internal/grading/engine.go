package grading

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/correctme/examgrader/internal/model"
)

// Repository is the storage collaborator the engine reads from and writes
// its result back to. Implementations return ErrNotFound (possibly wrapped)
// for unknown ids.
type Repository interface {
	GetSubmission(ctx context.Context, id string) (model.Submission, error)
	GetAnswerKey(ctx context.Context, examID string) (model.Exam, error)
	// UpdateSubmissionResult replaces every derived grading field at once.
	UpdateSubmissionResult(ctx context.Context, id string, res model.Result) error
}

// Engine grades stored submissions. It holds no per-submission state, so one
// Engine may grade many submissions concurrently.
type Engine struct {
	repo        Repository
	opts        Options
	concurrency int
	log         *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithAllowNear enables half credit for near-miss text answers.
func WithAllowNear(b bool) Option { return func(e *Engine) { e.opts.AllowNear = b } }

// WithMessages sets the feedback sentences.
func WithMessages(m Messages) Option { return func(e *Engine) { e.opts.Messages = m } }

// WithConcurrency bounds how many submissions GradeBatch grades at once.
func WithConcurrency(n int) Option { return func(e *Engine) { e.concurrency = n } }

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.log = l } }

// New creates an Engine backed by repo.
func New(repo Repository, opts ...Option) *Engine {
	e := &Engine{repo: repo, concurrency: 4, log: slog.Default()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// With returns a copy of e with extra options applied.
func (e *Engine) With(opts ...Option) *Engine {
	cp := *e
	for _, o := range opts {
		o(&cp)
	}
	return &cp
}

// ScoreSubmission grades one stored submission and writes the result back.
// Nothing is written when the submission or exam is missing (ErrNotFound) or
// when there is nothing to grade (ErrIncompleteInput).
func (e *Engine) ScoreSubmission(ctx context.Context, id string) (model.Result, error) {
	sub, err := e.repo.GetSubmission(ctx, id)
	if err != nil {
		return model.Result{}, fmt.Errorf("get submission %s: %w", id, err)
	}
	exam, err := e.repo.GetAnswerKey(ctx, sub.ExamID)
	if err != nil {
		return model.Result{}, fmt.Errorf("get answer key for exam %s: %w", sub.ExamID, err)
	}

	res, err := Score(exam.AnswerKey, sub.AnswersStructured, e.opts)
	if err != nil {
		e.log.Warn("submission not gradable", "submission_id", id, "exam_id", sub.ExamID, "error", err)
		return model.Result{}, err
	}
	for _, d := range res.GradingDetails {
		e.log.Debug("graded question",
			"submission_id", id, "question_id", d.QuestionID,
			"points", d.Points, "awarded", d.Awarded)
	}

	if err := e.repo.UpdateSubmissionResult(ctx, id, res); err != nil {
		return model.Result{}, fmt.Errorf("save result for %s: %w", id, err)
	}
	e.log.Info("graded submission",
		"submission_id", id, "exam_id", sub.ExamID,
		"score", res.Score, "score_raw", res.ScoreRaw, "max_points", res.MaxPoints)
	return res, nil
}

// BatchItem is the outcome for one submission of a batch.
type BatchItem struct {
	SubmissionID string
	Result       model.Result
	Err          error
}

// GradeBatch grades every id, in parallel up to the configured concurrency.
// A failing submission never stops the others; outcomes keep the order of ids.
func (e *Engine) GradeBatch(ctx context.Context, ids []string) []BatchItem {
	out := make([]BatchItem, len(ids))
	var g errgroup.Group
	if e.concurrency > 0 {
		g.SetLimit(e.concurrency)
	}
	for i, id := range ids {
		g.Go(func() error {
			out[i].SubmissionID = id
			if err := ctx.Err(); err != nil {
				out[i].Err = err
				return nil
			}
			out[i].Result, out[i].Err = e.ScoreSubmission(ctx, id)
			return nil
		})
	}
	_ = g.Wait()
	return out
}
