package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/correctme/examgrader/internal/grading"
	appI18n "github.com/correctme/examgrader/internal/i18n"
	"github.com/correctme/examgrader/internal/model"
	"github.com/correctme/examgrader/internal/store"
)

func addGradingFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("lang", "l", "en", "Feedback language (en, fr)")
	f.Bool("allow-near", false, "Give half credit to near-miss text answers")
}

// feedbackContext initializes translations and returns a context carrying
// a localizer for the configured language.
func feedbackContext(v *viper.Viper) (context.Context, error) {
	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return nil, fmt.Errorf("init i18n: %w", err)
	}
	return appI18n.WithLocalizer(context.Background(), appI18n.NewLocalizer(lang)), nil
}

func newEngine(ctx context.Context, db *store.Store, v *viper.Viper) *grading.Engine {
	return grading.New(db,
		grading.WithAllowNear(v.GetBool("allow-near")),
		grading.WithConcurrency(v.GetInt("concurrency")),
		grading.WithMessages(appI18n.FeedbackMessages(ctx)),
		grading.WithLogger(slog.Default()),
	)
}

func gradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grade",
		Short: "Grade stored submissions and write the results back",
		RunE:  runGrade,
	}
	addStoreFlags(cmd)
	addGradingFlags(cmd)
	f := cmd.Flags()
	f.StringSliceP("submission", "s", nil, "Submission id to grade (repeatable)")
	f.String("exam-id", "", "Grade every submission of this exam")
	f.Int("concurrency", 4, "Parallel gradings")
	cmd.MarkFlagsOneRequired("submission", "exam-id")
	return cmd
}

type gradeOutput struct {
	SubmissionID string   `json:"submission_id"`
	Score        *float64 `json:"score,omitempty"`
	ScoreRaw     *float64 `json:"score_raw,omitempty"`
	MaxPoints    *float64 `json:"max_points,omitempty"`
	Feedback     string   `json:"feedback,omitempty"`
	Error        string   `json:"error,omitempty"`
}

func runGrade(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, err := feedbackContext(v)
	if err != nil {
		return err
	}
	db, err := openStore(ctx, v)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ids := v.GetStringSlice("submission")
	if examID := v.GetString("exam-id"); examID != "" {
		if _, err := db.GetExam(ctx, examID); err != nil {
			return err
		}
		more, err := db.SubmissionIDsByExam(ctx, examID)
		if err != nil {
			return fmt.Errorf("list submissions: %w", err)
		}
		ids = append(ids, more...)
	}

	items := newEngine(ctx, db, v).GradeBatch(ctx, ids)
	out := make([]gradeOutput, len(items))
	failed := 0
	for i, item := range items {
		out[i].SubmissionID = item.SubmissionID
		if item.Err != nil {
			out[i].Error = item.Err.Error()
			failed++
			continue
		}
		res := item.Result
		out[i].Score, out[i].ScoreRaw, out[i].MaxPoints = &res.Score, &res.ScoreRaw, &res.MaxPoints
		out[i].Feedback = res.Feedback
	}
	slog.Info("grading finished", "graded", len(items)-failed, "failed", failed)

	if err := writeJSONTo(cmd.OutOrStdout(), out); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d submissions could not be graded", failed, len(items))
	}
	return nil
}

func scoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score an answers file against an answer key file without a database",
		RunE:  runScore,
	}
	addGradingFlags(cmd)
	f := cmd.Flags()
	f.String("key", "", "Answer key JSON file: an exam object or a list of answer-key items")
	f.String("answers", "", "Student answers JSON file (- for stdin)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("answers")
	return cmd
}

func runScore(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, err := feedbackContext(v)
	if err != nil {
		return err
	}

	keyData, err := os.ReadFile(v.GetString("key"))
	if err != nil {
		return fmt.Errorf("read answer key: %w", err)
	}
	key, err := parseAnswerKey(keyData)
	if err != nil {
		return err
	}

	var answersData []byte
	if path := v.GetString("answers"); path == "-" {
		answersData, err = io.ReadAll(cmd.InOrStdin())
	} else {
		answersData, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("read answers: %w", err)
	}
	answers, err := model.ParseValue(answersData)
	if err != nil {
		return fmt.Errorf("parse answers: %w", err)
	}

	res, err := grading.Score(key, answers, grading.Options{
		AllowNear: v.GetBool("allow-near"),
		Messages:  appI18n.FeedbackMessages(ctx),
	})
	if err != nil {
		return err
	}
	return writeJSONTo(cmd.OutOrStdout(), res)
}

// parseAnswerKey accepts either a bare list of answer-key items or an exam
// object holding one.
func parseAnswerKey(data []byte) ([]model.AnswerKeyItem, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var exam model.Exam
		if err := json.Unmarshal(trimmed, &exam); err != nil {
			return nil, fmt.Errorf("parse exam: %w", err)
		}
		return exam.AnswerKey, nil
	}
	var key []model.AnswerKeyItem
	if err := json.Unmarshal(trimmed, &key); err != nil {
		return nil, fmt.Errorf("parse answer key: %w", err)
	}
	return key, nil
}

func writeJSONTo(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)
	return nil
}
