package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import exams and submissions from JSON files",
		RunE:  runImport,
	}
	addStoreFlags(cmd)
	addGradingFlags(cmd)
	f := cmd.Flags()
	f.StringSliceP("exams", "e", nil, "Exams JSON file (repeatable)")
	f.StringSliceP("submissions", "s", nil, "Submissions JSON file (repeatable)")
	f.Bool("grade", false, "Grade newly imported submissions")
	f.Int("concurrency", 4, "Parallel gradings")
	cmd.MarkFlagsOneRequired("exams", "submissions")
	return cmd
}

func runImport(cmd *cobra.Command, _ []string) error {
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

	// Exams first so submissions in the same run can refer to them.
	for _, path := range v.GetStringSlice("exams") {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if _, err := db.ImportExams(ctx, path, data); err != nil {
			return err
		}
	}

	var imported []string
	for _, path := range v.GetStringSlice("submissions") {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		_, ids, err := db.ImportSubmissions(ctx, path, data)
		if err != nil {
			return err
		}
		imported = append(imported, ids...)
	}

	if !v.GetBool("grade") || len(imported) == 0 {
		return nil
	}
	failed := 0
	for _, item := range newEngine(ctx, db, v).GradeBatch(ctx, imported) {
		if item.Err != nil {
			slog.Warn("could not grade imported submission", "submission_id", item.SubmissionID, "error", item.Err)
			failed++
		}
	}
	slog.Info("graded imported submissions", "graded", len(imported)-failed, "failed", failed)
	return nil
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export exam results as JSON",
		RunE:  runExport,
	}
	addStoreFlags(cmd)
	f := cmd.Flags()
	f.String("exam-id", "", "Exam to export (required)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")

	_ = cmd.MarkFlagRequired("exam-id")

	return cmd
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	db, err := openStore(ctx, v)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := db.ExportExam(ctx, v.GetString("exam-id"))
	if err != nil {
		return fmt.Errorf("export exam: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return writeJSONTo(w, export)
}
