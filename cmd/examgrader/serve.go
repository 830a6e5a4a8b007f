package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"

	"github.com/correctme/examgrader/internal/auth"
	"github.com/correctme/examgrader/internal/grading"
	"github.com/correctme/examgrader/internal/handler"
	appI18n "github.com/correctme/examgrader/internal/i18n"
	"github.com/correctme/examgrader/internal/llm"
	"github.com/correctme/examgrader/internal/model"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP grading API",
		RunE:  runServe,
	}
	addStoreFlags(cmd)
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("jwt-secret", "", "Secret used to sign access tokens (or set EXAMGRADER_JWT_SECRET)")
	f.Duration("token-ttl", 8*time.Hour, "Access token lifetime")
	f.String("admin-password", "", "Initial admin password (or set EXAMGRADER_ADMIN_PASSWORD)")
	f.StringP("lang", "l", "en", "Default feedback language (en, fr)")
	f.Bool("allow-near", false, "Give half credit to near-miss text answers")
	f.Int("concurrency", 4, "Parallel gradings for whole-exam regrades")
	f.StringSlice("cors-origins", []string{"http://localhost:3000"}, "Allowed browser origins (repeatable)")
	f.Bool("llm-enabled", false, "Enable answer-sheet extraction with a vision model")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2-vision", "Vision model name")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openStore(ctx, v)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := seedAdmin(ctx, db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	tokens, err := auth.NewService(v.GetString("jwt-secret"), v.GetDuration("token-ttl"))
	if err != nil {
		return fmt.Errorf("token service: %w", err)
	}

	cfg := model.ServerConfig{
		Lang:        lang,
		AllowNear:   v.GetBool("allow-near"),
		CORSOrigins: v.GetStringSlice("cors-origins"),
		Concurrency: v.GetInt("concurrency"),
		LLMEnabled:  v.GetBool("llm-enabled"),
	}

	// A nil *llm.Client must not become a non-nil handler.Extractor.
	var extractor handler.Extractor
	if cfg.LLMEnabled {
		client := llm.New(v.GetString("llm-url"), v.GetString("llm-key"), v.GetString("llm-model"))
		if err := client.Ping(ctx); err != nil {
			return fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", client.Model())
		extractor = client
	}

	engine := grading.New(db,
		grading.WithAllowNear(cfg.AllowNear),
		grading.WithConcurrency(cfg.Concurrency),
		grading.WithLogger(slog.Default()),
	)

	h, err := handler.New(db, engine, tokens, extractor, cfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "Accept-Language"},
		ExposedHeaders: []string{"Content-Length"},
		MaxAge:         300,
	}))
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", addr,
			"db_driver", db.Driver(),
			"lang", lang,
			"allow_near", cfg.AllowNear,
			"concurrency", cfg.Concurrency,
			"extraction", cfg.LLMEnabled,
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("could not stop server gracefully", "error", err)
			return srv.Close()
		}
		return nil
	}
}
