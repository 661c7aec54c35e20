package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/quizdesk/internal/account"
	"github.com/pavelanni/quizdesk/internal/attempt"
	"github.com/pavelanni/quizdesk/internal/auth"
	"github.com/pavelanni/quizdesk/internal/catalog"
	"github.com/pavelanni/quizdesk/internal/grading"
	"github.com/pavelanni/quizdesk/internal/handler"
	appI18n "github.com/pavelanni/quizdesk/internal/i18n"
	"github.com/pavelanni/quizdesk/internal/llm"
	"github.com/pavelanni/quizdesk/internal/llm/prompts"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	storeFlags(f)
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("jwt-secret", "", "Secret for signing bearer tokens (at least 16 characters)")
	f.Duration("token-ttl", auth.DefaultTTL, "Bearer token lifetime")
	f.Float64("max-score", grading.DefaultMaxScore, "Maximum score per question")
	f.StringP("lang", "l", "en", "Default message language (en, ru)")
	f.StringSlice("cors-origins", nil, "Allowed CORS origins (repeatable)")
	f.String("superadmin-email", "", "Email of the superadmin seeded into an empty store")
	f.String("superadmin-password", "", "Password of the seeded superadmin")
	f.String("llm-url", "", "OpenAI-compatible API base URL (empty disables score suggestions)")
	f.String("llm-key", "", "API key for the LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("prompt-variant", string(prompts.Standard), "Suggestion prompt variant (strict, standard, lenient)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	issuer, err := auth.NewIssuer(v.GetString("jwt-secret"), v.GetDuration("token-ttl"))
	if err != nil {
		return fmt.Errorf("token issuer: %w", err)
	}

	st, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer st.Close()

	accounts := account.New(st, issuer)
	seeded, err := accounts.EnsureSuperadmin(ctx, v.GetString("superadmin-email"), v.GetString("superadmin-password"))
	if err != nil {
		return err
	}
	if seeded {
		slog.Info("seeded superadmin", "email", v.GetString("superadmin-email"))
	}

	deps := handler.Deps{
		Accounts: accounts,
		Catalog:  catalog.New(st),
		Attempts: attempt.New(st, st, attempt.Options{MaxScore: v.GetFloat64("max-score")}),
		Store:    st,
		Issuer:   issuer,
	}
	assistant, err := newAssistant(ctx, v)
	if err != nil {
		return err
	}
	if assistant != nil {
		deps.Assistant = assistant
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if origins := v.GetStringSlice("cors-origins"); len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Accept-Language", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"Content-Language"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
	handler.New(deps).Routes(r)

	srv := &http.Server{
		Addr:              v.GetString("addr"),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", srv.Addr,
			"db_driver", v.GetString("db-driver"),
			"lang", lang,
			"max_score", deps.Attempts.MaxScore(),
			"suggestions", deps.Assistant != nil,
		)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newAssistant returns nil when no LLM endpoint is configured.
func newAssistant(ctx context.Context, v *viper.Viper) (*llm.Client, error) {
	url := v.GetString("llm-url")
	if url == "" {
		slog.Info("llm-url not set, score suggestions disabled")
		return nil, nil
	}
	variant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
	if !prompts.IsValidVariant(variant) {
		slog.Warn("invalid prompt-variant, using standard", "variant", variant)
		variant = string(prompts.Standard)
	}
	client, err := llm.New(url, v.GetString("llm-key"), v.GetString("llm-model"), prompts.Variant(variant))
	if err != nil {
		return nil, fmt.Errorf("create LLM client: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		slog.Warn("LLM endpoint not reachable, suggestions may fail", "url", url, "error", err)
	} else {
		slog.Info("LLM endpoint OK", "url", url, "model", v.GetString("llm-model"))
	}
	return client, nil
}
