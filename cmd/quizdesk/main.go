package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pavelanni/quizdesk/internal/store"
	"github.com/pavelanni/quizdesk/internal/store/mongostore"
)

func main() {
	// A missing .env file is normal; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "warning: could not load .env:", err)
	}
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "quizdesk",
		Short: "Daily training quizzes: submit attempts, evaluate, export results",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd(), importCmd(), useraddCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

// storeFlags registers the flags every command needs to reach the store.
func storeFlags(f *pflag.FlagSet) {
	f.String("db-driver", "sqlite", "Document store backend (sqlite, postgres, mongo)")
	f.String("db", "quizdesk.db", "SQLite path, Postgres DSN or MongoDB URI")
	f.String("mongo-database", "quizdesk", "MongoDB database name")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func setupLogging(v *viper.Viper) {
	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: logLevel}
	var h slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		h = slog.NewJSONHandler(os.Stderr, opts)
	default:
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

// viperForCmd binds a command's flags, QUIZDESK_* environment variables and
// an optional quizdesk.{yaml,toml,json} config file.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("QUIZDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("quizdesk")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/quizdesk")
	v.AddConfigPath("/etc/quizdesk")

	setupLogging(v)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		// Log settings may come from the file.
		setupLogging(v)
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}
	return v
}

func openStore(ctx context.Context, v *viper.Viper) (store.Store, error) {
	driver := strings.ToLower(v.GetString("db-driver"))
	dsn := v.GetString("db")
	switch driver {
	case "mongo", "mongodb":
		st, err := mongostore.Open(ctx, dsn, v.GetString("mongo-database"))
		if err != nil {
			return nil, fmt.Errorf("open mongo store: %w", err)
		}
		return st, nil
	case string(store.DriverSQLite), string(store.DriverPostgres):
		st, err := store.Open(ctx, store.Driver(driver), dsn)
		if err != nil {
			return nil, fmt.Errorf("open %s store: %w", driver, err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown db-driver %q (want sqlite, postgres or mongo)", driver)
	}
}
