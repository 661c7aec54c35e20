package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pavelanni/quizdesk/internal/account"
	"github.com/pavelanni/quizdesk/internal/catalog"
	"github.com/pavelanni/quizdesk/internal/grading"
	appI18n "github.com/pavelanni/quizdesk/internal/i18n"
	"github.com/pavelanni/quizdesk/internal/model"
	"github.com/pavelanni/quizdesk/internal/store"
	"github.com/pavelanni/quizdesk/internal/validate"
)

// cliActor is recorded as the author of records created from the command line.
var cliActor = model.Identity{ID: "cli", Role: model.RoleSuperadmin}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export attempt results as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	storeFlags(f)
	f.String("from", "", "First date to include (YYYY-MM-DD)")
	f.String("to", "", "Last date to include (YYYY-MM-DD)")
	f.String("status", "", "Only attempts with this status (in-progress, submitted, evaluated)")
	f.Float64("max-score", grading.DefaultMaxScore, "Maximum score per question, recorded in the export")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.StringP("lang", "l", "en", "Message language (en, ru)")
	return cmd
}

func runExport(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	ctx := cmd.Context()
	if err := appI18n.Init(v.GetString("lang")); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	filter := store.AttemptFilter{
		From:   v.GetString("from"),
		To:     v.GetString("to"),
		Status: model.AttemptStatus(v.GetString("status")),
	}
	for name, d := range map[string]string{"from": filter.From, "to": filter.To} {
		if d != "" && !validate.IsDate(d) {
			return fmt.Errorf("--%s must be a date in YYYY-MM-DD format", name)
		}
	}
	switch filter.Status {
	case "", model.StatusInProgress, model.StatusSubmitted, model.StatusEvaluated:
	default:
		return fmt.Errorf("unknown status %q", filter.Status)
	}

	st, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer st.Close()

	export, err := store.ExportResults(ctx, st, filter, v.GetFloat64("max-score"))
	if err != nil {
		return fmt.Errorf("export results: %w", err)
	}
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, _ = fmt.Fprintln(w)

	fmt.Fprintln(os.Stderr, appI18n.Tp(context.Background(), "ExportedAttempts", len(export.Results)))
	return nil
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Import question sets from JSON files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImport,
	}
	f := cmd.Flags()
	storeFlags(f)
	f.StringP("lang", "l", "en", "Message language (en, ru)")
	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	v := viperForCmd(cmd)
	ctx := cmd.Context()
	if err := appI18n.Init(v.GetString("lang")); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	st, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer st.Close()

	svc := catalog.New(st)
	total := 0
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		res, err := svc.Import(ctx, cliActor, filepath.Base(path), data)
		if err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}
		if res.Skipped {
			slog.Info("file unchanged since last import", "path", path)
		}
		total += len(res.Created)
	}
	fmt.Fprintln(os.Stderr, appI18n.Tp(context.Background(), "ImportedSets", total))
	return nil
}

func useraddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "useradd",
		Short: "Create a user account",
		RunE:  runUseradd,
	}
	f := cmd.Flags()
	storeFlags(f)
	f.String("email", "", "Email address (required)")
	f.String("name", "", "Display name (required)")
	f.String("password", "", "Password, at least 8 characters (required)")
	f.String("role", string(model.RoleTrainee), "Role (trainee, admin, superadmin)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func runUseradd(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	st, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer st.Close()

	u, err := account.New(st, nil).Create(ctx, account.CreateUserInput{
		Name:     v.GetString("name"),
		Email:    v.GetString("email"),
		Password: v.GetString("password"),
		Role:     model.Role(v.GetString("role")),
	})
	if err != nil {
		return err
	}
	slog.Info("user created", "id", u.ID, "email", u.Email, "role", u.Role)
	return nil
}
