// Command catalogctl runs batch ingestion, schema migrations and other operator tasks against the
// same configuration as the API server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"
	_ "time/tzdata"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/app"
	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/internal/service"
	"github.com/noah-isme/campus-timetable-api/pkg/config"
	"github.com/noah-isme/campus-timetable-api/pkg/database"
	"github.com/noah-isme/campus-timetable-api/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "catalogctl",
		Short:         "Operator tooling for the campus timetable API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(ingestBatchCmd(), migrateCmd(), tokenCmd(), reparseCmd())
	return cmd
}

func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logr, nil
}

func ingestBatchCmd() *cobra.Command {
	var (
		file        string
		concurrency int
		preview     bool
	)
	cmd := &cobra.Command{
		Use:   "ingest-batch",
		Short: "Ingest every target listed in a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, err := loadTargets(file)
			if err != nil {
				return err
			}
			cfg, logr, err := setup()
			if err != nil {
				return err
			}
			defer logr.Sync() //nolint:errcheck

			container, err := app.Build(cmd.Context(), cfg, logr)
			if err != nil {
				return err
			}
			defer container.Close()

			logr.Sugar().Infow("batch ingestion started", "targets", len(targets), "concurrency", concurrency, "preview", preview)
			results, runErr := runBatch(cmd.Context(), container.Ingestion, targets, concurrency, preview)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "INSTITUTION\tLECTURES\tINSERTED\tUPDATED\tDURATION\tERROR")
			for _, r := range results {
				errText := "-"
				if r.Err != nil {
					errText = r.Err.Error()
				}
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\t%s\n", r.InstitutionID, r.Lectures, r.Inserted, r.Updated, r.Duration.Round(time.Millisecond), errText)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			return runErr
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "targets.yaml", "YAML target list")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 2, "Targets ingested in parallel")
	cmd.Flags().BoolVar(&preview, "preview", false, "Scrape without saving")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or roll back one step of the schema migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{database.MigrateUp, database.MigrateDown},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logr, err := setup()
			if err != nil {
				return err
			}
			defer logr.Sync() //nolint:errcheck

			db, err := database.NewPostgres(cmd.Context(), cfg.Database)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer db.Close()
			return database.Migrate(db.DB, args[0], logr)
		},
	}
}

func tokenCmd() *cobra.Command {
	var subject service.TokenSubject
	var role string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign an access token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logr, err := setup()
			if err != nil {
				return err
			}
			defer logr.Sync() //nolint:errcheck

			auth := service.NewAuthService(nil, logr, service.AuthConfig{
				AccessTokenSecret: cfg.JWT.Secret,
				AccessTokenExpiry: cfg.JWT.TokenTTL,
				Issuer:            cfg.JWT.Issuer,
			})
			subject.Role = models.UserRole(role)
			token, expiresAt, err := auth.IssueToken(subject)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject.UserID, "user", "", "Subject user id")
	cmd.Flags().StringVar(&role, "role", string(models.RoleStudent), "ADMIN or STUDENT")
	cmd.Flags().StringVar(&subject.Email, "email", "", "Email claim")
	cmd.Flags().StringVar(&subject.FullName, "name", "", "Full name claim")
	cmd.Flags().StringVar(&subject.University, "university", "", "University claim, e.g. 가천대학교(글로벌)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func reparseCmd() *cobra.Command {
	var (
		institution string
		term        string
		year        int
		save        bool
	)
	cmd := &cobra.Command{
		Use:   "reparse <snapshot>",
		Short: "Re-run a markup parser over an archived source snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logr, err := setup()
			if err != nil {
				return err
			}
			defer logr.Sync() //nolint:errcheck

			container, err := app.Build(cmd.Context(), cfg, logr)
			if err != nil {
				return err
			}
			defer container.Close()

			result, err := container.Ingestion.ReparseSnapshot(cmd.Context(), institution, args[0], year, term, save)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d lectures, %d inserted, %d updated\n",
				institution, len(result.Catalog.Lectures), result.InsertedCount, result.UpdatedCount)
			return nil
		},
	}
	cmd.Flags().StringVar(&institution, "institution", "", "Institution identifier")
	cmd.Flags().IntVar(&year, "year", 0, "Academic year")
	cmd.Flags().StringVar(&term, "term", "", "Term")
	cmd.Flags().BoolVar(&save, "save", false, "Upsert the parsed catalog")
	_ = cmd.MarkFlagRequired("institution")
	_ = cmd.MarkFlagRequired("year")
	_ = cmd.MarkFlagRequired("term")
	return cmd
}
