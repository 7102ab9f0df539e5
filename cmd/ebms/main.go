package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"EBMS/internal/app"
	"EBMS/internal/config"
	"EBMS/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	var application *app.Application
	root := &cobra.Command{
		Use:          "ebms",
		Short:        "PDQ Editorial Board literature review service",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			application, err = app.New(cfg, logger)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if application == nil {
				return nil
			}
			return application.Close()
		},
	}
	root.PersistentFlags().StringVar(&cfg.Database.DSN, "dsn", cfg.Database.DSN, "Database connection string")
	root.PersistentFlags().StringVar(&cfg.Database.Driver, "driver", cfg.Database.Driver, "Database driver (postgres or sqlite3)")

	get := func() *app.Application { return application }
	root.AddCommand(
		serveCommand(get, &cfg),
		migrateCommand(get),
		seedCommand(get, cfg.PubMed.RepoBase),
		importCommand(get),
		refreshCommand(get),
		datesCommand(get),
	)
	return root
}

func serveCommand(get func() *app.Application, cfg *config.Config) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled refresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			if migrate {
				if err := get().Migrate(cmd.Context()); err != nil {
					return err
				}
			}
			return get().Serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&cfg.Server.Listen, "listen", cfg.Server.Listen, "HTTP listen address")
	cmd.Flags().BoolVar(&cfg.Scheduler.Enabled, "schedule", cfg.Scheduler.Enabled, "Run the stale-article refresh on schedule")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "Apply the schema before serving")
	return cmd
}

func migrateCommand(get func() *app.Application) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the schema and install the state vocabulary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return get().Migrate(cmd.Context())
		},
	}
}

func seedCommand(get func() *app.Application, repoBase string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed [file]",
		Short: "Install boards, topics and users from a JSON file",
		Long: `Install the catalog from a JSON document:

  {"boards": [{"name": "Adult Treatment", "topics": ["Breast Cancer"], "notList": ["0404511"]}],
   "users": ["librarian"]}

Without a file argument $REPO_BASE/testdata/seed.json is read.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := repoBase + "/testdata/seed.json"
			if len(args) == 1 {
				path = args[0]
			}
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open seed file: %w", err)
			}
			defer f.Close()
			summary, err := get().Seed(cmd.Context(), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "installed %d boards, %d topics, %d users, %d journals\n",
				summary.Boards, summary.Topics, summary.Users, summary.Journals)
			return nil
		},
	}
}
