// commands/root.go
package commands

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gewnthar/registers/config"
	"github.com/gewnthar/registers/database"
	"github.com/gewnthar/registers/github"
	"github.com/gewnthar/registers/logging"
	"github.com/gewnthar/registers/services"
	"github.com/gewnthar/registers/specification"
)

var (
	configPath string
	logCloser  io.Closer
)

// RootCmd returns the registers command with every subcommand attached.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registers",
		Short: "Edit registers and publish them to GitHub",
		Long: `registers serves the register editor and runs its maintenance tasks:
migrating the database, loading dataset schemas from the specification and
pushing register CSVs to GitHub.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadConfig(configPath); err != nil {
				return err
			}
			closer, err := logging.Setup(config.AppConfig.Log)
			if err != nil {
				return err
			}
			logCloser = closer
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logCloser != nil {
				logCloser.Close()
			}
		},
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("REGISTERS_CONFIG"), "path to the YAML config file")

	cmd.AddCommand(serveCmd())
	cmd.AddCommand(migrateCmd())
	cmd.AddCommand(loadSpecCmd())
	cmd.AddCommand(pushCmd())
	return cmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := RootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.New(color.FgRed).Sprint("Error: ")+err.Error())
		os.Exit(1)
	}
}

// openDB connects to the configured database, migrating it first when
// migrate is set.
func openDB(ctx context.Context, migrate bool) (*sql.DB, error) {
	cfg := config.AppConfig.Database
	db, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if migrate {
		if err := database.Migrate(db, cfg.Driver); err != nil {
			database.Close(db)
			return nil, err
		}
	}
	return db, nil
}

// newService builds the service with the GitHub file store and the
// specification source when they are configured.
func newService(ctx context.Context, db *sql.DB) (*services.Service, error) {
	cfg := config.AppConfig
	opts := []services.Option{
		services.WithSpecification(specification.NewClient(cfg.Specification)),
	}
	if cfg.GitHub.Repo != "" {
		gh, err := github.NewClient(ctx, cfg.GitHub)
		if err != nil {
			return nil, err
		}
		opts = append(opts, services.WithFileStore(gh, cfg.GitHub.RegistersPath))
	}
	return services.New(database.NewStore(db), opts...), nil
}
