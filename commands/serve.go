// commands/serve.go
package commands

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gewnthar/registers/config"
	"github.com/gewnthar/registers/database"
	"github.com/gewnthar/registers/handlers"
	"github.com/gewnthar/registers/templates"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the register editor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, config.AppConfig)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	db, err := openDB(ctx, cfg.Database.MigrateOnRun)
	if err != nil {
		return err
	}
	defer database.Close(db)

	svc, err := newService(ctx, db)
	if err != nil {
		return err
	}
	pages, err := templates.New()
	if err != nil {
		return err
	}
	secure := strings.HasPrefix(cfg.Auth.RedirectURL, "https://")
	h := handlers.New(svc, pages,
		handlers.NewSessions(cfg.Auth.SessionSecret, secure),
		handlers.NewAuth(cfg.Auth, cfg.GitHub))

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handlers.NewRouter(h),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errs := make(chan error, 1)
	go func() {
		slog.Info("Server: listening", "addr", "http://localhost"+server.Addr, "auth", cfg.Auth.Enabled)
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Server: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
