package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aretw0/chatflow/internal/cli"
	httpAdapter "github.com/aretw0/chatflow/pkg/adapters/http"
	"github.com/aretw0/chatflow/pkg/observability"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP editing server",
	Long: `Exposes editing sessions over a JSON API: graph edits, validation, run
control, a Server-Sent Events stream of state changes and Prometheus metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, debug, err := loadApp(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			app.Config.Server.Port, _ = cmd.Flags().GetInt("port")
			if err := app.Config.Validate(); err != nil {
				return err
			}
		}

		storage, err := app.OpenStorage()
		if err != nil {
			return err
		}
		defer storage.Close()

		metrics := observability.NewMetrics(nil)
		sessions := app.NewManager(storage, metrics, debug)

		srv := &http.Server{
			Addr: app.Config.Addr(),
			Handler: httpAdapter.NewHandler(sessions,
				httpAdapter.WithLogger(app.Logger),
				httpAdapter.WithMetrics(metrics.Handler()),
			),
		}

		ctx := cli.NewSignalContext(context.Background())
		defer ctx.Cancel()

		serverErrors := make(chan error, 1)
		go func() {
			app.Logger.Info("Starting chatflow server", "addr", srv.Addr, "store", app.Config.Store.Backend)
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)

		case <-ctx.Done():
			app.Logger.Info("Start shutdown", "signal", ctx.Signal())

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				app.Logger.Warn("Graceful shutdown did not complete", "timeout", shutdownTimeout, "err", err)
				return srv.Close()
			}
			app.Logger.Info("Chatflow server stopped gracefully")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on (overrides server.port)")
}
