package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"transitquery/internal/app"
	"transitquery/internal/logging"
	"transitquery/internal/restapi"
)

const shutdownTimeout = 30 * time.Second

// CreateServer builds the HTTP server for the JSON API. Writes may take as
// long as the slowest query, so the write timeout follows the query
// timeout.
func CreateServer(coreApp *app.Application) (*http.Server, *restapi.RestAPI) {
	api := restapi.NewRestAPI(coreApp)

	writeTimeout := 10 * time.Second
	if t := coreApp.Config.RequestTimeout; t > 0 {
		writeTimeout += t
	}

	srv := &http.Server{
		Addr:         coreApp.Config.ListenAddr,
		Handler:      api.Handler(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: writeTimeout,
		ErrorLog:     slog.NewLogLogger(coreApp.Logger.Handler(), slog.LevelError),
	}
	return srv, api
}

// Run serves on ln until ctx is done, then shuts the server down
// gracefully.
func Run(ctx context.Context, srv *http.Server, ln net.Listener, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logging.LogOperation(logger, "server_started", slog.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logging.LogOperation(logger, "server_stopped")
	return <-errCh
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve queries as a JSON API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := opts.application(cmd)
			if err != nil {
				return err
			}
			defer application.Shutdown()
			if cmd.Flags().Changed("listen") {
				application.Config.ListenAddr = listen
			}

			srv, api := CreateServer(application)
			defer api.Shutdown()

			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			application.StartMaintenance()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Run(ctx, srv, ln, application.Logger)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "address to listen on (default from configuration, :8080)")
	return cmd
}
