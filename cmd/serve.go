package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bnema/botfleet/internal/adapters/control"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
	drainTimeout      = 30 * time.Second
)

func newServeCmd(app *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the control API and keep requests running in this process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if addr == "" {
				addr = app.cfg.Control.Address
			}

			server := control.NewServer(app.requests, app.metrics.Handler(), app.cfg.Control.AdminUsers,
				app.log.With().Str("component", "control").Logger())

			shutdown, bound, err := startHTTPServer(addr, server.Handler(ctx), app.log)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "listening on %s\n", bound)

			<-ctx.Done()

			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
			return errors.Join(app.requests.Drain(drainCtx), shutdown())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: control.address)")

	return cmd
}

// startHTTPServer serves handler on addr in the background. It returns the
// bound address and a func that shuts the server down.
func startHTTPServer(addr string, handler http.Handler, log zerolog.Logger) (func() error, string, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, "", fmt.Errorf("listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", listener.Addr().String()).Msg("http server stopped")
		}
	}()

	shutdown := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(ctx)
	}

	return shutdown, listener.Addr().String(), nil
}
