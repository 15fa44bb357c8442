package main

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

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

const defaultShutdownTimeout = 10 * time.Second

func newServeCommand(v *viper.Viper) *cobra.Command {
	var debug bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reminder HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, v, debug, nil)
		},
	}
	flags := cmd.Flags()
	flags.String("addr", "", "listen address (default :8080)")
	flags.String("store", "", "store driver: memory, file or postgres")
	flags.String("store-dir", "", "directory for the file store")
	flags.String("database-url", "", "postgres connection string")
	flags.BoolVar(&debug, "debug", false, "run gin in debug mode")
	mustBind(v, "server.addr", flags.Lookup("addr"))
	mustBind(v, "store.driver", flags.Lookup("store"))
	mustBind(v, "store.dir", flags.Lookup("store-dir"))
	mustBind(v, "store.database_url", flags.Lookup("database-url"))
	return cmd
}

// runServe blocks until ctx is cancelled or the listener fails, then drains
// HTTP requests and reminder sessions. ready, when set, receives the bound
// listener address.
func runServe(ctx context.Context, v *viper.Viper, debug bool, ready chan<- string) error {
	cfg, path, err := loadConfig(v)
	if err != nil {
		return err
	}

	app, err := buildApplication(ctx, cfg, os.Stdout)
	if err != nil {
		return err
	}
	app.logger.Info("Loaded config from %s (store=%s)", displayPath(path), cfg.Store.Driver)

	listener, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		_ = app.Close(context.Background())
		return fmt.Errorf("listen on %s: %w", cfg.Server.Addr, err)
	}
	server := &http.Server{
		Handler:           app.router(debug),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if ready != nil {
		ready <- listener.Addr().String()
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout.Std()
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		app.logger.Info("Listening on %s", listener.Addr())
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		app.logger.Info("Shutting down (timeout %s)", shutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown http: %w", err))
		}
		if err := app.Close(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		app.logger.Error("Server stopped with error: %v", err)
		return err
	}
	app.logger.Info("Server stopped")
	return nil
}
