package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"sevaconnect-backend/pkg/app"
	"sevaconnect-backend/pkg/handlers"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with live change feeds",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		a, err := app.New(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.StartSync(ctx); err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              net.JoinHostPort("", cfg.Port),
			Handler:           handlers.NewRouter(a),
			ReadHeaderTimeout: 10 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return ctx },
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			a.Logger.Info("🚀 SevaConnect listening", "addr", srv.Addr, "env", cfg.Environment)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			return a.RunOutbox(gctx)
		})
		g.Go(func() error {
			<-gctx.Done()
			a.Logger.Info("🛑 Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			a.Hub.Close()
			return srv.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}
