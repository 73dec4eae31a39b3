package main

import (
	"context"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/atmx/market-sim/internal/api"
	"github.com/atmx/market-sim/internal/sim"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the simulation over HTTP and WebSocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(cmd)
			if cmd.Flags().Changed("port") {
				cfg.Port, _ = cmd.Flags().GetString("port")
			}
			if cmd.Flags().Changed("autostart") {
				cfg.Autostart, _ = cmd.Flags().GetBool("autostart")
			}
			restore, _ := cmd.Flags().GetBool("restore")

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// --- Initialize store ---
			st, closeStore, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			// --- Engine and state ---
			engine, err := newEngine(cfg, cfg.MaxRealTime)
			if err != nil {
				return err
			}
			opts := sim.InitOptions{Realistic: cfg.Realistic}
			state, err := initialState(ctx, engine, st, restore, opts)
			if err != nil {
				return err
			}

			// --- WebSocket hub ---
			wsHub := api.NewWSHub()
			go wsHub.Run(ctx)

			// --- Service and runner ---
			svc := api.NewService(engine, st, state, opts, wsHub)
			runner := api.NewRunner(svc, cfg.TickInterval, cfg.Speed, cfg.SnapshotEveryDays)
			if cfg.Autostart {
				runner.Start()
			}
			go runner.Run(ctx)

			// --- Server ---
			srv := &http.Server{
				Addr:         ":" + cfg.Port,
				Handler:      api.NewRouter(svc, runner, wsHub),
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 35 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				slog.Info("market-sim listening", "port", cfg.Port, "day", state.Day, "autostart", cfg.Autostart)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			// Graceful shutdown.
			select {
			case <-ctx.Done():
			case err := <-errCh:
				return err
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			slog.Info("shutting down market-sim...")
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("shutdown error", "err", err)
			}
			if _, err := svc.Snapshot(shutdownCtx); err != nil {
				slog.Warn("final snapshot failed", "err", err)
			}
			slog.Info("market-sim stopped")
			return nil
		},
	}

	cmd.Flags().String("port", "", "Listen port (default $PORT or 8080)")
	cmd.Flags().Bool("restore", false, "Resume from the latest stored snapshot")
	cmd.Flags().Bool("autostart", false, "Start advancing immediately")
	return cmd
}
