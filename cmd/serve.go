package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/darmiel/satellite/internal/api"
	"github.com/darmiel/satellite/internal/gate"
	"github.com/darmiel/satellite/internal/logging"
	"github.com/darmiel/satellite/internal/ratelimit"
	"github.com/darmiel/satellite/internal/store"
	"github.com/darmiel/satellite/internal/tasks"
)

const sweepTask = "sweep"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the satellite",
	Long: `Starts the satellite API, registers with the hub when auto registration is enabled
and schedules the sync and metrics tasks.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		defer f.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sat, err := f.Satellite(ctx)
		if err != nil {
			return fmt.Errorf("initializing satellite: %w", err)
		}
		cfg := sat.Config

		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = cfg.Server.ListenAddr
		}

		tm := tasks.NewManager(
			tasks.WithLocker(sat.Store, sat.Keys.Lock),
			tasks.WithTimeout(cfg.Tasks.Timeout()),
		)
		if cfg.Sync.Enabled {
			every := tm.RegisterEvery(api.TaskSync, cfg.Sync.IntervalSeconds, sat.Syncer.Task)
			log.Info().Msgf("Scheduling sync every %s", every)
		}
		if cfg.Metrics.Enabled {
			every := tm.RegisterEvery(api.TaskMetrics, cfg.Metrics.IntervalSeconds, sat.Publisher.Task)
			log.Info().Msgf("Scheduling metrics every %s", every)
		}
		tm.Register(api.TaskRegister, 0, func(ctx context.Context, l logging.InternalLogger) error {
			if _, err := sat.Registration.EnsureRegistered(ctx, true); err != nil {
				l.Error("registration failed: %v", err)
				return err
			}
			l.Info("satellite registered with hub")
			return nil
		})
		if sweeper, ok := sat.Store.(store.Sweeper); ok {
			tm.Register(sweepTask, time.Hour, func(ctx context.Context, l logging.InternalLogger) error {
				n, err := sweeper.DeleteExpired(ctx)
				if err != nil {
					return err
				}
				l.Debug("removed %d expired keys", n)
				return nil
			})
		}

		g := gate.New(gate.Options{
			Enabled:   cfg.Satellite.Enabled,
			Secret:    cfg.Hub.APIKey,
			Allowlist: cfg.Security.Allowlist(),
			Limiter:   ratelimit.NewFixedWindow(sat.Store, sat.Keys, cfg.Security.RateLimit),
		})
		if !g.Restricted() {
			log.Warn().Msg("No IP allowlist configured, the satellite API accepts any client with a valid key")
		}

		srv := api.NewServer(api.Deps{
			Config:       cfg,
			Gate:         g,
			Tasks:        tm,
			Registration: sat.Registration,
			Syncer:       sat.Syncer,
			Collector:    sat.Collector,
			Publisher:    sat.Publisher,
			Health:       sat.Health,
			Cache:        sat.Cache,
			Updates:      sat.Updates,
		})

		server := &http.Server{
			Addr:              addr,
			Handler:           srv.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		sat.Registration.AutoRegister(ctx)
		if ctx.Err() != nil {
			log.Info().Msg("Interrupted during startup, satellite exited")
			return nil
		}
		tm.Start()

		go func() {
			log.Info().Msgf("Starting satellite '%s' on %s...", cfg.Satellite.Name, addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal().Err(err).Msg("Server crashed")
			}
		}()

		<-ctx.Done()
		stop()
		log.Info().Msg("Shutting down satellite...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		tm.Stop()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}

		log.Info().Msg("Satellite exited")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "address to listen on (default from server.listen_addr)")
}
