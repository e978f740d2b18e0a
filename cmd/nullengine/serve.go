package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/null-engine/nullengine/internal/broadcast"
	"github.com/null-engine/nullengine/internal/config"
	"github.com/null-engine/nullengine/internal/consensus"
	"github.com/null-engine/nullengine/internal/epoch"
	"github.com/null-engine/nullengine/internal/generation"
	"github.com/null-engine/nullengine/internal/herald"
	"github.com/null-engine/nullengine/internal/ipc"
	"github.com/null-engine/nullengine/internal/jobs"
	"github.com/null-engine/nullengine/internal/logging"
	"github.com/null-engine/nullengine/internal/metrics"
	"github.com/null-engine/nullengine/internal/runner"
	"github.com/null-engine/nullengine/internal/simulation"
	"github.com/null-engine/nullengine/internal/store"
	"github.com/null-engine/nullengine/internal/supervisor"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run world runners, background jobs and the control API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath(configPath))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a JSON or TOML config file")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := logging.New(logging.Options{App: "nullengine", Level: cfg.LogLevel, Format: cfg.LogFormat})

	db, err := store.NewDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	gen, err := generation.NewClient(generation.Options{
		BaseURL: cfg.Generation.BaseURL,
		APIKey:  cfg.Generation.APIKey,
		Model:   cfg.Generation.Model,
		Timeout: cfg.GenerationTimeout(),
		Guard: generation.GuardConfig{
			MaxFailures: cfg.Generation.MaxFailures,
			Cooldown:    time.Duration(cfg.Generation.CooldownSec) * time.Second,
		},
	}, logger, reg)
	if err != nil {
		return err
	}

	mstore := metrics.NewStore()
	reg.MustRegister(metrics.NewCollector(mstore))

	hub := broadcast.NewHub(logger)
	rnd := simulation.NewRand(0)
	triggers := simulation.NewEvents(cfg.EventProbability, hub, rnd)
	agents := &store.AgentRepo{}
	consensusEngine := consensus.NewEngine(consensus.Quorum{Votes: cfg.QuorumVotes, Factions: cfg.QuorumFactions}, gen, hub, logger)
	her := herald.New(gen, hub, logger)

	pipeline := &runner.Pipeline{
		DB:            db,
		Worlds:        &store.WorldRepo{},
		Agents:        agents,
		Factions:      &store.FactionRepo{},
		Conversations: &store.ConversationRepo{},
		Events:        &store.WorldEventRepo{},
		Posts:         &store.PostRepo{},
		Conversation:  simulation.NewConversation(gen, hub, rnd, logger),
		Triggers:      triggers,
		Writers:       simulation.NewPosts(cfg.PostProbability, gen, hub, rnd, logger),
		Wiki:          simulation.NewWiki(gen, hub, logger),
		Strata:        simulation.NewStrata(gen, logger),
		Consensus:     consensusEngine,
		Herald:        her,
		Clock: epoch.NewClock(cfg.TicksPerEpoch,
			epoch.BroadcastHook{Agents: agents},
			epoch.BeliefDriftHook{},
		),
		Pub:    hub,
		Logger: logger,
	}

	// Runners outlive the signal context so StopAll can drain them in order.
	runCtx, cancelRuns := context.WithCancel(context.Background())
	defer cancelRuns()
	registry := runner.NewRegistry(runCtx, db, func(worldID string) *runner.Runner {
		return runner.New(worldID, pipeline, mstore, cfg.TickInterval(), logger)
	}, logger)

	genesis := simulation.NewGenesis(db, gen, logger)

	restored, err := jobs.RestoreRunners(ctx, db, registry, logger)
	if err != nil {
		return fmt.Errorf("restore runners: %w", err)
	}
	logger.Info().Int("restored", restored).Msg("runner_restore.done")

	sup := supervisor.NewLoopSupervisor(mstore, cfg.LoopRestartBackoff(), logger)
	if cfg.AutoGenesis.Enabled {
		job := jobs.NewAutoGenesis(db, genesis, registry, cfg.AutoGenesis.Seeds,
			cfg.AutoGenesis.MaxWorlds, time.Duration(cfg.AutoGenesis.IntervalSec)*time.Second, logger)
		sup.Go(ctx, jobs.AutoGenesisName, job.Run)
	}

	handler := &ipc.Handler{
		DB:        db,
		Worlds:    &store.WorldRepo{},
		Events:    &store.WorldEventRepo{},
		Posts:     &store.PostRepo{},
		Wiki:      &store.WikiRepo{},
		Audit:     &store.AuditRepo{},
		Genesis:   genesis,
		Runners:   registry,
		Triggers:  triggers,
		Herald:    her,
		Consensus: consensusEngine,
		Hub:       hub,
		Metrics:   mstore,
		Alerts: metrics.Thresholds{
			MinTicks:            cfg.AlertMinTicks,
			SuccessRateFloor:    cfg.AlertSuccessRateFloor,
			GeneratingThreshold: cfg.GeneratingWorldsThreshold,
		},
		Background: runCtx,
		Logger:     logger.With().Str("component", "ipc").Logger(),
	}
	srv := ipc.NewServer(handler, cfg.ListenAddr, reg)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	logger.Info().Str("addr", cfg.ListenAddr).Str("version", version).Msg("engine.listening")

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("engine.shutting_down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("engine.server_shutdown_failed")
	}

	// World statuses stay running so the next boot restores them.
	registry.StopAll()
	sup.Wait()
	cancelRuns()

	logger.Info().Msg("engine.stopped")
	return serveErr
}
