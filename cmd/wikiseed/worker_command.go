package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"wikiseed/internal/admission"
	"wikiseed/internal/cleanup"
	"wikiseed/internal/config"
	"wikiseed/internal/database"
	"wikiseed/internal/grouping"
	"wikiseed/internal/logging"
	"wikiseed/internal/notifications"
	"wikiseed/internal/pipeline"
	"wikiseed/internal/preflight"
	"wikiseed/internal/queue"
	"wikiseed/internal/stage"
	"wikiseed/internal/workflow"
)

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Run pipeline workers",
	}

	var kinds []string
	var workerID string
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run worker lanes in the foreground until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			signalCtx, cancel := signal.NotifyContext(commandCtx(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return runWorker(signalCtx, cfg, kinds, workerID)
		},
	}
	runCmd.Flags().StringSliceVar(&kinds, "kind", nil, "Kinds to run (default: every kind with a command, plus cleanup)")
	runCmd.Flags().StringVar(&workerID, "worker-id", "", "Claim owner name (default generated)")
	workerCmd.AddCommand(runCmd)
	return workerCmd
}

func runWorker(ctx context.Context, cfg *config.Config, kinds []string, workerID string) error {
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, logging.ConfigRetentionTargets(cfg)...)

	if failed := preflight.Failed(preflight.RunAll(ctx, cfg, kinds)); len(failed) > 0 {
		names := make([]string, 0, len(failed))
		for _, result := range failed {
			logger.Error("preflight check failed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
				logging.String(logging.FieldEventType, "preflight_failed"),
				logging.Alert("preflight"),
			)
			names = append(names, result.Name)
		}
		return fmt.Errorf("preflight failed: %s", strings.Join(names, ", "))
	}

	db, err := database.Open(cfg)
	if err != nil {
		logger.Error("open database", logging.Error(err))
		return err
	}
	defer db.Close()

	store := queue.New(db, queue.WithConfig(cfg))
	groups := grouping.New(db)
	notifier := notifications.NewService(cfg)
	gate := admission.New(cfg, db, store, notifier, logger)

	manager := workflow.NewManager(cfg, store, logger,
		workflow.WithNotifier(notifier),
		workflow.WithGate(gate),
		workflow.WithHooks(pipeline.NewHooks(groups, logger)),
		workflow.WithWorkerID(workerID),
	)
	if err := registerHandlers(ctx, manager, cfg, groups, gate, kinds, logger); err != nil {
		return err
	}

	logger.Info("wikiseed worker starting",
		logging.String(logging.FieldWorkerID, manager.WorkerID()),
		logging.String("database", cfg.DatabasePath()),
		logging.String(logging.FieldEventType, "worker_start"),
	)
	if err := manager.Run(ctx); err != nil {
		return err
	}
	logger.Info("wikiseed worker shutting down", logging.String(logging.FieldEventType, "worker_stop"))
	return nil
}

// registerHandlers installs a command handler for every selected kind with a
// configured command and the built-in cleanup executor.
func registerHandlers(ctx context.Context, manager *workflow.Manager, cfg *config.Config, groups *grouping.Manager, usage cleanup.UsageProbe, selected []string, logger *slog.Logger) error {
	explicit := len(selected) > 0
	if !explicit {
		selected = cfg.KindNames()
	}
	registered := 0
	for _, name := range selected {
		kind, err := queue.ParseKind(name)
		if err != nil {
			return err
		}

		var handler stage.Handler
		if kind == queue.KindCleanup && len(cfg.Kind(name).Command) == 0 {
			handler = cleanup.New(cfg, groups, usage, logger)
		} else {
			command, err := stage.NewCommandHandler(kind, cfg.Kind(name))
			if err != nil {
				if explicit {
					return err
				}
				logger.Debug("no command configured; lane disabled", logging.String(logging.FieldKind, name))
				continue
			}
			handler = command
		}

		if health := handler.HealthCheck(ctx); !health.Ready {
			logging.WarnWithContext(logger, "handler not ready", "handler_unhealthy",
				logging.String(logging.FieldKind, name),
				logging.String("detail", health.Detail),
				logging.String(logging.FieldImpact, "jobs of this kind will fail and retry"),
			)
		}
		if err := manager.Register(kind, handler); err != nil {
			return err
		}
		registered++
	}
	if registered == 0 {
		return fmt.Errorf("no job kinds to run: configure [workers.kinds.<kind>] command entries")
	}
	return nil
}
