package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"baqup/internal/config"
	"baqup/internal/discovery"
	"baqup/internal/encryption"
	"baqup/internal/gc"
	"baqup/internal/logger"
	"baqup/internal/scheduler"
	"baqup/internal/state"
	"baqup/internal/webhook"
	"baqup/internal/writer"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

func runGC(ctx context.Context, controller *state.Controller, bw writer.BackupWriter, dryRun bool) {
	logger.Log.Info("Starting garbage collection run")
	containers := controller.Containers()
	if len(containers) == 0 {
		logger.Log.Info("GC: no discovered containers, nothing to prune")
		return
	}

	for _, cfg := range containers {
		for _, target := range cfg.Targets {
			if ctx.Err() != nil {
				logger.Log.Info("GC run cancelled")
				return
			}
			runner := gc.NewRunner(cfg, target, gc.RetentionFor(cfg, target), bw, dryRun)
			if err := runner.Run(ctx); err != nil {
				logger.Log.Error("GC failed for target",
					zap.String("containerName", cfg.ContainerName),
					zap.String("targetType", string(target.Type)),
					zap.String("instance", target.Instance),
					zap.Error(err),
				)
			}
		}
	}
	logger.Log.Info("Garbage collection run finished")
}

func statusHandler(controller *state.Controller, sched *scheduler.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		containers := controller.Containers()
		summaries := make([]map[string]interface{}, 0, len(containers))
		for _, cfg := range containers {
			summaries = append(summaries, map[string]interface{}{
				"container_id":   cfg.ContainerID,
				"container_name": cfg.ContainerName,
				"stop":           cfg.Stop,
				"schedules":      cfg.Schedules,
				"targets":        cfg.Targets,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"timestamp":     time.Now().UTC().Format(time.RFC3339),
			"active_jobs":   sched.ActiveJobs(),
			"containers":    summaries,
			"target_states": controller.TargetStates(),
			"recent_events": controller.RecentEvents(),
		})
	}
}

func main() {
	configPath := flag.String("config", os.Getenv("BAQUP_CONFIG"), "path to the YAML configuration file")
	flag.Parse()

	logger.Log.Info("Baqup controller starting")
	defer logger.Close()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Log.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	disc, err := discovery.NewFromConfig(cfg)
	if err != nil {
		logger.Log.Fatal("Failed to initialize Docker discovery", zap.Error(err))
	}

	backupWriter, err := writer.GetWriter(cfg.Storage)
	if err != nil {
		logger.Log.Fatal("Failed to initialize backup writer", zap.Error(err))
	}

	encryptor, err := encryption.NewEncryptor(cfg.Encryption)
	if err != nil {
		logger.Log.Fatal("Failed to initialize encryption", zap.Error(err))
	}

	controller := state.New()
	webhookSender := webhook.NewSender(cfg.Webhook)
	sched := scheduler.New(backupWriter, webhookSender, disc, controller, encryptor)

	gcCron := cron.New(cron.WithLogger(logger.NewCronZapLogger(logger.Log.Named("gc-cron"))))
	if _, err := gcCron.AddFunc(cfg.GC.Cron, func() {
		gcCtx, gcCancel := context.WithTimeout(ctx, time.Hour)
		defer gcCancel()
		runGC(gcCtx, controller, backupWriter, cfg.GC.DryRun)
	}); err != nil {
		logger.Log.Fatal("Failed to schedule GC job",
			zap.String("cron", cfg.GC.Cron),
			zap.Error(err),
		)
	}
	gcCron.Start()
	defer func() {
		<-gcCron.Stop().Done()
	}()

	reconcile := func() {
		configs, err := disc.Refresh(ctx)
		if err != nil {
			if errors.Is(err, discovery.ErrDockerUnavailable) {
				logger.Log.Error("Docker unavailable, keeping previous schedule", zap.Error(err))
				return
			}
			logger.Log.Error("Discovery pass failed", zap.Error(err))
			return
		}
		controller.SetContainers(configs)
		sched.Reconcile(configs)
	}

	hmux := http.NewServeMux()
	hmux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})
	hmux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		checkCtx, checkCancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer checkCancel()

		var failures []string
		if err := disc.Ping(checkCtx); err != nil {
			failures = append(failures, fmt.Sprintf("docker: %v", err))
		}
		if backupWriter.Type() == writer.LocalWriterType {
			if err := writer.CheckDiskSpace(cfg.Storage.Local.Path); err != nil {
				failures = append(failures, fmt.Sprintf("disk: %v", err))
			}
		}

		if len(failures) > 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			for _, f := range failures {
				fmt.Fprintln(w, f)
			}
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ready")
	})
	hmux.HandleFunc("/status", statusHandler(controller, sched))

	server := &http.Server{Addr: cfg.HTTP.Listen, Handler: hmux}
	go func() {
		logger.Log.Info("Serving HTTP endpoints", zap.String("addr", cfg.HTTP.Listen))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("HTTP server failed", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error("HTTP server shutdown failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Reconcile.Interval)
	defer ticker.Stop()

	// First pass immediately rather than waiting a full interval.
	reconcile()

	logger.Log.Info("Watching containers",
		zap.Duration("reconcileInterval", cfg.Reconcile.Interval),
		zap.String("storage", backupWriter.Type()),
	)

Loop:
	for {
		select {
		case <-ticker.C:
			reconcile()
		case sig := <-sigChan:
			logger.Log.Info("Shutdown signal received", zap.String("signal", sig.String()))
			cancel()
			break Loop
		case <-ctx.Done():
			break Loop
		}
	}

	logger.Log.Info("Stopping components")
	sched.Stop()
	webhookSender.Stop()
	logger.Log.Info("Baqup controller stopped")
}
