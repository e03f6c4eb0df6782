package gc

import (
	"context"
	"fmt"
	"sort"

	"baqup/internal/logger"
	"baqup/internal/model"
	"baqup/internal/writer"

	"go.uber.org/zap"
)

// Runner prunes one target's stored backups down to its schedule's
// retention count, newest first. Metadata sidecars follow their backup
// object.
type Runner struct {
	container model.ContainerBackupConfig
	target    model.TargetConfig
	retention int
	bw        writer.BackupWriter
	dryRun    bool
}

// NewRunner builds a pruner for one target. A non-positive retention
// disables pruning for the target.
func NewRunner(container model.ContainerBackupConfig, target model.TargetConfig, retention int, bw writer.BackupWriter, dryRun bool) *Runner {
	return &Runner{
		container: container,
		target:    target,
		retention: retention,
		bw:        bw,
		dryRun:    dryRun,
	}
}

// Run lists the target's backups and deletes everything beyond the
// retention count.
func (r *Runner) Run(ctx context.Context) error {
	if r.retention <= 0 {
		logger.Log.Warn("Skipping GC for target with non-positive retention",
			zap.String("containerName", r.container.ContainerName),
			zap.String("targetType", string(r.target.Type)),
			zap.String("instance", r.target.Instance),
			zap.Int("retention", r.retention),
		)
		return nil
	}

	prefix := writer.ObjectPrefix(r.container, r.target)
	objects, err := r.bw.ListObjects(ctx, prefix)
	if err != nil {
		return fmt.Errorf("list objects for %s: %w", prefix, err)
	}

	backups := objects[:0]
	for _, obj := range objects {
		if !writer.IsMetadataKey(obj.Key) {
			backups = append(backups, obj)
		}
	}
	if len(backups) <= r.retention {
		return nil
	}

	// Newest first; everything past the retention count goes.
	sort.Slice(backups, func(i, j int) bool {
		return backups[i].LastModified.After(backups[j].LastModified)
	})

	var failed []string
	deleted := 0
	for _, obj := range backups[r.retention:] {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if r.dryRun {
			logger.Log.Info("[DryRun] Would prune backup",
				zap.String("key", obj.Key),
				zap.Int64("size", obj.Size),
			)
			deleted++
			continue
		}
		if err := r.bw.DeleteObject(ctx, obj.Key); err != nil {
			logger.Log.Error("Failed to prune backup",
				zap.String("key", obj.Key),
				zap.Error(err),
			)
			failed = append(failed, obj.Key)
			continue
		}
		// Sidecar removal is best effort.
		_ = r.bw.DeleteObject(ctx, obj.Key+".metadata.json")
		deleted++
	}

	logger.Log.Info("GC run for target finished",
		zap.String("containerName", r.container.ContainerName),
		zap.String("targetType", string(r.target.Type)),
		zap.String("instance", r.target.Instance),
		zap.Int("retention", r.retention),
		zap.Int("pruned", deleted),
		zap.Bool("dryRun", r.dryRun),
	)

	if len(failed) > 0 {
		return fmt.Errorf("GC for %s finished with %d failed deletes: %v", prefix, len(failed), failed)
	}
	return nil
}

// RetentionFor resolves the retention count for a target from its
// container's schedule set, defaulting to 7 when the referenced schedule
// does not exist.
func RetentionFor(container model.ContainerBackupConfig, target model.TargetConfig) int {
	if sched, ok := container.Schedules[target.Schedule]; ok {
		return sched.Retention
	}
	return 7
}
