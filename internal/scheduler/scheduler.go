package scheduler

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"baqup/internal/dumper"
	"baqup/internal/encryption"
	"baqup/internal/logger"
	"baqup/internal/model"
	"baqup/internal/state"
	"baqup/internal/webhook"
	"baqup/internal/writer"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ContainerLifecycle stops and starts containers around backups that
// request it.
type ContainerLifecycle interface {
	StopContainer(ctx context.Context, containerID string) error
	StartContainer(ctx context.Context, containerID string) error
}

// scheduledJob is one target's cron registration.
type scheduledJob struct {
	container model.ContainerBackupConfig
	target    model.TargetConfig
	schedule  model.ScheduleConfig
	cronID    cron.EntryID
}

// Scheduler maintains one cron entry per discovered target and runs the
// dump -> compress -> encrypt -> write pipeline when an entry fires.
type Scheduler struct {
	cron          *cron.Cron
	mu            sync.Mutex
	jobs          map[string]*scheduledJob
	backupWriter  writer.BackupWriter
	webhookSender webhook.WebhookSender
	lifecycle     ContainerLifecycle
	controller    *state.Controller
	encryptor     *encryption.Encryptor
}

// New builds the scheduler and starts its cron loop.
func New(bw writer.BackupWriter, whSender webhook.WebhookSender, lifecycle ContainerLifecycle, controller *state.Controller, enc *encryption.Encryptor) *Scheduler {
	c := cron.New(
		cron.WithChain(
			cron.SkipIfStillRunning(logger.NewCronZapLogger(logger.Log.Named("cron-skip-if-running"))),
		),
		cron.WithLogger(logger.NewCronZapLogger(logger.Log.Named("cron"))),
	)
	s := &Scheduler{
		cron:          c,
		jobs:          make(map[string]*scheduledJob),
		backupWriter:  bw,
		webhookSender: whSender,
		lifecycle:     lifecycle,
		controller:    controller,
		encryptor:     enc,
	}
	s.cron.Start()
	logger.Log.Info("Cron scheduler started")
	return s
}

// Reconcile syncs the cron entries with the discovered container set.
// Targets whose schedule reference cannot be resolved are skipped with a
// warning; entries for targets that disappeared are removed.
func (s *Scheduler) Reconcile(configs []model.ContainerBackupConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	desired := make(map[string]bool)
	for _, cfg := range configs {
		for _, target := range cfg.Targets {
			key := state.TargetKey(cfg.ContainerID, target)

			sched, ok := cfg.Schedules[target.Schedule]
			if !ok {
				logger.Log.Warn("Target references unknown schedule, skipping",
					zap.String("containerName", cfg.ContainerName),
					zap.String("targetType", string(target.Type)),
					zap.String("instance", target.Instance),
					zap.String("schedule", target.Schedule),
				)
				s.controller.RecordEvent(model.BackupEvent{
					Timestamp:      time.Now().UTC(),
					Type:           model.EventSkipped,
					ContainerName:  cfg.ContainerName,
					TargetType:     string(target.Type),
					TargetInstance: target.Instance,
					Message:        fmt.Sprintf("unknown schedule %q", target.Schedule),
				})
				continue
			}
			desired[key] = true

			existing, exists := s.jobs[key]
			if exists {
				// Same cron expression, only refresh the stored config.
				if existing.schedule.Cron == sched.Cron {
					existing.container = cfg
					existing.target = target
					existing.schedule = sched
					continue
				}
				logger.Log.Info("Cron expression changed, re-scheduling target",
					zap.String("key", key),
					zap.String("oldCron", existing.schedule.Cron),
					zap.String("newCron", sched.Cron),
				)
				s.cron.Remove(existing.cronID)
			}

			cronID, err := s.cron.AddFunc(sched.Cron, s.jobFunc(key))
			if err != nil {
				logger.Log.Error("Failed to add cron entry for target",
					zap.String("key", key),
					zap.String("cron", sched.Cron),
					zap.Error(err),
				)
				delete(s.jobs, key)
				delete(desired, key)
				continue
			}

			s.jobs[key] = &scheduledJob{
				container: cfg,
				target:    target,
				schedule:  sched,
				cronID:    cronID,
			}
			s.controller.SetNextRun(cfg.ContainerID, target, s.cron.Entry(cronID).Next)
			if !exists {
				logger.Log.Info("Scheduled backup target",
					zap.String("containerName", cfg.ContainerName),
					zap.String("targetType", string(target.Type)),
					zap.String("instance", target.Instance),
					zap.String("cron", sched.Cron),
				)
			}
		}
	}

	for key, job := range s.jobs {
		if desired[key] {
			continue
		}
		s.cron.Remove(job.cronID)
		delete(s.jobs, key)
		logger.Log.Info("Removed cron entry for vanished target", zap.String("key", key))
	}
}

// jobFunc returns the closure executed when a target's cron entry fires.
// It re-reads the job under the lock so a fire after Reconcile uses the
// freshest labels.
func (s *Scheduler) jobFunc(key string) func() {
	return func() {
		s.mu.Lock()
		scheduled, ok := s.jobs[key]
		if !ok {
			s.mu.Unlock()
			return
		}
		job := model.BackupJob{
			ID:          uuid.NewString(),
			Container:   scheduled.container,
			Target:      scheduled.target,
			Schedule:    scheduled.schedule,
			TriggeredAt: time.Now().UTC(),
		}
		cronID := scheduled.cronID
		s.mu.Unlock()

		s.runJob(context.Background(), job)

		s.mu.Lock()
		if entry := s.cron.Entry(cronID); entry.ID == cronID {
			s.controller.SetNextRun(job.Container.ContainerID, job.Target, entry.Next)
		}
		s.mu.Unlock()
	}
}

func (s *Scheduler) runJob(ctx context.Context, job model.BackupJob) {
	start := time.Now()
	logger.Log.Info("Starting backup job",
		zap.String("jobID", job.ID),
		zap.String("containerName", job.Container.ContainerName),
		zap.String("targetType", string(job.Target.Type)),
		zap.String("instance", job.Target.Instance),
	)
	s.recordEvent(job, model.EventStarted, "")

	res := model.BackupResult{Job: job}
	var objectName string
	defer func() {
		res.Duration = time.Since(start)
		s.finishJob(ctx, res, objectName)
	}()

	d, err := dumper.GetDumper(job.Target)
	if err != nil {
		res.Error = fmt.Sprintf("resolve dumper: %v", err)
		return
	}

	if job.Container.Stop {
		if err := s.lifecycle.StopContainer(ctx, job.Container.ContainerID); err != nil {
			res.Error = fmt.Sprintf("stop container before backup: %v", err)
			return
		}
		defer func() {
			if err := s.lifecycle.StartContainer(ctx, job.Container.ContainerID); err != nil {
				logger.Log.Error("Failed to restart container after backup",
					zap.String("containerID", job.Container.ContainerID),
					zap.Error(err),
				)
			}
		}()
	}

	objectName = writer.GenerateObjectName(job.Container, job.Target, s.encryptor.Extension())

	pr, pw := io.Pipe()
	var dumpErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		var dst io.Writer = pw
		var gz *gzip.Writer
		if job.Target.Compress {
			gz = gzip.NewWriter(pw)
			dst = gz
		}
		dumpErr = d.Dump(ctx, job, dst)
		if gz != nil {
			if closeErr := gz.Close(); closeErr != nil && dumpErr == nil {
				dumpErr = fmt.Errorf("flush gzip stream: %w", closeErr)
			}
		}
		pw.CloseWithError(dumpErr)
	}()

	var src io.Reader = pr
	var encStream io.ReadCloser
	if s.encryptor.Enabled() {
		encStream, err = s.encryptor.Encrypt(ctx, pr)
		if err != nil {
			pr.CloseWithError(err)
			wg.Wait()
			res.Error = fmt.Sprintf("start encryption: %v", err)
			return
		}
		src = encStream
	}

	destination, bytesWritten, writeErr := s.backupWriter.Write(ctx, objectName, src)
	if encStream != nil {
		if closeErr := encStream.Close(); closeErr != nil && writeErr == nil {
			writeErr = closeErr
		}
	}
	wg.Wait()

	res.Destination = destination
	res.BytesWritten = bytesWritten
	switch {
	case dumpErr != nil && writeErr != nil:
		res.Error = fmt.Sprintf("dump error: %v; write error: %v", dumpErr, writeErr)
	case dumpErr != nil:
		res.Error = fmt.Sprintf("dump error: %v", dumpErr)
	case writeErr != nil:
		res.Error = fmt.Sprintf("write error: %v", writeErr)
	default:
		res.Success = true
	}
}

// finishJob records the outcome everywhere it matters: state, metadata
// sidecar, webhook and the event history.
func (s *Scheduler) finishJob(ctx context.Context, res model.BackupResult, objectName string) {
	s.controller.RecordResult(res)

	if res.Success {
		logger.Log.Info("Backup job completed",
			zap.String("jobID", res.Job.ID),
			zap.String("destination", res.Destination),
			zap.Int64("bytesWritten", res.BytesWritten),
			zap.Duration("duration", res.Duration),
		)
		meta := writer.MetadataForResult(res, s.encryptor.Enabled())
		if err := writer.WriteMetadata(ctx, s.backupWriter, meta, objectName); err != nil {
			logger.Log.Warn("Failed to write metadata sidecar",
				zap.String("jobID", res.Job.ID),
				zap.Error(err),
			)
		}
		s.recordEvent(res.Job, model.EventCompleted, res.Destination)
	} else {
		logger.Log.Error("Backup job failed",
			zap.String("jobID", res.Job.ID),
			zap.String("error", res.Error),
			zap.Duration("duration", res.Duration),
		)
		s.recordEvent(res.Job, model.EventFailed, res.Error)
	}

	if s.webhookSender != nil {
		s.webhookSender.Enqueue(webhook.PayloadForResult(res, s.backupWriter.Type()))
	}
}

func (s *Scheduler) recordEvent(job model.BackupJob, typ model.EventType, message string) {
	s.controller.RecordEvent(model.BackupEvent{
		Timestamp:      time.Now().UTC(),
		Type:           typ,
		ContainerName:  job.Container.ContainerName,
		TargetType:     string(job.Target.Type),
		TargetInstance: job.Target.Instance,
		Message:        message,
	})
}

// Stop halts the cron loop and waits for in-flight jobs, bounded by a
// timeout.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	logger.Log.Info("Stopping cron scheduler")
	ctx := s.cron.Stop()
	// Release the lock before waiting: a finishing job re-acquires it to
	// record its next-run time, and would otherwise deadlock against us
	// until the timeout.
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		logger.Log.Info("Cron scheduler stopped gracefully")
	case <-time.After(30 * time.Second):
		logger.Log.Warn("Cron scheduler stop timed out, some jobs may not have finished")
	}
}

// ActiveJobs returns the number of scheduled targets.
func (s *Scheduler) ActiveJobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}
