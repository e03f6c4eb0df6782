package scheduler

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"baqup/internal/config"
	"baqup/internal/encryption"
	"baqup/internal/model"
	"baqup/internal/state"
	"baqup/internal/writer"
)

type mockBackupWriter struct{}

func (m *mockBackupWriter) Type() string { return "mock" }

func (m *mockBackupWriter) Write(ctx context.Context, objectName string, reader io.Reader) (string, int64, error) {
	n, err := io.Copy(io.Discard, reader)
	return objectName, n, err
}

func (m *mockBackupWriter) ReadObject(ctx context.Context, objectName string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func (m *mockBackupWriter) ListObjects(ctx context.Context, prefix string) ([]writer.BackupObjectMeta, error) {
	return nil, nil
}

func (m *mockBackupWriter) DeleteObject(ctx context.Context, key string) error { return nil }

// slowBackupWriter signals when a write begins and then holds it open for
// the configured duration, simulating an in-flight upload.
type slowBackupWriter struct {
	mockBackupWriter
	delay     time.Duration
	started   chan struct{}
	startOnce sync.Once
}

func (s *slowBackupWriter) Write(ctx context.Context, objectName string, reader io.Reader) (string, int64, error) {
	s.startOnce.Do(func() { close(s.started) })
	io.Copy(io.Discard, reader)
	time.Sleep(s.delay)
	return objectName, 0, nil
}

type fakeLifecycle struct {
	stopped []string
	started []string
}

func (f *fakeLifecycle) StopContainer(ctx context.Context, id string) error {
	f.stopped = append(f.stopped, id)
	return nil
}

func (f *fakeLifecycle) StartContainer(ctx context.Context, id string) error {
	f.started = append(f.started, id)
	return nil
}

func newTestScheduler(t *testing.T, controller *state.Controller) *Scheduler {
	t.Helper()
	enc, err := encryption.NewEncryptor(config.EncryptionConfig{})
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}
	s := New(&mockBackupWriter{}, nil, &fakeLifecycle{}, controller, enc)
	t.Cleanup(s.Stop)
	return s
}

func containerWithTargets(id string, targets ...model.TargetConfig) model.ContainerBackupConfig {
	return model.ContainerBackupConfig{
		ContainerID:   id,
		ContainerName: "app-" + id,
		Enabled:       true,
		Schedules:     model.BuiltinSchedules(),
		Targets:       targets,
	}
}

func TestReconcileSchedulesTargets(t *testing.T) {
	controller := state.New()
	s := newTestScheduler(t, controller)

	cfg := containerWithTargets("one",
		model.TargetConfig{Type: model.TargetPostgres, Instance: "main", Schedule: "daily"},
		model.TargetConfig{Type: model.TargetFS, Instance: "data", Schedule: "hourly"},
	)
	s.Reconcile([]model.ContainerBackupConfig{cfg})

	if got := s.ActiveJobs(); got != 2 {
		t.Fatalf("ActiveJobs() = %d, want 2", got)
	}

	states := controller.TargetStates()
	st, ok := states[state.TargetKey("one", cfg.Targets[0])]
	if !ok || st.NextRun.IsZero() {
		t.Errorf("next run not recorded for scheduled target: %+v", states)
	}
}

func TestReconcileSkipsUnknownSchedule(t *testing.T) {
	controller := state.New()
	s := newTestScheduler(t, controller)

	cfg := containerWithTargets("one",
		model.TargetConfig{Type: model.TargetPostgres, Instance: "main", Schedule: "nosuch"},
	)
	s.Reconcile([]model.ContainerBackupConfig{cfg})

	if got := s.ActiveJobs(); got != 0 {
		t.Fatalf("ActiveJobs() = %d, want 0", got)
	}

	events := controller.RecentEvents()
	if len(events) != 1 || events[0].Type != model.EventSkipped {
		t.Fatalf("events = %+v, want one skipped event", events)
	}
	if !strings.Contains(events[0].Message, "nosuch") {
		t.Errorf("skip event does not name the missing schedule: %+v", events[0])
	}
}

func TestReconcileRemovesVanishedTargets(t *testing.T) {
	controller := state.New()
	s := newTestScheduler(t, controller)

	cfg := containerWithTargets("one",
		model.TargetConfig{Type: model.TargetPostgres, Instance: "main", Schedule: "daily"},
		model.TargetConfig{Type: model.TargetRedis, Instance: "cache", Schedule: "daily"},
	)
	s.Reconcile([]model.ContainerBackupConfig{cfg})
	if got := s.ActiveJobs(); got != 2 {
		t.Fatalf("ActiveJobs() = %d, want 2", got)
	}

	cfg.Targets = cfg.Targets[:1]
	s.Reconcile([]model.ContainerBackupConfig{cfg})
	if got := s.ActiveJobs(); got != 1 {
		t.Errorf("ActiveJobs() after shrink = %d, want 1", got)
	}

	s.Reconcile(nil)
	if got := s.ActiveJobs(); got != 0 {
		t.Errorf("ActiveJobs() after clearing = %d, want 0", got)
	}
}

func TestStopReturnsPromptlyWithJobInFlight(t *testing.T) {
	if testing.Short() {
		t.Skip("timing-sensitive")
	}

	controller := state.New()
	enc, err := encryption.NewEncryptor(config.EncryptionConfig{})
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}
	slow := &slowBackupWriter{delay: 2 * time.Second, started: make(chan struct{})}
	s := New(slow, nil, &fakeLifecycle{}, controller, enc)

	cfg := containerWithTargets("one",
		model.TargetConfig{Type: model.TargetPostgres, Instance: "main", Schedule: "fast"},
	)
	cfg.Schedules["fast"] = model.ScheduleConfig{Name: "fast", Cron: "@every 1s", Retention: 7}
	s.Reconcile([]model.ContainerBackupConfig{cfg})

	select {
	case <-slow.started:
	case <-time.After(10 * time.Second):
		t.Fatal("backup job never started writing")
	}

	begin := time.Now()
	s.Stop()
	if elapsed := time.Since(begin); elapsed > 10*time.Second {
		t.Fatalf("Stop() took %v with a 2s job in flight, expected it to return once the job finished", elapsed)
	}
}

func TestReconcileReschedulesOnCronChange(t *testing.T) {
	controller := state.New()
	s := newTestScheduler(t, controller)

	cfg := containerWithTargets("one",
		model.TargetConfig{Type: model.TargetPostgres, Instance: "main", Schedule: "daily"},
	)
	s.Reconcile([]model.ContainerBackupConfig{cfg})
	key := state.TargetKey("one", cfg.Targets[0])

	s.mu.Lock()
	firstID := s.jobs[key].cronID
	s.mu.Unlock()

	cfg.Schedules["daily"] = model.ScheduleConfig{Name: "daily", Cron: "30 2 * * *", Retention: 7}
	s.Reconcile([]model.ContainerBackupConfig{cfg})

	s.mu.Lock()
	job := s.jobs[key]
	s.mu.Unlock()
	if job.cronID == firstID {
		t.Error("cron entry not replaced after expression change")
	}
	if job.schedule.Cron != "30 2 * * *" {
		t.Errorf("stored schedule = %+v", job.schedule)
	}
	if got := s.ActiveJobs(); got != 1 {
		t.Errorf("ActiveJobs() = %d, want 1", got)
	}
}
