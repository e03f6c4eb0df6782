package gc

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"baqup/internal/model"
	"baqup/internal/writer"
)

type mockBackupWriter struct {
	objects []writer.BackupObjectMeta
}

func (m *mockBackupWriter) Type() string { return "mock" }

func (m *mockBackupWriter) Write(ctx context.Context, objectName string, reader io.Reader) (string, int64, error) {
	return objectName, 0, nil
}

func (m *mockBackupWriter) ReadObject(ctx context.Context, objectName string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func (m *mockBackupWriter) ListObjects(ctx context.Context, prefix string) ([]writer.BackupObjectMeta, error) {
	var out []writer.BackupObjectMeta
	for _, obj := range m.objects {
		if strings.HasPrefix(obj.Key, prefix) {
			out = append(out, obj)
		}
	}
	return out, nil
}

func (m *mockBackupWriter) DeleteObject(ctx context.Context, key string) error {
	for i, obj := range m.objects {
		if obj.Key == key {
			m.objects = append(m.objects[:i], m.objects[i+1:]...)
			break
		}
	}
	return nil
}

func testSetup() (model.ContainerBackupConfig, model.TargetConfig) {
	container := model.ContainerBackupConfig{
		ContainerID:   "abc",
		ContainerName: "myapp",
		Schedules: map[string]model.ScheduleConfig{
			"daily": {Name: "daily", Cron: "0 3 * * *", Retention: 2},
		},
	}
	target := model.TargetConfig{Type: model.TargetPostgres, Instance: "main", Schedule: "daily"}
	return container, target
}

func backupAt(key string, age time.Duration) writer.BackupObjectMeta {
	return writer.BackupObjectMeta{Key: key, LastModified: time.Now().UTC().Add(-age)}
}

func TestRunPrunesBeyondRetention(t *testing.T) {
	container, target := testSetup()
	mock := &mockBackupWriter{objects: []writer.BackupObjectMeta{
		backupAt("myapp/postgres-main-1.dump.gz", 72*time.Hour),
		backupAt("myapp/postgres-main-2.dump.gz", 48*time.Hour),
		backupAt("myapp/postgres-main-3.dump.gz", 24*time.Hour),
		backupAt("myapp/postgres-main-4.dump.gz", 1*time.Hour),
	}}

	if err := NewRunner(container, target, 2, mock, false).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(mock.objects) != 2 {
		t.Fatalf("got %d objects after GC, want 2: %+v", len(mock.objects), mock.objects)
	}
	for _, obj := range mock.objects {
		if obj.Key != "myapp/postgres-main-3.dump.gz" && obj.Key != "myapp/postgres-main-4.dump.gz" {
			t.Errorf("pruned the wrong object, kept %q", obj.Key)
		}
	}
}

func TestRunKeepsMetadataOfSurvivors(t *testing.T) {
	container, target := testSetup()
	mock := &mockBackupWriter{objects: []writer.BackupObjectMeta{
		backupAt("myapp/postgres-main-1.dump.gz", 48*time.Hour),
		backupAt("myapp/postgres-main-1.dump.gz.metadata.json", 48*time.Hour),
		backupAt("myapp/postgres-main-2.dump.gz", 1*time.Hour),
		backupAt("myapp/postgres-main-2.dump.gz.metadata.json", 1*time.Hour),
	}}

	if err := NewRunner(container, target, 1, mock, false).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	keys := make(map[string]bool)
	for _, obj := range mock.objects {
		keys[obj.Key] = true
	}
	if !keys["myapp/postgres-main-2.dump.gz"] || !keys["myapp/postgres-main-2.dump.gz.metadata.json"] {
		t.Errorf("survivor or its sidecar pruned: %+v", mock.objects)
	}
	if keys["myapp/postgres-main-1.dump.gz"] || keys["myapp/postgres-main-1.dump.gz.metadata.json"] {
		t.Errorf("pruned backup's objects remain: %+v", mock.objects)
	}
}

func TestRunDryRunDeletesNothing(t *testing.T) {
	container, target := testSetup()
	mock := &mockBackupWriter{objects: []writer.BackupObjectMeta{
		backupAt("myapp/postgres-main-1.dump.gz", 48*time.Hour),
		backupAt("myapp/postgres-main-2.dump.gz", 1*time.Hour),
	}}

	if err := NewRunner(container, target, 1, mock, true).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(mock.objects) != 2 {
		t.Errorf("dry run deleted objects: %+v", mock.objects)
	}
}

func TestRunWithinRetention(t *testing.T) {
	container, target := testSetup()
	mock := &mockBackupWriter{objects: []writer.BackupObjectMeta{
		backupAt("myapp/postgres-main-1.dump.gz", 1*time.Hour),
	}}

	if err := NewRunner(container, target, 2, mock, false).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(mock.objects) != 1 {
		t.Errorf("objects pruned within retention: %+v", mock.objects)
	}
}

func TestRetentionFor(t *testing.T) {
	container, target := testSetup()

	if got := RetentionFor(container, target); got != 2 {
		t.Errorf("RetentionFor() = %d, want 2", got)
	}

	target.Schedule = "missing"
	if got := RetentionFor(container, target); got != 7 {
		t.Errorf("RetentionFor() with unknown schedule = %d, want 7", got)
	}
}
