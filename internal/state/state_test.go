package state

import (
	"fmt"
	"testing"
	"time"

	"baqup/internal/model"
)

func testContainer(id string) model.ContainerBackupConfig {
	return model.ContainerBackupConfig{
		ContainerID:   id,
		ContainerName: "app-" + id,
		Enabled:       true,
		Targets: []model.TargetConfig{
			{Type: model.TargetPostgres, Instance: "main", Schedule: "daily"},
		},
	}
}

func TestSetContainersDropsStaleTargetState(t *testing.T) {
	c := New()
	first := testContainer("one")
	second := testContainer("two")
	c.SetContainers([]model.ContainerBackupConfig{first, second})

	c.RecordResult(model.BackupResult{
		Job:     model.BackupJob{Container: first, Target: first.Targets[0]},
		Success: true,
	})
	c.RecordResult(model.BackupResult{
		Job:     model.BackupJob{Container: second, Target: second.Targets[0]},
		Success: true,
	})
	if len(c.TargetStates()) != 2 {
		t.Fatalf("got %d target states, want 2", len(c.TargetStates()))
	}

	c.SetContainers([]model.ContainerBackupConfig{second})

	states := c.TargetStates()
	if len(states) != 1 {
		t.Fatalf("got %d target states after re-discovery, want 1", len(states))
	}
	if _, ok := states[TargetKey("two", second.Targets[0])]; !ok {
		t.Errorf("surviving container's state dropped: %+v", states)
	}
}

func TestRecordResultUpdatesStatus(t *testing.T) {
	c := New()
	container := testContainer("one")
	c.SetContainers([]model.ContainerBackupConfig{container})
	key := TargetKey("one", container.Targets[0])

	c.RecordResult(model.BackupResult{
		Job:     model.BackupJob{Container: container, Target: container.Targets[0]},
		Success: true,
	})
	st := c.TargetStates()[key]
	if st.Status != model.StatusHealthy || st.LastSuccess == nil || st.LastError != "" {
		t.Errorf("state after success = %+v", st)
	}

	c.RecordResult(model.BackupResult{
		Job:     model.BackupJob{Container: container, Target: container.Targets[0]},
		Success: false,
		Error:   "pg_dump exited 1",
	})
	st = c.TargetStates()[key]
	if st.Status != model.StatusError || st.LastError != "pg_dump exited 1" {
		t.Errorf("state after failure = %+v", st)
	}
	if st.LastSuccess == nil {
		t.Error("LastSuccess cleared by a later failure")
	}
}

func TestRecentEventsBounded(t *testing.T) {
	c := New()
	for i := 0; i < maxRecentEvents+25; i++ {
		c.RecordEvent(model.BackupEvent{
			Timestamp: time.Now(),
			Type:      model.EventCompleted,
			Message:   fmt.Sprintf("run %d", i),
		})
	}

	events := c.RecentEvents()
	if len(events) != maxRecentEvents {
		t.Fatalf("got %d events, want %d", len(events), maxRecentEvents)
	}
	if events[len(events)-1].Message != fmt.Sprintf("run %d", maxRecentEvents+24) {
		t.Errorf("newest event missing, last = %+v", events[len(events)-1])
	}
	if events[0].Message != "run 25" {
		t.Errorf("oldest retained event = %+v, want run 25", events[0])
	}
}

func TestSetNextRun(t *testing.T) {
	c := New()
	container := testContainer("one")
	c.SetContainers([]model.ContainerBackupConfig{container})

	next := time.Now().Add(time.Hour).UTC()
	c.SetNextRun("one", container.Targets[0], next)

	st := c.TargetStates()[TargetKey("one", container.Targets[0])]
	if !st.NextRun.Equal(next) {
		t.Errorf("NextRun = %v, want %v", st.NextRun, next)
	}
}
