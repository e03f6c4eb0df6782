package state

import (
	"fmt"
	"sync"
	"time"

	"baqup/internal/model"
)

const maxRecentEvents = 100

// Controller holds the daemon's view of discovered containers, per-target
// run state and a bounded history of recent events. Safe for concurrent
// use.
type Controller struct {
	mu         sync.RWMutex
	containers map[string]model.ContainerBackupConfig
	targets    map[string]model.TargetState
	events     []model.BackupEvent
}

func New() *Controller {
	return &Controller{
		containers: make(map[string]model.ContainerBackupConfig),
		targets:    make(map[string]model.TargetState),
	}
}

// TargetKey identifies one target within one container.
func TargetKey(containerID string, target model.TargetConfig) string {
	return fmt.Sprintf("%s/%s/%s", containerID, target.Type, target.Instance)
}

// SetContainers replaces the discovered container set. Target states for
// containers that disappeared are dropped.
func (c *Controller) SetContainers(configs []model.ContainerBackupConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.containers = make(map[string]model.ContainerBackupConfig, len(configs))
	for _, cfg := range configs {
		c.containers[cfg.ContainerID] = cfg
	}

	live := make(map[string]model.TargetState, len(c.targets))
	for _, cfg := range configs {
		for _, target := range cfg.Targets {
			key := TargetKey(cfg.ContainerID, target)
			if st, ok := c.targets[key]; ok {
				live[key] = st
			}
		}
	}
	c.targets = live
}

// Containers returns a snapshot of the discovered container configs.
func (c *Controller) Containers() []model.ContainerBackupConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.ContainerBackupConfig, 0, len(c.containers))
	for _, cfg := range c.containers {
		out = append(out, cfg)
	}
	return out
}

// RecordEvent appends an event to the bounded history.
func (c *Controller) RecordEvent(event model.BackupEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events = append(c.events, event)
	if len(c.events) > maxRecentEvents {
		c.events = c.events[len(c.events)-maxRecentEvents:]
	}
}

// RecentEvents returns the retained events, oldest first.
func (c *Controller) RecentEvents() []model.BackupEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.BackupEvent, len(c.events))
	copy(out, c.events)
	return out
}

// RecordResult folds a finished job into its target's state.
func (c *Controller) RecordResult(res model.BackupResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := TargetKey(res.Job.Container.ContainerID, res.Job.Target)
	st := c.targets[key]

	now := time.Now().UTC()
	st.LastRun = &now
	if res.Success {
		st.LastSuccess = &now
		st.LastError = ""
		st.Status = model.StatusHealthy
	} else {
		st.LastError = res.Error
		st.Status = model.StatusError
	}
	c.targets[key] = st
}

// SetNextRun records the scheduler's next fire time for a target.
func (c *Controller) SetNextRun(containerID string, target model.TargetConfig, next time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := TargetKey(containerID, target)
	st := c.targets[key]
	st.NextRun = next
	c.targets[key] = st
}

// TargetStates returns a snapshot of all target states keyed by
// container/type/instance.
func (c *Controller) TargetStates() map[string]model.TargetState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]model.TargetState, len(c.targets))
	for k, v := range c.targets {
		out[k] = v
	}
	return out
}
