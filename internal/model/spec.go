package model

import (
	"fmt"
	"strconv"
	"time"
)

// TargetType identifies what kind of unit a backup target is.
type TargetType string

const (
	TargetPostgres TargetType = "postgres"
	TargetMariaDB  TargetType = "mariadb"
	TargetMySQL    TargetType = "mysql"
	TargetMongo    TargetType = "mongo"
	TargetRedis    TargetType = "redis"
	TargetSQLite   TargetType = "sqlite"
	TargetFS       TargetType = "fs"
)

var targetTypes = map[TargetType]struct{}{
	TargetPostgres: {},
	TargetMariaDB:  {},
	TargetMySQL:    {},
	TargetMongo:    {},
	TargetRedis:    {},
	TargetSQLite:   {},
	TargetFS:       {},
}

// ValidTargetType reports whether s names a supported target type.
func ValidTargetType(s string) bool {
	_, ok := targetTypes[TargetType(s)]
	return ok
}

// ScheduleConfig is a named cron/retention pair. The cron expression is
// opaque at this layer; retention is the number of backups to keep.
type ScheduleConfig struct {
	Name      string `json:"name"`
	Cron      string `json:"cron"`
	Retention int    `json:"retention"`
}

// TargetConfig describes one backup-able unit within a container,
// identified by (Type, Instance). Properties holds everything from the
// target's label namespace except the reserved schedule/compress keys.
type TargetConfig struct {
	Type       TargetType     `json:"type"`
	Instance   string         `json:"instance"`
	Schedule   string         `json:"schedule"`
	Compress   bool           `json:"compress"`
	Properties map[string]any `json:"properties,omitempty"`
}

// NewTargetConfig validates the target type and returns the config.
func NewTargetConfig(typ TargetType, instance, schedule string, compress bool, properties map[string]any) (TargetConfig, error) {
	if !ValidTargetType(string(typ)) {
		return TargetConfig{}, fmt.Errorf("invalid target type %q", typ)
	}
	if properties == nil {
		properties = make(map[string]any)
	}
	return TargetConfig{
		Type:       typ,
		Instance:   instance,
		Schedule:   schedule,
		Compress:   compress,
		Properties: properties,
	}, nil
}

// StringProp returns a string property, converting coerced values back to
// their label form, or fallback when the property is absent.
func (t TargetConfig) StringProp(key, fallback string) string {
	v, ok := t.Properties[key]
	if !ok {
		return fallback
	}
	switch val := v.(type) {
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fallback
	}
}

// IntProp returns an integer property, or fallback when absent or not an
// integer.
func (t TargetConfig) IntProp(key string, fallback int) int {
	if v, ok := t.Properties[key].(int); ok {
		return v
	}
	return fallback
}

// ContainerBackupConfig is the complete backup configuration compiled from
// one container's labels. It is rebuilt from scratch on every discovery
// pass and never mutated afterwards.
type ContainerBackupConfig struct {
	ContainerID   string                    `json:"container_id"`
	ContainerName string                    `json:"container_name"`
	Enabled       bool                      `json:"enabled"`
	Stop          bool                      `json:"stop"`
	Schedules     map[string]ScheduleConfig `json:"schedules"`
	Targets       []TargetConfig            `json:"targets"`
}

// BackupJob is one scheduled backup execution for a single target.
type BackupJob struct {
	ID          string
	Container   ContainerBackupConfig
	Target      TargetConfig
	Schedule    ScheduleConfig
	TriggeredAt time.Time
}

// BackupResult records the outcome of a BackupJob.
type BackupResult struct {
	Job          BackupJob
	Success      bool
	Destination  string
	BytesWritten int64
	Error        string
	Duration     time.Duration
}

// EventType classifies backup events.
type EventType string

const (
	EventStarted   EventType = "started"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventSkipped   EventType = "skipped"
)

// BackupEvent is one entry in the controller's recent-event history.
type BackupEvent struct {
	Timestamp      time.Time `json:"timestamp"`
	Type           EventType `json:"type"`
	ContainerName  string    `json:"container_name"`
	TargetType     string    `json:"target_type"`
	TargetInstance string    `json:"target_instance"`
	Message        string    `json:"message,omitempty"`
}

// TargetStatus summarizes the health of a target.
type TargetStatus string

const (
	StatusHealthy TargetStatus = "healthy"
	StatusWarning TargetStatus = "warning"
	StatusError   TargetStatus = "error"
)

// TargetState is the controller's view of one target's backup history.
type TargetState struct {
	LastRun     *time.Time   `json:"last_run,omitempty"`
	LastSuccess *time.Time   `json:"last_success,omitempty"`
	LastError   string       `json:"last_error,omitempty"`
	NextRun     time.Time    `json:"next_run"`
	Status      TargetStatus `json:"status"`
}
