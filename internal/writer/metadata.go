package writer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"baqup/internal/model"
)

const metadataSuffix = ".metadata.json"

// BackupMetadata is the JSON sidecar stored next to every backup object.
type BackupMetadata struct {
	Timestamp       time.Time `json:"timestamp"`
	ContainerID     string    `json:"container_id"`
	ContainerName   string    `json:"container_name"`
	TargetType      string    `json:"target_type"`
	TargetInstance  string    `json:"target_instance"`
	Schedule        string    `json:"schedule"`
	BackupSize      int64     `json:"backup_size_bytes"`
	Compressed      bool      `json:"compressed"`
	Encrypted       bool      `json:"encrypted"`
	Destination     string    `json:"destination"`
	DurationSeconds float64   `json:"duration_seconds"`
	Success         bool      `json:"success"`
	Error           string    `json:"error,omitempty"`
}

// MetadataForResult derives the sidecar content from a finished job.
func MetadataForResult(res model.BackupResult, encrypted bool) BackupMetadata {
	return BackupMetadata{
		Timestamp:       res.Job.TriggeredAt.UTC(),
		ContainerID:     res.Job.Container.ContainerID,
		ContainerName:   res.Job.Container.ContainerName,
		TargetType:      string(res.Job.Target.Type),
		TargetInstance:  res.Job.Target.Instance,
		Schedule:        res.Job.Schedule.Name,
		BackupSize:      res.BytesWritten,
		Compressed:      res.Job.Target.Compress,
		Encrypted:       encrypted,
		Destination:     res.Destination,
		DurationSeconds: res.Duration.Seconds(),
		Success:         res.Success,
		Error:           res.Error,
	}
}

// WriteMetadata stores the sidecar for objectName.
func WriteMetadata(ctx context.Context, w BackupWriter, meta BackupMetadata, objectName string) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if _, _, err := w.Write(ctx, objectName+metadataSuffix, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write metadata for %s: %w", objectName, err)
	}
	return nil
}

// ReadMetadata loads the sidecar for objectName.
func ReadMetadata(ctx context.Context, w BackupWriter, objectName string) (*BackupMetadata, error) {
	reader, err := w.ReadObject(ctx, objectName+metadataSuffix)
	if err != nil {
		return nil, fmt.Errorf("read metadata for %s: %w", objectName, err)
	}
	defer reader.Close()

	var meta BackupMetadata
	if err := json.NewDecoder(reader).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode metadata for %s: %w", objectName, err)
	}
	return &meta, nil
}

// IsMetadataKey reports whether key names a metadata sidecar rather than
// a backup object.
func IsMetadataKey(key string) bool {
	return len(key) > len(metadataSuffix) && key[len(key)-len(metadataSuffix):] == metadataSuffix
}
