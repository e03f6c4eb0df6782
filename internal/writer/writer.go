package writer

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"baqup/internal/config"
	"baqup/internal/logger"
	"baqup/internal/model"

	"go.uber.org/zap"
)

// BackupObjectMeta describes one stored backup object.
type BackupObjectMeta struct {
	Key          string
	LastModified time.Time
	Size         int64
}

// BackupWriter stores backup streams at a destination and manages the
// objects it has written.
type BackupWriter interface {
	// Write stores the stream under objectName and returns the final
	// destination path/URL and the number of bytes written.
	Write(ctx context.Context, objectName string, reader io.Reader) (destination string, bytesWritten int64, err error)
	// ReadObject opens a stored object for reading.
	ReadObject(ctx context.Context, objectName string) (io.ReadCloser, error)
	// ListObjects lists objects whose key starts with prefix.
	ListObjects(ctx context.Context, prefix string) ([]BackupObjectMeta, error)
	// DeleteObject removes an object by key.
	DeleteObject(ctx context.Context, key string) error
	// Type names the destination kind ("local", "remote").
	Type() string
}

// NewWriterFunc builds a BackupWriter from the storage configuration.
type NewWriterFunc func(cfg config.StorageConfig) (BackupWriter, error)

var writerFactories = make(map[string]NewWriterFunc)

// RegisterWriterFactory registers a writer implementation for a
// destination type. Called from init functions.
func RegisterWriterFactory(dest string, factory NewWriterFunc) {
	if factory == nil {
		logger.Log.Fatal("Writer factory is nil", zap.String("dest", dest))
	}
	if _, ok := writerFactories[dest]; ok {
		logger.Log.Fatal("Writer factory already registered", zap.String("dest", dest))
	}
	writerFactories[dest] = factory
}

// GetWriter returns a BackupWriter for the configured destination,
// defaulting to local storage.
func GetWriter(cfg config.StorageConfig) (BackupWriter, error) {
	dest := strings.ToLower(cfg.Dest)
	if dest == "" {
		dest = LocalWriterType
	}
	factory, ok := writerFactories[dest]
	if !ok {
		return nil, fmt.Errorf("no writer registered for destination %q", dest)
	}
	return factory(cfg)
}

// ObjectPrefix is the key prefix shared by all backups of one target:
// <container>/<type>-<instance>-.
func ObjectPrefix(container model.ContainerBackupConfig, target model.TargetConfig) string {
	return fmt.Sprintf("%s/%s-%s-", sanitize(container.ContainerName), target.Type, target.Instance)
}

// GenerateObjectName builds the object key for one backup run:
// <container>/<type>-<instance>-<timestamp><ext>. fs targets produce tar
// archives, everything else a dump; compressed streams get a .gz suffix
// and encExt (".gpg" or empty) is appended last.
func GenerateObjectName(container model.ContainerBackupConfig, target model.TargetConfig, encExt string) string {
	ext := ".dump"
	if target.Type == model.TargetFS {
		ext = ".tar"
	}
	if target.Compress {
		ext += ".gz"
	}
	timestamp := time.Now().UTC().Format("20060102150405")
	return ObjectPrefix(container, target) + timestamp + ext + encExt
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, name)
}

// CheckDiskSpace verifies the path's filesystem has headroom for new
// backups. Implemented per platform.
func CheckDiskSpace(path string) error {
	return checkDiskSpaceImpl(path)
}
