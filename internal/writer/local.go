package writer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"baqup/internal/config"
	"baqup/internal/logger"

	"go.uber.org/zap"
)

const LocalWriterType = "local"

func init() {
	RegisterWriterFactory(LocalWriterType, NewLocalWriter)
}

// LocalWriter stores backups under a base directory on the local
// filesystem.
type LocalWriter struct {
	basePath string
}

func NewLocalWriter(cfg config.StorageConfig) (BackupWriter, error) {
	basePath := cfg.Local.Path
	if basePath == "" {
		basePath = "/backups"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create backup base path %s: %w", basePath, err)
	}
	logger.Log.Info("Local writer initialized", zap.String("basePath", basePath))
	return &LocalWriter{basePath: basePath}, nil
}

func (lw *LocalWriter) Type() string {
	return LocalWriterType
}

// resolve maps an object key to an absolute file path, rejecting keys
// that would escape the base directory.
func (lw *LocalWriter) resolve(objectName string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(objectName))
	if filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, "..") {
		return "", fmt.Errorf("malformed object name %q", objectName)
	}
	path := filepath.Join(lw.basePath, cleaned)

	absBase, err := filepath.Abs(lw.basePath)
	if err != nil {
		return "", fmt.Errorf("resolve base path: %w", err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve target path: %w", err)
	}
	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) && absPath != absBase {
		return "", fmt.Errorf("object name %q escapes base path", objectName)
	}
	return path, nil
}

func (lw *LocalWriter) Write(ctx context.Context, objectName string, reader io.Reader) (string, int64, error) {
	path, err := lw.resolve(objectName)
	if err != nil {
		return "", 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", 0, fmt.Errorf("create directory for %s: %w", path, err)
	}

	file, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("create backup file %s: %w", path, err)
	}
	defer file.Close()

	bytesWritten, err := io.Copy(file, reader)
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("write backup data to %s: %w", path, err)
	}

	logger.Log.Info("Wrote local backup",
		zap.String("path", path),
		zap.Int64("bytesWritten", bytesWritten),
	)
	return path, bytesWritten, nil
}

func (lw *LocalWriter) ReadObject(ctx context.Context, objectName string) (io.ReadCloser, error) {
	path, err := lw.resolve(objectName)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

func (lw *LocalWriter) ListObjects(ctx context.Context, prefix string) ([]BackupObjectMeta, error) {
	var objects []BackupObjectMeta

	err := filepath.Walk(lw.basePath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if info.IsDir() {
			return nil
		}
		key, err := filepath.Rel(lw.basePath, path)
		if err != nil {
			return err
		}
		key = filepath.ToSlash(key)
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			return nil
		}
		objects = append(objects, BackupObjectMeta{
			Key:          key,
			LastModified: info.ModTime(),
			Size:         info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", lw.basePath, err)
	}
	return objects, nil
}

func (lw *LocalWriter) DeleteObject(ctx context.Context, key string) error {
	path, err := lw.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("delete %s: %w", path, err)
	}
	logger.Log.Info("Deleted local backup", zap.String("path", path))
	return nil
}
