package dumper

import (
	"context"
	"fmt"
	"io"
	"os/exec"

	"baqup/internal/logger"
	"baqup/internal/model"

	"go.uber.org/zap"
)

func init() {
	RegisterDumperFactory(model.TargetSQLite, NewSQLiteDumper)
}

// SQLiteDumper streams a SQL dump of the database file named by the
// target's path property.
type SQLiteDumper struct {
	target model.TargetConfig
}

func NewSQLiteDumper(target model.TargetConfig) (Dumper, error) {
	if target.StringProp("path", "") == "" {
		return nil, fmt.Errorf("sqlite target %q requires a path property", target.Instance)
	}
	return &SQLiteDumper{target: target}, nil
}

func (d *SQLiteDumper) Dump(ctx context.Context, job model.BackupJob, w io.Writer) error {
	path := d.target.StringProp("path", "")

	logger.Log.Info("Dumping sqlite target",
		zap.String("containerName", job.Container.ContainerName),
		zap.String("instance", d.target.Instance),
		zap.String("path", path),
	)
	return runAndStream(ctx, exec.CommandContext(ctx, "sqlite3", path, ".dump"), w)
}
