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
	RegisterDumperFactory(model.TargetFS, NewFSDumper)
}

// FSDumper tars the directory named by the target's path property. An
// optional exclude property is passed through to tar.
type FSDumper struct {
	target model.TargetConfig
}

func NewFSDumper(target model.TargetConfig) (Dumper, error) {
	if target.StringProp("path", "") == "" {
		return nil, fmt.Errorf("fs target %q requires a path property", target.Instance)
	}
	return &FSDumper{target: target}, nil
}

func (d *FSDumper) Dump(ctx context.Context, job model.BackupJob, w io.Writer) error {
	path := d.target.StringProp("path", "")

	args := []string{"-cf", "-"}
	if exclude := d.target.StringProp("exclude", ""); exclude != "" {
		args = append(args, "--exclude", exclude)
	}
	args = append(args, "-C", path, ".")

	logger.Log.Info("Archiving fs target",
		zap.String("containerName", job.Container.ContainerName),
		zap.String("instance", d.target.Instance),
		zap.String("path", path),
	)
	return runAndStream(ctx, exec.CommandContext(ctx, "tar", args...), w)
}
