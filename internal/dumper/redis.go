package dumper

import (
	"context"
	"io"
	"os/exec"
	"strconv"

	"baqup/internal/logger"
	"baqup/internal/model"

	"go.uber.org/zap"
)

func init() {
	RegisterDumperFactory(model.TargetRedis, NewRedisDumper)
}

// RedisDumper streams an RDB snapshot via redis-cli.
type RedisDumper struct {
	target model.TargetConfig
}

func NewRedisDumper(target model.TargetConfig) (Dumper, error) {
	return &RedisDumper{target: target}, nil
}

func (d *RedisDumper) Dump(ctx context.Context, job model.BackupJob, w io.Writer) error {
	t := d.target
	host := t.StringProp("host", job.Container.ContainerName)
	port := strconv.Itoa(t.IntProp("port", 6379))

	args := []string{"-h", host, "-p", port}
	if password := t.StringProp("password", ""); password != "" {
		args = append(args, "-a", password, "--no-auth-warning")
	}
	// "-" sends the RDB payload to stdout.
	args = append(args, "--rdb", "-")

	logger.Log.Info("Dumping redis target",
		zap.String("containerName", job.Container.ContainerName),
		zap.String("instance", t.Instance),
		zap.String("host", host),
	)
	return runAndStream(ctx, exec.CommandContext(ctx, "redis-cli", args...), w)
}
