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
	RegisterDumperFactory(model.TargetMongo, NewMongoDumper)
}

// MongoDumper runs mongodump in archive mode, streaming to stdout.
type MongoDumper struct {
	target model.TargetConfig
}

func NewMongoDumper(target model.TargetConfig) (Dumper, error) {
	return &MongoDumper{target: target}, nil
}

func (d *MongoDumper) Dump(ctx context.Context, job model.BackupJob, w io.Writer) error {
	t := d.target
	host := t.StringProp("host", job.Container.ContainerName)
	port := strconv.Itoa(t.IntProp("port", 27017))

	args := []string{"--archive", "--host", host, "--port", port}
	if user := t.StringProp("username", ""); user != "" {
		args = append(args, "-u", user)
	}
	if password := t.StringProp("password", ""); password != "" {
		args = append(args, "-p", password)
	}
	if database := t.StringProp("database", ""); database != "" && database != "all" {
		args = append(args, "--db", database)
	}

	logger.Log.Info("Dumping mongo target",
		zap.String("containerName", job.Container.ContainerName),
		zap.String("instance", t.Instance),
		zap.String("host", host),
	)
	return runAndStream(ctx, exec.CommandContext(ctx, "mongodump", args...), w)
}
