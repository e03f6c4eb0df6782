package dumper

import (
	"context"
	"io"
	"os"
	"os/exec"
	"strconv"

	"baqup/internal/logger"
	"baqup/internal/model"

	"go.uber.org/zap"
)

func init() {
	RegisterDumperFactory(model.TargetPostgres, NewPostgresDumper)
}

// PostgresDumper runs pg_dump (single database) or pg_dumpall against the
// host described by the target's properties.
type PostgresDumper struct {
	target model.TargetConfig
}

func NewPostgresDumper(target model.TargetConfig) (Dumper, error) {
	return &PostgresDumper{target: target}, nil
}

func (d *PostgresDumper) Dump(ctx context.Context, job model.BackupJob, w io.Writer) error {
	t := d.target
	host := t.StringProp("host", job.Container.ContainerName)
	port := strconv.Itoa(t.IntProp("port", 5432))
	user := t.StringProp("username", "postgres")
	password := t.StringProp("password", "")
	database := t.StringProp("database", "")

	var cmd *exec.Cmd
	if database == "" || database == "all" {
		cmd = exec.CommandContext(ctx, "pg_dumpall", "-h", host, "-p", port, "-U", user)
	} else {
		cmd = exec.CommandContext(ctx, "pg_dump", "-h", host, "-p", port, "-U", user, "-Fc", database)
	}
	if password != "" {
		cmd.Env = append(os.Environ(), "PGPASSWORD="+password)
	}

	logger.Log.Info("Dumping postgres target",
		zap.String("containerName", job.Container.ContainerName),
		zap.String("instance", t.Instance),
		zap.String("host", host),
		zap.String("database", database),
	)
	return runAndStream(ctx, cmd, w)
}
