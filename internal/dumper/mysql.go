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
	RegisterDumperFactory(model.TargetMySQL, NewMySQLDumper)
	// mariadb speaks the same wire protocol and dump tooling.
	RegisterDumperFactory(model.TargetMariaDB, NewMySQLDumper)
}

// MySQLDumper runs mysqldump for mysql and mariadb targets.
type MySQLDumper struct {
	target model.TargetConfig
}

func NewMySQLDumper(target model.TargetConfig) (Dumper, error) {
	return &MySQLDumper{target: target}, nil
}

func (d *MySQLDumper) Dump(ctx context.Context, job model.BackupJob, w io.Writer) error {
	t := d.target
	host := t.StringProp("host", job.Container.ContainerName)
	port := strconv.Itoa(t.IntProp("port", 3306))
	user := t.StringProp("username", "root")
	password := t.StringProp("password", "")
	database := t.StringProp("database", "")

	args := []string{"-h", host, "-P", port, "-u", user, "--single-transaction"}
	if database == "" || database == "all" {
		args = append(args, "--all-databases")
	} else {
		args = append(args, database)
	}

	cmd := exec.CommandContext(ctx, "mysqldump", args...)
	if password != "" {
		cmd.Env = append(os.Environ(), "MYSQL_PWD="+password)
	}

	logger.Log.Info("Dumping mysql target",
		zap.String("containerName", job.Container.ContainerName),
		zap.String("targetType", string(t.Type)),
		zap.String("instance", t.Instance),
		zap.String("host", host),
		zap.String("database", database),
	)
	return runAndStream(ctx, cmd, w)
}
