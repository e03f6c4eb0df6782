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

// Dumper produces the raw backup stream for one target. Compression and
// encryption happen downstream in the job pipeline.
type Dumper interface {
	Dump(ctx context.Context, job model.BackupJob, w io.Writer) error
}

// NewDumperFunc builds a Dumper for a target.
type NewDumperFunc func(target model.TargetConfig) (Dumper, error)

var dumperFactories = make(map[model.TargetType]NewDumperFunc)

// RegisterDumperFactory registers a dumper implementation for a target
// type. Called from init functions.
func RegisterDumperFactory(typ model.TargetType, factory NewDumperFunc) {
	if factory == nil {
		logger.Log.Fatal("Dumper factory is nil", zap.String("targetType", string(typ)))
	}
	if _, ok := dumperFactories[typ]; ok {
		logger.Log.Fatal("Dumper factory already registered", zap.String("targetType", string(typ)))
	}
	dumperFactories[typ] = factory
}

// GetDumper returns a Dumper for the target's type.
func GetDumper(target model.TargetConfig) (Dumper, error) {
	factory, ok := dumperFactories[target.Type]
	if !ok {
		return nil, fmt.Errorf("no dumper registered for target type %q", target.Type)
	}
	return factory(target)
}

// runAndStream starts cmd, copies its stdout into w and waits for it to
// finish, surfacing stderr in the error on failure.
func runAndStream(ctx context.Context, cmd *exec.Cmd, w io.Writer) error {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", cmd.Path, err)
	}
	logger.Log.Debug("Dump command started",
		zap.String("command", cmd.Path),
		zap.Strings("args", cmd.Args),
	)

	_, copyErr := io.Copy(w, stdout)
	stderrOut, _ := io.ReadAll(stderr)

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("%s failed (stderr: %s): %w", cmd.Path, string(stderrOut), err)
	}
	if copyErr != nil {
		return fmt.Errorf("stream %s output: %w", cmd.Path, copyErr)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if len(stderrOut) > 0 {
		logger.Log.Warn("Dump command wrote to stderr",
			zap.String("command", cmd.Path),
			zap.String("stderr", string(stderrOut)),
		)
	}
	return nil
}
