package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the process-wide logger. It is ready to use as soon as the
// package is imported.
var Log *zap.Logger

func levelFromEnv() zapcore.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return zapcore.DebugLevel
	case "", "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		fmt.Fprintf(os.Stderr, "Warning: invalid LOG_LEVEL %q, using info\n", os.Getenv("LOG_LEVEL"))
		return zapcore.InfoLevel
	}
}

func init() {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stdout),
		levelFromEnv(),
	)
	Log = zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
}

// Close flushes buffered log entries. Call before process exit.
func Close() error {
	if Log != nil {
		return Log.Sync()
	}
	return nil
}

// CronZapLogger adapts the zap logger to the robfig/cron logging interface.
type CronZapLogger struct {
	logger *zap.Logger
}

func NewCronZapLogger(logger *zap.Logger) *CronZapLogger {
	return &CronZapLogger{logger: logger}
}

func (c *CronZapLogger) Info(msg string, keysAndValues ...interface{}) {
	c.logger.Info(msg, toFields(keysAndValues)...)
}

func (c *CronZapLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.logger.Error(msg, append(toFields(keysAndValues), zap.Error(err))...)
}

func toFields(keysAndValues []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprintf("arg%d", i/2)
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
