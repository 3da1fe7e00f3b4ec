// Package logger builds the service zap logger and carries request-scoped
// loggers through context.
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kailas-cloud/catalogix/internal/version"
)

// NewLogger creates the logger for env: JSON in prod, colored console otherwise.
// A non-empty level (debug, info, warn, error) overrides the env default.
func NewLogger(env, level string) (*zap.Logger, error) {
	var cfg zap.Config
	switch env {
	case "prod":
		cfg = zap.NewProductionConfig()
		// индексация на bulk-reindex пишет строку на товар
		cfg.Sampling = &zap.SamplingConfig{Initial: 100, Thereafter: 100}
	case "local", "dev", "docker":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("unknown environment %q for logger", env)
	}

	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	l, err := cfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return l.With(zap.String("service", "catalogix"), zap.String("version", version.Version)), nil
}

// Field constructors shared by the pipeline, so every component logs the same keys.
func ProductID(id string) zap.Field { return zap.String("product_id", id) }
func JobID(id string) zap.Field     { return zap.String("job_id", id) }
func RequestID(id string) zap.Field { return zap.String("request_id", id) }
