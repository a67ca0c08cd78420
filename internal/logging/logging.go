// Package logging builds the process-wide structured logger used by every
// shard engine and coordinator process. It wraps go.uber.org/zap the way
// erigon and prysm configure it for long-running services: JSON in
// production, console in development, one logger built at startup and
// passed down rather than reached for as a package global.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls logger construction.
type Config struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string
	// Development enables human-readable console output instead of JSON.
	Development bool
}

// New builds a *zap.SugaredLogger per cfg. Call sites that look like the
// teacher's log.Printf use the Sugared API (Infof, Warnf); boundary code in
// shardengine/graphapi/coordinator prefers the structured API
// (logger.Desugar()) with zap.Field attachments for requestId/shardId/txId.
func New(cfg Config) (*zap.SugaredLogger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, err
		}
	}

	var zcfg zap.Config
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// Noop returns a logger that discards everything, used in tests that don't
// care about log output but still need a non-nil logger dependency.
func Noop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
