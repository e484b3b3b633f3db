// Package logging builds the zap loggers used across synctree.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration.
type Config struct {
	Level       string // debug, info, warn, error
	Format      string // "json" or "console"
	OutputPath  string // file path or "stdout"; empty means stderr
	Development bool
}

// New creates a structured logger from config. An unparseable level falls back to info.
func New(cfg Config) (*zap.Logger, error) {
	var zapConfig zap.Config
	if cfg.Development {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zapConfig.Level = level

	if cfg.Format == "json" {
		zapConfig.Encoding = "json"
	} else {
		zapConfig.Encoding = "console"
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	// CLI output goes to stdout; logs stay on stderr.
	zapConfig.OutputPaths = []string{"stderr"}
	if cfg.OutputPath != "" {
		zapConfig.OutputPaths = []string{cfg.OutputPath}
	}

	return zapConfig.Build()
}

// SupplierField tags a log entry with the supplier it concerns.
func SupplierField(name string) zap.Field {
	return zap.String("supplier", name)
}

// PartField tags a log entry with the part number it concerns.
func PartField(partNumber string) zap.Field {
	return zap.String("part_number", partNumber)
}
