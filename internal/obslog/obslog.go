package obslog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var globalLogger = zap.NewNop()

// L returns the process-wide logger; a no-op logger until Init runs.
func L() *zap.Logger { return globalLogger }

// Options controls where and how log lines are written.
type Options struct {
	Level      string
	Console    bool
	File       string // empty disables file output
	Format     string // legacy | json | console
	ShowCaller bool
}

// OptionsFromEnv reads LOG_LEVEL, LOG_TO_CONSOLE, LOG_TO_FILE, LOG_FILE, LOG_FORMAT and LOG_CALLER.
func OptionsFromEnv() Options {
	o := Options{
		Level:      getenvDefault("LOG_LEVEL", "info"),
		Console:    strings.EqualFold(getenvDefault("LOG_TO_CONSOLE", "true"), "true"),
		Format:     strings.ToLower(strings.TrimSpace(getenvDefault("LOG_FORMAT", "legacy"))),
		ShowCaller: strings.EqualFold(getenvDefault("LOG_CALLER", "false"), "true"),
	}
	if strings.EqualFold(getenvDefault("LOG_TO_FILE", "false"), "true") {
		o.File = strings.TrimSpace(getenvDefault("LOG_FILE", filepath.Join("logs", "h2h.log")))
	}
	return o
}

// InitFromEnv builds the global logger from environment variables.
func InitFromEnv() error {
	return Init(OptionsFromEnv())
}

// Init builds the global logger and returns nothing but an error; callers use L().
func Init(o Options) error {
	logger, err := New(o)
	if err != nil {
		return err
	}
	globalLogger = logger
	return nil
}

// New builds a logger without touching the global one.
func New(o Options) (*zap.Logger, error) {
	level := parseLevel(o.Level)
	format := o.Format
	if format != "legacy" && format != "json" && format != "console" {
		format = "legacy"
	}

	var cores []zapcore.Core
	if o.Console {
		cores = append(cores, zapcore.NewCore(encoderFor(format), zapcore.AddSync(os.Stderr), level))
	}
	if o.File != "" {
		if dir := filepath.Dir(o.File); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create log dir: %w", err)
			}
		}
		f, err := os.OpenFile(o.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(encoderFor(format), zapcore.AddSync(f), level))
	}
	if len(cores) == 0 {
		return zap.NewNop(), nil
	}

	logger := zap.New(zapcore.NewTee(cores...))
	if o.ShowCaller || format == "legacy" {
		logger = logger.WithOptions(zap.AddCaller())
	}
	return logger.WithOptions(zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

func encoderFor(format string) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	switch format {
	case "json":
		cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
		return zapcore.NewJSONEncoder(cfg)
	case "console":
		return zapcore.NewConsoleEncoder(cfg)
	}
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout(time.DateTime)
	cfg.ConsoleSeparator = " | "
	return zapcore.NewConsoleEncoder(cfg)
}

// parseLevel falls back to info for anything zap does not recognise.
func parseLevel(s string) zapcore.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	lvl, err := zapcore.ParseLevel(s)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

func getenvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}
