// Package logging provides structured logging utilities.
//
// Components take a *zap.Logger at construction and fall back to the
// package Logger, which starts as an info level console logger on stderr and
// is replaced once the CLI has read its configuration.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

var (
	// Logger is the global logger instance
	Logger *zap.Logger

	// Sugar is the sugared logger for convenience
	Sugar *zap.SugaredLogger
)

// Config contains logging configuration
type Config struct {
	// Level is the minimum log level
	Level string `json:"level" hcl:"level,optional"`

	// Format is console or json
	Format string `json:"format" hcl:"format,optional"`

	// Output is stdout, stderr or a file path
	Output string `json:"output" hcl:"output,optional"`

	Development bool `json:"development" hcl:"development,optional"`
}

// DefaultConfig logs info and above to stderr in console format.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: FormatConsole,
		Output: "stderr",
	}
}

// Initialize replaces the global logger.
func Initialize(cfg Config) error {
	logger, err := New(cfg)
	if err != nil {
		return err
	}
	Logger = logger
	Sugar = logger.Sugar()
	return nil
}

// New builds a logger without touching the globals. An unknown level or
// format is an error.
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		l, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("logging level %q: %w", cfg.Level, err)
		}
		level = l
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch strings.ToLower(cfg.Format) {
	case FormatConsole, "":
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	case FormatJSON:
		encoder = zapcore.NewJSONEncoder(encCfg)
	default:
		return nil, fmt.Errorf("unknown logging format %q", cfg.Format)
	}

	output := cfg.Output
	if output == "" {
		output = "stderr"
	}
	sink, _, err := zap.Open(output)
	if err != nil {
		return nil, fmt.Errorf("logging output %q: %w", output, err)
	}

	opts := []zap.Option{zap.AddCaller()}
	if cfg.Development {
		opts = append(opts, zap.Development(), zap.AddStacktrace(zapcore.ErrorLevel))
	}
	return zap.New(zapcore.NewCore(encoder, sink, level), opts...), nil
}

// Sync flushes the global logger
func Sync() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}

// OrDefault returns l, or the global logger when l is nil.
func OrDefault(l *zap.Logger) *zap.Logger {
	if l != nil {
		return l
	}
	if Logger != nil {
		return Logger
	}
	return zap.NewNop()
}

// ForRun scopes a logger to one pipeline run.
func ForRun(l *zap.Logger, runID string) *zap.Logger {
	return OrDefault(l).With(zap.String("run_id", runID))
}

// ForReport scopes a logger to one usage report.
func ForReport(l *zap.Logger, report string) *zap.Logger {
	return OrDefault(l).With(zap.String("report", report))
}

func init() {
	if err := Initialize(DefaultConfig()); err != nil {
		Logger = zap.NewNop()
		Sugar = Logger.Sugar()
	}
}
