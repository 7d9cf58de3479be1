// Package logger builds the zap logger shared by the feed daemons and adds
// a few structured event helpers.
package logger

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects level, sinks, and encoding.
type Config struct {
	Level      string   `yaml:"level"`       // debug, info, warn, error
	Outputs    []string `yaml:"outputs"`     // stdout, file
	OutputFile string   `yaml:"output_file"` // log file path
	ErrorFile  string   `yaml:"error_file"`  // separate error-only file
	Format     string   `yaml:"format"`      // json or console (stdout only)
}

// DefaultConfig returns json-to-stdout at info level.
func DefaultConfig() Config {
	return Config{
		Level:   "info",
		Outputs: []string{"stdout"},
		Format:  "json",
	}
}

// Logger wraps a zap logger plus its originating config.
type Logger struct {
	*zap.Logger
	cfg Config
}

// New builds a Logger from cfg. Unknown outputs are an error; with no sinks
// configured at all it falls back to stdout.
func New(cfg Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	cores, err := buildCores(cfg, level)
	if err != nil {
		return nil, err
	}

	zl := zap.New(zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel))
	return &Logger{Logger: zl, cfg: cfg}, nil
}

// buildCores maps each configured sink to a core. stdout honours the
// configured format; file sinks are always json so they stay
// machine-parseable regardless of what the console shows.
func buildCores(cfg Config, level zapcore.Level) ([]zapcore.Core, error) {
	var cores []zapcore.Core

	for _, out := range cfg.Outputs {
		switch out {
		case "stdout":
			cores = append(cores, zapcore.NewCore(newEncoder(cfg.Format), zapcore.Lock(os.Stdout), level))
		case "file":
			ws, err := openSink(cfg.OutputFile)
			if err != nil {
				return nil, err
			}
			cores = append(cores, zapcore.NewCore(newEncoder("json"), ws, level))
		default:
			return nil, fmt.Errorf("unknown log output %q", out)
		}
	}
	if cfg.ErrorFile != "" {
		ws, err := openSink(cfg.ErrorFile)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(newEncoder("json"), ws, zapcore.ErrorLevel))
	}
	if len(cores) == 0 {
		cores = append(cores, zapcore.NewCore(newEncoder(cfg.Format), zapcore.Lock(os.Stdout), level))
	}
	return cores, nil
}

func newEncoder(format string) zapcore.Encoder {
	if format == "console" {
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(ec)
	}
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewJSONEncoder(ec)
}

func openSink(path string) (zapcore.WriteSyncer, error) {
	if path == "" {
		return nil, fmt.Errorf("log file path not set")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log sink %s: %w", path, err)
	}
	return zapcore.AddSync(f), nil
}

// LogFeed records a feed lifecycle event (start, stop, rate change).
func (l *Logger) LogFeed(event string, fields map[string]interface{}) {
	l.Info("feed_event", eventFields(event, fields)...)
}

// LogPeer records a peer lifecycle event (connect, disconnect).
func (l *Logger) LogPeer(event, remote string, fields map[string]interface{}) {
	l.Info("peer_event", append(eventFields(event, fields), zap.String("remote", remote))...)
}

// LogError records an error with context.
func (l *Logger) LogError(err error, fields map[string]interface{}) {
	l.Error("error_event", append(eventFields("", fields), zap.Error(err))...)
}

func eventFields(event string, fields map[string]interface{}) []zap.Field {
	out := make([]zap.Field, 0, len(fields)+2)
	if event != "" {
		out = append(out, zap.String("event", event))
	}
	out = append(out, zap.String("ts", time.Now().UTC().Format(time.RFC3339Nano)))
	for k, v := range fields {
		out = append(out, zap.Any(k, v))
	}
	return out
}

// Close flushes buffered entries.
func (l *Logger) Close() error {
	return l.Sync()
}
