package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"wikiseed/internal/config"
)

// LogFileName is the worker log written under paths.log_dir.
const LogFileName = "wikiseed.log"

// Options describes logger construction parameters.
type Options struct {
	Level            string
	Format           string
	OutputPaths      []string
	ErrorOutputPaths []string
	Development      bool
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	handler, err := newHandler(opts)
	if err != nil {
		return nil, err
	}
	return slog.New(handler), nil
}

func newHandler(opts Options) (slog.Handler, error) {
	level := ParseLevel(opts.Level)
	levelVar := new(slog.LevelVar)
	levelVar.Set(level)

	outputs, errorOutputs := opts.OutputPaths, opts.ErrorOutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}
	if len(errorOutputs) == 0 {
		errorOutputs = []string{"stderr"}
	}
	outputWriter, err := openWriters(outputs, errorOutputs)
	if err != nil {
		return nil, err
	}

	addSource := opts.Development || level <= slog.LevelDebug

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "console"
	}

	switch format {
	case "json":
		return newJSONHandler(outputWriter, levelVar, addSource)
	case "console":
		return newConsoleHandler(outputWriter, levelVar, addSource), nil
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}
}

// NewFromConfig creates a logger using application config defaults. Terminal
// output follows logging.format while the log file under paths.log_dir is
// always JSON so it stays machine readable.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Level: "info", Format: "console"})
	}

	// Handlers run at the most verbose level any kind override asks for; the
	// configured level is then enforced on the root logger.
	handlerLevel := cfg.Logging.Level
	for _, override := range cfg.Logging.KindOverrides {
		if ParseLevel(override) < ParseLevel(handlerLevel) {
			handlerLevel = override
		}
	}
	wrap := func(handler slog.Handler) *slog.Logger {
		logger := slog.New(handler)
		if handlerLevel != cfg.Logging.Level {
			logger = WithLevelOverride(logger, ParseLevel(cfg.Logging.Level))
		}
		return logger
	}

	terminal, err := newHandler(Options{
		Level:            handlerLevel,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stdout"},
	})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Paths.LogDir) == "" {
		return wrap(terminal), nil
	}

	if err := os.MkdirAll(cfg.Paths.LogDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure log directory: %w", err)
	}
	logPath := filepath.Join(cfg.Paths.LogDir, LogFileName)
	file, err := newHandler(Options{
		Level:            handlerLevel,
		Format:           "json",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		return nil, err
	}
	return wrap(newTeeHandler(terminal, file)), nil
}

// ParseLevel maps a configured level name onto a slog level. Unknown names
// fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "fatal":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openWriters resolves the output destinations, "stdout", "stderr" or a file
// path, into one writer. Repeated destinations are opened once.
func openWriters(paths ...[]string) (io.Writer, error) {
	var writers []io.Writer
	seen := make(map[string]bool)
	for _, group := range paths {
		for _, dest := range group {
			dest = strings.TrimSpace(dest)
			if dest == "" || seen[dest] {
				continue
			}
			seen[dest] = true
			w, err := openDestination(dest)
			if err != nil {
				return nil, err
			}
			writers = append(writers, w)
		}
	}
	switch len(writers) {
	case 0:
		return os.Stdout, nil
	case 1:
		return writers[0], nil
	}
	return io.MultiWriter(writers...), nil
}

func openDestination(dest string) (io.Writer, error) {
	switch dest {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, fmt.Errorf("ensure log directory: %w", err)
	}
	file, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", dest, err)
	}
	return file, nil
}
