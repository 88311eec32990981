package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Config describes how the application logger should behave.
type Config struct {
	Level       string
	Format      string
	OutputPaths []string
}

var (
	mu            sync.RWMutex
	defaultLogger = slog.Default()
	closers       []io.Closer
)

// Init configures the global logger instance. It may be called once during
// startup; later calls replace the previous handler.
func Init(cfg Config) error {
	handler, err := buildHandler(cfg)
	if err != nil {
		return err
	}
	mu.Lock()
	defaultLogger = slog.New(handler)
	mu.Unlock()
	return nil
}

// L returns the configured logger, falling back to slog.Default before Init.
func L() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// Close releases any log files opened by Init.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	for _, c := range closers {
		_ = c.Close()
	}
	closers = nil
}

func buildHandler(cfg Config) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	writers := make([]io.Writer, 0, len(cfg.OutputPaths))
	if len(cfg.OutputPaths) == 0 {
		writers = append(writers, os.Stdout)
	}
	for _, out := range cfg.OutputPaths {
		switch strings.ToLower(strings.TrimSpace(out)) {
		case "", "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return nil, fmt.Errorf("创建日志目录失败: %w", err)
			}
			file, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, fmt.Errorf("打开日志文件失败: %w", err)
			}
			closers = append(closers, file)
			writers = append(writers, file)
		}
	}

	var writer io.Writer
	if len(writers) == 1 {
		writer = writers[0]
	} else {
		writer = io.MultiWriter(writers...)
	}

	if strings.EqualFold(cfg.Format, "text") {
		return slog.NewTextHandler(writer, opts), nil
	}
	return slog.NewJSONHandler(writer, opts), nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
