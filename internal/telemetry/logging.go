package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogLevel читает уровень из LOG_LEVEL (debug, info, warn, error; регистр не важен).
// Неизвестное значение — info.
func LogLevel() slog.Level {
	switch strings.ToUpper(strings.TrimSpace(os.Getenv("LOG_LEVEL"))) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger создаёт логгер процесса и делает его slog.Default.
//
// LOG_FORMAT=text включает человекочитаемый вывод, иначе JSON.
// MOCAP_SERVICE_NAME добавляется атрибутом service ко всем записям.
func SetupLogger() *slog.Logger {
	return setupLogger(os.Stdout)
}

func setupLogger(w io.Writer) *slog.Logger {
	level := LogLevel()
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	if service := os.Getenv("MOCAP_SERVICE_NAME"); service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", service)})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

type loggerKey struct{}

// WithLogger кладёт логгер запроса в контекст.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext достаёт логгер из контекста или возвращает slog.Default.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// WithTaskID добавляет task_id.
func WithTaskID(logger *slog.Logger, taskID string) *slog.Logger {
	return logger.With("task_id", taskID)
}

// WithStep добавляет step.
func WithStep(logger *slog.Logger, step string) *slog.Logger {
	return logger.With("step", step)
}

// WithRequestID добавляет request_id.
func WithRequestID(logger *slog.Logger, requestID string) *slog.Logger {
	return logger.With("request_id", requestID)
}
