package minrec

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with minrec-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// LogIngest logs the ingest stage.
func (l *Logger) LogIngest(ctx context.Context, edges, dropped int64) {
	l.InfoContext(ctx, "ingest completed",
		"edges", edges,
		"dropped", dropped,
	)
}

// LogBotFilter logs the bot-filter stage.
func (l *Logger) LogBotFilter(ctx context.Context, usersDropped, edgesKept int64) {
	if usersDropped > 0 {
		l.InfoContext(ctx, "bot filter dropped users",
			"users_dropped", usersDropped,
			"edges_kept", edgesKept,
		)
	} else {
		l.DebugContext(ctx, "bot filter completed",
			"edges_kept", edgesKept,
		)
	}
}

// LogCompact logs the key-compaction stage.
func (l *Logger) LogCompact(ctx context.Context, users, items int64) {
	l.InfoContext(ctx, "key compaction completed",
		"distinct_users", users,
		"distinct_items", items,
	)
}

// LogRound logs one similarity round.
func (l *Logger) LogRound(ctx context.Context, round, pairs int, duration time.Duration) {
	l.DebugContext(ctx, "similarity round completed",
		"round", round,
		"pairs_scored", pairs,
		"duration", duration,
	)
}

// LogRun logs the end of a pipeline run.
func (l *Logger) LogRun(ctx context.Context, items int64, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "run failed",
			"duration", duration,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "run completed",
			"items", items,
			"duration", duration,
		)
	}
}

// LogPersist logs a persist/publish operation.
func (l *Logger) LogPersist(ctx context.Context, name string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "persist failed",
			"name", name,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "persist completed",
			"name", name,
		)
	}
}
