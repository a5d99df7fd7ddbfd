package log

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with a component name attached to every record.
type Logger struct {
	*slog.Logger
	// root carries every attribute except the component.
	root      *slog.Logger
	component string
}

type Config struct {
	Level     slog.Level
	Component string
	// JSON selects the JSON handler; text is the default.
	JSON    bool
	Output  io.Writer
	Handler slog.Handler
}

func DefaultConfig() Config {
	return Config{
		Level:     slog.LevelInfo,
		Component: ComponentApp,
		Output:    os.Stdout,
	}
}

func New(config Config) *Logger {
	handler := config.Handler
	if handler == nil {
		out := config.Output
		if out == nil {
			out = os.Stdout
		}
		opts := &slog.HandlerOptions{Level: config.Level}
		if config.JSON {
			handler = slog.NewJSONHandler(out, opts)
		} else {
			handler = slog.NewTextHandler(out, opts)
		}
	}

	root := slog.New(handler)
	return &Logger{
		Logger:    root.With(FieldComponent, config.Component),
		root:      root,
		component: config.Component,
	}
}

func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger:    l.Logger.With(args...),
		root:      l.root.With(args...),
		component: l.component,
	}
}

// WithComponent returns a child logger whose records carry component.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger:    l.root.With(FieldComponent, component),
		root:      l.root,
		component: component,
	}
}

// LogFields writes a record built from a LogFields set.
func (l *Logger) LogFields(ctx context.Context, level slog.Level, msg string, fields LogFields) {
	l.Logger.Log(ctx, level, msg, fields.ToSlice()...)
}

// SetDefault installs logger as the process-wide slog default.
func SetDefault(logger *Logger) {
	slog.SetDefault(logger.Logger)
}

func (l *Logger) Component() string {
	return l.component
}
