package logger

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu     sync.RWMutex
	logger = newLogger(io.Discard, zerolog.InfoLevel)
	closer io.Closer
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "ts"
	zerolog.MessageFieldName = "msg"
}

// Init configures JSONL logging into log/app.log, or stdout when output is "stdout".
func Init(baseDir, output, level string) error {
	var w io.Writer
	var c io.Closer
	if strings.EqualFold(output, "stdout") {
		w = os.Stdout
	} else {
		logDir := filepath.Join(baseDir, "log")
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return err
		}
		f, err := os.OpenFile(filepath.Join(logDir, "app.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		w, c = f, f
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	mu.Lock()
	defer mu.Unlock()
	if closer != nil {
		_ = closer.Close()
	}
	logger = newLogger(w, lvl)
	closer = c
	return nil
}

func newLogger(w io.Writer, lvl zerolog.Level) zerolog.Logger {
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// SetOutput redirects log events, used by tests to capture them.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger = newLogger(w, logger.GetLevel())
}

func SetDebug(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	if enabled {
		logger = logger.Level(zerolog.DebugLevel)
		return
	}
	if logger.GetLevel() < zerolog.InfoLevel {
		logger = logger.Level(zerolog.InfoLevel)
	}
}

func Debug(msg string, fields map[string]any) {
	write(zerolog.DebugLevel, msg, fields)
}

func Info(msg string, fields map[string]any) {
	write(zerolog.InfoLevel, msg, fields)
}

func Warn(msg string, fields map[string]any) {
	write(zerolog.WarnLevel, msg, fields)
}

func Error(msg string, fields map[string]any) {
	write(zerolog.ErrorLevel, msg, fields)
}

func write(level zerolog.Level, msg string, fields map[string]any) {
	mu.RLock()
	l := logger
	mu.RUnlock()
	ev := l.WithLevel(level)
	if ev == nil {
		return
	}
	if len(fields) > 0 {
		ev = ev.Fields(fields)
	}
	ev.Msg(msg)
}

type ctxKey struct{}

// WithRequestID stores the request id attached to events of the request.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// WithRequest adds the request id of ctx to fields.
func WithRequest(ctx context.Context, fields map[string]any) map[string]any {
	id := RequestID(ctx)
	if id == "" {
		return fields
	}
	if fields == nil {
		fields = make(map[string]any, 1)
	}
	fields["request_id"] = id
	return fields
}
