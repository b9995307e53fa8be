package logx

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "debug"
	}
}

func (l Level) zap() zapcore.Level {
	switch l {
	case LevelInfo:
		return zapcore.InfoLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.DebugLevel
	}
}

// ParseLevel maps a level name to a Level; unknown names yield LevelWarn.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "error":
		return LevelError
	default:
		return LevelWarn
	}
}

const truncateLimit = 2 * 1024

var (
	mu       sync.RWMutex
	minLevel           = LevelWarn
	out      io.Writer = io.Discard
	secrets            = make([]string, 0)
	verbose  bool

	encoderConfig = zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
)

// SetOutput sets the destination for logs.
func SetOutput(w io.Writer) { mu.Lock(); out = w; mu.Unlock() }

// SetMinLevel sets the minimum level to emit.
func SetMinLevel(l Level) { mu.Lock(); minLevel = l; mu.Unlock() }

// SetVerbose toggles verbose output (no truncation of large fields/messages).
func SetVerbose(v bool) { mu.Lock(); verbose = v; mu.Unlock() }

// RegisterSecret adds a string to be redacted in outputs.
func RegisterSecret(s string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return
	}
	mu.Lock()
	secrets = append(secrets, s)
	mu.Unlock()
}

// RegisterSecrets adds multiple secrets for redaction.
func RegisterSecrets(list []string) {
	for _, s := range list {
		RegisterSecret(s)
	}
}

// StdlogWriter wraps writes as structured JSON lines at a fixed level.
// It applies redaction and optional truncation when verbose is disabled.
func StdlogWriter(level Level, w io.Writer) io.Writer {
	if w == nil {
		w = os.Stderr
	}
	return &stdlogWriter{level: level, w: w}
}

type stdlogWriter struct {
	level Level
	w     io.Writer
}

func (sw *stdlogWriter) Write(p []byte) (int, error) {
	lines := bytes.Split(p, []byte("\n"))
	written := 0
	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		if err := emit(sw.w, sw.level, string(line), nil); err != nil {
			return written, err
		}
		written += len(line) + 1
	}
	return written, nil
}

func output() io.Writer { mu.RLock(); defer mu.RUnlock(); return out }

// Debugf logs a debug message.
func Debugf(format string, args ...any) {
	_ = emit(output(), LevelDebug, fmt.Sprintf(format, args...), nil)
}

// Infof logs an info message.
func Infof(format string, args ...any) {
	_ = emit(output(), LevelInfo, fmt.Sprintf(format, args...), nil)
}

// Warnf logs a warning message.
func Warnf(format string, args ...any) {
	_ = emit(output(), LevelWarn, fmt.Sprintf(format, args...), nil)
}

// Errorf logs an error message.
func Errorf(format string, args ...any) {
	_ = emit(output(), LevelError, fmt.Sprintf(format, args...), nil)
}

// Debugw logs a debug message with structured fields.
func Debugw(msg string, fields ...zap.Field) { _ = emit(output(), LevelDebug, msg, fields) }

// Infow logs an info message with structured fields.
func Infow(msg string, fields ...zap.Field) { _ = emit(output(), LevelInfo, msg, fields) }

// Warnw logs a warning with structured fields.
func Warnw(msg string, fields ...zap.Field) { _ = emit(output(), LevelWarn, msg, fields) }

// Errorw logs an error with structured fields.
func Errorw(msg string, fields ...zap.Field) { _ = emit(output(), LevelError, msg, fields) }

func emit(w io.Writer, lvl Level, msg string, fields []zap.Field) error {
	mu.RLock()
	ml := minLevel
	v := verbose
	mu.RUnlock()
	if lvl < ml {
		return nil
	}
	msg = redact(msg)
	if !v {
		msg = truncate(msg, truncateLimit)
	}
	if len(fields) > 0 {
		clean := make([]zap.Field, 0, len(fields)+1)
		clean = append(clean, zap.Namespace("fields"))
		for _, f := range fields {
			if f.Type == zapcore.StringType {
				s := redact(f.String)
				if !v {
					s = truncate(s, truncateLimit)
				}
				f.String = s
			}
			clean = append(clean, f)
		}
		fields = clean
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(w), lvl.zap())
	return core.Write(zapcore.Entry{Level: lvl.zap(), Time: time.Now(), Message: msg}, fields)
}

func redact(s string) string {
	mu.RLock()
	defer mu.RUnlock()
	if len(secrets) == 0 {
		return s
	}
	out := s
	for _, sec := range secrets {
		if sec == "" {
			continue
		}
		out = strings.ReplaceAll(out, sec, "[REDACTED]")
	}
	return out
}

func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	// keep last 10 chars to aid context
	suffix := "… [truncated]"
	if limit > len(suffix)+10 {
		head := s[:limit-len(suffix)-10]
		tail := s[len(s)-10:]
		return head + suffix + tail
	}
	return s[:limit]
}
