package logger

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// maxValueRunes bounds how much of an attribute value reaches the log.
const maxValueRunes = 64

type Logger struct {
	sugar *zap.SugaredLogger
}

// New builds a zap logger. LOG_LEVEL (debug, info, warn, error) overrides the
// default debug level of both modes.
func New(mode string) (*Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(levelFromEnv())
	base, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &Logger{sugar: base.Sugar()}, nil
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

func levelFromEnv() zapcore.Level {
	lvl := zapcore.DebugLevel
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	if raw == "" {
		return lvl
	}
	if err := lvl.UnmarshalText([]byte(raw)); err != nil {
		return zapcore.DebugLevel
	}
	return lvl
}

func (l *Logger) Sync() { _ = l.sugar.Sync() }

func (l *Logger) Debug(msg string, kv ...any) { l.sugar.Debugw(msg, scrub(kv)...) }
func (l *Logger) Info(msg string, kv ...any)  { l.sugar.Infow(msg, scrub(kv)...) }
func (l *Logger) Warn(msg string, kv ...any)  { l.sugar.Warnw(msg, scrub(kv)...) }
func (l *Logger) Error(msg string, kv ...any) { l.sugar.Errorw(msg, scrub(kv)...) }

// With returns a child logger carrying kv on every entry.
func (l *Logger) With(kv ...any) *Logger {
	return &Logger{sugar: l.sugar.With(scrub(kv)...)}
}

var (
	scrubOnce    sync.Once
	scrubEnabled bool
)

func scrubbing() bool {
	scrubOnce.Do(func() {
		switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_REDACTION_ENABLED"))) {
		case "0", "false", "no", "off":
			scrubEnabled = false
		default:
			scrubEnabled = true
		}
	})
	return scrubEnabled
}

// scrub hides store credentials and shortens attribute payloads. Keys are
// matched case-insensitively; a trailing key without a value is kept.
func scrub(kv []any) []any {
	if len(kv) == 0 || !scrubbing() {
		return kv
	}
	out := make([]any, 0, len(kv))
	for i := 0; i < len(kv); i += 2 {
		if i+1 == len(kv) {
			out = append(out, kv[i])
			break
		}
		key := fmt.Sprint(kv[i])
		out = append(out, key, scrubValue(strings.ToLower(key), kv[i+1]))
	}
	return out
}

func scrubValue(key string, val any) any {
	switch {
	case secretKey(key):
		return "[REDACTED]"
	case endpointKey(key):
		if s, ok := val.(string); ok {
			return stripUserinfo(s)
		}
	case key == "value" || strings.HasSuffix(key, "_value"):
		return truncate(val)
	}
	return val
}

func secretKey(key string) bool {
	for _, s := range []string{"password", "secret", "token", "authorization", "dsn"} {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

// endpointKey matches neo4j/redis/temporal addresses, which may embed
// credentials as userinfo.
func endpointKey(key string) bool {
	return strings.HasSuffix(key, "uri") || strings.HasSuffix(key, "url") || strings.HasSuffix(key, "addr") || strings.HasSuffix(key, "address")
}

func stripUserinfo(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	u.User = nil
	return u.String()
}

func truncate(val any) any {
	s, ok := val.(string)
	if !ok || utf8.RuneCountInString(s) <= maxValueRunes {
		return val
	}
	r := []rune(s)
	return string(r[:maxValueRunes]) + fmt.Sprintf("...(%d more)", len(r)-maxValueRunes)
}
