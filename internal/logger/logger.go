package logger

import (
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a structured logger. level is one of debug, info, warn, error
// (default info). sink is "stderr", "stdout" or "file:<path>".
func New(level, sink string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true
	cfg.Sampling = nil

	out := "stderr"
	switch {
	case sink == "" || sink == "stderr":
	case sink == "stdout":
		out = "stdout"
	case strings.HasPrefix(sink, "file:"):
		out = strings.TrimPrefix(sink, "file:")
		if out == "" {
			return nil, fmt.Errorf("log sink %q: empty file path", sink)
		}
	default:
		return nil, fmt.Errorf("unknown log sink %q", sink)
	}
	cfg.OutputPaths = []string{out}
	cfg.ErrorOutputPaths = []string{out}

	log, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return log, nil
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

var sensitive = map[string]struct{}{
	"authorization":          {},
	"cookie":                 {},
	"sec-websocket-protocol": {},
}

// SafeHeaders renders headers for logging with credentials redacted.
func SafeHeaders(h http.Header) string {
	parts := make([]string, 0, len(h))
	for k, v := range h {
		if len(v) == 0 {
			continue
		}
		val := v[0]
		if _, ok := sensitive[strings.ToLower(k)]; ok && val != "" {
			val = "<redacted>"
		}
		parts = append(parts, k+"="+val)
	}
	return strings.Join(parts, "; ")
}
