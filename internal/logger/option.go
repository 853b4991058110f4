package logger

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// Format selects the log line encoding.
type Format string

const (
	// FormatConsole writes human readable colored lines.
	FormatConsole Format = "console"
	// FormatJSON writes one JSON object per line for log shippers.
	FormatJSON Format = "json"
)

// ParseFormat converts string input to a Format.
func ParseFormat(s string) (Format, bool) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatConsole, "":
		return FormatConsole, true
	case FormatJSON:
		return FormatJSON, true
	default:
		return FormatConsole, false
	}
}

// newEncoder builds the zap encoder for the given format.
//
//nolint:ireturn // zapcore.Encoder is the type zap expects.
func newEncoder(format Format) zapcore.Encoder {
	//nolint:exhaustruct // I'm okay with default encoder configuration values.
	cfg := zapcore.EncoderConfig{
		TimeKey:          "time",
		MessageKey:       "message",
		LevelKey:         "level",
		NameKey:          "logger",
		CallerKey:        "caller",
		StacktraceKey:    "stacktrace",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      zapcore.CapitalColorLevelEncoder,
		EncodeTime:       zapcore.ISO8601TimeEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeCaller:     zapcore.ShortCallerEncoder,
		EncodeName:       zapcore.FullNameEncoder,
		ConsoleSeparator: ", ",
	}

	if format == FormatJSON {
		cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
		cfg.EncodeDuration = zapcore.MillisDurationEncoder

		return zapcore.NewJSONEncoder(cfg)
	}

	return zapcore.NewConsoleEncoder(cfg)
}
