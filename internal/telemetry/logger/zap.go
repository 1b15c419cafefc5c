package logger

import (
	"context"
	"io"
	"log/slog"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// zapHandler is a slog.Handler that writes through a zap core.
// Level filtering and redaction follow the slog handler options.
type zapHandler struct {
	logger *zap.Logger
	level  slog.Leveler
	prefix string // group path, "a.b."
}

func newZapHandler(output io.Writer, format string, opts *slog.HandlerOptions) *zapHandler {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	enc := zapcore.NewJSONEncoder(encCfg)
	if isText(format) {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(output), zapcore.DebugLevel)
	var zopts []zap.Option
	if opts.AddSource {
		zopts = append(zopts, zap.AddCaller())
	}

	level := opts.Level
	if level == nil {
		level = slog.LevelInfo
	}
	return &zapHandler{logger: zap.New(core, zopts...), level: level}
}

func (h *zapHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *zapHandler) Handle(_ context.Context, r slog.Record) error {
	ce := h.logger.Check(zapLevel(r.Level), r.Message)
	if ce == nil {
		return nil
	}
	if !r.Time.IsZero() {
		ce.Time = r.Time
	}
	fields := make([]zap.Field, 0, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		fields = appendField(fields, h.prefix, a)
		return true
	})
	ce.Write(fields...)
	return nil
}

func (h *zapHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	fields := make([]zap.Field, 0, len(attrs))
	for _, a := range attrs {
		fields = appendField(fields, h.prefix, a)
	}
	return &zapHandler{logger: h.logger.With(fields...), level: h.level, prefix: h.prefix}
}

func (h *zapHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &zapHandler{logger: h.logger, level: h.level, prefix: h.prefix + name + "."}
}

// appendField converts one attribute, flattening groups into dotted keys.
func appendField(fields []zap.Field, prefix string, a slog.Attr) []zap.Field {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return fields
	}
	key := prefix + a.Key
	if a.Value.Kind() != slog.KindGroup {
		a = redact(a)
	}

	switch a.Value.Kind() {
	case slog.KindGroup:
		groupPrefix := prefix
		if a.Key != "" {
			groupPrefix = key + "."
		}
		for _, ga := range a.Value.Group() {
			fields = appendField(fields, groupPrefix, ga)
		}
		return fields
	case slog.KindString:
		return append(fields, zap.String(key, a.Value.String()))
	case slog.KindInt64:
		return append(fields, zap.Int64(key, a.Value.Int64()))
	case slog.KindUint64:
		return append(fields, zap.Uint64(key, a.Value.Uint64()))
	case slog.KindFloat64:
		return append(fields, zap.Float64(key, a.Value.Float64()))
	case slog.KindBool:
		return append(fields, zap.Bool(key, a.Value.Bool()))
	case slog.KindDuration:
		return append(fields, zap.Duration(key, a.Value.Duration()))
	case slog.KindTime:
		return append(fields, zap.Time(key, a.Value.Time()))
	default:
		if err, ok := a.Value.Any().(error); ok {
			return append(fields, zap.NamedError(key, err))
		}
		return append(fields, zap.Any(key, a.Value.Any()))
	}
}

func zapLevel(l slog.Level) zapcore.Level {
	switch {
	case l < slog.LevelInfo:
		return zapcore.DebugLevel
	case l < slog.LevelWarn:
		return zapcore.InfoLevel
	case l < slog.LevelError:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}
