package logging

import "go.uber.org/zap"

// NewZapServiceLogger wraps a zap.Logger so it satisfies the ServiceLogger
// interface.
func NewZapServiceLogger(log *zap.Logger) ServiceLogger {
	if log == nil {
		panic("eventwire: zap logger cannot be nil")
	}
	return &zapServiceLogger{log: log}
}

type zapServiceLogger struct {
	log *zap.Logger
}

func (z *zapServiceLogger) With(fields LogFields) ServiceLogger {
	if len(fields) == 0 {
		return z
	}
	return &zapServiceLogger{log: z.log.With(toZapFields(fields)...)}
}

func (z *zapServiceLogger) Debug(msg string, fields LogFields) {
	z.log.Debug(msg, toZapFields(fields)...)
}

func (z *zapServiceLogger) Info(msg string, fields LogFields) {
	z.log.Info(msg, toZapFields(fields)...)
}

func (z *zapServiceLogger) Warn(msg string, fields LogFields) {
	z.log.Warn(msg, toZapFields(fields)...)
}

func (z *zapServiceLogger) Error(msg string, err error, fields LogFields) {
	args := toZapFields(fields)
	if err != nil {
		args = append(args, zap.Error(err))
	}
	z.log.Error(msg, args...)
}

func toZapFields(fields LogFields) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	args := make([]zap.Field, 0, len(fields))
	for key, value := range fields {
		args = append(args, zap.Any(key, value))
	}
	return args
}
