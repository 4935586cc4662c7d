package temporal

import (
	"github.com/rs/zerolog"
	"go.temporal.io/sdk/log"
)

// LoggerAdapter routes Temporal SDK logs into zerolog.
type LoggerAdapter struct {
	logger zerolog.Logger
}

var (
	_ log.Logger     = (*LoggerAdapter)(nil)
	_ log.WithLogger = (*LoggerAdapter)(nil)
)

func NewLoggerAdapter(logger zerolog.Logger) *LoggerAdapter {
	return &LoggerAdapter{
		logger: logger.With().Str("component", "temporal-sdk").Logger(),
	}
}

func withKeyvals(ctx zerolog.Context, keyvals []interface{}) zerolog.Context {
	if len(keyvals)%2 != 0 {
		keyvals = append(keyvals, "MISSING_VALUE")
	}
	for i := 0; i < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = "INVALID_KEY"
		}
		ctx = ctx.Interface(key, keyvals[i+1])
	}
	return ctx
}

func (a *LoggerAdapter) log(level zerolog.Level, msg string, keyvals []interface{}) {
	l := a.logger
	if len(keyvals) > 0 {
		l = withKeyvals(l.With(), keyvals).Logger()
	}
	l.WithLevel(level).Msg(msg)
}

func (a *LoggerAdapter) Debug(msg string, keyvals ...interface{}) {
	a.log(zerolog.DebugLevel, msg, keyvals)
}

func (a *LoggerAdapter) Info(msg string, keyvals ...interface{}) {
	a.log(zerolog.InfoLevel, msg, keyvals)
}

func (a *LoggerAdapter) Warn(msg string, keyvals ...interface{}) {
	a.log(zerolog.WarnLevel, msg, keyvals)
}

func (a *LoggerAdapter) Error(msg string, keyvals ...interface{}) {
	a.log(zerolog.ErrorLevel, msg, keyvals)
}

// With returns a logger that adds keyvals to every entry.
func (a *LoggerAdapter) With(keyvals ...interface{}) log.Logger {
	return &LoggerAdapter{logger: withKeyvals(a.logger.With(), keyvals).Logger()}
}
