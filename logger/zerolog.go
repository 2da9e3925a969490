package logger

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// zlog adapts zerolog to the Logger interface.
type zlog struct {
	l zerolog.Logger
}

// New returns a Logger backed by zerolog at info level, writing to stderr.
func New() Logger {
	return NewWithLevel("info")
}

// NewWithLevel returns a zerolog-backed Logger at the given level.
// level is one of "debug", "info", "error", or "silent". Unknown values
// fall back to "info".
func NewWithLevel(level string) Logger {
	lvl := zerolog.InfoLevel
	switch level {
	case "debug":
		lvl = zerolog.DebugLevel
	case "info":
		lvl = zerolog.InfoLevel
	case "error":
		lvl = zerolog.ErrorLevel
	case "silent":
		return NewNoOp()
	}

	l := zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
	return &zlog{l: l}
}

func (z *zlog) Panicln(v ...any) { z.l.Panic().Msg(fmt.Sprint(v...)) }
func (z *zlog) Panicf(format string, v ...any) { z.l.Panic().Msgf(format, v...) }
func (z *zlog) Fatalln(v ...any) { z.l.Fatal().Msg(fmt.Sprint(v...)) }
func (z *zlog) Fatalf(format string, v ...any) { z.l.Fatal().Msgf(format, v...) }
func (z *zlog) Errorln(v ...any) { z.l.Error().Msg(fmt.Sprint(v...)) }
func (z *zlog) Errorf(format string, v ...any) { z.l.Error().Msgf(format, v...) }
func (z *zlog) Warnln(v ...any) { z.l.Warn().Msg(fmt.Sprint(v...)) }
func (z *zlog) Warnf(format string, v ...any) { z.l.Warn().Msgf(format, v...) }
func (z *zlog) Infoln(v ...any) { z.l.Info().Msg(fmt.Sprint(v...)) }
func (z *zlog) Infof(format string, v ...any) { z.l.Info().Msgf(format, v...) }
func (z *zlog) Debugln(v ...any) { z.l.Debug().Msg(fmt.Sprint(v...)) }
func (z *zlog) Debugf(format string, v ...any) { z.l.Debug().Msgf(format, v...) }
func (z *zlog) Traceln(v ...any) { z.l.Trace().Msg(fmt.Sprint(v...)) }
func (z *zlog) Tracf(format string, v ...any) { z.l.Trace().Msgf(format, v...) }
