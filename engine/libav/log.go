package libav

import (
	"context"
	"strings"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/avcompose/logger"
)

func LogLevelToAstiav(level logger.Level) astiav.LogLevel {
	switch level {
	case logger.LevelFatal:
		return astiav.LogLevelFatal
	case logger.LevelPanic:
		return astiav.LogLevelPanic
	case logger.LevelError:
		return astiav.LogLevelError
	case logger.LevelWarning:
		return astiav.LogLevelWarning
	case logger.LevelInfo:
		return astiav.LogLevelInfo
	case logger.LevelDebug:
		return astiav.LogLevelVerbose
	case logger.LevelTrace:
		return astiav.LogLevelDebug
	default:
		return astiav.LogLevelQuiet
	}
}

func LogLevelFromAstiav(level astiav.LogLevel) logger.Level {
	switch {
	case level <= astiav.LogLevelPanic:
		return logger.LevelPanic
	case level <= astiav.LogLevelError:
		return logger.LevelError
	case level <= astiav.LogLevelWarning:
		return logger.LevelWarning
	case level <= astiav.LogLevelInfo:
		return logger.LevelInfo
	case level <= astiav.LogLevelVerbose:
		return logger.LevelDebug
	default:
		return logger.LevelTrace
	}
}

// RedirectLogs makes libav log through the logger of ctx.
func RedirectLogs(ctx context.Context) {
	l := logger.FromCtx(ctx)
	astiav.SetLogLevel(LogLevelToAstiav(l.Level()))
	astiav.SetLogCallback(func(c astiav.Classer, level astiav.LogLevel, fmt, msg string) {
		var cs string
		if c != nil {
			if cl := c.Class(); cl != nil {
				cs = " - class: " + cl.String()
			}
		}
		l.Logf(LogLevelFromAstiav(level), "%s%s", strings.TrimSpace(msg), cs)
	})
}
