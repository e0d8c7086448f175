package rlog

import (
	"github.com/joeycumines/logiface"
)

// FromLogiface adapts a type-erased *logiface.Logger[logiface.Event] (the
// result of calling .Logger() on any concrete logiface.Logger[E], e.g. one
// built with github.com/joeycumines/logiface/stumpy) into this package's
// Logger interface, so callers already standardised on logiface can reuse
// their existing sink without this module growing a generic type
// parameter of its own.
func FromLogiface(l *logiface.Logger[logiface.Event]) Logger {
	if l == nil {
		return NoOp()
	}
	return &logifaceLogger{l: l}
}

type logifaceLogger struct {
	l *logiface.Logger[logiface.Event]
}

func toLogifaceLevel(lvl Level) logiface.Level {
	switch lvl {
	case LevelError:
		return logiface.LevelError
	case LevelWarn:
		return logiface.LevelWarning
	case LevelInfo:
		return logiface.LevelInformational
	case LevelDebug:
		return logiface.LevelDebug
	default:
		return logiface.LevelInformational
	}
}

func (x *logifaceLogger) Enabled(lvl Level) bool {
	return toLogifaceLevel(lvl) <= x.l.Level()
}

func (x *logifaceLogger) Log(e Entry) {
	b := x.l.Build(toLogifaceLevel(e.Level))
	if b == nil {
		// disabled at this level
		return
	}
	if e.Component != "" {
		b = b.Str("component", e.Component)
	}
	if e.Err != nil {
		b = b.Err(e.Err)
	}
	for k, v := range e.Fields {
		b = b.Interface(k, v)
	}
	b.Log(e.Message)
}
