package logger

// noop discards every log call. It is the default Logger when none is
// configured.
type noop struct{}

// NewNoOp returns a Logger that discards all output.
func NewNoOp() Logger {
	return noop{}
}

func (noop) Panicln(v ...any)                 {}
func (noop) Panicf(format string, v ...any)   {}
func (noop) Fatalln(v ...any)                 {}
func (noop) Fatalf(format string, v ...any)   {}
func (noop) Errorln(v ...any)                 {}
func (noop) Errorf(format string, v ...any)   {}
func (noop) Warnln(v ...any)                  {}
func (noop) Warnf(format string, v ...any)    {}
func (noop) Infoln(v ...any)                  {}
func (noop) Infof(format string, v ...any)    {}
func (noop) Debugln(v ...any)                 {}
func (noop) Debugf(format string, v ...any)   {}
func (noop) Traceln(v ...any)                 {}
func (noop) Tracf(format string, v ...any)    {}
