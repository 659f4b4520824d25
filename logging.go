package scenedoc

import (
	"fmt"
	"log"
	"os"
)

type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type DefaultLogger struct {
	debug  bool
	prefix string
	out    *log.Logger
	err    *log.Logger
}

func NewDefaultLogger(prefix string, debug bool) *DefaultLogger {
	flags := log.LstdFlags | log.Lmicroseconds
	return &DefaultLogger{
		debug:  debug,
		prefix: prefix,
		out:    log.New(os.Stdout, "", flags),
		err:    log.New(os.Stderr, "", flags),
	}
}

func (l *DefaultLogger) prefixf(level string, format string, args ...any) string {
	if l.prefix != "" {
		return fmt.Sprintf("[%s] %s: %s", l.prefix, level, fmt.Sprintf(format, args...))
	}
	return fmt.Sprintf("%s: %s", level, fmt.Sprintf(format, args...))
}

func (l *DefaultLogger) Debugf(format string, args ...any) {
	if !l.debug {
		return
	}
	l.out.Print(l.prefixf("DEBUG", format, args...))
}

func (l *DefaultLogger) Infof(format string, args ...any) {
	l.out.Print(l.prefixf("INFO", format, args...))
}

func (l *DefaultLogger) Warnf(format string, args ...any) {
	l.err.Print(l.prefixf("WARN", format, args...))
}

func (l *DefaultLogger) Errorf(format string, args ...any) {
	l.err.Print(l.prefixf("ERROR", format, args...))
}

type nopLogger struct{}

// NewNopLogger returns a logger that discards everything. Components fall
// back to it when constructed with a nil Logger.
func NewNopLogger() Logger { return &nopLogger{} }

func (n *nopLogger) Debugf(format string, args ...any) {}
func (n *nopLogger) Infof(format string, args ...any)  {}
func (n *nopLogger) Warnf(format string, args ...any)  {}
func (n *nopLogger) Errorf(format string, args ...any) {}
