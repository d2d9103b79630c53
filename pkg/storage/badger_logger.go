package storage

import (
	"log"
	"strings"
)

// StdLogger adapts a standard library logger to badger's Logger interface,
// dropping messages below the configured level.
type StdLogger struct {
	l     *log.Logger
	level int
}

const (
	levelDebug = iota
	levelInfo
	levelWarn
	levelError
)

// NewStdLogger wraps l. level is one of DEBUG, INFO, WARN or ERROR; anything
// else means INFO.
func NewStdLogger(l *log.Logger, level string) *StdLogger {
	lv := levelInfo
	switch strings.ToUpper(level) {
	case "DEBUG":
		lv = levelDebug
	case "WARN", "WARNING":
		lv = levelWarn
	case "ERROR":
		lv = levelError
	}
	return &StdLogger{l: l, level: lv}
}

func (s *StdLogger) logf(lv int, tag, format string, args ...interface{}) {
	if lv < s.level {
		return
	}
	s.l.Printf("[STORAGE] "+tag+" "+strings.TrimRight(format, "\n"), args...)
}

func (s *StdLogger) Errorf(format string, args ...interface{}) {
	s.logf(levelError, "ERROR", format, args...)
}

func (s *StdLogger) Warningf(format string, args ...interface{}) {
	s.logf(levelWarn, "WARN", format, args...)
}

func (s *StdLogger) Infof(format string, args ...interface{}) {
	s.logf(levelInfo, "INFO", format, args...)
}

func (s *StdLogger) Debugf(format string, args ...interface{}) {
	s.logf(levelDebug, "DEBUG", format, args...)
}
