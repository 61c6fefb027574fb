package dbbadger

import (
	"github.com/dgraph-io/badger/v3"
	log "github.com/sirupsen/logrus"
)

type logger struct {
	entry *log.Entry
}

// NewLogger returns a badger.Logger writing through logrus. Badger's info
// messages are mostly about compactions, so they are logged at debug level.
func NewLogger() badger.Logger {
	return &logger{log.WithField("component", "badger")}
}

func (l *logger) Errorf(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

func (l *logger) Warningf(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

func (l *logger) Infof(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

func (l *logger) Debugf(format string, args ...interface{}) {
	l.entry.Tracef(format, args...)
}
