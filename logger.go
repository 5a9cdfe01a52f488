package avpipe

import "github.com/edaniels/golog"

// Logger is the subset of a sugared logger the framework writes to.
// golog / zap sugared loggers satisfy it directly.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

var pkgLogger Logger = golog.NewLogger("avpipe")

// SetLogger replaces the package logger used by elements, pipelines and
// workers.
func SetLogger(logger Logger) {
	if logger != nil {
		pkgLogger = logger
	}
}

// CurrentLogger returns the logger the framework writes to, for use by
// element packages.
func CurrentLogger() Logger { return pkgLogger }
