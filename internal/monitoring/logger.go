// Package monitoring holds the diagnostic logger shared by the
// respiration packages.
package monitoring

import "log"

// Logf receives every library log line. It is log.Printf unless SetLogger
// replaced it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces Logf; nil mutes logging.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Component returns a logger that prefixes every line with "[name] " and
// always routes through the current Logf, so a later SetLogger call
// still takes effect.
func Component(name string) func(format string, v ...interface{}) {
	prefix := "[" + name + "] "
	return func(format string, v ...interface{}) {
		Logf(prefix+format, v...)
	}
}
