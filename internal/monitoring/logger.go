// Package monitoring holds the diagnostic logging hooks shared by the
// model, the solver engines and the command line tool.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// Debugf receives per-node and per-epoch solver chatter. It is muted until
// SetVerbose(true) routes it through Logf.
var Debugf func(format string, v ...interface{}) = noop

var verbose bool

func noop(string, ...interface{}) {}

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = noop
	} else {
		Logf = f
	}
	SetVerbose(verbose)
}

// SetVerbose enables or disables Debugf output.
func SetVerbose(on bool) {
	verbose = on
	if !on {
		Debugf = noop
		return
	}
	Debugf = func(format string, v ...interface{}) { Logf("[debug] "+format, v...) }
}
