// Package logger provides a structured logging interface for buildsite.
//
// It wraps zerolog with a small API built around field maps:
//
//	log := logger.GetLogger().WithField("component", "backend")
//	log.WarnWithFields("retrying request", map[string]interface{}{
//	    "attempt": 2,
//	    "delay":   200 * time.Millisecond,
//	})
//
// Console output is colorized for development; set logging.format to "json"
// or logging.file to get JSON lines. Tests use NewTestLogger to capture
// messages or NewNopLogger to drop them.
package logger
