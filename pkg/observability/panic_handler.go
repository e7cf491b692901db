package observability

import (
	"runtime/debug"
)

// RecoverPanic recovers a panic in a background goroutine and logs it
// with the full stack trace. Call it in a defer:
//
//	go func() {
//		defer observability.RecoverPanic(logger, "sync listener")
//		// ...
//	}()
//
// The panic is not re-raised, so the goroutine exits normally; HTTP
// handlers get their panic recovery from the request middleware instead.
func RecoverPanic(logger *Logger, context string) {
	if r := recover(); r != nil {
		logger.WithField("panic", r).
			WithField("stack", string(debug.Stack())).
			WithField("context", context).
			Error("PANIC recovered")
	}
}
