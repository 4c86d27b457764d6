package runtime

import (
	"github.com/cartonfs/carton/internal/logger"
)

// callWithGuard invokes externally supplied code with the library's
// reporting state saved around it. User callbacks are untrusted: they may
// reconfigure logging, panic, or call back into the library, and none of
// that may corrupt orchestrator invariants. The state is restored on every
// exit path, panics included; during termination a panicking callback is
// logged and swallowed so teardown continues.
func (rt *Runtime) callWithGuard(what string, fn func()) {
	state := logger.Save()
	defer func() {
		logger.Restore(state)
		if r := recover(); r != nil {
			logger.Error("panic in user callback", "callback", what, "panic", r)
		}
	}()

	fn()
}
