package logger

// State is a snapshot of the reporting configuration: the active level and
// whether output is suppressed. The runtime saves a State before handing
// control to user callbacks and restores it afterward, so a callback that
// reconfigures logging cannot leak its changes back into the library.
type State struct {
	level      Level
	suppressed bool
}

// Save captures the current reporting state.
func Save() State {
	return State{
		level:      Level(currentLevel.Load()),
		suppressed: suppressed.Load(),
	}
}

// Suppress mutes all output until Restore is called with a prior State.
func Suppress() {
	suppressed.Store(true)
}

// Restore reinstates a previously saved reporting state.
func Restore(s State) {
	currentLevel.Store(int32(s.level))
	suppressed.Store(s.suppressed)
	reconfigure()
}

// Suppressed reports whether output is currently muted.
func Suppressed() bool {
	return suppressed.Load()
}
