//go:build !linux && !darwin

package logger

// isTerminal conservatively reports false on platforms without a probe.
func isTerminal(fd uintptr) bool {
	return false
}
