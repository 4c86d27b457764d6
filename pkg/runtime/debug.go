package runtime

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/cartonfs/carton/internal/logger"
)

// EnvDebug selects per-package diagnostic streams at init time.
const EnvDebug = "CARTON_DEBUG"

// debugPackages are the names accepted by the debug mask, matching the
// termination phase names plus the tracing pseudo-packages.
var debugPackages = []string{
	PhaseAttr, PhaseCache, PhaseDataset, PhaseDataspace, PhaseDatatype,
	PhaseErrors, PhaseFile, PhaseGroups, PhaseLinks, PhaseMap,
	PhaseProplist, PhaseFilter, PhaseVFD, PhaseConnector, PhasePlugin,
	PhaseIDs, PhaseFreeList, PhaseCtxStack,
}

// debugState holds the runtime debug configuration: which packages emit
// diagnostics, where they emit them, and the streams adopted from file
// descriptors that must be closed again at shutdown.
type debugState struct {
	mu      sync.Mutex
	streams map[string]*os.File // package name -> active stream
	trace   *os.File
	ttop    bool
	ttimes  bool

	// opened tracks streams adopted via fd numbers in the mask; the
	// runtime owns these and closes them during terminate.
	opened []*os.File
}

func newDebugState() *debugState {
	return &debugState{streams: make(map[string]*os.File)}
}

// applyMask parses a debug mask string. The mask holds package names
// separated by arbitrary punctuation; each name may be prefixed with '+'
// (enable, the default) or '-' (disable), and "all" selects every
// package. "trace", "ttop" and "ttimes" control call tracing. A number
// adopts that file descriptor as the stream for all following names (the
// initial stream is standard error).
func (d *debugState) applyMask(mask string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	stream := os.Stderr
	s := mask
	for len(s) > 0 {
		c := s[0]
		switch {
		case isMaskAlpha(c) || c == '-' || c == '+':
			clear := false
			if c == '-' {
				clear = true
				s = s[1:]
			} else if c == '+' {
				s = s[1:]
			}

			i := 0
			for i < len(s) && isMaskAlpha(s[i]) {
				i++
			}
			name := s[:i]
			s = s[i:]

			switch name {
			case "trace":
				if clear {
					d.trace = nil
				} else {
					d.trace = stream
				}
			case "ttop":
				d.trace = stream
				d.ttop = !clear
			case "ttimes":
				d.trace = stream
				d.ttimes = !clear
			case "all":
				for _, pkg := range debugPackages {
					d.setStream(pkg, stream, clear)
				}
			default:
				if !d.knownPackage(name) {
					logger.Warn("unknown package in debug mask ignored", "package", name)
					continue
				}
				d.setStream(name, stream, clear)
			}

		case c >= '0' && c <= '9':
			i := 0
			for i < len(s) && s[i] >= '0' && s[i] <= '9' {
				i++
			}
			fd, err := strconv.Atoi(s[:i])
			s = s[i:]
			if err != nil {
				continue
			}
			f := os.NewFile(uintptr(fd), fmt.Sprintf("carton-debug-fd%d", fd))
			if f != nil {
				stream = f
				d.opened = append(d.opened, f)
			}

		default:
			s = s[1:]
		}
	}
}

func (d *debugState) setStream(pkg string, stream *os.File, clear bool) {
	if clear {
		delete(d.streams, pkg)
	} else {
		d.streams[pkg] = stream
	}
}

func (d *debugState) knownPackage(name string) bool {
	for _, pkg := range debugPackages {
		if pkg == name {
			return true
		}
	}
	return false
}

// enabled reports whether diagnostics are on for a package.
func (d *debugState) enabled(pkg string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.streams[pkg]
	return ok
}

// printf writes a diagnostic line for a package, if enabled.
func (d *debugState) printf(pkg, format string, args ...any) {
	d.mu.Lock()
	stream := d.streams[pkg]
	d.mu.Unlock()

	if stream != nil {
		fmt.Fprintf(stream, format+"\n", args...)
	}
}

// closeStreams closes every stream adopted from an fd number and resets
// the debug configuration. Called during terminate, after the phase loop.
func (d *debugState) closeStreams() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, f := range d.opened {
		_ = f.Close()
	}
	d.opened = nil
	d.streams = make(map[string]*os.File)
	d.trace = nil
	d.ttop = false
	d.ttimes = false
}

func isMaskAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
