// Package carton is the public entry point of the carton library. It
// wraps the process-wide runtime with the operations applications call
// directly: opening and closing the library, registering shutdown
// callbacks, checking version compatibility and tuning the free lists.
//
// Every operation initializes the library on first use, so calling Open
// explicitly is optional.
package carton

import (
	"github.com/cartonfs/carton/pkg/freelist"
	"github.com/cartonfs/carton/pkg/runtime"
	"github.com/cartonfs/carton/pkg/version"
)

// AtcloseFunc is a callback invoked while the library shuts down.
type AtcloseFunc = runtime.AtcloseFunc

// Open initializes the library. Safe to call any number of times; only
// the first call after startup or a Close does work.
func Open() error {
	return runtime.Default().Initialize()
}

// Close shuts the library down, draining registered callbacks and
// releasing every resource the runtime tracks. The library can be opened
// again afterwards.
func Close() {
	runtime.Default().Terminate()
}

// IsTerminating reports whether a shutdown is in progress. Callbacks
// registered with Atclose use this to avoid re-entering the library.
func IsTerminating() bool {
	return runtime.Default().IsTerminating()
}

// Atclose registers fn to run when the library shuts down. Callbacks run
// in reverse registration order, before any internal teardown.
func Atclose(fn AtcloseFunc, ctx any) error {
	return runtime.Default().Atclose(fn, ctx)
}

// DisableAutoCleanup prevents the library from installing its process
// exit handler. Must be called before the library initializes.
func DisableAutoCleanup() error {
	return runtime.Default().DisableAutoCleanup()
}

// CheckVersion verifies that the headers the application was compiled
// against match this library. The failure behavior follows the gate
// policy; see the version package.
func CheckVersion(major, minor, release uint) error {
	return runtime.Default().CheckVersion(major, minor, release)
}

// LibVersion returns the version of the running library.
func LibVersion() version.Triple {
	return version.LibVersion()
}

// Threadsafe reports whether the library serializes concurrent calls.
// This build always does.
func Threadsafe() bool {
	return true
}

// GarbageCollect frees every buffer held on the free lists and returns
// the number of buffers released.
func GarbageCollect() (int, error) {
	if err := Open(); err != nil {
		return 0, err
	}
	return runtime.Default().FreeLists().GarbageCollect(), nil
}

// SetFreeListLimits bounds the memory the free lists may retain. Use
// freelist.Unlimited to leave a limit unbounded.
func SetFreeListLimits(l freelist.Limits) error {
	if err := Open(); err != nil {
		return err
	}
	return runtime.Default().FreeLists().SetLimits(l)
}

// FreeListSizes reports the bytes currently held on each free list.
func FreeListSizes() (freelist.Sizes, error) {
	if err := Open(); err != nil {
		return freelist.Sizes{}, err
	}
	return runtime.Default().FreeLists().Sizes(), nil
}

// AllocateBuffer returns a buffer of the given size, reusing free-list
// memory when possible. FreeBuffer returns it to the list.
func AllocateBuffer(size int) ([]byte, error) {
	if err := Open(); err != nil {
		return nil, err
	}
	return runtime.Default().FreeLists().Get(freelist.ClassRegular, size), nil
}

// FreeBuffer hands a buffer back to the free lists.
func FreeBuffer(buf []byte) error {
	if err := Open(); err != nil {
		return err
	}
	runtime.Default().FreeLists().Put(freelist.ClassRegular, buf)
	return nil
}
