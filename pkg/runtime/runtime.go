// Package runtime implements the carton library's initialization and
// shutdown orchestration: the lazy one-time init gate, the version
// compatibility check, the LIFO atclose registry, and the
// dependency-ordered, fixpoint-converging termination driver.
//
// All init/terminate work is serialized under one process-wide lock; the
// protocol is designed to run start to finish inside a single critical
// section. The initialized/terminating flags are read atomically so entry
// points invoked from user callbacks mid-teardown observe the shutdown
// without blocking on that lock.
package runtime

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/google/uuid"

	"github.com/cartonfs/carton/internal/logger"
	"github.com/cartonfs/carton/pkg/freelist"
	"github.com/cartonfs/carton/pkg/idreg"
	"github.com/cartonfs/carton/pkg/metrics"
	"github.com/cartonfs/carton/pkg/version"
)

// DefaultAttempts bounds the termination fixpoint loop.
const DefaultAttempts = 100

// diagLogSize bounds the in-memory log of phases still pending when the
// attempt bound is exhausted.
const diagLogSize = 1024

var (
	// ErrNilCallback is returned when registering a nil atclose callback.
	ErrNilCallback = errors.New("runtime: nil atclose callback")

	// ErrAutoCleanupConfigured is returned by DisableAutoCleanup once
	// cleanup has already been disabled or installed.
	ErrAutoCleanupConfigured = errors.New("runtime: auto cleanup already configured")
)

// AtcloseFunc is a user callback invoked once during library shutdown,
// before any subsystem is torn down.
type AtcloseFunc func(ctx any)

type atcloseEntry struct {
	fn  AtcloseFunc
	ctx any
}

// Initializer is a named subsystem initialization routine run during the
// one-time init sequence, in registration order.
type Initializer struct {
	Name string
	Init func() error
}

// CleanupInstaller arranges for terminate to run at process exit. The
// default runtime installs a signal-driven one; independent instances
// install nothing unless configured.
type CleanupInstaller func(terminate func())

type cleanupState int

const (
	cleanupUnset cleanupState = iota
	cleanupDisabled
	cleanupInstalled
)

// Runtime owns the library-wide lifecycle state. The zero value is not
// usable; construct instances with New, or share the process-wide one via
// Default.
type Runtime struct {
	mu sync.Mutex // process-wide init/terminate lock

	initialized atomic.Bool
	terminating atomic.Bool

	cleanup        cleanupState
	cleanupInstall CleanupInstaller

	atcloseMu sync.Mutex
	atclose   []atcloseEntry

	gate         *version.Gate
	table        Table
	attempts     int
	initializers []Initializer
	abort        func(pendingPhases string)

	ids   *idreg.Registry
	pools *freelist.Pools
	ctx   *ctxStack
	debug *debugState

	metrics *metrics.RuntimeMetrics
}

// Option configures a Runtime at construction.
type Option func(*Runtime)

// WithAttempts overrides the termination attempt bound.
func WithAttempts(n int) Option {
	return func(rt *Runtime) {
		if n > 0 {
			rt.attempts = n
		}
	}
}

// WithGate supplies a version gate, replacing the default one.
func WithGate(g *version.Gate) Option {
	return func(rt *Runtime) { rt.gate = g }
}

// WithAbort replaces the stuck-teardown abort behavior. The argument is
// the bounded list of phases still pending on the final pass.
func WithAbort(fn func(pendingPhases string)) Option {
	return func(rt *Runtime) { rt.abort = fn }
}

// WithInitializer appends a named subsystem initializer to the one-time
// init sequence.
func WithInitializer(name string, fn func() error) Option {
	return func(rt *Runtime) {
		rt.initializers = append(rt.initializers, Initializer{Name: name, Init: fn})
	}
}

// WithCleanupInstaller supplies the process-exit cleanup mechanism.
func WithCleanupInstaller(install CleanupInstaller) Option {
	return func(rt *Runtime) { rt.cleanupInstall = install }
}

// New creates an independent runtime instance. Production code normally
// uses Default; independent instances exist so embedders and tests can
// run several lifecycles in one process.
func New(opts ...Option) *Runtime {
	rt := &Runtime{
		gate:     version.NewGate(),
		attempts: DefaultAttempts,
		ids:      idreg.New(),
		pools:    freelist.New(),
		ctx:      newCtxStack(),
		debug:    newDebugState(),
		metrics:  metrics.NewRuntimeMetrics(),
	}
	rt.abort = func(pendingPhases string) {
		fmt.Fprintf(os.Stderr, "carton: infinite loop closing library\n      %s\n", pendingPhases)
		os.Exit(1)
	}
	rt.table = rt.defaultTable()

	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

var (
	defaultOnce sync.Once
	defaultRT   *Runtime
)

// Default returns the process-wide runtime shared by the carton package.
func Default() *Runtime {
	defaultOnce.Do(func() {
		defaultRT = New(WithCleanupInstaller(signalCleanup))
	})
	return defaultRT
}

// signalCleanup terminates the library on SIGINT/SIGTERM and exits, the
// closest process-exit hook available to a Go library.
func signalCleanup(terminate func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-ch
		logger.Info("shutdown signal received", "signal", sig.String())
		terminate()
		signal.Stop(ch)
		os.Exit(0)
	}()
}

// Initialize performs the one-time library initialization. It is
// idempotent: every public entry point calls it, and only the first call
// per lifecycle does work. During termination it refuses to re-enter and
// returns nil.
//
// The initialized flag is set before the subsystem initializers run; an
// initializer that transitively calls back into a public entry point sees
// the library as initialized instead of recursing. A failed initializer
// leaves the flag set (no rollback) and returns its error; terminate and
// re-initialize is the recovery path.
func (rt *Runtime) Initialize() error {
	// Atomic fast path: also what re-entrant calls from initializers and
	// from callbacks during teardown hit, without touching the lock.
	if rt.initialized.Load() || rt.terminating.Load() {
		return nil
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.initialized.Load() || rt.terminating.Load() {
		return nil
	}

	// First evaluation of the gate is serialized here; afterwards it is a
	// cached no-op.
	if err := rt.gate.Check(version.Major, version.Minor, version.Release); err != nil {
		return fmt.Errorf("version check failed: %w", err)
	}

	rt.initialized.Store(true)

	// Once installed, cleanup stays installed across init/close cycles.
	if rt.cleanup == cleanupUnset {
		if rt.cleanupInstall != nil {
			rt.cleanupInstall(rt.Terminate)
		}
		rt.cleanup = cleanupInstalled
	}

	rt.debug.applyMask("-all")
	rt.debug.applyMask(os.Getenv(EnvDebug))

	for _, init := range rt.initializers {
		if err := init.Init(); err != nil {
			return fmt.Errorf("unable to initialize %s interface: %w", init.Name, err)
		}
	}

	rt.metrics.RecordInit()
	logger.Debug("carton library initialized", "version", version.String())
	return nil
}

// Terminate shuts the library down: atclose callbacks run first (LIFO),
// then the termination phases iterate until every subsystem reports
// quiescence or the attempt bound is exhausted. A hook reporting pending
// work is normal signaling, not an error; only bound exhaustion is fatal,
// in which case the phases still pending are reported and the abort
// behavior runs.
//
// Terminate on an uninitialized runtime is a no-op. Callers cannot
// distinguish partial failure except through the abort or diagnostics;
// after a settling run the runtime is re-initializable.
func (rt *Runtime) Terminate() {
	// Atomic fast path, mirroring Initialize: a callback or hook calling
	// back in mid-teardown must observe the shutdown and return instead
	// of blocking on the lock it is already inside of.
	if rt.terminating.Load() {
		return
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	if !rt.initialized.Load() || rt.terminating.Load() {
		return
	}

	rt.terminating.Store(true)

	// Synthetic execution context so hooks run under normal conventions.
	// Never popped: the context stack itself is gone by the end.
	rt.ctx.push()

	rt.drainAtclose()

	var diag pendingLog
	pending, passes := 0, 0
	for tries := 0; tries < rt.attempts; tries++ {
		passes++
		pending = 0
		diag.reset()

		for gi := range rt.table.Groups {
			if pending != 0 {
				break
			}
			for _, phase := range rt.table.Groups[gi].Phases {
				n := phase.Hook()
				rt.metrics.RecordPhasePending(phase.Name, n)
				if n > 0 {
					pending += n
					diag.add(phase.Name)
				}
			}
		}

		if pending == 0 {
			break
		}
	}

	if pending > 0 {
		logger.Error("library termination did not settle",
			"attempts", rt.attempts, "pending", pending, "phases", diag.String())
		if rt.abort != nil {
			rt.abort(diag.String())
		}
	}

	rt.debug.closeStreams()

	rt.terminating.Store(false)
	rt.initialized.Store(false)
	rt.metrics.RecordTerminate(passes)
	logger.Debug("carton library terminated", "passes", passes)
}

// drainAtclose invokes every registered atclose callback exactly once, in
// reverse registration order, each under the user-callback guard. The
// walk works on a snapshot; callbacks registered during the drain do not
// run in this cycle and are discarded when the registry resets.
func (rt *Runtime) drainAtclose() {
	rt.atcloseMu.Lock()
	stack := rt.atclose
	rt.atclose = nil
	rt.atcloseMu.Unlock()

	for i := len(stack) - 1; i >= 0; i-- {
		entry := stack[i]
		rt.callWithGuard("atclose", func() {
			entry.fn(entry.ctx)
		})
		rt.metrics.RecordAtcloseCallback()
	}

	rt.atcloseMu.Lock()
	if n := len(rt.atclose); n > 0 {
		logger.Warn("atclose callbacks registered during shutdown were discarded", "count", n)
		rt.atclose = nil
	}
	rt.atcloseMu.Unlock()
}

// Atclose registers a callback to run at library shutdown, before any
// subsystem is torn down. Callbacks run in reverse registration order.
func (rt *Runtime) Atclose(fn AtcloseFunc, ctx any) error {
	if fn == nil {
		return ErrNilCallback
	}
	if err := rt.Initialize(); err != nil {
		return err
	}

	rt.atcloseMu.Lock()
	rt.atclose = append(rt.atclose, atcloseEntry{fn: fn, ctx: ctx})
	rt.atcloseMu.Unlock()
	return nil
}

// AtcloseLen reports the number of callbacks currently registered.
func (rt *Runtime) AtcloseLen() int {
	rt.atcloseMu.Lock()
	defer rt.atcloseMu.Unlock()
	return len(rt.atclose)
}

// DisableAutoCleanup prevents the runtime from terminating itself at
// process exit. It must be called before any other entry point; once
// cleanup is installed, or after a previous call, it fails.
func (rt *Runtime) DisableAutoCleanup() error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.cleanup != cleanupUnset {
		return ErrAutoCleanupConfigured
	}
	rt.cleanup = cleanupDisabled
	return nil
}

// CheckVersion verifies the caller's expected version triple against the
// library. The evaluation is cached after the first call; a fatal
// mismatch runs the gate's abort behavior.
func (rt *Runtime) CheckVersion(major, minor, release uint) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.gate.Check(major, minor, release)
}

// IsInitialized reports whether the library is initialized.
func (rt *Runtime) IsInitialized() bool {
	return rt.initialized.Load()
}

// IsTerminating reports whether the library is shutting down. Plugin and
// connector code uses this to distinguish shutdown-triggered teardown
// from application-triggered teardown.
func (rt *Runtime) IsTerminating() bool {
	return rt.terminating.Load()
}

// PushContext establishes an execution context for a public operation and
// returns its identity.
func (rt *Runtime) PushContext() uuid.UUID {
	return rt.ctx.push()
}

// PopContext removes the most recent execution context.
func (rt *Runtime) PopContext() {
	rt.ctx.pop()
}

// IDs returns the runtime's handle registry.
func (rt *Runtime) IDs() *idreg.Registry {
	return rt.ids
}

// FreeLists returns the runtime's free-list pools.
func (rt *Runtime) FreeLists() *freelist.Pools {
	return rt.pools
}

// ApplyDebugMask enables diagnostic streams from a mask string, the same
// syntax the CARTON_DEBUG environment variable uses. Masks applied before
// Initialize are reset by it; apply configuration-sourced masks after.
func (rt *Runtime) ApplyDebugMask(mask string) {
	rt.debug.applyMask(mask)
}

// SetPhaseHook binds a termination hook to a named phase slot. It reports
// whether the phase exists. Must be called before Terminate.
func (rt *Runtime) SetPhaseHook(phase string, hook Hook) bool {
	return rt.table.SetHook(phase, hook)
}

// PhaseNames returns the termination order as groups of phase names.
func (rt *Runtime) PhaseNames() [][]string {
	return rt.table.PhaseNames()
}

// PhaseGroups returns the named groups of the termination order.
func (rt *Runtime) PhaseGroups() []Group {
	return rt.table.Groups
}

// pendingLog is the bounded diagnostic buffer naming phases that reported
// pending work on the final pass.
type pendingLog struct {
	buf       []byte
	truncated bool
}

func (l *pendingLog) reset() {
	l.buf = l.buf[:0]
	l.truncated = false
}

func (l *pendingLog) add(name string) {
	if l.truncated {
		return
	}
	need := len(name)
	if len(l.buf) > 0 {
		need++
	}
	if len(l.buf)+need+len("...") > diagLogSize {
		l.buf = append(l.buf, "..."...)
		l.truncated = true
		return
	}
	if len(l.buf) > 0 {
		l.buf = append(l.buf, ',')
	}
	l.buf = append(l.buf, name...)
}

func (l *pendingLog) String() string {
	return string(l.buf)
}
