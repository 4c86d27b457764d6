package runtime

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartonfs/carton/internal/logger"
	"github.com/cartonfs/carton/pkg/version"
)

// newTestRuntime builds a runtime whose abort behavior records instead of
// exiting the process.
func newTestRuntime(t *testing.T, aborted *[]string, opts ...Option) *Runtime {
	t.Helper()
	all := append([]Option{
		WithGate(version.NewGateWithPolicy(version.PolicySilent)),
		WithAbort(func(pendingPhases string) {
			*aborted = append(*aborted, pendingPhases)
		}),
	}, opts...)
	return New(all...)
}

func TestTerminateUninitializedIsNoOp(t *testing.T) {
	t.Parallel()

	var aborted []string
	rt := newTestRuntime(t, &aborted)

	hookCalls := 0
	require.True(t, rt.SetPhaseHook(PhaseCache, func() int {
		hookCalls++
		return 0
	}))

	rt.Terminate()

	assert.False(t, rt.IsInitialized())
	assert.False(t, rt.IsTerminating())
	assert.Zero(t, hookCalls)
	assert.Empty(t, aborted)
}

func TestAtcloseLIFOOrder(t *testing.T) {
	t.Parallel()

	var aborted []string
	rt := newTestRuntime(t, &aborted)

	var order []string
	record := func(ctx any) {
		order = append(order, ctx.(string))
	}

	require.NoError(t, rt.Atclose(record, "A"))
	require.NoError(t, rt.Atclose(record, "B"))
	require.NoError(t, rt.Atclose(record, "C"))

	rt.Terminate()

	assert.Equal(t, []string{"C", "B", "A"}, order)
	assert.Empty(t, aborted)
}

func TestAtcloseCallbacksRunExactlyOnce(t *testing.T) {
	t.Parallel()

	var aborted []string
	rt := newTestRuntime(t, &aborted)

	calls := 0
	require.NoError(t, rt.Atclose(func(any) { calls++ }, nil))

	rt.Terminate()
	assert.Equal(t, 1, calls)

	// A second cycle must not replay the drained callback.
	require.NoError(t, rt.Initialize())
	rt.Terminate()
	assert.Equal(t, 1, calls)
}

func TestNilAtcloseRejected(t *testing.T) {
	t.Parallel()

	var aborted []string
	rt := newTestRuntime(t, &aborted)

	err := rt.Atclose(nil, "ctx")
	assert.ErrorIs(t, err, ErrNilCallback)
	assert.Zero(t, rt.AtcloseLen())
}

func TestReinitializeAfterTerminate(t *testing.T) {
	t.Parallel()

	var aborted []string
	initRuns := 0
	rt := newTestRuntime(t, &aborted,
		WithInitializer("counter", func() error {
			initRuns++
			return nil
		}))

	require.NoError(t, rt.Initialize())
	require.True(t, rt.IsInitialized())
	assert.Equal(t, 1, initRuns)

	rt.Terminate()
	require.False(t, rt.IsInitialized())
	require.False(t, rt.IsTerminating())

	require.NoError(t, rt.Initialize())
	assert.True(t, rt.IsInitialized())
	assert.Equal(t, 2, initRuns)
	assert.True(t, rt.gate.Checked())
}

func TestInitializeIdempotent(t *testing.T) {
	t.Parallel()

	var aborted []string
	initRuns := 0
	rt := newTestRuntime(t, &aborted,
		WithInitializer("counter", func() error {
			initRuns++
			return nil
		}))

	for i := 0; i < 5; i++ {
		require.NoError(t, rt.Initialize())
	}
	assert.Equal(t, 1, initRuns)
}

func TestConcurrentInitializeRunsInitializersOnce(t *testing.T) {
	t.Parallel()

	var aborted []string
	initRuns := 0
	rt := newTestRuntime(t, &aborted,
		WithInitializer("counter", func() error {
			initRuns++
			return nil
		}))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = rt.Initialize()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, initRuns)
}

func TestReentrantInitializerDoesNotRecurse(t *testing.T) {
	t.Parallel()

	var aborted []string
	initRuns := 0
	var rt *Runtime
	rt = newTestRuntime(t, &aborted,
		WithInitializer("reentrant", func() error {
			initRuns++
			// The initialized flag is already set, so this must be a no-op
			// instead of infinite recursion.
			return rt.Initialize()
		}))

	require.NoError(t, rt.Initialize())
	assert.Equal(t, 1, initRuns)
}

func TestPartialInitFailureLeavesFlagSet(t *testing.T) {
	t.Parallel()

	var aborted []string
	failing := errors.New("broken interface")
	fail := true
	rt := newTestRuntime(t, &aborted,
		WithInitializer("flaky", func() error {
			if fail {
				return failing
			}
			return nil
		}))

	err := rt.Initialize()
	require.ErrorIs(t, err, failing)

	// No rollback: the flag stays set and terminate is the recovery path.
	assert.True(t, rt.IsInitialized())

	rt.Terminate()
	fail = false
	require.NoError(t, rt.Initialize())
	assert.True(t, rt.IsInitialized())
}

func TestBoundExhaustionAbortsNamingPhase(t *testing.T) {
	t.Parallel()

	var aborted []string
	rt := newTestRuntime(t, &aborted, WithAttempts(5))

	hookCalls := 0
	require.True(t, rt.SetPhaseHook(PhaseCache, func() int {
		hookCalls++
		return 1
	}))

	require.NoError(t, rt.Initialize())
	rt.Terminate()

	require.Len(t, aborted, 1)
	assert.Contains(t, aborted[0], PhaseCache)
	assert.Equal(t, 5, hookCalls)
}

func TestSettleExactlyAtBound(t *testing.T) {
	t.Parallel()

	const bound = 5

	for _, tc := range []struct {
		name     string
		settleAt int
		aborts   bool
	}{
		{name: "settles on final attempt", settleAt: bound, aborts: false},
		{name: "settles one attempt too late", settleAt: bound + 1, aborts: true},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var aborted []string
			rt := newTestRuntime(t, &aborted, WithAttempts(bound))

			calls := 0
			require.True(t, rt.SetPhaseHook(PhaseVFD, func() int {
				calls++
				if calls >= tc.settleAt {
					return 0
				}
				return 1
			}))

			require.NoError(t, rt.Initialize())
			rt.Terminate()

			if tc.aborts {
				require.Len(t, aborted, 1)
				assert.Contains(t, aborted[0], PhaseVFD)
			} else {
				assert.Empty(t, aborted)
			}
		})
	}
}

func TestPendingPhaseSkipsLaterGroups(t *testing.T) {
	t.Parallel()

	var aborted []string
	rt := newTestRuntime(t, &aborted)

	var order []string
	pendingOnce := true
	require.True(t, rt.SetPhaseHook(PhaseEventSets, func() int {
		order = append(order, PhaseEventSets)
		if pendingOnce {
			pendingOnce = false
			return 1
		}
		return 0
	}))
	require.True(t, rt.SetPhaseHook(PhaseFile, func() int {
		order = append(order, PhaseFile)
		return 0
	}))

	require.NoError(t, rt.Initialize())
	rt.Terminate()

	// Pass 1: eventsets pends, file never runs. Pass 2: both settle.
	assert.Equal(t, []string{PhaseEventSets, PhaseEventSets, PhaseFile}, order)
	assert.Empty(t, aborted)
}

func TestPhasesWithinGroupAllRunDespitePending(t *testing.T) {
	t.Parallel()

	var aborted []string
	rt := newTestRuntime(t, &aborted)

	filterRuns := 0
	cachePending := true
	require.True(t, rt.SetPhaseHook(PhaseCache, func() int {
		if cachePending {
			cachePending = false
			return 1
		}
		return 0
	}))
	require.True(t, rt.SetPhaseHook(PhaseFilter, func() int {
		filterRuns++
		return 0
	}))

	require.NoError(t, rt.Initialize())
	rt.Terminate()

	// Cache and filter share a group: filter runs on the same pass even
	// though cache reported pending.
	assert.Equal(t, 2, filterRuns)
	assert.Empty(t, aborted)
}

func TestIDDrainForcesAnotherPass(t *testing.T) {
	t.Parallel()

	var aborted []string
	rt := newTestRuntime(t, &aborted)
	require.NoError(t, rt.Initialize())

	files := rt.IDs().RegisterType(nil)
	for i := 0; i < 3; i++ {
		_, err := rt.IDs().Register(files, i)
		require.NoError(t, err)
	}

	rt.Terminate()

	assert.Empty(t, aborted)
	assert.Zero(t, rt.IDs().TotalCount())
}

func TestIsTerminatingVisibleInsideCallback(t *testing.T) {
	t.Parallel()

	var aborted []string
	rt := newTestRuntime(t, &aborted)

	var sawTerminating bool
	var reinitErr error
	require.NoError(t, rt.Atclose(func(any) {
		sawTerminating = rt.IsTerminating()
		// A callback calling back into the library must observe the
		// shutdown and refuse to re-enter, without deadlocking.
		reinitErr = rt.Initialize()
	}, nil))

	rt.Terminate()

	assert.True(t, sawTerminating)
	assert.NoError(t, reinitErr)
	assert.False(t, rt.IsTerminating())
	assert.False(t, rt.IsInitialized())
}

func TestReentrantTerminateFromCallbackReturns(t *testing.T) {
	t.Parallel()

	var aborted []string
	rt := newTestRuntime(t, &aborted)

	calls := 0
	require.NoError(t, rt.Atclose(func(any) {
		calls++
		// A callback closing the library again must return immediately
		// instead of blocking on the shutdown already in progress.
		rt.Terminate()
	}, nil))

	done := make(chan struct{})
	go func() {
		rt.Terminate()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("re-entrant Terminate from atclose callback did not return")
	}

	assert.Equal(t, 1, calls)
	assert.Empty(t, aborted)
	assert.False(t, rt.IsTerminating())
	assert.False(t, rt.IsInitialized())
}

func TestAtcloseRegisteredDuringDrainIsDropped(t *testing.T) {
	t.Parallel()

	var aborted []string
	rt := newTestRuntime(t, &aborted)

	lateRan := false
	require.NoError(t, rt.Atclose(func(any) {
		_ = rt.Atclose(func(any) { lateRan = true }, nil)
	}, nil))

	rt.Terminate()

	assert.False(t, lateRan)
	assert.Zero(t, rt.AtcloseLen())
}

func TestGuardRestoresReportingState(t *testing.T) {
	var aborted []string
	rt := newTestRuntime(t, &aborted)

	require.NoError(t, rt.Atclose(func(any) {
		logger.Suppress()
	}, nil))

	rt.Terminate()

	assert.False(t, logger.Suppressed())
}

func TestPanicInCallbackDoesNotStopDrain(t *testing.T) {
	t.Parallel()

	var aborted []string
	rt := newTestRuntime(t, &aborted)

	var order []string
	require.NoError(t, rt.Atclose(func(any) { order = append(order, "first") }, nil))
	require.NoError(t, rt.Atclose(func(any) { panic("user bug") }, nil))
	require.NoError(t, rt.Atclose(func(any) { order = append(order, "last") }, nil))

	rt.Terminate()

	// LIFO: "last" runs, the panicking one is swallowed, "first" still runs.
	assert.Equal(t, []string{"last", "first"}, order)
	assert.False(t, rt.IsInitialized())
}

func TestDisableAutoCleanupOneShot(t *testing.T) {
	t.Parallel()

	rt := New(WithGate(version.NewGateWithPolicy(version.PolicySilent)))

	require.NoError(t, rt.DisableAutoCleanup())
	assert.ErrorIs(t, rt.DisableAutoCleanup(), ErrAutoCleanupConfigured)
}

func TestDisableAutoCleanupAfterInitFails(t *testing.T) {
	t.Parallel()

	rt := New(WithGate(version.NewGateWithPolicy(version.PolicySilent)))
	require.NoError(t, rt.Initialize())

	assert.ErrorIs(t, rt.DisableAutoCleanup(), ErrAutoCleanupConfigured)
}

func TestCleanupInstalledOncePerProcess(t *testing.T) {
	t.Parallel()

	installs := 0
	rt := New(
		WithGate(version.NewGateWithPolicy(version.PolicySilent)),
		WithCleanupInstaller(func(func()) { installs++ }))

	require.NoError(t, rt.Initialize())
	rt.Terminate()
	require.NoError(t, rt.Initialize())
	rt.Terminate()

	assert.Equal(t, 1, installs)
}

func TestPendingLogTruncation(t *testing.T) {
	t.Parallel()

	var l pendingLog
	for i := 0; i < 500; i++ {
		l.add(fmt.Sprintf("phase-%03d", i))
	}

	out := l.String()
	assert.LessOrEqual(t, len(out), diagLogSize)
	assert.True(t, strings.HasSuffix(out, "..."))
	assert.Contains(t, out, "phase-000")
}

func TestPendingLogReset(t *testing.T) {
	t.Parallel()

	var l pendingLog
	l.add("cache")
	l.add("vfd")
	assert.Equal(t, "cache,vfd", l.String())

	l.reset()
	assert.Empty(t, l.String())
}

func TestPhaseNamesOrdering(t *testing.T) {
	t.Parallel()

	rt := New(WithGate(version.NewGateWithPolicy(version.PolicySilent)))
	groups := rt.PhaseNames()

	require.NotEmpty(t, groups)
	assert.Equal(t, []string{PhaseEventSets}, groups[0])
	assert.Equal(t, []string{PhaseCtxStack}, groups[len(groups)-1])

	var flat []string
	for _, g := range groups {
		flat = append(flat, g...)
	}
	// The free-list drain comes after IDs, the context stack after both.
	assert.Greater(t, indexOfString(flat, PhaseFreeList), indexOfString(flat, PhaseIDs))
	assert.Greater(t, indexOfString(flat, PhaseCtxStack), indexOfString(flat, PhaseFreeList))
}

func indexOfString(haystack []string, needle string) int {
	for i, s := range haystack {
		if s == needle {
			return i
		}
	}
	return -1
}

func TestSetPhaseHookUnknownName(t *testing.T) {
	t.Parallel()

	rt := New(WithGate(version.NewGateWithPolicy(version.PolicySilent)))
	assert.False(t, rt.SetPhaseHook("no-such-phase", func() int { return 0 }))
}
