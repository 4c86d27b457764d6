package version

import (
	"fmt"
	"os"
	"strconv"

	"github.com/cartonfs/carton/internal/logger"
)

// Policy controls how the gate reacts to an incompatible version triple.
// It is read once per gate from CARTON_DISABLE_VERSION_CHECK and cached.
type Policy int

const (
	// PolicyAbort emits diagnostics and aborts the process (default).
	PolicyAbort Policy = 0
	// PolicyWarn emits diagnostics and continues.
	PolicyWarn Policy = 1
	// PolicySilent continues without any output (2 or higher).
	PolicySilent Policy = 2
)

// EnvDisableCheck is the environment variable selecting the gate policy.
const EnvDisableCheck = "CARTON_DISABLE_VERSION_CHECK"

// MismatchKind distinguishes the two fatal compatibility failures.
type MismatchKind int

const (
	// KindVersion means the major or minor number differs.
	KindVersion MismatchKind = iota
	// KindRelease means the release number hit the exception list.
	KindRelease
)

// MismatchError reports an incompatibility between the version an
// application was built against and the library's own version.
type MismatchError struct {
	Kind     MismatchKind
	Expected Triple // what the application was built against
	Library  Triple // what this library is
}

func (e *MismatchError) Error() string {
	what := "version"
	if e.Kind == KindRelease {
		what = "release"
	}
	return fmt.Sprintf("carton library %s mismatch: application built against %s, library is %s",
		what, e.Expected, e.Library)
}

const mismatchWarning = "" +
	"Warning! *** carton library version mismatch ***\n" +
	"The carton version this application was built against does not match the\n" +
	"version of the library it is running with. Data corruption may occur if\n" +
	"the application continues. Set " + EnvDisableCheck + "=1 to continue at\n" +
	"your own risk, or 2 to suppress these messages entirely.\n"

// Gate performs the one-time compatibility check between the version an
// application expects and the version compiled into the library.
//
// A Gate is not internally synchronized: the first Check writes the cached
// result, so the caller (the runtime, under its process lock) must
// serialize the first evaluation. After that Check is a cached no-op.
type Gate struct {
	checked   bool
	policy    Policy
	policySet bool

	// Abort is invoked on a fatal mismatch under PolicyAbort. Embedding
	// applications may replace it to propagate instead of exiting; the
	// default preserves the abort behavior.
	Abort func(err *MismatchError)
}

// NewGate returns a gate with the default abort behavior and the policy
// taken from the environment on first use.
func NewGate() *Gate {
	return &Gate{
		Abort: func(err *MismatchError) {
			fmt.Fprintln(os.Stderr, "Bye...")
			os.Exit(1)
		},
	}
}

// NewGateWithPolicy returns a gate with a fixed policy, bypassing the
// environment. Used by tests and by explicit configuration.
func NewGateWithPolicy(p Policy) *Gate {
	g := NewGate()
	g.policy = p
	g.policySet = true
	return g
}

// effectivePolicy resolves and caches the gate policy.
func (g *Gate) effectivePolicy() Policy {
	if !g.policySet {
		g.policy = PolicyAbort
		if s := os.Getenv(EnvDisableCheck); s != "" {
			if n, err := strconv.Atoi(s); err == nil && n > 0 {
				g.policy = Policy(n)
			}
		}
		g.policySet = true
	}
	return g.policy
}

// Check verifies that the expected version triple is compatible with the
// library. Major and minor must match exactly. Release numbers are
// compatible unless either side is on the exception list, or this is a
// develop build. The first evaluation caches its outcome; later calls are
// no-ops.
//
// On a fatal mismatch Check invokes g.Abort and, should Abort return,
// reports the mismatch as a *MismatchError.
func (g *Gate) Check(major, minor, release uint) error {
	if g.checked {
		return nil
	}

	policy := g.effectivePolicy()
	expected := Triple{Major: major, Minor: minor, Release: release}
	library := LibVersion()

	if major != Major || minor != Minor {
		if err := g.fail(&MismatchError{Kind: KindVersion, Expected: expected, Library: library}, policy); err != nil {
			return err
		}
	} else if release != Release && releaseIncompatible(release) {
		if err := g.fail(&MismatchError{Kind: KindRelease, Expected: expected, Library: library}, policy); err != nil {
			return err
		}
	}

	g.checked = true

	// Cross-check the banner string against the numeric constants. Drift
	// here is a packaging mistake, not a compatibility problem.
	if policy == PolicyAbort {
		want := fmt.Sprintf("carton library version: %d.%d.%d", Major, Minor, Release)
		if SubRelease != "" {
			want += "-" + SubRelease
		}
		if want != Info {
			logger.Warn("library version banner is inconsistent with version constants",
				"banner", Info, "constants", String())
		}
	}

	return nil
}

// Checked reports whether the gate has already evaluated.
func (g *Gate) Checked() bool {
	return g.checked
}

// fail applies the active policy to a mismatch. Returns the error if the
// process is to stop (abort hook declined to exit), nil to continue.
func (g *Gate) fail(err *MismatchError, policy Policy) error {
	switch policy {
	case PolicyAbort:
		logger.Error(mismatchWarning,
			"application", err.Expected.String(), "library", err.Library.String())
		if g.Abort != nil {
			g.Abort(err)
		}
		return err
	case PolicyWarn:
		logger.Warn(mismatchWarning+EnvDisableCheck+" is set, continuing at your own risk",
			"application", err.Expected.String(), "library", err.Library.String())
	}
	// PolicySilent and above: continue without output.
	return nil
}

// releaseIncompatible reports whether the given expected release number is
// incompatible with the library's release.
func releaseIncompatible(release uint) bool {
	// Develop builds never interoperate across releases.
	if SubRelease != "" {
		return true
	}
	for _, exc := range releaseExceptions {
		if exc == release || exc == Release {
			return true
		}
	}
	return false
}
