// Package version holds the carton library version constants and the
// compatibility gate evaluated during library initialization.
package version

import "fmt"

// Version numbers compiled into the library. Applications built against a
// different carton release pass the triple they were compiled with to
// Check; see the compatibility rules there.
const (
	Major   = 1
	Minor   = 14
	Release = 3

	// SubRelease is non-empty for develop builds ("dev1", "rc2", ...).
	// Develop releases are incompatible with everything by design.
	SubRelease = ""
)

// Info is the human-readable version banner. It must stay consistent with
// the numeric constants above; Check verifies this and warns if it drifts.
const Info = "carton library version: 1.14.3"

// releaseExceptions lists release numbers excluded from the "any release
// within the same major.minor is compatible" rule.
var releaseExceptions = []uint{0}

// Triple is a library version number.
type Triple struct {
	Major   uint `json:"major"   yaml:"major"`
	Minor   uint `json:"minor"   yaml:"minor"`
	Release uint `json:"release" yaml:"release"`
}

func (t Triple) String() string {
	return fmt.Sprintf("%d.%d.%d", t.Major, t.Minor, t.Release)
}

// LibVersion returns the version triple compiled into the library.
func LibVersion() Triple {
	return Triple{Major: Major, Minor: Minor, Release: Release}
}

// String returns the full version string including any sub-release tag.
func String() string {
	if SubRelease != "" {
		return fmt.Sprintf("%d.%d.%d-%s", Major, Minor, Release, SubRelease)
	}
	return LibVersion().String()
}
