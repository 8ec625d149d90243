// Package modregistry implements the module registry core for a
// multi-tenant platform: a catalog of installable feature modules, a
// per-tenant installation lifecycle, dependency resolution with cycle
// detection, and an idempotent, retryable installation-job tracker gated
// by subscription entitlements.
//
// The registry is storage-agnostic. All persistence, event delivery,
// identity generation, and time access go through injected ports (see
// ports.go), so the core can be driven deterministically in tests with
// in-memory fakes and wired to any store that can enforce the
// one-active-record-per-tenant-and-module uniqueness invariant.
package modregistry

import (
	"fmt"
	"strconv"
	"strings"
)

// ModuleVersion is an immutable semantic version triple. Versions are
// totally ordered by lexicographic comparison of (major, minor, patch).
type ModuleVersion struct {
	Major int
	Minor int
	Patch int
}

// ParseVersion parses a version of the form "major.minor.patch" where all
// three components are non-negative integers. Any other shape fails with
// ErrMalformedVersion.
func ParseVersion(text string) (ModuleVersion, error) {
	parts := strings.Split(text, ".")
	if len(parts) != 3 {
		return ModuleVersion{}, fmt.Errorf("%w: %q", ErrMalformedVersion, text)
	}

	nums := make([]int, 3)
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || strings.ContainsAny(part, "+- ") {
			return ModuleVersion{}, fmt.Errorf("%w: %q", ErrMalformedVersion, text)
		}
		nums[i] = n
	}

	return ModuleVersion{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// MustParseVersion parses a version and panics on failure. Intended for
// tests and static module definitions.
func MustParseVersion(text string) ModuleVersion {
	v, err := ParseVersion(text)
	if err != nil {
		panic(err)
	}
	return v
}

// Compare returns -1 if v is less than other, 0 if equal, and 1 if greater.
func (v ModuleVersion) Compare(other ModuleVersion) int {
	if c := compareInt(v.Major, other.Major); c != 0 {
		return c
	}
	if c := compareInt(v.Minor, other.Minor); c != 0 {
		return c
	}
	return compareInt(v.Patch, other.Patch)
}

// LessThan reports whether v orders strictly before other.
func (v ModuleVersion) LessThan(other ModuleVersion) bool {
	return v.Compare(other) < 0
}

// Equal reports whether v and other are the same version.
func (v ModuleVersion) Equal(other ModuleVersion) bool {
	return v.Compare(other) == 0
}

// String renders the version as "major.minor.patch".
func (v ModuleVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
