package modregistry

import (
	"fmt"
	"strings"
)

// ConstraintOperator identifies how a VersionConstraint matches candidate
// versions.
type ConstraintOperator string

// Supported constraint operators.
const (
	// OpExact requires the candidate to equal the constraint version.
	OpExact ConstraintOperator = "="
	// OpGTE allows any candidate at or above the constraint version.
	OpGTE ConstraintOperator = ">="
	// OpCaret allows candidates with the same major version at or above
	// the constraint's minor.patch, e.g. ^1.2.0 admits 1.2.0 and 1.9.9
	// but not 2.0.0 or 1.1.9.
	OpCaret ConstraintOperator = "^"
	// OpTilde allows candidates with the same major.minor at or above
	// the constraint's patch, e.g. ~1.2.3 admits 1.2.9 but not 1.3.0.
	OpTilde ConstraintOperator = "~"
)

// VersionConstraint pairs an operator with a reference version. The zero
// value is not valid; construct constraints with NewConstraint or
// ParseConstraint.
type VersionConstraint struct {
	Operator ConstraintOperator
	Version  ModuleVersion
}

// NewConstraint builds a constraint from an operator and version.
func NewConstraint(op ConstraintOperator, version ModuleVersion) VersionConstraint {
	return VersionConstraint{Operator: op, Version: version}
}

// ParseConstraint parses constraint text of the form "<op><version>",
// e.g. "^1.2.0", "~2.0.1", ">=1.0.0", "=1.4.2". A bare version is treated
// as an exact match.
func ParseConstraint(text string) (VersionConstraint, error) {
	op := OpExact
	rest := text
	switch {
	case strings.HasPrefix(text, ">="):
		op, rest = OpGTE, text[2:]
	case strings.HasPrefix(text, "^"):
		op, rest = OpCaret, text[1:]
	case strings.HasPrefix(text, "~"):
		op, rest = OpTilde, text[1:]
	case strings.HasPrefix(text, "="):
		op, rest = OpExact, text[1:]
	}

	version, err := ParseVersion(strings.TrimSpace(rest))
	if err != nil {
		return VersionConstraint{}, err
	}
	return VersionConstraint{Operator: op, Version: version}, nil
}

// MustParseConstraint parses constraint text and panics on failure.
// Intended for tests and static module definitions.
func MustParseConstraint(text string) VersionConstraint {
	c, err := ParseConstraint(text)
	if err != nil {
		panic(err)
	}
	return c
}

// Satisfies reports whether the candidate version matches the constraint.
// An unrecognised operator fails with ErrUnsupportedConstraintOperator.
func (c VersionConstraint) Satisfies(candidate ModuleVersion) (bool, error) {
	switch c.Operator {
	case OpExact:
		return candidate.Equal(c.Version), nil
	case OpGTE:
		return candidate.Compare(c.Version) >= 0, nil
	case OpCaret:
		return candidate.Major == c.Version.Major &&
			candidate.Compare(c.Version) >= 0, nil
	case OpTilde:
		return candidate.Major == c.Version.Major &&
			candidate.Minor == c.Version.Minor &&
			candidate.Patch >= c.Version.Patch, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnsupportedConstraintOperator, c.Operator)
	}
}

// String renders the constraint as "<op><version>".
func (c VersionConstraint) String() string {
	return string(c.Operator) + c.Version.String()
}
