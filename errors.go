package modregistry

import (
	"errors"
	"fmt"
	"strings"
)

// Registry errors
var (
	// Validation errors
	ErrMalformedVersion              = errors.New("malformed version")
	ErrUnsupportedConstraintOperator = errors.New("unsupported constraint operator")
	ErrInvalidModuleName             = errors.New("invalid module name")
	ErrSelfDependencyRejected        = errors.New("module cannot depend on itself")

	// Catalog errors
	ErrModuleNotFound               = errors.New("module not found")
	ErrDuplicateModuleName          = errors.New("module name already registered")
	ErrVersionDowngradeRejected     = errors.New("version downgrade rejected")
	ErrModuleHasActiveInstallations = errors.New("module has active installations")
	ErrModuleArchived               = errors.New("module is archived")

	// Dependency resolution errors
	ErrCircularDependency        = errors.New("circular dependency detected")
	ErrMissingDependency         = errors.New("module depends on non-existent module")
	ErrDependencyVersionMismatch = errors.New("dependency version mismatch")

	// Entitlement errors
	ErrModuleRequiresSubscription = errors.New("module requires an active subscription")
	ErrInstallationQuotaExceeded  = errors.New("installation quota exceeded")

	// Installation state errors
	ErrModuleAlreadyInstalling = errors.New("module installation already in progress")
	ErrModuleAlreadyInstalled  = errors.New("module already installed")
	ErrInvalidTransition       = errors.New("invalid state transition")

	// Job errors
	ErrStepsIncomplete    = errors.New("job has unrecorded steps")
	ErrFailedStepsPresent = errors.New("job has failed steps")
	ErrUnknownJobStep     = errors.New("step not declared by job")
	ErrJobNotFound        = errors.New("installation job not found")

	// Record errors
	ErrRecordNotFound = errors.New("tenant module record not found")

	// Configuration errors
	ErrUnknownConfigKey      = errors.New("configuration key not declared in schema")
	ErrConfigValueInvalid    = errors.New("configuration value cannot be coerced to schema type")
	ErrUnsupportedSchemaType = errors.New("unsupported configuration schema type")

	// Loader errors
	ErrCatalogDirNotFound = errors.New("catalog definition directory does not exist")
)

// CircularDependencyError reports a dependency cycle reachable from the
// resolution target. Path holds the module names along the cycle, ending
// with the repeated module, e.g. [a b a].
type CircularDependencyError struct {
	Path []string
}

// Error implements the error interface.
func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCircularDependency, strings.Join(e.Path, " -> "))
}

// Unwrap allows errors.Is(err, ErrCircularDependency) to match.
func (e *CircularDependencyError) Unwrap() error {
	return ErrCircularDependency
}

// DependencyVersionError reports a dependency whose catalog or installed
// version does not satisfy the declared constraint.
type DependencyVersionError struct {
	ModuleName string
	Required   VersionConstraint
	Found      ModuleVersion
}

// Error implements the error interface.
func (e *DependencyVersionError) Error() string {
	return fmt.Sprintf("%s: %s requires %s, found %s",
		ErrDependencyVersionMismatch, e.ModuleName, e.Required, e.Found)
}

// Unwrap allows errors.Is(err, ErrDependencyVersionMismatch) to match.
func (e *DependencyVersionError) Unwrap() error {
	return ErrDependencyVersionMismatch
}
