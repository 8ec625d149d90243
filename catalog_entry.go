package modregistry

import (
	"fmt"
	"regexp"
)

// ModuleID is the opaque identity of a catalog entry.
type ModuleID string

// ModuleStatus is the lifecycle status of a catalog entry.
//
// The lifecycle state machine is:
//
//	Active <-> Maintenance -> Deprecated -> Archived
//
// Archived is terminal. A direct Active -> Archived transition is also
// permitted for emergency removal.
type ModuleStatus string

// Catalog entry lifecycle statuses.
const (
	ModuleStatusActive      ModuleStatus = "active"
	ModuleStatusDeprecated  ModuleStatus = "deprecated"
	ModuleStatusMaintenance ModuleStatus = "maintenance"
	ModuleStatusArchived    ModuleStatus = "archived"
)

// ModuleDependency declares that a module requires another catalog module,
// identified by name, at a version matching the constraint. Dependencies
// link entries by name rather than by reference, so the catalog is a
// plain name-keyed graph that the resolver validates at resolution time.
type ModuleDependency struct {
	ModuleName string
	Constraint VersionConstraint
}

var moduleNamePattern = regexp.MustCompile(`^[a-z0-9_]{3,50}$`)

// CatalogEntry describes one installable feature module in the platform
// catalog. Entries are created by platform registration, mutated by
// version bumps and lifecycle transitions, and never deleted (at most
// archived).
type CatalogEntry struct {
	id                   ModuleID
	name                 string
	displayName          string
	version              ModuleVersion
	description          string
	dependencies         []ModuleDependency
	status               ModuleStatus
	configSchema         ConfigSchema
	requiresSubscription bool
}

// NewCatalogEntry validates and creates an Active catalog entry. The name
// must be lowercase alphanumeric plus underscore, 3-50 characters
// (ErrInvalidModuleName otherwise), and the dependency list must not
// reference the module's own name (ErrSelfDependencyRejected). Duplicate
// name detection is the registry's responsibility, not the entry's.
func NewCatalogEntry(id ModuleID, name, displayName string, version ModuleVersion,
	description string, dependencies []ModuleDependency, configSchema ConfigSchema,
	requiresSubscription bool) (*CatalogEntry, error) {

	if !moduleNamePattern.MatchString(name) {
		return nil, fmt.Errorf("%w: %q must be lowercase alphanumeric or underscore, 3-50 characters", ErrInvalidModuleName, name)
	}
	for _, dep := range dependencies {
		if dep.ModuleName == name {
			return nil, fmt.Errorf("%w: %q", ErrSelfDependencyRejected, name)
		}
	}

	deps := make([]ModuleDependency, len(dependencies))
	copy(deps, dependencies)

	return &CatalogEntry{
		id:                   id,
		name:                 name,
		displayName:          displayName,
		version:              version,
		description:          description,
		dependencies:         deps,
		status:               ModuleStatusActive,
		configSchema:         configSchema,
		requiresSubscription: requiresSubscription,
	}, nil
}

// ID returns the entry's opaque identity.
func (e *CatalogEntry) ID() ModuleID { return e.id }

// Name returns the entry's unique catalog name.
func (e *CatalogEntry) Name() string { return e.name }

// DisplayName returns the human-readable module name.
func (e *CatalogEntry) DisplayName() string { return e.displayName }

// Version returns the entry's current version.
func (e *CatalogEntry) Version() ModuleVersion { return e.version }

// Description returns the module's free-text description.
func (e *CatalogEntry) Description() string { return e.description }

// Dependencies returns the declared dependency list in declaration order.
func (e *CatalogEntry) Dependencies() []ModuleDependency {
	deps := make([]ModuleDependency, len(e.dependencies))
	copy(deps, e.dependencies)
	return deps
}

// Status returns the entry's lifecycle status.
func (e *CatalogEntry) Status() ModuleStatus { return e.status }

// ConfigSchema returns the declared configuration schema, nil when the
// module declares none.
func (e *CatalogEntry) ConfigSchema() ConfigSchema { return e.configSchema }

// RequiresSubscription reports whether installing the module requires an
// active paid subscription.
func (e *CatalogEntry) RequiresSubscription() bool { return e.requiresSubscription }

// BumpVersion moves the entry's version forward. Versions only ever move
// forward; a new version at or below the current one fails with
// ErrVersionDowngradeRejected. Bumping an archived entry fails with
// ErrModuleArchived.
func (e *CatalogEntry) BumpVersion(newVersion ModuleVersion) error {
	if e.status == ModuleStatusArchived {
		return fmt.Errorf("%w: %s", ErrModuleArchived, e.name)
	}
	if newVersion.Compare(e.version) <= 0 {
		return fmt.Errorf("%w: %s -> %s", ErrVersionDowngradeRejected, e.version, newVersion)
	}
	e.version = newVersion
	return nil
}

// Deprecate transitions the entry from Active or Maintenance to
// Deprecated. The caller supplies the number of tenants holding an
// Installed record for this module (a cross-aggregate count provided by
// the repository); a non-zero count fails with
// ErrModuleHasActiveInstallations.
func (e *CatalogEntry) Deprecate(activeTenantInstallCount int) error {
	if e.status == ModuleStatusArchived {
		return fmt.Errorf("%w: %s", ErrModuleArchived, e.name)
	}
	if e.status != ModuleStatusActive && e.status != ModuleStatusMaintenance {
		return fmt.Errorf("%w: cannot deprecate module in status %s", ErrInvalidTransition, e.status)
	}
	if activeTenantInstallCount > 0 {
		return fmt.Errorf("%w: %s has %d active installations", ErrModuleHasActiveInstallations, e.name, activeTenantInstallCount)
	}
	e.status = ModuleStatusDeprecated
	return nil
}

// EnterMaintenance transitions the entry from Active to Maintenance.
func (e *CatalogEntry) EnterMaintenance() error {
	if e.status == ModuleStatusArchived {
		return fmt.Errorf("%w: %s", ErrModuleArchived, e.name)
	}
	if e.status != ModuleStatusActive {
		return fmt.Errorf("%w: cannot enter maintenance from status %s", ErrInvalidTransition, e.status)
	}
	e.status = ModuleStatusMaintenance
	return nil
}

// ExitMaintenance transitions the entry from Maintenance back to Active.
func (e *CatalogEntry) ExitMaintenance() error {
	if e.status == ModuleStatusArchived {
		return fmt.Errorf("%w: %s", ErrModuleArchived, e.name)
	}
	if e.status != ModuleStatusMaintenance {
		return fmt.Errorf("%w: cannot exit maintenance from status %s", ErrInvalidTransition, e.status)
	}
	e.status = ModuleStatusActive
	return nil
}

// Archive transitions the entry to Archived. Archiving is terminal and is
// permitted from any non-archived status, including directly from Active
// for emergency removal. Archiving twice fails with ErrModuleArchived.
func (e *CatalogEntry) Archive() error {
	if e.status == ModuleStatusArchived {
		return fmt.Errorf("%w: %s", ErrModuleArchived, e.name)
	}
	e.status = ModuleStatusArchived
	return nil
}
