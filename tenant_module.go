package modregistry

import (
	"fmt"
	"sync"
	"time"
)

// TenantID represents a unique tenant identifier. Tenant IDs should be
// stable, unique strings that identify tenants throughout the platform
// lifecycle, such as customer ids, domains, or UUIDs.
type TenantID string

// InstallStatus is the per-tenant installation status of one catalog
// module.
type InstallStatus string

// Tenant module installation statuses.
const (
	// InstallStatusPending means installation was requested but no job
	// has started executing yet.
	InstallStatusPending InstallStatus = "pending"
	// InstallStatusInstalling means an installation job is driving the
	// record.
	InstallStatusInstalling InstallStatus = "installing"
	// InstallStatusInstalled means the module is usable by the tenant.
	InstallStatusInstalled InstallStatus = "installed"
	// InstallStatusFailed means the last installation attempt failed.
	// Unlike Pending, a Failed record may re-enter Installing for retry.
	InstallStatusFailed InstallStatus = "failed"
	// InstallStatusUninstalled means the module was removed for the
	// tenant. Uninstalled records do not block a fresh installation.
	InstallStatusUninstalled InstallStatus = "uninstalled"
)

// TenantModuleRecord tracks the installation state of one catalog module
// for one tenant. A record is owned exclusively by its tenant and is
// mutated only by the installation job driving it. At most one
// non-Uninstalled record may exist per (tenant, module) pair; the
// persistence layer enforces that uniqueness.
//
// Mutable state is guarded by an internal mutex: the job driving a
// record may be dispatched to more than one worker at once, and the
// workers share the same record instance when the store hands out live
// references.
type TenantModuleRecord struct {
	tenantID   TenantID
	moduleID   ModuleID
	moduleName string
	config     ConfigValues

	mu               sync.Mutex
	installedVersion *ModuleVersion
	status           InstallStatus
	installedAt      time.Time
	installedBy      string
	failureReason    string
}

// NewTenantModuleRecord creates a Pending record for a freshly requested
// installation. Callers must first verify no non-Uninstalled record
// exists for the pair.
func NewTenantModuleRecord(tenantID TenantID, moduleID ModuleID, moduleName string, config ConfigValues) *TenantModuleRecord {
	return &TenantModuleRecord{
		tenantID:   tenantID,
		moduleID:   moduleID,
		moduleName: moduleName,
		status:     InstallStatusPending,
		config:     config,
	}
}

// TenantID returns the owning tenant.
func (r *TenantModuleRecord) TenantID() TenantID { return r.tenantID }

// ModuleID returns the catalog module this record tracks.
func (r *TenantModuleRecord) ModuleID() ModuleID { return r.moduleID }

// ModuleName returns the catalog name snapshot taken at request time.
func (r *TenantModuleRecord) ModuleName() string { return r.moduleName }

// Status returns the record's installation status.
func (r *TenantModuleRecord) Status() InstallStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// InstalledVersion returns the version snapshot stamped at installation,
// or nil if the module never reached Installed.
func (r *TenantModuleRecord) InstalledVersion() *ModuleVersion {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.installedVersion == nil {
		return nil
	}
	v := *r.installedVersion
	return &v
}

// Config returns the tenant's configuration values for the module.
func (r *TenantModuleRecord) Config() ConfigValues { return r.config }

// InstalledAt returns the installation timestamp, zero until Installed.
func (r *TenantModuleRecord) InstalledAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.installedAt
}

// InstalledBy returns the actor recorded at installation.
func (r *TenantModuleRecord) InstalledBy() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.installedBy
}

// FailureReason returns the reason recorded by the last MarkFailed, empty
// otherwise.
func (r *TenantModuleRecord) FailureReason() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failureReason
}

// Active reports whether the record blocks a new installation request for
// its (tenant, module) pair.
func (r *TenantModuleRecord) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status != InstallStatusUninstalled
}

// BeginInstalling transitions the record to Installing. Valid from
// Pending (first attempt) and from Failed (retry). A record already
// Installing stays as it is, so a second worker claiming the same job is
// a no-op; any other source status fails with ErrInvalidTransition.
func (r *TenantModuleRecord) BeginInstalling() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status == InstallStatusInstalling {
		return nil
	}
	if r.status != InstallStatusPending && r.status != InstallStatusFailed {
		return fmt.Errorf("%w: cannot begin installing from %s", ErrInvalidTransition, r.status)
	}
	r.status = InstallStatusInstalling
	r.failureReason = ""
	return nil
}

// MarkInstalled transitions the record from Installing to Installed,
// stamping the installed version snapshot, the acting identity, and the
// installation time. Marking an already Installed record is a no-op,
// keeping the first stamp.
func (r *TenantModuleRecord) MarkInstalled(version ModuleVersion, installedBy string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status == InstallStatusInstalled {
		return nil
	}
	if r.status != InstallStatusInstalling {
		return fmt.Errorf("%w: cannot mark installed from %s", ErrInvalidTransition, r.status)
	}
	r.status = InstallStatusInstalled
	r.installedVersion = &version
	r.installedBy = installedBy
	r.installedAt = at
	return nil
}

// MarkFailed transitions the record from Installing to Failed with the
// given reason. A Failed record remains retryable via BeginInstalling.
// Failing an already Failed record is a no-op that keeps the first
// recorded reason.
func (r *TenantModuleRecord) MarkFailed(reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status == InstallStatusFailed {
		return nil
	}
	if r.status != InstallStatusInstalling {
		return fmt.Errorf("%w: cannot mark failed from %s", ErrInvalidTransition, r.status)
	}
	r.status = InstallStatusFailed
	r.failureReason = reason
	return nil
}

// Uninstall transitions the record from Installed or Failed to
// Uninstalled. Uninstalling an already Uninstalled record is a no-op, so
// the operation is idempotent for operators.
func (r *TenantModuleRecord) Uninstall() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status == InstallStatusUninstalled {
		return nil
	}
	if r.status != InstallStatusInstalled && r.status != InstallStatusFailed {
		return fmt.Errorf("%w: cannot uninstall from %s", ErrInvalidTransition, r.status)
	}
	r.status = InstallStatusUninstalled
	return nil
}
