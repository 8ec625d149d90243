package modregistry

import (
	"fmt"
)

// SubscriptionSnapshot is a point-in-time view of a tenant's plan and
// module usage, supplied by the SubscriptionSnapshotProvider port. The
// entitlement check consults only this snapshot and performs no I/O.
type SubscriptionSnapshot struct {
	// HasActiveSubscription reports whether the tenant holds a paid plan.
	HasActiveSubscription bool
	// PlanTier names the tenant's plan, informational only.
	PlanTier string
	// InstalledModuleCount is the tenant's current number of installed
	// modules.
	InstalledModuleCount int
	// ModuleQuota caps the number of modules the plan allows. Zero means
	// unlimited.
	ModuleQuota int
}

// CanInstall decides whether a tenant may install a catalog module given
// its current subscription snapshot. It is a pure decision function with
// no side effects: it fails with ErrModuleRequiresSubscription when the
// module requires a paid plan the tenant lacks, and with
// ErrInstallationQuotaExceeded when the plan's module cap is reached.
func CanInstall(subscription SubscriptionSnapshot, entry *CatalogEntry) error {
	if entry.RequiresSubscription() && !subscription.HasActiveSubscription {
		return fmt.Errorf("%w: %s", ErrModuleRequiresSubscription, entry.Name())
	}
	if subscription.ModuleQuota > 0 && subscription.InstalledModuleCount >= subscription.ModuleQuota {
		return fmt.Errorf("%w: %d of %d modules installed",
			ErrInstallationQuotaExceeded, subscription.InstalledModuleCount, subscription.ModuleQuota)
	}
	return nil
}
