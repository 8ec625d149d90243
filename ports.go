package modregistry

import (
	"context"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// CatalogRepository stores catalog entries. Find methods return a nil
// entry with a nil error when no entry matches.
type CatalogRepository interface {
	// FindByName returns the entry with the given unique catalog name.
	FindByName(ctx context.Context, name string) (*CatalogEntry, error)

	// FindByID returns the entry with the given identity.
	FindByID(ctx context.Context, id ModuleID) (*CatalogEntry, error)

	// Save persists a new or mutated entry.
	Save(ctx context.Context, entry *CatalogEntry) error

	// CountActiveInstallations returns how many tenants currently hold an
	// Installed record for the module. The count crosses aggregate
	// boundaries and is a read-only derived query, never a stored field.
	CountActiveInstallations(ctx context.Context, id ModuleID) (int, error)
}

// TenantModuleRepository stores per-tenant installation records.
type TenantModuleRepository interface {
	// FindByTenantAndModule returns the tenant's current record for the
	// module, preferring a non-Uninstalled record if one exists. Nil with
	// a nil error means no record.
	FindByTenantAndModule(ctx context.Context, tenantID TenantID, moduleID ModuleID) (*TenantModuleRecord, error)

	// ListInstalledForTenant returns the tenant's Installed records.
	ListInstalledForTenant(ctx context.Context, tenantID TenantID) ([]*TenantModuleRecord, error)

	// Save persists a new or mutated record.
	Save(ctx context.Context, record *TenantModuleRecord) error
}

// InstallationJobRepository stores installation jobs. Jobs are audit
// records: they are only ever created and updated, never deleted.
type InstallationJobRepository interface {
	// FindByID returns the job with the given identity, nil with a nil
	// error when absent.
	FindByID(ctx context.Context, id JobID) (*InstallationJob, error)

	// Save persists a new or mutated job.
	Save(ctx context.Context, job *InstallationJob) error
}

// InstallationUnitOfWork persists the records and jobs created by one
// installation request as a single atomic unit: either everything is
// persisted or nothing is. Implementations must enforce the
// one-non-Uninstalled-record-per-(tenant, module) uniqueness invariant
// and surface a violation as ErrModuleAlreadyInstalling, which is how a
// lost race between two concurrent install requests is rejected.
type InstallationUnitOfWork interface {
	SaveInstallation(ctx context.Context, records []*TenantModuleRecord, jobs []*InstallationJob) error
}

// SubscriptionSnapshotProvider supplies the tenant's current plan and
// usage for entitlement checks.
type SubscriptionSnapshotProvider interface {
	CurrentSubscription(ctx context.Context, tenantID TenantID) (SubscriptionSnapshot, error)
}

// EventPublisher delivers domain events to external subscribers.
// Delivery is fire-and-forget with at-least-once semantics assumed by
// consumers. Events use the CloudEvents specification.
type EventPublisher interface {
	Publish(ctx context.Context, event cloudevents.Event) error
}

// Clock supplies the current time. Injected rather than read from the
// system clock so tests can drive time deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real system clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant. Intended for tests.
type FixedClock struct {
	Instant time.Time
}

// Now implements Clock.
func (c FixedClock) Now() time.Time { return c.Instant }

// IDGenerator produces opaque identifiers for new entities, keeping the
// core free of any particular UUID scheme.
type IDGenerator interface {
	NewID() string
}
