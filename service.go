package modregistry

import (
	"context"
	"fmt"
)

// DefaultInstallSteps is the step plan given to installation jobs when
// the service is not configured with a custom plan. Each step names a
// real-world action the external job runner performs; the actions must
// themselves be idempotent ("create if not exists") for at-least-once
// dispatch to be safe.
var DefaultInstallSteps = []string{"apply_schema", "seed_defaults", "emit_event"}

// RegisterModuleInput carries the fields needed to register a new catalog
// module.
type RegisterModuleInput struct {
	Name                 string
	DisplayName          string
	Version              ModuleVersion
	Description          string
	Dependencies         []ModuleDependency
	ConfigSchema         ConfigSchema
	RequiresSubscription bool
}

// RegistryService orchestrates the module registry: platform-side catalog
// registration and lifecycle, tenant-side installation requests, and
// job-step bookkeeping on behalf of the external job runner.
//
// The service holds no state of its own; every collaborator is an
// injected port. Errors from collaborators and domain objects are
// propagated verbatim to the caller, never caught and swallowed.
type RegistryService struct {
	catalog       CatalogRepository
	tenantModules TenantModuleRepository
	jobs          InstallationJobRepository
	uow           InstallationUnitOfWork
	subscriptions SubscriptionSnapshotProvider
	events        EventPublisher
	clock         Clock
	ids           IDGenerator
	logger        Logger
	installSteps  []string
}

// RegistryServiceOption configures a RegistryService.
type RegistryServiceOption func(*RegistryService)

// WithClock overrides the clock, typically with a FixedClock in tests.
func WithClock(clock Clock) RegistryServiceOption {
	return func(s *RegistryService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithIDGenerator overrides the identifier generator.
func WithIDGenerator(ids IDGenerator) RegistryServiceOption {
	return func(s *RegistryService) {
		if ids != nil {
			s.ids = ids
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger Logger) RegistryServiceOption {
	return func(s *RegistryService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithInstallSteps overrides the step plan declared on new installation
// jobs.
func WithInstallSteps(steps []string) RegistryServiceOption {
	return func(s *RegistryService) {
		if len(steps) > 0 {
			declared := make([]string, len(steps))
			copy(declared, steps)
			s.installSteps = declared
		}
	}
}

// NewRegistryService wires a registry service from its ports. The unit
// of work must persist to the same store as the record and job
// repositories; MemoryStore satisfies all of them for tests and small
// deployments.
func NewRegistryService(
	catalog CatalogRepository,
	tenantModules TenantModuleRepository,
	jobs InstallationJobRepository,
	uow InstallationUnitOfWork,
	subscriptions SubscriptionSnapshotProvider,
	events EventPublisher,
	opts ...RegistryServiceOption,
) *RegistryService {
	s := &RegistryService{
		catalog:       catalog,
		tenantModules: tenantModules,
		jobs:          jobs,
		uow:           uow,
		subscriptions: subscriptions,
		events:        events,
		clock:         SystemClock{},
		ids:           UUIDGenerator{},
		logger:        NoopLogger{},
		installSteps:  DefaultInstallSteps,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterModule validates and adds a new module to the platform catalog,
// emitting EventTypeModuleRegistered on success. A name already present
// in the catalog fails with ErrDuplicateModuleName.
func (s *RegistryService) RegisterModule(ctx context.Context, input RegisterModuleInput) (ModuleID, error) {
	existing, err := s.catalog.FindByName(ctx, input.Name)
	if err != nil {
		return "", fmt.Errorf("catalog lookup failed: %w", err)
	}
	if existing != nil {
		return "", fmt.Errorf("%w: %q", ErrDuplicateModuleName, input.Name)
	}

	entry, err := NewCatalogEntry(
		ModuleID(s.ids.NewID()),
		input.Name,
		input.DisplayName,
		input.Version,
		input.Description,
		input.Dependencies,
		input.ConfigSchema,
		input.RequiresSubscription,
	)
	if err != nil {
		return "", err
	}

	if err := s.catalog.Save(ctx, entry); err != nil {
		return "", fmt.Errorf("failed to save catalog entry: %w", err)
	}

	s.logger.Info("Module registered", "module", entry.Name(), "version", entry.Version().String())
	s.publish(ctx, NewRegistryEvent(EventTypeModuleRegistered, s.clock.Now(), ModuleRegisteredData{
		ModuleID:   string(entry.ID()),
		ModuleName: entry.Name(),
		Version:    entry.Version().String(),
	}))

	return entry.ID(), nil
}

// InstallModule requests installation of the named module for a tenant.
//
// The request is checked in a fixed order: catalog lookup, entitlement
// gate, dependency resolution, then conflict detection against existing
// records. Only after all checks pass are TenantModuleRecords and
// InstallationJobs created for every module in the resolved order and
// persisted atomically through the unit of work. One
// EventTypeModuleInstallationRequested event is emitted per created job,
// after persistence succeeds. The returned job ids are in dependency
// order; step execution happens asynchronously in the job runner.
func (s *RegistryService) InstallModule(ctx context.Context, tenantID TenantID, moduleName, requestedBy string, configOverrides map[string]string) ([]JobID, error) {
	entry, err := s.catalog.FindByName(ctx, moduleName)
	if err != nil {
		return nil, fmt.Errorf("catalog lookup failed: %w", err)
	}
	if entry == nil || entry.Status() == ModuleStatusArchived {
		return nil, fmt.Errorf("%w: %q", ErrModuleNotFound, moduleName)
	}

	subscription, err := s.subscriptions.CurrentSubscription(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("subscription lookup failed: %w", err)
	}
	if err := CanInstall(subscription, entry); err != nil {
		return nil, err
	}

	overrides, err := CoerceOverrides(entry.ConfigSchema(), configOverrides)
	if err != nil {
		return nil, err
	}

	// Reject early if the tenant already has this exact module active.
	existing, err := s.tenantModules.FindByTenantAndModule(ctx, tenantID, entry.ID())
	if err != nil {
		return nil, fmt.Errorf("record lookup failed: %w", err)
	}
	if existing != nil && existing.Active() {
		switch existing.Status() {
		case InstallStatusInstalled:
			return nil, fmt.Errorf("%w: %q", ErrModuleAlreadyInstalled, moduleName)
		case InstallStatusFailed:
			// Retryable, handled below.
		default:
			return nil, fmt.Errorf("%w: %q", ErrModuleAlreadyInstalling, moduleName)
		}
	}

	installed, err := s.installedVersions(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	order, err := ResolveInstallOrder(entry, &repoCatalogLookup{ctx: ctx, repo: s.catalog}, installed)
	if err != nil {
		return nil, err
	}

	var records []*TenantModuleRecord
	var jobs []*InstallationJob
	for _, name := range order {
		planEntry := entry
		if name != entry.Name() {
			planEntry, err = s.catalog.FindByName(ctx, name)
			if err != nil {
				return nil, fmt.Errorf("catalog lookup failed: %w", err)
			}
			if planEntry == nil {
				return nil, fmt.Errorf("%w: %s", ErrMissingDependency, name)
			}
		}

		record, err := s.tenantModules.FindByTenantAndModule(ctx, tenantID, planEntry.ID())
		if err != nil {
			return nil, fmt.Errorf("record lookup failed: %w", err)
		}
		switch {
		case record == nil || !record.Active():
			var config ConfigValues
			if planEntry.ID() == entry.ID() {
				config = overrides
			}
			record = NewTenantModuleRecord(tenantID, planEntry.ID(), planEntry.Name(), config)
		case record.Status() == InstallStatusFailed:
			// Reuse the failed record; the job drives it back through
			// Installing on its first step.
		case record.Status() == InstallStatusInstalled:
			return nil, fmt.Errorf("%w: %q", ErrModuleAlreadyInstalled, name)
		default:
			return nil, fmt.Errorf("%w: %q", ErrModuleAlreadyInstalling, name)
		}

		job := NewInstallationJob(JobID(s.ids.NewID()), tenantID, planEntry.ID(), JobTypeInstall, s.installSteps, requestedBy)
		records = append(records, record)
		jobs = append(jobs, job)
	}

	if err := s.uow.SaveInstallation(ctx, records, jobs); err != nil {
		return nil, err
	}

	jobIDs := make([]JobID, 0, len(jobs))
	now := s.clock.Now()
	for _, job := range jobs {
		jobIDs = append(jobIDs, job.ID())
		s.publish(ctx, NewRegistryEvent(EventTypeModuleInstallationRequested, now, InstallationEventData{
			JobID:       string(job.ID()),
			TenantID:    string(tenantID),
			ModuleID:    string(job.ModuleID()),
			RequestedBy: requestedBy,
		}))
	}

	s.logger.Info("Module installation requested",
		"tenant", tenantID, "module", moduleName, "jobs", len(jobIDs))
	return jobIDs, nil
}

// AdvanceJobStep records completion of one step of a job, after the
// external job runner has performed the step's real-world action. The
// first advanced step also starts the job and moves the owning record to
// Installing. Recording a step that is already completed is a no-op.
func (s *RegistryService) AdvanceJobStep(ctx context.Context, jobID JobID, stepName string) error {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return err
	}

	if job.Status() == JobStatusCreated {
		if err := s.startJob(ctx, job); err != nil {
			return err
		}
	}

	if err := job.RecordStepCompletion(stepName, s.clock.Now()); err != nil {
		return err
	}
	if err := s.jobs.Save(ctx, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}

	s.logger.Debug("Job step completed", "job", jobID, "step", stepName)
	return nil
}

// FailJobStep records a failure for one step of a job. The failure is
// stored, not raised: independent steps can still be attempted, and the
// recorded failure blocks CompleteJob until a retry succeeds.
func (s *RegistryService) FailJobStep(ctx context.Context, jobID JobID, stepName, reason string) error {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return err
	}

	if job.Status() == JobStatusCreated {
		if err := s.startJob(ctx, job); err != nil {
			return err
		}
	}

	if err := job.RecordStepFailure(stepName, reason); err != nil {
		return err
	}
	if err := s.jobs.Save(ctx, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}

	s.logger.Warn("Job step failed", "job", jobID, "step", stepName, "reason", reason)
	return nil
}

// CompleteJob transitions a job to Completed once every declared step has
// a completion record and none has a failure, then marks the owning
// record Installed with the module's current version snapshot and emits
// EventTypeModuleInstallationCompleted.
func (s *RegistryService) CompleteJob(ctx context.Context, jobID JobID) error {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	if err := job.Complete(now); err != nil {
		return err
	}

	entry, err := s.catalog.FindByID(ctx, job.ModuleID())
	if err != nil {
		return fmt.Errorf("catalog lookup failed: %w", err)
	}
	if entry == nil {
		return fmt.Errorf("%w: %s", ErrModuleNotFound, job.ModuleID())
	}

	record, err := s.loadRecord(ctx, job)
	if err != nil {
		return err
	}
	if err := record.MarkInstalled(entry.Version(), job.RequestedBy(), now); err != nil {
		return err
	}

	if err := s.jobs.Save(ctx, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	if err := s.tenantModules.Save(ctx, record); err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}

	s.logger.Info("Module installation completed",
		"tenant", job.TenantID(), "module", entry.Name(), "job", jobID)
	s.publish(ctx, NewRegistryEvent(EventTypeModuleInstallationCompleted, now, InstallationEventData{
		JobID:      string(jobID),
		TenantID:   string(job.TenantID()),
		ModuleID:   string(job.ModuleID()),
		ModuleName: entry.Name(),
	}))
	return nil
}

// FailJob transitions a job from Running to Failed after the runner gives
// up on it, marks the owning record Failed with the given reason, and
// emits EventTypeModuleInstallationFailed. The job's completion ledger is
// preserved so RetryJob resumes from where it left off.
func (s *RegistryService) FailJob(ctx context.Context, jobID JobID, reason string) error {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	if err := job.MarkFailed(now); err != nil {
		return err
	}

	record, err := s.loadRecord(ctx, job)
	if err != nil {
		return err
	}
	if err := record.MarkFailed(reason); err != nil {
		return err
	}

	if err := s.jobs.Save(ctx, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	if err := s.tenantModules.Save(ctx, record); err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}

	s.logger.Warn("Module installation failed",
		"tenant", job.TenantID(), "module", job.ModuleID(), "job", jobID, "reason", reason)
	s.publish(ctx, NewRegistryEvent(EventTypeModuleInstallationFailed, now, InstallationEventData{
		JobID:    string(jobID),
		TenantID: string(job.TenantID()),
		ModuleID: string(job.ModuleID()),
		Reason:   reason,
	}))
	return nil
}

// RetryJob re-enters a Failed job into Running without clearing its
// completed steps, and moves the owning record back to Installing. The
// runner then re-attempts only the steps not yet recorded as completed.
func (s *RegistryService) RetryJob(ctx context.Context, jobID JobID) error {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return err
	}

	if err := job.Retry(s.clock.Now()); err != nil {
		return err
	}

	record, err := s.loadRecord(ctx, job)
	if err != nil {
		return err
	}
	if err := record.BeginInstalling(); err != nil {
		return err
	}

	if err := s.jobs.Save(ctx, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	if err := s.tenantModules.Save(ctx, record); err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}

	s.logger.Info("Installation job retried", "job", jobID, "remaining", job.RemainingSteps())
	return nil
}

// UninstallModule removes the named module for a tenant. The operation is
// independent of any in-flight installation job and idempotent: an
// already Uninstalled record is left untouched. A tenant with no record
// for the module fails with ErrRecordNotFound.
func (s *RegistryService) UninstallModule(ctx context.Context, tenantID TenantID, moduleName string) error {
	entry, err := s.catalog.FindByName(ctx, moduleName)
	if err != nil {
		return fmt.Errorf("catalog lookup failed: %w", err)
	}
	if entry == nil {
		return fmt.Errorf("%w: %q", ErrModuleNotFound, moduleName)
	}

	record, err := s.tenantModules.FindByTenantAndModule(ctx, tenantID, entry.ID())
	if err != nil {
		return fmt.Errorf("record lookup failed: %w", err)
	}
	if record == nil {
		return fmt.Errorf("%w: tenant %s has no record for %q", ErrRecordNotFound, tenantID, moduleName)
	}

	if err := record.Uninstall(); err != nil {
		return err
	}
	if err := s.tenantModules.Save(ctx, record); err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}

	s.logger.Info("Module uninstalled", "tenant", tenantID, "module", moduleName)
	s.publish(ctx, NewRegistryEvent(EventTypeModuleUninstalled, s.clock.Now(), InstallationEventData{
		TenantID:   string(tenantID),
		ModuleID:   string(entry.ID()),
		ModuleName: moduleName,
	}))
	return nil
}

// BumpModuleVersion moves a catalog module's version forward and emits
// EventTypeModuleVersionBumped. Downgrades fail with
// ErrVersionDowngradeRejected.
func (s *RegistryService) BumpModuleVersion(ctx context.Context, moduleID ModuleID, newVersion ModuleVersion) error {
	entry, err := s.loadEntry(ctx, moduleID)
	if err != nil {
		return err
	}

	oldVersion := entry.Version()
	if err := entry.BumpVersion(newVersion); err != nil {
		return err
	}
	if err := s.catalog.Save(ctx, entry); err != nil {
		return fmt.Errorf("failed to save catalog entry: %w", err)
	}

	s.logger.Info("Module version bumped",
		"module", entry.Name(), "from", oldVersion.String(), "to", newVersion.String())
	s.publish(ctx, NewRegistryEvent(EventTypeModuleVersionBumped, s.clock.Now(), ModuleVersionBumpedData{
		ModuleID:   string(moduleID),
		ModuleName: entry.Name(),
		OldVersion: oldVersion.String(),
		NewVersion: newVersion.String(),
	}))
	return nil
}

// DeprecateModule transitions a catalog module to Deprecated and emits
// EventTypeModuleDeprecated. Deprecation is refused with
// ErrModuleHasActiveInstallations while any tenant still holds an
// Installed record for the module.
func (s *RegistryService) DeprecateModule(ctx context.Context, moduleID ModuleID) error {
	entry, err := s.loadEntry(ctx, moduleID)
	if err != nil {
		return err
	}

	count, err := s.catalog.CountActiveInstallations(ctx, moduleID)
	if err != nil {
		return fmt.Errorf("installation count failed: %w", err)
	}
	if err := entry.Deprecate(count); err != nil {
		return err
	}
	if err := s.catalog.Save(ctx, entry); err != nil {
		return fmt.Errorf("failed to save catalog entry: %w", err)
	}

	s.logger.Info("Module deprecated", "module", entry.Name())
	s.publish(ctx, NewRegistryEvent(EventTypeModuleDeprecated, s.clock.Now(), ModuleLifecycleData{
		ModuleID:   string(moduleID),
		ModuleName: entry.Name(),
		Status:     string(ModuleStatusDeprecated),
	}))
	return nil
}

// EnterMaintenance transitions a catalog module from Active to
// Maintenance.
func (s *RegistryService) EnterMaintenance(ctx context.Context, moduleID ModuleID) error {
	entry, err := s.loadEntry(ctx, moduleID)
	if err != nil {
		return err
	}
	if err := entry.EnterMaintenance(); err != nil {
		return err
	}
	if err := s.catalog.Save(ctx, entry); err != nil {
		return fmt.Errorf("failed to save catalog entry: %w", err)
	}
	s.logger.Info("Module entered maintenance", "module", entry.Name())
	return nil
}

// ExitMaintenance transitions a catalog module from Maintenance back to
// Active.
func (s *RegistryService) ExitMaintenance(ctx context.Context, moduleID ModuleID) error {
	entry, err := s.loadEntry(ctx, moduleID)
	if err != nil {
		return err
	}
	if err := entry.ExitMaintenance(); err != nil {
		return err
	}
	if err := s.catalog.Save(ctx, entry); err != nil {
		return fmt.Errorf("failed to save catalog entry: %w", err)
	}
	s.logger.Info("Module exited maintenance", "module", entry.Name())
	return nil
}

// ArchiveModule transitions a catalog module to its terminal Archived
// status and emits EventTypeModuleArchived. Archived modules stay in the
// catalog as audit records but can no longer be installed or mutated.
func (s *RegistryService) ArchiveModule(ctx context.Context, moduleID ModuleID) error {
	entry, err := s.loadEntry(ctx, moduleID)
	if err != nil {
		return err
	}
	if err := entry.Archive(); err != nil {
		return err
	}
	if err := s.catalog.Save(ctx, entry); err != nil {
		return fmt.Errorf("failed to save catalog entry: %w", err)
	}

	s.logger.Info("Module archived", "module", entry.Name())
	s.publish(ctx, NewRegistryEvent(EventTypeModuleArchived, s.clock.Now(), ModuleLifecycleData{
		ModuleID:   string(moduleID),
		ModuleName: entry.Name(),
		Status:     string(ModuleStatusArchived),
	}))
	return nil
}

// installedVersions builds the resolver's view of the tenant's installed
// modules: name to installed version snapshot.
func (s *RegistryService) installedVersions(ctx context.Context, tenantID TenantID) (map[string]ModuleVersion, error) {
	records, err := s.tenantModules.ListInstalledForTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("installed module listing failed: %w", err)
	}

	installed := make(map[string]ModuleVersion, len(records))
	for _, record := range records {
		if version := record.InstalledVersion(); version != nil {
			installed[record.ModuleName()] = *version
		}
	}
	return installed, nil
}

// startJob moves a Created job into Running and its record into
// Installing as a pair. Called on the first step the runner reports.
func (s *RegistryService) startJob(ctx context.Context, job *InstallationJob) error {
	if err := job.Start(s.clock.Now()); err != nil {
		return err
	}
	record, err := s.loadRecord(ctx, job)
	if err != nil {
		return err
	}
	if err := record.BeginInstalling(); err != nil {
		return err
	}
	if err := s.tenantModules.Save(ctx, record); err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

func (s *RegistryService) loadJob(ctx context.Context, jobID JobID) (*InstallationJob, error) {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("job lookup failed: %w", err)
	}
	if job == nil {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return job, nil
}

func (s *RegistryService) loadRecord(ctx context.Context, job *InstallationJob) (*TenantModuleRecord, error) {
	record, err := s.tenantModules.FindByTenantAndModule(ctx, job.TenantID(), job.ModuleID())
	if err != nil {
		return nil, fmt.Errorf("record lookup failed: %w", err)
	}
	if record == nil {
		return nil, fmt.Errorf("%w: tenant %s module %s", ErrRecordNotFound, job.TenantID(), job.ModuleID())
	}
	return record, nil
}

func (s *RegistryService) loadEntry(ctx context.Context, moduleID ModuleID) (*CatalogEntry, error) {
	entry, err := s.catalog.FindByID(ctx, moduleID)
	if err != nil {
		return nil, fmt.Errorf("catalog lookup failed: %w", err)
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, moduleID)
	}
	return entry, nil
}

// publish delivers an event, logging rather than propagating failures:
// event delivery is fire-and-forget for the registry core.
func (s *RegistryService) publish(ctx context.Context, event CloudEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Error("Failed to publish event", "eventType", event.Type(), "error", err)
	}
}

// repoCatalogLookup adapts a CatalogRepository to the resolver's
// CatalogLookup, capturing the request context.
type repoCatalogLookup struct {
	ctx  context.Context
	repo CatalogRepository
}

// LookupEntry implements CatalogLookup.
func (l *repoCatalogLookup) LookupEntry(name string) (*CatalogEntry, error) {
	return l.repo.FindByName(l.ctx, name)
}
