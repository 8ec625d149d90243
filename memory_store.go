package modregistry

import (
	"context"
	"fmt"
	"sync"
)

type tenantModuleKey struct {
	tenantID TenantID
	moduleID ModuleID
}

// MemoryStore is an in-memory implementation of CatalogRepository,
// TenantModuleRepository, InstallationJobRepository, and
// InstallationUnitOfWork. It enforces the same invariants a production
// store must: unique catalog names, at most one non-Uninstalled record
// per (tenant, module) pair, and all-or-nothing persistence of an
// installation batch. Suitable for tests and single-process deployments.
type MemoryStore struct {
	mu            sync.RWMutex
	entriesByID   map[ModuleID]*CatalogEntry
	entriesByName map[string]ModuleID
	records       map[tenantModuleKey]*TenantModuleRecord
	jobs          map[JobID]*InstallationJob
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entriesByID:   make(map[ModuleID]*CatalogEntry),
		entriesByName: make(map[string]ModuleID),
		records:       make(map[tenantModuleKey]*TenantModuleRecord),
		jobs:          make(map[JobID]*InstallationJob),
	}
}

// FindByName implements CatalogRepository.
func (s *MemoryStore) FindByName(_ context.Context, name string) (*CatalogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.entriesByName[name]
	if !ok {
		return nil, nil
	}
	return s.entriesByID[id], nil
}

// FindByID implements CatalogRepository.
func (s *MemoryStore) FindByID(_ context.Context, id ModuleID) (*CatalogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entriesByID[id], nil
}

// Save implements CatalogRepository. Saving an entry whose name is held
// by a different id fails with ErrDuplicateModuleName.
func (s *MemoryStore) Save(_ context.Context, entry *CatalogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existingID, ok := s.entriesByName[entry.Name()]; ok && existingID != entry.ID() {
		return fmt.Errorf("%w: %q", ErrDuplicateModuleName, entry.Name())
	}
	s.entriesByID[entry.ID()] = entry
	s.entriesByName[entry.Name()] = entry.ID()
	return nil
}

// CountActiveInstallations implements CatalogRepository. The count is
// derived from tenant records at query time, never stored.
func (s *MemoryStore) CountActiveInstallations(_ context.Context, id ModuleID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for key, record := range s.records {
		if key.moduleID == id && record.Status() == InstallStatusInstalled {
			count++
		}
	}
	return count, nil
}

// FindByTenantAndModule implements TenantModuleRepository.
func (s *MemoryStore) FindByTenantAndModule(_ context.Context, tenantID TenantID, moduleID ModuleID) (*TenantModuleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[tenantModuleKey{tenantID: tenantID, moduleID: moduleID}], nil
}

// ListInstalledForTenant implements TenantModuleRepository.
func (s *MemoryStore) ListInstalledForTenant(_ context.Context, tenantID TenantID) ([]*TenantModuleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var installed []*TenantModuleRecord
	for key, record := range s.records {
		if key.tenantID == tenantID && record.Status() == InstallStatusInstalled {
			installed = append(installed, record)
		}
	}
	return installed, nil
}

// saveRecord writes a record under the store lock, held by the caller.
func (s *MemoryStore) saveRecord(record *TenantModuleRecord) {
	s.records[tenantModuleKey{tenantID: record.TenantID(), moduleID: record.ModuleID()}] = record
}

func (s *MemoryStore) findJob(id JobID) *InstallationJob {
	return s.jobs[id]
}

// SaveInstallation implements InstallationUnitOfWork. The whole batch is
// validated before anything is written: if any record in the batch
// conflicts with a different non-Uninstalled record already stored for
// the same (tenant, module) pair, nothing is persisted and the call fails
// with ErrModuleAlreadyInstalling. This is the uniqueness constraint that
// rejects the loser of two concurrent install requests.
func (s *MemoryStore) SaveInstallation(_ context.Context, records []*TenantModuleRecord, jobs []*InstallationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range records {
		key := tenantModuleKey{tenantID: record.TenantID(), moduleID: record.ModuleID()}
		if existing, ok := s.records[key]; ok && existing != record && existing.Active() {
			return fmt.Errorf("%w: tenant %s module %s", ErrModuleAlreadyInstalling, record.TenantID(), record.ModuleID())
		}
	}

	for _, record := range records {
		s.saveRecord(record)
	}
	for _, job := range jobs {
		s.jobs[job.ID()] = job
	}
	return nil
}

// ListUnfinishedJobs implements UnfinishedJobLister for the runner's
// sweep, returning jobs still in Created or Running.
func (s *MemoryStore) ListUnfinishedJobs(_ context.Context) ([]*InstallationJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var unfinished []*InstallationJob
	for _, job := range s.jobs {
		if job.Status() == JobStatusCreated || job.Status() == JobStatusRunning {
			unfinished = append(unfinished, job)
		}
	}
	return unfinished, nil
}

// TenantModules returns the store as a TenantModuleRepository.
func (s *MemoryStore) TenantModules() TenantModuleRepository {
	return &memoryTenantModules{store: s}
}

// Jobs returns the store as an InstallationJobRepository.
func (s *MemoryStore) Jobs() InstallationJobRepository {
	return &memoryJobs{store: s}
}

type memoryTenantModules struct {
	store *MemoryStore
}

func (m *memoryTenantModules) FindByTenantAndModule(ctx context.Context, tenantID TenantID, moduleID ModuleID) (*TenantModuleRecord, error) {
	return m.store.FindByTenantAndModule(ctx, tenantID, moduleID)
}

func (m *memoryTenantModules) ListInstalledForTenant(ctx context.Context, tenantID TenantID) ([]*TenantModuleRecord, error) {
	return m.store.ListInstalledForTenant(ctx, tenantID)
}

func (m *memoryTenantModules) Save(_ context.Context, record *TenantModuleRecord) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	m.store.saveRecord(record)
	return nil
}

type memoryJobs struct {
	store *MemoryStore
}

func (m *memoryJobs) FindByID(_ context.Context, id JobID) (*InstallationJob, error) {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	return m.store.findJob(id), nil
}

func (m *memoryJobs) Save(_ context.Context, job *InstallationJob) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	m.store.jobs[job.ID()] = job
	return nil
}

// StaticSubscriptions is a SubscriptionSnapshotProvider backed by a fixed
// map. Tenants absent from the map get the zero snapshot (no
// subscription, no quota). Intended for tests and development wiring.
type StaticSubscriptions map[TenantID]SubscriptionSnapshot

// CurrentSubscription implements SubscriptionSnapshotProvider.
func (s StaticSubscriptions) CurrentSubscription(_ context.Context, tenantID TenantID) (SubscriptionSnapshot, error) {
	return s[tenantID], nil
}
