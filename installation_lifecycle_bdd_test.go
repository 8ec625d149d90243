package modregistry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cucumber/godog"
)

// InstallationBDDTestContext holds the state shared across BDD steps.
type InstallationBDDTestContext struct {
	store    *MemoryStore
	service  *RegistryService
	runner   *JobRunner
	executed *stepRecorder
	subs     StaticSubscriptions

	pendingJobs []JobID
	lastJobs    []JobID
	lastErr     error
}

func (c *InstallationBDDTestContext) anEmptyModuleRegistry() error {
	c.store = NewMemoryStore()
	c.subs = StaticSubscriptions{}
	c.executed = newStepRecorder()
	c.service = NewRegistryService(
		c.store,
		c.store.TenantModules(),
		c.store.Jobs(),
		c.store,
		c.subs,
		&capturingPublisher{},
		WithIDGenerator(&SequentialIDGenerator{Prefix: "n"}),
	)
	c.runner = NewJobRunner(c.service, c.store.Jobs(), c.executed, WithWorkerCount(1))
	c.pendingJobs = nil
	c.lastJobs = nil
	c.lastErr = nil
	return nil
}

func (c *InstallationBDDTestContext) registerModule(name, version string, requiresSubscription bool, deps ...ModuleDependency) error {
	_, err := c.service.RegisterModule(context.Background(), RegisterModuleInput{
		Name:                 name,
		DisplayName:          name,
		Version:              MustParseVersion(version),
		Dependencies:         deps,
		RequiresSubscription: requiresSubscription,
	})
	return err
}

func (c *InstallationBDDTestContext) aRegisteredModuleAtVersion(name, version string) error {
	return c.registerModule(name, version, false)
}

func (c *InstallationBDDTestContext) aRegisteredPremiumModuleAtVersion(name, version string) error {
	return c.registerModule(name, version, true)
}

func (c *InstallationBDDTestContext) aRegisteredModuleDependingOn(name, version, depName, constraint string) error {
	parsed, err := ParseConstraint(constraint)
	if err != nil {
		return err
	}
	return c.registerModule(name, version, false, ModuleDependency{ModuleName: depName, Constraint: parsed})
}

func (c *InstallationBDDTestContext) tenantHasNoActiveSubscription(tenantID string) error {
	delete(c.subs, TenantID(tenantID))
	return nil
}

func (c *InstallationBDDTestContext) tenantRequestsInstallation(tenantID, moduleName string) error {
	jobIDs, err := c.service.InstallModule(context.Background(), TenantID(tenantID), moduleName, "admin", nil)
	c.lastErr = err
	c.lastJobs = jobIDs
	if err == nil {
		c.pendingJobs = append(c.pendingJobs, jobIDs...)
	}
	return nil
}

func (c *InstallationBDDTestContext) tenantHasModuleInstalled(tenantID, moduleName string) error {
	if err := c.tenantRequestsInstallation(tenantID, moduleName); err != nil {
		return err
	}
	if c.lastErr != nil {
		return c.lastErr
	}
	return c.theJobRunnerExecutesAllPendingJobs()
}

func (c *InstallationBDDTestContext) installationJobsShouldBeCreated(count int) error {
	if c.lastErr != nil {
		return fmt.Errorf("installation request failed: %w", c.lastErr)
	}
	if len(c.lastJobs) != count {
		return fmt.Errorf("expected %d jobs, got %d", count, len(c.lastJobs))
	}
	return nil
}

func (c *InstallationBDDTestContext) theJobsShouldTargetModulesInOrder(moduleList string) error {
	ctx := context.Background()
	wantNames := strings.Split(moduleList, ",")
	if len(c.lastJobs) != len(wantNames) {
		return fmt.Errorf("expected %d jobs, got %d", len(wantNames), len(c.lastJobs))
	}
	for i, jobID := range c.lastJobs {
		job, err := c.store.Jobs().FindByID(ctx, jobID)
		if err != nil || job == nil {
			return fmt.Errorf("job %s not found", jobID)
		}
		entry, err := c.store.FindByID(ctx, job.ModuleID())
		if err != nil || entry == nil {
			return fmt.Errorf("module %s not found", job.ModuleID())
		}
		if entry.Name() != wantNames[i] {
			return fmt.Errorf("job %d targets %q, want %q", i, entry.Name(), wantNames[i])
		}
	}
	return nil
}

func (c *InstallationBDDTestContext) theJobRunnerExecutesAllPendingJobs() error {
	ctx := context.Background()
	for _, jobID := range c.pendingJobs {
		if err := c.runner.runJob(ctx, jobID); err != nil {
			return err
		}
	}
	return nil
}

func (c *InstallationBDDTestContext) theModuleShouldBeInstalledAtVersion(moduleName, tenantID, version string) error {
	ctx := context.Background()
	entry, err := c.store.FindByName(ctx, moduleName)
	if err != nil || entry == nil {
		return fmt.Errorf("module %q not found in catalog", moduleName)
	}
	record, err := c.store.FindByTenantAndModule(ctx, TenantID(tenantID), entry.ID())
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("no record for tenant %s module %s", tenantID, moduleName)
	}
	if record.Status() != InstallStatusInstalled {
		return fmt.Errorf("record status is %s, want %s", record.Status(), InstallStatusInstalled)
	}
	installed := record.InstalledVersion()
	if installed == nil || !installed.Equal(MustParseVersion(version)) {
		return fmt.Errorf("installed version is %v, want %s", installed, version)
	}
	return nil
}

func (c *InstallationBDDTestContext) theRequestShouldFailBecauseSubscriptionRequired() error {
	if !errors.Is(c.lastErr, ErrModuleRequiresSubscription) {
		return fmt.Errorf("expected ErrModuleRequiresSubscription, got %v", c.lastErr)
	}
	return nil
}

func (c *InstallationBDDTestContext) theRequestShouldFailBecauseAlreadyInstalling() error {
	if !errors.Is(c.lastErr, ErrModuleAlreadyInstalling) {
		return fmt.Errorf("expected ErrModuleAlreadyInstalling, got %v", c.lastErr)
	}
	return nil
}

func (c *InstallationBDDTestContext) noInstallationRecordShouldExist(tenantID, moduleName string) error {
	ctx := context.Background()
	entry, err := c.store.FindByName(ctx, moduleName)
	if err != nil || entry == nil {
		return fmt.Errorf("module %q not found in catalog", moduleName)
	}
	record, err := c.store.FindByTenantAndModule(ctx, TenantID(tenantID), entry.ID())
	if err != nil {
		return err
	}
	if record != nil {
		return fmt.Errorf("unexpected record for tenant %s module %s in status %s", tenantID, moduleName, record.Status())
	}
	return nil
}

func (c *InstallationBDDTestContext) theStepFailsDuringExecution(stepName string) error {
	c.executed.failOn(stepName, errors.New("simulated step failure"))
	return nil
}

func (c *InstallationBDDTestContext) theInstallationShouldBeMarkedFailed(tenantID, moduleName string) error {
	ctx := context.Background()
	entry, err := c.store.FindByName(ctx, moduleName)
	if err != nil || entry == nil {
		return fmt.Errorf("module %q not found in catalog", moduleName)
	}
	record, err := c.store.FindByTenantAndModule(ctx, TenantID(tenantID), entry.ID())
	if err != nil {
		return err
	}
	if record == nil || record.Status() != InstallStatusFailed {
		return fmt.Errorf("expected failed record for tenant %s module %s", tenantID, moduleName)
	}
	return nil
}

func (c *InstallationBDDTestContext) theStepIsFixedAndTheJobIsRetried(stepName string) error {
	c.executed.clearFailure(stepName)
	ctx := context.Background()
	for _, jobID := range c.pendingJobs {
		job, err := c.store.Jobs().FindByID(ctx, jobID)
		if err != nil || job == nil {
			return fmt.Errorf("job %s not found", jobID)
		}
		if job.Status() != JobStatusFailed {
			continue
		}
		if err := c.service.RetryJob(ctx, jobID); err != nil {
			return err
		}
		if err := c.runner.runJob(ctx, jobID); err != nil {
			return err
		}
	}
	return nil
}

func (c *InstallationBDDTestContext) theStepShouldHaveExecutedExactlyOnce(stepName string) error {
	count := 0
	for _, executed := range c.executed.executedSteps() {
		if executed == stepName {
			count++
		}
	}
	if count != 1 {
		return fmt.Errorf("step %q executed %d times, want exactly once", stepName, count)
	}
	return nil
}

func (c *InstallationBDDTestContext) thePlatformOperatorDeprecates(moduleName string) error {
	ctx := context.Background()
	entry, err := c.store.FindByName(ctx, moduleName)
	if err != nil || entry == nil {
		return fmt.Errorf("module %q not found in catalog", moduleName)
	}
	c.lastErr = c.service.DeprecateModule(ctx, entry.ID())
	return nil
}

func (c *InstallationBDDTestContext) theDeprecationShouldFailBecauseActiveInstallationsExist() error {
	if !errors.Is(c.lastErr, ErrModuleHasActiveInstallations) {
		return fmt.Errorf("expected ErrModuleHasActiveInstallations, got %v", c.lastErr)
	}
	return nil
}

// InitializeInstallationScenario registers the BDD steps for the
// installation lifecycle feature.
func InitializeInstallationScenario(ctx *godog.ScenarioContext) {
	testCtx := &InstallationBDDTestContext{}

	// Background steps
	ctx.Step(`^an empty module registry$`, testCtx.anEmptyModuleRegistry)

	// Catalog setup steps
	ctx.Step(`^a registered module "([^"]*)" at version "([^"]*)"$`, testCtx.aRegisteredModuleAtVersion)
	ctx.Step(`^a registered premium module "([^"]*)" at version "([^"]*)"$`, testCtx.aRegisteredPremiumModuleAtVersion)
	ctx.Step(`^a registered module "([^"]*)" at version "([^"]*)" depending on "([^"]*)" with constraint "([^"]*)"$`, testCtx.aRegisteredModuleDependingOn)

	// Tenant and subscription steps
	ctx.Step(`^tenant "([^"]*)" has no active subscription$`, testCtx.tenantHasNoActiveSubscription)
	ctx.Step(`^tenant "([^"]*)" requests installation of "([^"]*)"$`, testCtx.tenantRequestsInstallation)
	ctx.Step(`^tenant "([^"]*)" has module "([^"]*)" installed$`, testCtx.tenantHasModuleInstalled)

	// Job execution steps
	ctx.Step(`^(\d+) installation jobs should be created$`, testCtx.installationJobsShouldBeCreated)
	ctx.Step(`^the jobs should target modules in order "([^"]*)"$`, testCtx.theJobsShouldTargetModulesInOrder)
	ctx.Step(`^the job runner executes all pending jobs$`, testCtx.theJobRunnerExecutesAllPendingJobs)
	ctx.Step(`^the step "([^"]*)" fails during execution$`, testCtx.theStepFailsDuringExecution)
	ctx.Step(`^the step "([^"]*)" is fixed and the job is retried$`, testCtx.theStepIsFixedAndTheJobIsRetried)
	ctx.Step(`^the step "([^"]*)" should have executed exactly once$`, testCtx.theStepShouldHaveExecutedExactlyOnce)

	// Outcome steps
	ctx.Step(`^the module "([^"]*)" should be installed for tenant "([^"]*)" at version "([^"]*)"$`, testCtx.theModuleShouldBeInstalledAtVersion)
	ctx.Step(`^the request should fail because a subscription is required$`, testCtx.theRequestShouldFailBecauseSubscriptionRequired)
	ctx.Step(`^the request should fail because the module is already installing$`, testCtx.theRequestShouldFailBecauseAlreadyInstalling)
	ctx.Step(`^no installation record should exist for tenant "([^"]*)" and module "([^"]*)"$`, testCtx.noInstallationRecordShouldExist)
	ctx.Step(`^the installation should be marked failed for tenant "([^"]*)" and module "([^"]*)"$`, testCtx.theInstallationShouldBeMarkedFailed)
	ctx.Step(`^the platform operator deprecates "([^"]*)"$`, testCtx.thePlatformOperatorDeprecates)
	ctx.Step(`^the deprecation should fail because active installations exist$`, testCtx.theDeprecationShouldFailBecauseActiveInstallationsExist)
}

// TestInstallationLifecycle runs the BDD tests for the installation
// lifecycle.
func TestInstallationLifecycle(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeInstallationScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features/installation_lifecycle.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
