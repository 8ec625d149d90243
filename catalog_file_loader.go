package modregistry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/GoCodeAlone/modregistry/feeders"
)

// ModuleDefinition is the on-disk shape of one catalog module, one file
// per module. YAML, TOML, and JSON files are supported; the format is
// chosen by file extension.
type ModuleDefinition struct {
	Name                 string                 `yaml:"name" toml:"name" json:"name"`
	DisplayName          string                 `yaml:"display_name" toml:"display_name" json:"displayName"`
	Version              string                 `yaml:"version" toml:"version" json:"version"`
	Description          string                 `yaml:"description" toml:"description" json:"description"`
	RequiresSubscription bool                   `yaml:"requires_subscription" toml:"requires_subscription" json:"requiresSubscription"`
	Dependencies         []DependencyDefinition `yaml:"dependencies" toml:"dependencies" json:"dependencies"`
	ConfigSchema         map[string]string      `yaml:"config_schema" toml:"config_schema" json:"configSchema"`
}

// DependencyDefinition is the on-disk shape of one module dependency.
type DependencyDefinition struct {
	Module     string `yaml:"module" toml:"module" json:"module"`
	Constraint string `yaml:"constraint" toml:"constraint" json:"constraint"`
}

// CatalogDirParams configures catalog loading from a definition directory.
type CatalogDirParams struct {
	// Dir is the directory holding module definition files.
	Dir string
	// FileNameRegex filters definition files by name, e.g.
	// "^[a-z0-9_]+\.(yaml|yml|toml|json)$". Nil accepts every file with a
	// supported extension.
	FileNameRegex *regexp.Regexp
}

// CatalogFileLoader populates the catalog from a directory of module
// definition files and can keep it current by watching the directory for
// changes. New definitions are registered through the RegistryService;
// definitions for known modules only ever move the version forward: a
// file carrying a version at or below the catalog's is logged and
// skipped, never applied as a downgrade.
type CatalogFileLoader struct {
	service *RegistryService
	catalog CatalogRepository
	logger  Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewCatalogFileLoader creates a loader that feeds definitions into the
// given service, consulting the catalog repository to distinguish new
// modules from version bumps.
func NewCatalogFileLoader(service *RegistryService, catalog CatalogRepository, logger Logger) *CatalogFileLoader {
	if logger == nil {
		logger = NoopLogger{}
	}
	return &CatalogFileLoader{service: service, catalog: catalog, logger: logger}
}

// LoadDir loads every matching definition file in the directory. Files
// with unsupported extensions are skipped with a warning; files that fail
// to parse or apply abort the load. Returns the number of definitions
// applied.
func (l *CatalogFileLoader) LoadDir(ctx context.Context, params CatalogDirParams) (int, error) {
	if _, err := os.Stat(params.Dir); os.IsNotExist(err) {
		l.logger.Error("Catalog definition directory does not exist", "directory", params.Dir)
		return 0, fmt.Errorf("%w: %s", ErrCatalogDirNotFound, params.Dir)
	}

	files, err := os.ReadDir(params.Dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read catalog directory: %w", err)
	}

	loaded := 0
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		if params.FileNameRegex != nil && !params.FileNameRegex.MatchString(file.Name()) {
			l.logger.Debug("Skipping file that doesn't match regex pattern",
				"file", file.Name(), "pattern", params.FileNameRegex.String())
			continue
		}

		applied, err := l.LoadFile(ctx, filepath.Join(params.Dir, file.Name()))
		if err != nil {
			return loaded, err
		}
		if applied {
			loaded++
		}
	}

	l.logger.Info("Catalog definitions loaded", "directory", params.Dir, "count", loaded)
	return loaded, nil
}

// LoadFile loads a single definition file and applies it to the catalog.
// It reports whether the definition changed the catalog: an unsupported
// extension or a non-forward version yields (false, nil).
func (l *CatalogFileLoader) LoadFile(ctx context.Context, path string) (bool, error) {
	var feeder feeders.Feeder
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		feeder = feeders.NewYamlFeeder(path)
	case ".toml":
		feeder = feeders.NewTomlFeeder(path)
	case ".json":
		feeder = feeders.NewJSONFeeder(path)
	default:
		l.logger.Warn("Unsupported definition file extension", "file", path)
		return false, nil
	}

	var def ModuleDefinition
	if err := feeder.Feed(&def); err != nil {
		return false, fmt.Errorf("failed to load definition %s: %w", path, err)
	}

	return l.apply(ctx, path, def)
}

func (l *CatalogFileLoader) apply(ctx context.Context, path string, def ModuleDefinition) (bool, error) {
	version, err := ParseVersion(def.Version)
	if err != nil {
		return false, fmt.Errorf("definition %s: %w", path, err)
	}

	dependencies := make([]ModuleDependency, 0, len(def.Dependencies))
	for _, dep := range def.Dependencies {
		constraint, err := ParseConstraint(dep.Constraint)
		if err != nil {
			return false, fmt.Errorf("definition %s dependency %q: %w", path, dep.Module, err)
		}
		dependencies = append(dependencies, ModuleDependency{ModuleName: dep.Module, Constraint: constraint})
	}

	existing, err := l.catalog.FindByName(ctx, def.Name)
	if err != nil {
		return false, fmt.Errorf("catalog lookup failed: %w", err)
	}

	if existing == nil {
		_, err := l.service.RegisterModule(ctx, RegisterModuleInput{
			Name:                 def.Name,
			DisplayName:          def.DisplayName,
			Version:              version,
			Description:          def.Description,
			Dependencies:         dependencies,
			ConfigSchema:         def.ConfigSchema,
			RequiresSubscription: def.RequiresSubscription,
		})
		if err != nil {
			return false, err
		}
		l.logger.Debug("Registered module from definition", "module", def.Name, "file", path)
		return true, nil
	}

	if version.Compare(existing.Version()) <= 0 {
		if !version.Equal(existing.Version()) {
			l.logger.Warn("Ignoring definition carrying a version downgrade",
				"module", def.Name, "catalog", existing.Version().String(), "file", version.String())
		}
		return false, nil
	}

	if err := l.service.BumpModuleVersion(ctx, existing.ID(), version); err != nil {
		return false, err
	}
	l.logger.Debug("Bumped module version from definition", "module", def.Name, "to", version.String())
	return true, nil
}

// Watch starts an fsnotify watcher on the directory and applies
// definition files as they are created or modified. Watch returns once
// the watcher is installed; reloading continues until Close or context
// cancellation. Apply errors are logged, never fatal to the watch loop,
// so one bad file cannot stop catalog updates.
func (l *CatalogFileLoader) Watch(ctx context.Context, params CatalogDirParams) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(params.Dir); err != nil {
		closeErr := watcher.Close()
		return errors.Join(fmt.Errorf("failed to watch %s: %w", params.Dir, err), closeErr)
	}

	l.watcher = watcher
	l.done = make(chan struct{})

	go func() {
		defer close(l.done)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
					continue
				}
				name := filepath.Base(event.Name)
				if params.FileNameRegex != nil && !params.FileNameRegex.MatchString(name) {
					continue
				}
				if _, err := l.LoadFile(ctx, event.Name); err != nil {
					l.logger.Error("Failed to reload catalog definition", "file", event.Name, "error", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Error("Catalog watcher error", "error", err)
			}
		}
	}()

	l.logger.Info("Watching catalog definition directory", "directory", params.Dir)
	return nil
}

// Close stops the watcher, if one is running.
func (l *CatalogFileLoader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.watcher == nil {
		return nil
	}
	err := l.watcher.Close()
	<-l.done
	l.watcher = nil
	return err
}
