package modregistry

import (
	"fmt"
)

// CatalogLookup resolves catalog entries by name during dependency
// resolution. A nil entry with a nil error means the name is not in the
// catalog. CatalogRepository implementations satisfy this through a thin
// adapter; tests use a map-backed fake.
type CatalogLookup interface {
	LookupEntry(name string) (*CatalogEntry, error)
}

// ResolveInstallOrder computes the list of module names to install so
// that module target becomes usable for a tenant, in dependency-first
// order. It is a pure computation over catalog data: no side effects, no
// suspension points.
//
// The catalog dependency graph may be cyclic, so resolution is an
// iterative depth-first traversal from the target with the classic
// visiting/visited bookkeeping. A module re-encountered while still in
// the visiting set fails with CircularDependencyError carrying the cycle
// path. Every edge is validated on the way down: a dependency absent from
// the catalog fails with ErrMissingDependency, and one whose available
// version does not satisfy the declared constraint fails with
// DependencyVersionError.
//
// installed maps module names already installed for the tenant to their
// installed version snapshot. Installed modules whose version satisfies
// the constraint are pruned from the returned order (no redundant
// reinstall) but are still traversed, so they participate fully in cycle
// and version checks. The constraint on an installed dependency is checked
// against the installed snapshot, not the catalog head version.
//
// Traversal visits each module's dependencies in declaration order, which
// makes the result deterministic for a given catalog.
func ResolveInstallOrder(target *CatalogEntry, catalog CatalogLookup, installed map[string]ModuleVersion) ([]string, error) {
	type frame struct {
		entry *CatalogEntry
		deps  []ModuleDependency
		next  int
	}

	visiting := make(map[string]bool)
	visited := make(map[string]bool)
	var order []string
	var path []string

	stack := []*frame{{entry: target, deps: target.Dependencies()}}
	visiting[target.Name()] = true
	path = append(path, target.Name())

	for len(stack) > 0 {
		f := stack[len(stack)-1]

		if f.next < len(f.deps) {
			dep := f.deps[f.next]
			f.next++

			depEntry, err := catalog.LookupEntry(dep.ModuleName)
			if err != nil {
				return nil, fmt.Errorf("catalog lookup for %q failed: %w", dep.ModuleName, err)
			}
			if depEntry == nil {
				return nil, fmt.Errorf("%w: %s requires %s", ErrMissingDependency, f.entry.Name(), dep.ModuleName)
			}

			found := depEntry.Version()
			if installedVersion, ok := installed[dep.ModuleName]; ok {
				found = installedVersion
			}
			satisfied, err := dep.Constraint.Satisfies(found)
			if err != nil {
				return nil, err
			}
			if !satisfied {
				return nil, &DependencyVersionError{
					ModuleName: dep.ModuleName,
					Required:   dep.Constraint,
					Found:      found,
				}
			}

			if visiting[dep.ModuleName] {
				return nil, &CircularDependencyError{Path: cyclePath(path, dep.ModuleName)}
			}
			if visited[dep.ModuleName] {
				continue
			}

			visiting[dep.ModuleName] = true
			path = append(path, dep.ModuleName)
			stack = append(stack, &frame{entry: depEntry, deps: depEntry.Dependencies()})
			continue
		}

		// All dependencies handled, emit in post-order so dependencies
		// precede dependents.
		name := f.entry.Name()
		visiting[name] = false
		visited[name] = true
		path = path[:len(path)-1]
		stack = stack[:len(stack)-1]

		if _, alreadyInstalled := installed[name]; !alreadyInstalled {
			order = append(order, name)
		}
	}

	return order, nil
}

// cyclePath slices the visiting path from the first occurrence of name
// and closes the loop, producing e.g. [a b a].
func cyclePath(path []string, name string) []string {
	start := 0
	for i, n := range path {
		if n == name {
			start = i
			break
		}
	}
	cycle := make([]string, 0, len(path)-start+1)
	cycle = append(cycle, path[start:]...)
	cycle = append(cycle, name)
	return cycle
}
