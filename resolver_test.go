package modregistry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapCatalog is a CatalogLookup backed by a plain map.
type mapCatalog map[string]*CatalogEntry

func (c mapCatalog) LookupEntry(name string) (*CatalogEntry, error) {
	return c[name], nil
}

func dep(name, constraint string) ModuleDependency {
	return ModuleDependency{ModuleName: name, Constraint: MustParseConstraint(constraint)}
}

func TestResolveLinearChain(t *testing.T) {
	// aaa <- bbb <- ccc: installing ccc installs everything bottom-up.
	catalog := mapCatalog{}
	catalog["aaa"] = newTestEntry(t, "aaa", "1.0.0")
	catalog["bbb"] = newTestEntry(t, "bbb", "1.0.0", dep("aaa", "^1.0.0"))
	catalog["ccc"] = newTestEntry(t, "ccc", "1.0.0", dep("bbb", "^1.0.0"))

	order, err := ResolveInstallOrder(catalog["ccc"], catalog, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"aaa", "bbb", "ccc"}, order)
}

func TestResolveNoDependencies(t *testing.T) {
	catalog := mapCatalog{"solo": newTestEntry(t, "solo", "1.0.0")}
	order, err := ResolveInstallOrder(catalog["solo"], catalog, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"solo"}, order)
}

func TestResolveDiamond(t *testing.T) {
	// ddd depends on bbb and ccc, both depend on aaa. aaa must appear
	// once, before both.
	catalog := mapCatalog{}
	catalog["aaa"] = newTestEntry(t, "aaa", "1.0.0")
	catalog["bbb"] = newTestEntry(t, "bbb", "1.0.0", dep("aaa", "^1.0.0"))
	catalog["ccc"] = newTestEntry(t, "ccc", "1.0.0", dep("aaa", "^1.0.0"))
	catalog["ddd"] = newTestEntry(t, "ddd", "1.0.0", dep("bbb", "^1.0.0"), dep("ccc", "^1.0.0"))

	order, err := ResolveInstallOrder(catalog["ddd"], catalog, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"aaa", "bbb", "ccc", "ddd"}, order)
}

func TestResolveCycleDetected(t *testing.T) {
	catalog := mapCatalog{}
	aaa, err := NewCatalogEntry("id-aaa", "aaa", "A", MustParseVersion("1.0.0"), "",
		[]ModuleDependency{dep("bbb", ">=1.0.0")}, nil, false)
	require.NoError(t, err)
	bbb, err := NewCatalogEntry("id-bbb", "bbb", "B", MustParseVersion("1.0.0"), "",
		[]ModuleDependency{dep("aaa", ">=1.0.0")}, nil, false)
	require.NoError(t, err)
	catalog["aaa"], catalog["bbb"] = aaa, bbb

	order, err := ResolveInstallOrder(aaa, catalog, nil)
	require.Error(t, err)
	assert.Nil(t, order, "cycle failure must never return a partial order")
	assert.ErrorIs(t, err, ErrCircularDependency)

	var cycleErr *CircularDependencyError
	require.True(t, errors.As(err, &cycleErr))
	assert.Equal(t, []string{"aaa", "bbb", "aaa"}, cycleErr.Path)
}

func TestResolveLongerCycle(t *testing.T) {
	catalog := mapCatalog{}
	catalog["aaa"] = newTestEntry(t, "aaa", "1.0.0", dep("bbb", ">=1.0.0"))
	catalog["bbb"] = newTestEntry(t, "bbb", "1.0.0", dep("ccc", ">=1.0.0"))
	catalog["ccc"] = newTestEntry(t, "ccc", "1.0.0", dep("aaa", ">=1.0.0"))

	_, err := ResolveInstallOrder(catalog["aaa"], catalog, nil)
	var cycleErr *CircularDependencyError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, []string{"aaa", "bbb", "ccc", "aaa"}, cycleErr.Path)
}

func TestResolveMissingDependency(t *testing.T) {
	catalog := mapCatalog{}
	catalog["bbb"] = newTestEntry(t, "bbb", "1.0.0", dep("ghost", "^1.0.0"))

	_, err := ResolveInstallOrder(catalog["bbb"], catalog, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingDependency)
	assert.Contains(t, err.Error(), "ghost")
}

func TestResolveVersionMismatch(t *testing.T) {
	catalog := mapCatalog{}
	catalog["aaa"] = newTestEntry(t, "aaa", "2.0.0")
	catalog["bbb"] = newTestEntry(t, "bbb", "1.0.0", dep("aaa", "^1.0.0"))

	_, err := ResolveInstallOrder(catalog["bbb"], catalog, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDependencyVersionMismatch)

	var versionErr *DependencyVersionError
	require.ErrorAs(t, err, &versionErr)
	assert.Equal(t, "aaa", versionErr.ModuleName)
	assert.Equal(t, MustParseVersion("2.0.0"), versionErr.Found)
}

func TestResolvePrunesInstalledDependency(t *testing.T) {
	// Tenant already has aaa@1.3.0; bbb requires aaa ^1.0.0, so only bbb
	// is installed.
	catalog := mapCatalog{}
	catalog["aaa"] = newTestEntry(t, "aaa", "1.3.0")
	catalog["bbb"] = newTestEntry(t, "bbb", "1.0.0", dep("aaa", "^1.0.0"))

	installed := map[string]ModuleVersion{"aaa": MustParseVersion("1.3.0")}
	order, err := ResolveInstallOrder(catalog["bbb"], catalog, installed)
	require.NoError(t, err)
	assert.Equal(t, []string{"bbb"}, order)
}

func TestResolveInstalledVersionCheckedAgainstConstraint(t *testing.T) {
	// The installed snapshot, not the catalog head, is what the
	// constraint sees: an old installed aaa fails even though the catalog
	// has a satisfying version.
	catalog := mapCatalog{}
	catalog["aaa"] = newTestEntry(t, "aaa", "1.5.0")
	catalog["bbb"] = newTestEntry(t, "bbb", "1.0.0", dep("aaa", "~1.5.0"))

	installed := map[string]ModuleVersion{"aaa": MustParseVersion("1.2.0")}
	_, err := ResolveInstallOrder(catalog["bbb"], catalog, installed)
	require.Error(t, err)

	var versionErr *DependencyVersionError
	require.ErrorAs(t, err, &versionErr)
	assert.Equal(t, MustParseVersion("1.2.0"), versionErr.Found)
}

func TestResolveInstalledModulesStillParticipateInCycleChecks(t *testing.T) {
	catalog := mapCatalog{}
	catalog["aaa"] = newTestEntry(t, "aaa", "1.0.0", dep("bbb", ">=1.0.0"))
	catalog["bbb"] = newTestEntry(t, "bbb", "1.0.0", dep("aaa", ">=1.0.0"))

	installed := map[string]ModuleVersion{"bbb": MustParseVersion("1.0.0")}
	_, err := ResolveInstallOrder(catalog["aaa"], catalog, installed)
	assert.ErrorIs(t, err, ErrCircularDependency)
}

func TestResolveTransitiveDependencies(t *testing.T) {
	// Installing the top of a deeper tree picks up transitive
	// dependencies exactly once, in declaration order.
	catalog := mapCatalog{}
	catalog["core"] = newTestEntry(t, "core", "1.0.0")
	catalog["members"] = newTestEntry(t, "members", "1.0.0", dep("core", "^1.0.0"))
	catalog["votes"] = newTestEntry(t, "votes", "1.0.0", dep("core", "^1.0.0"), dep("members", "^1.0.0"))
	catalog["elections"] = newTestEntry(t, "elections", "1.0.0", dep("votes", "^1.0.0"), dep("members", "^1.0.0"))

	order, err := ResolveInstallOrder(catalog["elections"], catalog, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"core", "members", "votes", "elections"}, order)
}
