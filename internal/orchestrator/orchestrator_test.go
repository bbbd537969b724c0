package orchestrator

import (
	"context"
	"testing"

	"github.com/depgate-dev/depgate/internal/domain"
	domainpolicy "github.com/depgate-dev/depgate/internal/domain/policy"
	"github.com/depgate-dev/depgate/internal/registry"
	"github.com/depgate-dev/depgate/internal/resolve"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_BuildRequests_RightmostColonSplit(t *testing.T) {
	t.Parallel()
	reqs := BuildRequests(domain.Npm, []string{"lodash:^4.0.0"}, nil)
	require.Len(t, reqs, 1)
	assert.Equal(t, "lodash", reqs[0].Identifier)
	assert.Equal(t, "^4.0.0", reqs[0].Spec)
}

func Test_BuildRequests_MavenPreservesCoordinateColon(t *testing.T) {
	t.Parallel()
	reqs := BuildRequests(domain.Maven, []string{"com.example:lib:1.0.0"}, nil)
	require.Len(t, reqs, 1)
	assert.Equal(t, "com.example:lib", reqs[0].Identifier)
	assert.Equal(t, "1.0.0", reqs[0].Spec)
}

func Test_BuildRequests_MavenWithoutSpec(t *testing.T) {
	t.Parallel()
	reqs := BuildRequests(domain.Maven, []string{"com.example:lib"}, nil)
	require.Len(t, reqs, 1)
	assert.Equal(t, "com.example:lib", reqs[0].Identifier)
	assert.Empty(t, reqs[0].Spec)
}

func Test_BuildRequests_ManifestLatestMeansNoSpec(t *testing.T) {
	t.Parallel()
	reqs := BuildRequests(domain.Npm, nil, []ManifestEntry{{Name: "lodash", RawSpec: "latest"}})
	require.Len(t, reqs, 1)
	assert.Empty(t, reqs[0].Spec)
}

func Test_BuildRequests_PyPINormalizedAndDeduplicated(t *testing.T) {
	t.Parallel()
	reqs := BuildRequests(domain.PyPI, []string{"Flask_Login", "flask-login"}, nil)
	require.Len(t, reqs, 1)
	assert.Equal(t, "flask-login", reqs[0].Identifier)
}

type stubEcosystem struct {
	version string
}

func (s stubEcosystem) FetchCandidates(ctx context.Context, identifier string) ([]string, error) {
	return []string{s.version}, nil
}

func (s stubEcosystem) Pick(spec string, candidates []string) (string, int, error) {
	return s.version, len(candidates), nil
}

type stubRegistryClient struct {
	stars int
}

func (s stubRegistryClient) FetchCandidates(ctx context.Context, identifier string) ([]string, error) {
	return []string{"1.0.0"}, nil
}

func (s stubRegistryClient) Enrich(ctx context.Context, p *domain.Package, versionTagPattern string) error {
	p.Exists = domain.BoolPtr(true)
	p.RepoStars = domain.IntPtr(s.stars)
	return nil
}

func Test_Run_PolicyLevel_AnnotatesDecision(t *testing.T) {
	t.Parallel()
	resolver := resolve.New(map[domain.Ecosystem]resolve.Ecosystem{
		domain.Npm: stubEcosystem{version: "1.0.0"},
	})
	reg := registry.Registry{domain.Npm: stubRegistryClient{stars: 100}}
	cfg := domainpolicy.Config{Metrics: map[string]map[string]any{"repo_stars": {"gte": 10}}}

	o := New(resolver, reg, LevelPolicy, cfg)
	packages, err := o.Run(context.Background(), []PackageRequest{{Ecosystem: domain.Npm, Identifier: "lodash"}})
	require.NoError(t, err)
	require.Len(t, packages, 1)
	assert.Equal(t, domain.Allow, packages[0].Policy.Decision)
	assert.Equal(t, "1.0.0", packages[0].ResolvedVersion)
}

func Test_Run_CompareLevel_SkipsHeuristicsAndPolicy(t *testing.T) {
	t.Parallel()
	resolver := resolve.New(map[domain.Ecosystem]resolve.Ecosystem{
		domain.Npm: stubEcosystem{version: "1.0.0"},
	})
	reg := registry.Registry{domain.Npm: stubRegistryClient{stars: 1}}

	o := New(resolver, reg, LevelCompare, domainpolicy.Config{})
	packages, err := o.Run(context.Background(), []PackageRequest{{Ecosystem: domain.Npm, Identifier: "lodash"}})
	require.NoError(t, err)
	require.Len(t, packages, 1)
	assert.Nil(t, packages[0].Heuristics.RiskMissing)
	assert.Empty(t, packages[0].Policy.Decision)
}

func Test_MergePolicy_OverridesWinOverUserConfig(t *testing.T) {
	t.Parallel()
	merged, err := MergePolicy(PolicyLayers{
		BuiltInPreset: domainpolicy.Config{FailFast: false},
		UserConfig:    domainpolicy.Config{FailFast: true},
		Overrides:     domainpolicy.Config{FailFast: false},
	})
	require.NoError(t, err)
	assert.False(t, merged.FailFast)
}
