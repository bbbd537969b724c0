package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/depgate-dev/depgate/internal/domain"
	"github.com/depgate-dev/depgate/internal/domain/heuristics"
	domainpolicy "github.com/depgate-dev/depgate/internal/domain/policy"
	"github.com/depgate-dev/depgate/internal/proxy/cache"
	"github.com/depgate-dev/depgate/internal/proxy/evaluator"
	"github.com/depgate-dev/depgate/internal/proxy/upstream"
	"github.com/depgate-dev/depgate/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient is a minimal registry.Client double.
type fakeClient struct {
	exists  bool
	stars   int
}

func (f *fakeClient) FetchCandidates(ctx context.Context, identifier string) ([]string, error) {
	return []string{"1.0.0"}, nil
}

func (f *fakeClient) Enrich(ctx context.Context, p *domain.Package, versionTagPattern string) error {
	p.Exists = domain.BoolPtr(f.exists)
	if f.exists {
		p.RepoStars = domain.IntPtr(f.stars)
	}
	return nil
}

func newTestServer(t *testing.T, upstreamSrv *httptest.Server, reg registry.Registry, mode evaluator.Mode, cfg domainpolicy.Config) *Server {
	t.Helper()
	eval := &evaluator.Evaluator{
		Registry:   reg,
		Cache:      cache.NewDecisionCache(time.Hour, 100),
		PolicyCfg:  cfg,
		Mode:       mode,
		Thresholds: heuristics.DefaultThresholds(),
	}
	up := upstream.New(upstream.Config{
		Upstreams: map[domain.Ecosystem]string{domain.Npm: upstreamSrv.URL},
	})
	s := New(Config{Host: "127.0.0.1", Port: 0, DecisionMode: mode}, eval, up, eval.Cache, cache.NewResponseCache(time.Minute, 100, 1<<20))
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func Test_HandleHealth(t *testing.T) {
	t.Parallel()
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer upstreamSrv.Close()

	reg := registry.Registry{domain.Npm: &fakeClient{exists: true}}
	s := newTestServer(t, upstreamSrv, reg, evaluator.ModeBlock, domainpolicy.Config{})

	resp, err := http.Get("http://" + s.Addr().String() + "/_depgate/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func Test_HandleProxy_DeniesOnPolicyViolation(t *testing.T) {
	t.Parallel()
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstreamSrv.Close()

	reg := registry.Registry{domain.Npm: &fakeClient{exists: true, stars: 1}}
	cfg := domainpolicy.Config{
		Metrics: map[string]map[string]any{
			"repo_stars": {"gte": 10},
		},
	}
	s := newTestServer(t, upstreamSrv, reg, evaluator.ModeBlock, cfg)

	resp, err := http.Get("http://" + s.Addr().String() + "/left-pad")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func Test_HandleProxy_WarnModeAllowsDespiteViolation(t *testing.T) {
	t.Parallel()
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer upstreamSrv.Close()

	reg := registry.Registry{domain.Npm: &fakeClient{exists: true, stars: 1}}
	cfg := domainpolicy.Config{
		Metrics: map[string]map[string]any{
			"repo_stars": {"gte": 10},
		},
	}
	s := newTestServer(t, upstreamSrv, reg, evaluator.ModeWarn, cfg)

	resp, err := http.Get("http://" + s.Addr().String() + "/left-pad")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func Test_HandleProxy_AllowsWhenPolicyPasses(t *testing.T) {
	t.Parallel()
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstreamSrv.Close()

	reg := registry.Registry{domain.Npm: &fakeClient{exists: true, stars: 100}}
	cfg := domainpolicy.Config{
		Metrics: map[string]map[string]any{
			"repo_stars": {"gte": 10},
		},
	}
	s := newTestServer(t, upstreamSrv, reg, evaluator.ModeBlock, cfg)

	resp, err := http.Get("http://" + s.Addr().String() + "/left-pad")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
