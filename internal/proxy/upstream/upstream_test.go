package upstream

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/depgate-dev/depgate/internal/apperrors"
	"github.com/depgate-dev/depgate/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isRedirectBlocked(err error) bool {
	var rb *apperrors.RedirectBlockedError
	return errors.As(err, &rb)
}

func newClientFor(srv *httptest.Server) *Client {
	return New(Config{
		Upstreams:         map[domain.Ecosystem]string{domain.Npm: srv.URL},
		RedirectAllowlist: map[domain.Ecosystem][]string{domain.Npm: {"cdn.example.com"}},
		Timeout:           2 * time.Second,
	})
}

func Test_Forward_StripsHopByHopHeaders(t *testing.T) {
	t.Parallel()
	var seen http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newClientFor(srv)
	hdr := http.Header{}
	hdr.Set("Connection", "keep-alive")
	hdr.Set("Keep-Alive", "timeout=5")
	hdr.Set("X-Custom", "value")

	resp, err := c.Forward(http.MethodGet, domain.Npm, "/left-pad", hdr, nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Empty(t, seen.Get("Keep-Alive"))
	assert.Equal(t, "value", seen.Get("X-Custom"))
}

func Test_Forward_FollowsAllowlistedRedirect(t *testing.T) {
	t.Parallel()
	var final *httptest.Server
	final = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("tarball-bytes"))
	}))
	defer final.Close()

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, final.URL+"/left-pad-1.0.0.tgz", http.StatusFound)
	}))
	defer origin.Close()

	c := New(Config{
		Upstreams: map[domain.Ecosystem]string{domain.Npm: origin.URL},
	})

	resp, err := c.Forward(http.MethodGet, domain.Npm, "/left-pad/-/left-pad-1.0.0.tgz", http.Header{}, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func Test_Forward_RejectsRedirectToDisallowedHost(t *testing.T) {
	t.Parallel()
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://evil.example.com/steal", http.StatusFound)
	}))
	defer origin.Close()

	c := New(Config{
		Upstreams: map[domain.Ecosystem]string{domain.Npm: origin.URL},
	})

	_, err := c.Forward(http.MethodGet, domain.Npm, "/left-pad", http.Header{}, nil)
	require.Error(t, err)
	assert.True(t, isRedirectBlocked(err))
}

func Test_Forward_Rejects301OnNonGetHead(t *testing.T) {
	t.Parallel()
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/somewhere-else", http.StatusMovedPermanently)
	}))
	defer origin.Close()

	c := New(Config{
		Upstreams: map[domain.Ecosystem]string{domain.Npm: origin.URL},
	})

	_, err := c.Forward(http.MethodPost, domain.Npm, "/left-pad", http.Header{}, []byte(`{}`))
	require.Error(t, err)
	assert.True(t, isRedirectBlocked(err))
}

func Test_Forward_303DowngradesToGet(t *testing.T) {
	t.Parallel()
	var finalMethod string
	final := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		finalMethod = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer final.Close()

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, final.URL+"/done", http.StatusSeeOther)
	}))
	defer origin.Close()

	c := New(Config{
		Upstreams: map[domain.Ecosystem]string{domain.Npm: origin.URL},
	})

	resp, err := c.Forward(http.MethodPost, domain.Npm, "/left-pad", http.Header{}, []byte(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.MethodGet, finalMethod)
}

func Test_Forward_MaxRedirectsExceeded(t *testing.T) {
	t.Parallel()
	var origin *httptest.Server
	origin = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, origin.URL+r.URL.Path+"x", http.StatusFound)
	}))
	defer origin.Close()

	c := New(Config{
		Upstreams: map[domain.Ecosystem]string{domain.Npm: origin.URL},
	})

	_, err := c.Forward(http.MethodGet, domain.Npm, "/a", http.Header{}, nil)
	require.Error(t, err)
	assert.True(t, isRedirectBlocked(err))
}

func Test_CopyForwardableResponseHeaders_OnlyAllowlisted(t *testing.T) {
	t.Parallel()
	src := http.Header{}
	src.Set("Content-Type", "application/json")
	src.Set("Set-Cookie", "session=secret")
	src.Set("ETag", `"abc"`)

	dst := http.Header{}
	CopyForwardableResponseHeaders(dst, src)

	assert.Equal(t, "application/json", dst.Get("Content-Type"))
	assert.Equal(t, `"abc"`, dst.Get("ETag"))
	assert.Empty(t, dst.Get("Set-Cookie"))
}

func Test_RegistryTypeFor_LongestPrefixWins(t *testing.T) {
	t.Parallel()
	upstreams := map[domain.Ecosystem]string{
		domain.Maven: "https://repo1.maven.org/maven2",
		domain.Npm:   "https://registry.npmjs.org",
	}
	eco, ok := RegistryTypeFor(upstreams, "https://repo1.maven.org/maven2/com/example/lib/1.0/lib-1.0.jar")
	require.True(t, ok)
	assert.Equal(t, domain.Maven, eco)
}
