// Package upstream implements the Upstream Client (§4.9): a single
// connection-pooled HTTP client per registry type, forwarding requests to
// the real upstream under a manually-enforced, SSRF-safe redirect
// allowlist. Grounded directly on
// original_source/src/proxy/upstream.py's DEFAULT_UPSTREAMS and
// DEFAULT_REDIRECT_ALLOWLIST tables.
package upstream

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/depgate-dev/depgate/internal/apperrors"
	"github.com/depgate-dev/depgate/internal/domain"
)

const maxRedirects = 5

// DefaultUpstreams mirrors upstream.py's DEFAULT_UPSTREAMS.
var DefaultUpstreams = map[domain.Ecosystem]string{
	domain.Npm:   "https://registry.npmjs.org",
	domain.PyPI:  "https://pypi.org",
	domain.Maven: "https://repo1.maven.org/maven2",
	domain.NuGet: "https://api.nuget.org",
}

// DefaultRedirectAllowlist mirrors upstream.py's DEFAULT_REDIRECT_ALLOWLIST:
// additional hosts (beyond the upstream's own host) each registry may
// redirect to.
var DefaultRedirectAllowlist = map[domain.Ecosystem][]string{
	domain.Npm:   {},
	domain.PyPI:  {"files.pythonhosted.org"},
	domain.Maven: {"repo.maven.apache.org"},
	domain.NuGet: {"globalcdn.nuget.org"},
}

var hopByHopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"TE", "Trailer", "Transfer-Encoding", "Upgrade", "Host",
}

var forwardableResponseHeaders = []string{
	"Accept-Ranges", "Cache-Control", "Content-Disposition", "Content-Encoding",
	"Content-Length", "Content-Range", "Content-Type", "ETag", "Last-Modified",
	"Location", "Retry-After", "Vary", "WWW-Authenticate",
}

// Config configures one Client.
type Config struct {
	Upstreams         map[domain.Ecosystem]string
	RedirectAllowlist map[domain.Ecosystem][]string
	Timeout           time.Duration // default 30s
}

// Client forwards proxy requests to real upstream registries.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New builds a Client. A single http.Client (and therefore a single
// connection pool) is shared across every ecosystem and request, per §5's
// "one HTTP connection pool per process".
func New(cfg Config) *Client {
	if cfg.Upstreams == nil {
		cfg.Upstreams = DefaultUpstreams
	}
	if cfg.RedirectAllowlist == nil {
		cfg.RedirectAllowlist = DefaultRedirectAllowlist
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			// Redirects are handled manually so the allowlist can inspect
			// and veto each hop instead of following transparently.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Forward builds the upstream URL for the given ecosystem+path, strips
// hop-by-hop headers, issues the request, and follows allowlisted
// redirects manually up to maxRedirects hops.
func (c *Client) Forward(method string, eco domain.Ecosystem, path string, header http.Header, body []byte) (*http.Response, error) {
	base, ok := c.cfg.Upstreams[eco]
	if !ok {
		return nil, apperrors.NewProxyInputError("no upstream configured for registry type " + string(eco))
	}

	target := joinUpstream(base, path)
	return c.requestWithRedirects(method, target, header, body, 0)
}

func joinUpstream(base, path string) string {
	base = strings.TrimSuffix(base, "/")
	if strings.HasSuffix(base, "/maven2") && strings.HasPrefix(path, "/maven2") {
		path = strings.TrimPrefix(path, "/maven2")
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

func (c *Client) requestWithRedirects(method, target string, header http.Header, body []byte, hop int) (*http.Response, error) {
	if hop > maxRedirects {
		return nil, apperrors.NewRedirectBlockedError(target, target)
	}

	req, err := http.NewRequest(method, target, bytesReader(body))
	if err != nil {
		return nil, apperrors.NewProxyInputError(err.Error())
	}
	copyForwardableRequestHeaders(req.Header, header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewNetworkError("upstream.forward", target, err)
	}

	if resp.StatusCode < 300 || resp.StatusCode >= 400 {
		return resp, nil
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return resp, nil
	}

	nextURL, err := resolveLocation(target, location)
	if err != nil {
		resp.Body.Close()
		return nil, apperrors.NewProxyInputError("invalid redirect location: " + err.Error())
	}

	if (resp.StatusCode == http.StatusMovedPermanently || resp.StatusCode == http.StatusFound) &&
		method != http.MethodGet && method != http.MethodHead {
		resp.Body.Close()
		return nil, apperrors.NewRedirectBlockedError(target, nextURL)
	}

	nextMethod := method
	var nextBody []byte
	if resp.StatusCode == http.StatusSeeOther {
		nextMethod = http.MethodGet
		nextBody = nil
	} else {
		nextBody = body
	}

	if !c.isAllowedRedirect(target, nextURL) {
		resp.Body.Close()
		return nil, apperrors.NewRedirectBlockedError(target, nextURL)
	}

	resp.Body.Close()
	return c.requestWithRedirects(nextMethod, nextURL, header, nextBody, hop+1)
}

func resolveLocation(current, location string) (string, error) {
	cu, err := url.Parse(current)
	if err != nil {
		return "", err
	}
	lu, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return cu.ResolveReference(lu).String(), nil
}

// isAllowedRedirect implements upstream.py's _is_allowed_redirect: the
// target host must equal or be a subdomain of the origin upstream host, or
// of a per-registry allowlisted host.
func (c *Client) isAllowedRedirect(originURL, targetURL string) bool {
	ou, err := url.Parse(originURL)
	if err != nil {
		return false
	}
	tu, err := url.Parse(targetURL)
	if err != nil {
		return false
	}
	if tu.Scheme != "http" && tu.Scheme != "https" {
		return false
	}

	allowedHosts := []string{ou.Hostname()}
	for _, hosts := range c.cfg.RedirectAllowlist {
		allowedHosts = append(allowedHosts, hosts...)
	}

	target := strings.ToLower(tu.Hostname())
	for _, h := range allowedHosts {
		h = strings.ToLower(h)
		if target == h || strings.HasSuffix(target, "."+h) {
			return true
		}
	}
	return false
}

// RegistryTypeFor implements the upstream's longest-prefix host match,
// used when the caller only knows a URL and needs to find the owning
// registry's allowlist.
func RegistryTypeFor(upstreams map[domain.Ecosystem]string, target string) (domain.Ecosystem, bool) {
	var best domain.Ecosystem
	bestLen := -1
	for eco, base := range upstreams {
		if strings.HasPrefix(target, base) && len(base) > bestLen {
			best, bestLen = eco, len(base)
		}
	}
	return best, bestLen >= 0
}

func copyForwardableRequestHeaders(dst, src http.Header) {
	stripped := map[string]bool{}
	for _, h := range hopByHopHeaders {
		stripped[strings.ToLower(h)] = true
	}
	if conn := src.Get("Connection"); conn != "" {
		for _, tok := range strings.Split(conn, ",") {
			stripped[strings.ToLower(strings.TrimSpace(tok))] = true
		}
	}
	for k, vs := range src {
		if stripped[strings.ToLower(k)] {
			continue
		}
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
	if dst.Get("User-Agent") == "" {
		dst.Set("User-Agent", "depgate-proxy/1.0")
	}
	if dst.Get("Accept") == "" {
		dst.Set("Accept", "*/*")
	}
}

// CopyForwardableResponseHeaders copies only the headers §4.9 permits to
// flow back to the client, in canonical casing.
func CopyForwardableResponseHeaders(dst, src http.Header) {
	for _, h := range forwardableResponseHeaders {
		if v := src.Get(h); v != "" {
			dst.Set(h, v)
		}
	}
}

func bytesReader(b []byte) io.Reader {
	if b == nil {
		return nil
	}
	return bytes.NewReader(b)
}
