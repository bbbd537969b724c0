// Package maven implements the Maven Central registry client:
// maven-metadata.xml candidate sourcing, POM <scm> discovery with parent
// traversal, and sibling-artifact trust-signal probing, per §4.2.
package maven

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/depgate-dev/depgate/internal/apperrors"
	"github.com/depgate-dev/depgate/internal/domain"
	"github.com/depgate-dev/depgate/internal/repository/enrich"
)

const (
	repoBase   = "https://repo1.maven.org/maven2"
	searchBase = "https://search.maven.org/solrsearch/select"
	maxParentDepth = 8
)

// Client fetches Maven Central metadata and POMs.
type Client struct {
	HTTPClient *http.Client
	Providers  enrich.Providers

	metaMu    sync.Mutex // dedicated lock: the proxy may enrich Maven concurrently with an offline scan
	metaCache map[string]metadataEntry
}

type metadataEntry struct {
	versions []string
	release  string
	latest   string
	expires  time.Time
}

func New(providers enrich.Providers) *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Providers:  providers,
		metaCache:  make(map[string]metadataEntry),
	}
}

func groupPath(group string) string {
	return strings.ReplaceAll(group, ".", "/")
}

type mavenMetadata struct {
	Versioning struct {
		Release  string   `xml:"release"`
		Latest   string   `xml:"latest"`
		Versions []string `xml:"versions>version"`
	} `xml:"versioning"`
}

func (c *Client) fetchMetadata(ctx context.Context, group, artifact string) (metadataEntry, error) {
	key := group + ":" + artifact

	c.metaMu.Lock()
	if e, ok := c.metaCache[key]; ok && time.Now().Before(e.expires) {
		c.metaMu.Unlock()
		return e, nil
	}
	c.metaMu.Unlock()

	url := fmt.Sprintf("%s/%s/%s/maven-metadata.xml", repoBase, groupPath(group), artifact)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return metadataEntry{}, apperrors.NewParseError("maven.metadata", key, err)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return metadataEntry{}, apperrors.NewNetworkError("maven.metadata", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return metadataEntry{}, apperrors.NewNotFoundError("maven.metadata", key)
	}
	if resp.StatusCode >= 400 {
		return metadataEntry{}, apperrors.NewNetworkError("maven.metadata", url, fmt.Errorf("status %d", resp.StatusCode))
	}

	var md mavenMetadata
	if err := xml.NewDecoder(resp.Body).Decode(&md); err != nil {
		return metadataEntry{}, apperrors.NewParseError("maven.metadata.decode", key, err)
	}

	entry := metadataEntry{
		versions: md.Versioning.Versions,
		release:  md.Versioning.Release,
		latest:   md.Versioning.Latest,
		expires:  time.Now().Add(10 * time.Minute),
	}

	c.metaMu.Lock()
	c.metaCache[key] = entry
	c.metaMu.Unlock()

	return entry, nil
}

// FetchCandidates expects identifier in "groupId:artifactId" form.
func (c *Client) FetchCandidates(ctx context.Context, identifier string) ([]string, error) {
	group, artifact, err := splitCoordinate(identifier)
	if err != nil {
		return nil, err
	}
	entry, err := c.fetchMetadata(ctx, group, artifact)
	if err != nil {
		return nil, err
	}
	return entry.versions, nil
}

func splitCoordinate(identifier string) (group, artifact string, err error) {
	parts := strings.SplitN(identifier, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", apperrors.NewConfigError("maven.identifier", fmt.Errorf("expected groupId:artifactId, got %q", identifier))
	}
	return parts[0], parts[1], nil
}

type searchResponse struct {
	Response struct {
		NumFound int `json:"numFound"`
		Docs     []struct {
			Timestamp int64 `json:"timestamp"`
			VersionCount int `json:"versionCount"`
		} `json:"docs"`
	} `json:"response"`
}

// Enrich populates p with registry facts, POM-derived repository
// discovery, and sibling-artifact trust signals.
func (c *Client) Enrich(ctx context.Context, p *domain.Package, versionTagPattern string) error {
	group, artifact, err := splitCoordinate(p.Name)
	if err != nil {
		if p.OrgID != "" {
			group, artifact = p.OrgID, p.Name
		} else {
			return err
		}
	}

	sr, err := c.search(ctx, group, artifact)
	if err != nil {
		return err
	}
	if sr.Response.NumFound == 0 {
		p.Exists = domain.BoolPtr(false)
		return nil
	}
	p.Exists = domain.BoolPtr(true)
	doc := sr.Response.Docs[0]
	p.VersionCount = domain.IntPtr(doc.VersionCount)
	p.ReleaseTimestampMs = domain.Int64Ptr(doc.Timestamp)

	version := p.ResolvedVersion
	if version == "" {
		entry, err := c.fetchMetadata(ctx, group, artifact)
		if err == nil {
			version = firstNonEmpty(entry.release, entry.latest)
		}
	}
	if version == "" {
		return nil
	}

	scmURL, depth, perr := c.findSCMURL(ctx, group, artifact, version, 0, map[string]bool{})
	if perr != nil {
		p.AddRepoError(fmt.Sprintf("%s:%s:%s", group, artifact, version), "pom_parse_error", perr.Error())
	}

	c.probeTrustSignals(ctx, p, group, artifact, version)

	if scmURL != "" {
		source := "maven_pom.scm.url"
		if depth > 0 {
			source = fmt.Sprintf("maven_parent_pom.depth%d.scm.url", depth)
		}
		enrich.Run(ctx, p, []enrich.Candidate{{URL: scmURL, Source: source}}, c.Providers, versionTagPattern)
	}

	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func (c *Client) search(ctx context.Context, group, artifact string) (*searchResponse, error) {
	query := fmt.Sprintf("g:%s a:%s", group, artifact)
	url := fmt.Sprintf("%s?q=%s&rows=1&wt=json", searchBase, strings.ReplaceAll(query, " ", "+"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.NewParseError("maven.search", query, err)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, apperrors.NewNetworkError("maven.search", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, apperrors.NewNetworkError("maven.search", url, fmt.Errorf("status %d", resp.StatusCode))
	}
	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperrors.NewParseError("maven.search.decode", query, err)
	}
	return &out, nil
}

type pomXML struct {
	SCM *struct {
		URL               string `xml:"url"`
		Connection        string `xml:"connection"`
		DeveloperConn     string `xml:"developerConnection"`
	} `xml:"scm"`
	Parent *struct {
		GroupID    string `xml:"groupId"`
		ArtifactID string `xml:"artifactId"`
		Version    string `xml:"version"`
	} `xml:"parent"`
}

// findSCMURL walks the <parent> chain (bounded by maxParentDepth, guarded
// by a visited set) looking for a declared <scm> URL.
func (c *Client) findSCMURL(ctx context.Context, group, artifact, version string, depth int, visited map[string]bool) (string, int, error) {
	if depth > maxParentDepth {
		return "", depth, nil
	}
	key := group + ":" + artifact + ":" + version
	if visited[key] {
		return "", depth, nil
	}
	visited[key] = true

	pom, err := c.fetchPOM(ctx, group, artifact, version)
	if err != nil {
		return "", depth, err
	}

	if pom.SCM != nil {
		if u := firstNonEmpty(pom.SCM.URL, stripSCMPrefix(pom.SCM.Connection), stripSCMPrefix(pom.SCM.DeveloperConn)); u != "" {
			return u, depth, nil
		}
	}

	if pom.Parent != nil && pom.Parent.GroupID != "" && pom.Parent.ArtifactID != "" {
		return c.findSCMURL(ctx, pom.Parent.GroupID, pom.Parent.ArtifactID, pom.Parent.Version, depth+1, visited)
	}

	return "", depth, nil
}

func stripSCMPrefix(s string) string {
	return strings.TrimPrefix(s, "scm:git:")
}

func (c *Client) fetchPOM(ctx context.Context, group, artifact, version string) (*pomXML, error) {
	url := fmt.Sprintf("%s/%s/%s/%s/%s-%s.pom", repoBase, groupPath(group), artifact, version, artifact, version)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, apperrors.NewNetworkError("maven.pom", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, apperrors.NewNetworkError("maven.pom", url, fmt.Errorf("status %d", resp.StatusCode))
	}
	var pom pomXML
	dec := xml.NewDecoder(resp.Body)
	dec.Strict = false
	if err := dec.Decode(&pom); err != nil {
		return nil, apperrors.NewParseError("maven.pom.decode", url, err)
	}
	return &pom, nil
}

// probeTrustSignals HEAD-probes sibling artifact suffixes for signature,
// provenance, and checksum artifacts.
func (c *Client) probeTrustSignals(ctx context.Context, p *domain.Package, group, artifact, version string) {
	base := fmt.Sprintf("%s/%s/%s/%s/%s-%s", repoBase, groupPath(group), artifact, version, artifact, version)

	sigPresent := c.headExists(ctx, base+".jar.asc") || c.headExists(ctx, base+".pom.asc")
	provPresent := c.headExists(ctx, base+".jar.sigstore") || c.headExists(ctx, base+".jar.sigstore.json") ||
		c.headExists(ctx, base+".pom.sigstore") || c.headExists(ctx, base+".pom.sigstore.json")

	p.Trust.RegistrySignaturePresent = domain.BoolPtr(sigPresent)
	p.Trust.ProvenancePresent = domain.BoolPtr(provPresent)
	p.Trust.TrustScore = domain.ComputeTrustScore(p.Trust.RegistrySignaturePresent, p.Trust.ProvenancePresent)
}

func (c *Client) headExists(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 400
}
