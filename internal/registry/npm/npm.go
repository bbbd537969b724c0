// Package npm implements the npm registry client: packument fetch, trust
// signal extraction, and repository-candidate discovery, per §4.2.
package npm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/depgate-dev/depgate/internal/apperrors"
	"github.com/depgate-dev/depgate/internal/domain"
	"github.com/depgate-dev/depgate/internal/repository/enrich"
)

const defaultBaseURL = "https://registry.npmjs.org"

// Client fetches and caches npm packuments.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Providers  enrich.Providers
}

// New returns a Client pointed at the default npm registry.
func New(providers enrich.Providers) *Client {
	return &Client{
		BaseURL:    defaultBaseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Providers:  providers,
	}
}

type packument struct {
	Name     string                    `json:"name"`
	DistTags map[string]string         `json:"dist-tags"`
	Versions map[string]versionRecord  `json:"versions"`
	Time     map[string]string         `json:"time"`
	Homepage string                    `json:"homepage"`
	Repo     json.RawMessage           `json:"repository"`
	Bugs     json.RawMessage           `json:"bugs"`
}

type versionRecord struct {
	Dist         distRecord      `json:"dist"`
	Attestations json.RawMessage `json:"attestations"`
	Provenance   json.RawMessage `json:"provenance"`
}

type distRecord struct {
	Signatures   json.RawMessage `json:"signatures"`
	NpmSignature string          `json:"npm-signature"`
	Attestations json.RawMessage `json:"attestations"`
	Provenance   json.RawMessage `json:"provenance"`
}

// FetchCandidates satisfies resolve.Ecosystem: return the sorted list of
// version strings from the packument.
func (c *Client) FetchCandidates(ctx context.Context, name string) ([]string, error) {
	p, err := c.fetchPackument(ctx, name)
	if err != nil {
		return nil, err
	}
	versions := make([]string, 0, len(p.Versions))
	for v := range p.Versions {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions, nil
}

func (c *Client) fetchPackument(ctx context.Context, name string) (*packument, error) {
	url := c.BaseURL + "/" + name
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.NewParseError("npm.fetch", name, err)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, apperrors.NewNetworkError("npm.fetch", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, apperrors.NewNotFoundError("npm.fetch", name)
	}
	if resp.StatusCode >= 400 {
		return nil, apperrors.NewNetworkError("npm.fetch", url, fmt.Errorf("status %d", resp.StatusCode))
	}

	var p packument
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, apperrors.NewParseError("npm.decode", name, err)
	}
	return &p, nil
}

// Enrich populates p with registry facts, trust signals, and repository
// discovery. p.ResolvedVersion must already be set by the resolver.
func (c *Client) Enrich(ctx context.Context, p *domain.Package, versionTagPattern string) error {
	pkgument, err := c.fetchPackument(ctx, p.Name)
	if err != nil {
		if _, ok := err.(*apperrors.NotFoundError); ok {
			p.Exists = domain.BoolPtr(false)
			return nil
		}
		return err
	}

	p.Exists = domain.BoolPtr(true)
	p.VersionCount = domain.IntPtr(len(pkgument.Versions))

	selected := p.ResolvedVersion
	if selected == "" {
		selected = pkgument.DistTags["latest"]
	}
	vr, ok := pkgument.Versions[selected]
	if !ok {
		return nil
	}

	if ts, ok := pkgument.Time[selected]; ok {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			p.ReleaseTimestampMs = domain.Int64Ptr(t.UnixMilli())
		}
	}

	p.PreviousReleaseVersion = previousVersion(pkgument, selected)

	sigPresent := len(vr.Dist.Signatures) > 0 || (vr.Dist.NpmSignature != "" && vr.Dist.NpmSignature != `""`)
	provPresent := len(vr.Dist.Attestations) > 0 || len(vr.Attestations) > 0 || len(vr.Dist.Provenance) > 0 || len(vr.Provenance) > 0
	p.Trust.RegistrySignaturePresent = domain.BoolPtr(sigPresent)
	p.Trust.ProvenancePresent = domain.BoolPtr(provPresent)

	if prevVR, ok := pkgument.Versions[p.PreviousReleaseVersion]; ok && p.PreviousReleaseVersion != "" {
		prevSig := len(prevVR.Dist.Signatures) > 0 || prevVR.Dist.NpmSignature != ""
		prevProv := len(prevVR.Dist.Attestations) > 0 || len(prevVR.Attestations) > 0
		p.Trust.PreviousRegistrySignaturePresent = domain.BoolPtr(prevSig)
		p.Trust.PreviousProvenancePresent = domain.BoolPtr(prevProv)
	}

	p.Trust.TrustScore = domain.ComputeTrustScore(p.Trust.RegistrySignaturePresent, p.Trust.ProvenancePresent)
	p.Trust.PreviousScore = domain.ComputeTrustScore(p.Trust.PreviousRegistrySignaturePresent, p.Trust.PreviousProvenancePresent)
	p.Trust.ApplyRegression()

	candidates := repoCandidates(pkgument)
	enrich.Run(ctx, p, candidates, c.Providers, versionTagPattern)

	return nil
}

func previousVersion(p *packument, selected string) string {
	type tv struct {
		version string
		ts      time.Time
	}
	var all []tv
	for v, ts := range p.Time {
		if v == "created" || v == "modified" {
			continue
		}
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			continue
		}
		all = append(all, tv{v, t})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ts.Before(all[j].ts) })

	for i, e := range all {
		if e.version == selected && i > 0 {
			return all[i-1].version
		}
	}
	return ""
}

func repoCandidates(p *packument) []enrich.Candidate {
	var out []enrich.Candidate

	if len(p.Repo) > 0 {
		var asString string
		if err := json.Unmarshal(p.Repo, &asString); err == nil && asString != "" {
			out = append(out, enrich.Candidate{URL: asString, Source: "npm_repository_field"})
		} else {
			var asObj struct {
				URL       string `json:"url"`
				Directory string `json:"directory"`
			}
			if err := json.Unmarshal(p.Repo, &asObj); err == nil && asObj.URL != "" {
				out = append(out, enrich.Candidate{URL: asObj.URL, Source: "npm_repository_field"})
			}
		}
	}
	if p.Homepage != "" {
		out = append(out, enrich.Candidate{URL: p.Homepage, Source: "npm_homepage_field"})
	}
	if len(p.Bugs) > 0 {
		var asString string
		if err := json.Unmarshal(p.Bugs, &asString); err == nil && asString != "" {
			out = append(out, enrich.Candidate{URL: asString, Source: "npm_bugs_field"})
		} else {
			var asObj struct {
				URL string `json:"url"`
			}
			if err := json.Unmarshal(p.Bugs, &asObj); err == nil && asObj.URL != "" {
				out = append(out, enrich.Candidate{URL: asObj.URL, Source: "npm_bugs_field"})
			}
		}
	}
	return out
}
