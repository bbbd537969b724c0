// Package pypi implements the PyPI registry client: JSON API metadata,
// Simple API trust signals, pypistats weekly downloads, and Read-the-Docs
// repository-candidate resolution, per §4.2.
package pypi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/depgate-dev/depgate/internal/apperrors"
	"github.com/depgate-dev/depgate/internal/domain"
	"github.com/depgate-dev/depgate/internal/repository/enrich"
	"github.com/depgate-dev/depgate/internal/resolve/pypiver"
)

const (
	jsonAPIBase   = "https://pypi.org/pypi"
	simpleAPIBase = "https://pypi.org/simple"
	statsAPIBase  = "https://pypistats.org/api/packages"
)

// Client fetches PyPI package metadata.
type Client struct {
	HTTPClient *http.Client
	Providers  enrich.Providers
}

func New(providers enrich.Providers) *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Providers:  providers,
	}
}

type jsonAPIResponse struct {
	Info struct {
		Version      string            `json:"version"`
		ProjectURLs  map[string]string `json:"project_urls"`
		LicenseField string            `json:"license"`
	} `json:"info"`
	Releases map[string][]struct {
		UploadTimeISO8601 string `json:"upload_time_iso_8601"`
	} `json:"releases"`
}

func (c *Client) FetchCandidates(ctx context.Context, normalizedName string) ([]string, error) {
	resp, err := c.fetchJSON(ctx, normalizedName)
	if err != nil {
		return nil, err
	}
	versions := make([]string, 0, len(resp.Releases))
	for v := range resp.Releases {
		versions = append(versions, v)
	}
	return versions, nil
}

func (c *Client) fetchJSON(ctx context.Context, name string) (*jsonAPIResponse, error) {
	url := fmt.Sprintf("%s/%s/json", jsonAPIBase, pypiver.NormalizeName(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.NewParseError("pypi.fetch", name, err)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, apperrors.NewNetworkError("pypi.fetch", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, apperrors.NewNotFoundError("pypi.fetch", name)
	}
	if resp.StatusCode >= 400 {
		return nil, apperrors.NewNetworkError("pypi.fetch", url, fmt.Errorf("status %d", resp.StatusCode))
	}

	var out jsonAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperrors.NewParseError("pypi.decode", name, err)
	}
	return &out, nil
}

type simpleAPIResponse struct {
	Files []struct {
		GPGSig     bool `json:"gpg-sig"`
		Provenance *struct {
			URL string `json:"url"`
		} `json:"provenance"`
	} `json:"files"`
}

func (c *Client) fetchSimple(ctx context.Context, name string) (*simpleAPIResponse, error) {
	url := fmt.Sprintf("%s/%s/", simpleAPIBase, pypiver.NormalizeName(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.NewParseError("pypi.simple", name, err)
	}
	req.Header.Set("Accept", "application/vnd.pypi.simple.v1+json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, apperrors.NewNetworkError("pypi.simple", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, apperrors.NewNetworkError("pypi.simple", url, fmt.Errorf("status %d", resp.StatusCode))
	}
	var out simpleAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperrors.NewParseError("pypi.simple.decode", name, err)
	}
	return &out, nil
}

type statsResponse struct {
	Data struct {
		LastWeek int64 `json:"last_week"`
	} `json:"data"`
}

func (c *Client) fetchWeeklyDownloads(ctx context.Context, name string) (int64, error) {
	url := fmt.Sprintf("%s/%s/recent", statsAPIBase, pypiver.NormalizeName(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("status %d", resp.StatusCode)
	}
	var out statsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.Data.LastWeek, nil
}

// Enrich populates p with registry facts, trust signals, and repository
// discovery (including Read-the-Docs slug resolution).
func (c *Client) Enrich(ctx context.Context, p *domain.Package, versionTagPattern string) error {
	resp, err := c.fetchJSON(ctx, p.Name)
	if err != nil {
		if _, ok := err.(*apperrors.NotFoundError); ok {
			p.Exists = domain.BoolPtr(false)
			return nil
		}
		return err
	}

	p.Exists = domain.BoolPtr(true)
	p.VersionCount = domain.IntPtr(len(resp.Releases))

	selected := p.ResolvedVersion
	if selected == "" {
		selected = resp.Info.Version
	}
	if releases, ok := resp.Releases[selected]; ok && len(releases) > 0 {
		if t, err := time.Parse(time.RFC3339, releases[0].UploadTimeISO8601); err == nil {
			p.ReleaseTimestampMs = domain.Int64Ptr(t.UnixMilli())
		}
	}

	if resp.Info.LicenseField != "" {
		p.License = domain.License{ID: resp.Info.LicenseField, Source: "pypi_info_license", Available: true}
	}

	if downloads, err := c.fetchWeeklyDownloads(ctx, p.Name); err == nil {
		p.WeeklyDownloads = domain.Int64Ptr(downloads)
	}

	if simple, err := c.fetchSimple(ctx, p.Name); err == nil {
		gpg, prov := false, false
		for _, f := range simple.Files {
			if f.GPGSig {
				gpg = true
			}
			if f.Provenance != nil {
				prov = true
			}
		}
		p.Trust.RegistrySignaturePresent = domain.BoolPtr(gpg)
		p.Trust.ProvenancePresent = domain.BoolPtr(prov)
		p.Trust.TrustScore = domain.ComputeTrustScore(p.Trust.RegistrySignaturePresent, p.Trust.ProvenancePresent)
	}

	candidates := c.repoCandidates(ctx, p, resp.Info.ProjectURLs)
	enrich.Run(ctx, p, candidates, c.Providers, versionTagPattern)

	return nil
}

var rtdHostRe = regexp.MustCompile(`(?i)^([a-z0-9-]+)\.readthedocs\.(io|org)$`)

func (c *Client) repoCandidates(ctx context.Context, p *domain.Package, projectURLs map[string]string) []enrich.Candidate {
	var out []enrich.Candidate
	for _, key := range []string{"Source", "Source Code", "Repository", "Homepage"} {
		u, ok := projectURLs[key]
		if !ok || u == "" {
			continue
		}
		if slug := rtdSlug(u); slug != "" {
			if resolved := c.resolveRTDSlug(ctx, slug); resolved != "" {
				p.RecordProvenance("rtd_slug", slug)
				out = append(out, enrich.Candidate{URL: resolved, Source: "pypi_rtd_resolution"})
				continue
			}
		}
		out = append(out, enrich.Candidate{URL: u, Source: "pypi_project_urls." + strings.ToLower(key)})
	}
	return out
}

func rtdSlug(u string) string {
	lower := strings.ToLower(u)
	lower = strings.TrimPrefix(lower, "https://")
	lower = strings.TrimPrefix(lower, "http://")
	host := strings.SplitN(lower, "/", 2)[0]
	if m := rtdHostRe.FindStringSubmatch(host); m != nil {
		return m[1]
	}
	return ""
}

// resolveRTDSlug is a best-effort lookup of a Read-the-Docs project's
// linked VCS repository, via RTD's public API. Any failure returns "" so
// the caller falls back to using the RTD URL itself as a candidate.
func (c *Client) resolveRTDSlug(ctx context.Context, slug string) string {
	url := "https://readthedocs.org/api/v3/projects/" + slug + "/"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ""
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return ""
	}
	var out struct {
		Repository struct {
			URL string `json:"url"`
		} `json:"repository"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ""
	}
	return out.Repository.URL
}
