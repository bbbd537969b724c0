// Package nuget implements the NuGet registry client: V3 registration
// index (preferred) with V2 OData fallback, per §4.2.
package nuget

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/depgate-dev/depgate/internal/apperrors"
	"github.com/depgate-dev/depgate/internal/domain"
	"github.com/depgate-dev/depgate/internal/repository/enrich"
)

const (
	v3IndexBase = "https://api.nuget.org/v3/registration5-semver1"
	v2ODataBase = "https://www.nuget.org/api/v2"
)

// Client fetches NuGet package metadata.
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

func lowerID(id string) string { return strings.ToLower(id) }

type v3RegistrationIndex struct {
	Items []struct {
		Items []struct {
			CatalogEntry catalogEntry `json:"catalogEntry"`
		} `json:"items"`
	} `json:"items"`
}

type catalogEntry struct {
	Version           string      `json:"version"`
	Published         string      `json:"published"`
	ProjectURL        string      `json:"projectUrl"`
	RepositoryURL     json.RawMessage `json:"repositoryUrl"`
	LicenseURL        string      `json:"licenseUrl"`
	License           json.RawMessage `json:"license"`
	RepositorySignaturesAllRepositorySigned *bool `json:"repositorySignaturesAllRepositorySigned"`
}

func (c *Client) fetchV3(ctx context.Context, id string) (*v3RegistrationIndex, error) {
	url := fmt.Sprintf("%s/%s/index.json", v3IndexBase, lowerID(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.NewParseError("nuget.v3", id, err)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, apperrors.NewNetworkError("nuget.v3", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, apperrors.NewNotFoundError("nuget.v3", id)
	}
	if resp.StatusCode >= 400 {
		return nil, apperrors.NewNetworkError("nuget.v3", url, fmt.Errorf("status %d", resp.StatusCode))
	}

	var out v3RegistrationIndex
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperrors.NewParseError("nuget.v3.decode", id, err)
	}
	return &out, nil
}

type v2Feed struct {
	Entries []struct {
		Properties struct {
			Version string `xml:"Version"`
		} `xml:"properties"`
	} `xml:"entry"`
}

func (c *Client) fetchV2(ctx context.Context, id string) (*v2Feed, error) {
	url := fmt.Sprintf("%s/Packages()?$filter=tolower(Id)%%20eq%%20'%s'", v2ODataBase, lowerID(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.NewParseError("nuget.v2", id, err)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, apperrors.NewNetworkError("nuget.v2", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, apperrors.NewNetworkError("nuget.v2", url, fmt.Errorf("status %d", resp.StatusCode))
	}
	var out v2Feed
	dec := xml.NewDecoder(resp.Body)
	dec.Strict = false
	if err := dec.Decode(&out); err != nil {
		return nil, apperrors.NewParseError("nuget.v2.decode", id, err)
	}
	return &out, nil
}

func (c *Client) allEntries(ctx context.Context, id string) ([]catalogEntry, error) {
	idx, err := c.fetchV3(ctx, id)
	if err == nil {
		var entries []catalogEntry
		for _, page := range idx.Items {
			for _, item := range page.Items {
				entries = append(entries, item.CatalogEntry)
			}
		}
		if len(entries) > 0 {
			return entries, nil
		}
	}
	if _, ok := err.(*apperrors.NotFoundError); ok {
		return nil, err
	}

	feed, verr := c.fetchV2(ctx, id)
	if verr != nil {
		if err != nil {
			return nil, err
		}
		return nil, verr
	}
	entries := make([]catalogEntry, len(feed.Entries))
	for i, e := range feed.Entries {
		entries[i] = catalogEntry{Version: e.Properties.Version}
	}
	return entries, nil
}

func (c *Client) FetchCandidates(ctx context.Context, id string) ([]string, error) {
	entries, err := c.allEntries(ctx, id)
	if err != nil {
		return nil, err
	}
	versions := make([]string, len(entries))
	for i, e := range entries {
		versions[i] = e.Version
	}
	return versions, nil
}

// Enrich populates p with registry facts, license, and repository
// discovery.
func (c *Client) Enrich(ctx context.Context, p *domain.Package, versionTagPattern string) error {
	entries, err := c.allEntries(ctx, p.Name)
	if err != nil {
		if _, ok := err.(*apperrors.NotFoundError); ok {
			p.Exists = domain.BoolPtr(false)
			return nil
		}
		return err
	}
	if len(entries) == 0 {
		p.Exists = domain.BoolPtr(false)
		return nil
	}
	p.Exists = domain.BoolPtr(true)
	p.VersionCount = domain.IntPtr(len(entries))

	var selected *catalogEntry
	for i := range entries {
		if entries[i].Version == p.ResolvedVersion {
			selected = &entries[i]
			break
		}
	}
	if selected == nil {
		selected = &entries[len(entries)-1]
	}

	if selected.Published != "" {
		if t, err := time.Parse(time.RFC3339, selected.Published); err == nil {
			p.ReleaseTimestampMs = domain.Int64Ptr(t.UnixMilli())
		}
	}

	licenseID := parseLicense(selected.License)
	if licenseID != "" {
		p.License = domain.License{ID: licenseID, Source: "nuget_license_expression", Available: true, URL: selected.LicenseURL}
	} else if selected.LicenseURL != "" {
		p.License = domain.License{Source: "nuget_license_url", Available: true, URL: selected.LicenseURL}
	}

	if selected.RepositorySignaturesAllRepositorySigned != nil {
		p.Trust.RegistrySignaturePresent = selected.RepositorySignaturesAllRepositorySigned
		p.Trust.TrustScore = domain.ComputeTrustScore(p.Trust.RegistrySignaturePresent)
	}

	repoURL := parseRepositoryURL(selected.RepositoryURL)
	var candidates []enrich.Candidate
	if repoURL != "" {
		candidates = append(candidates, enrich.Candidate{URL: repoURL, Source: "nuget_repository_url"})
	}
	if selected.ProjectURL != "" {
		candidates = append(candidates, enrich.Candidate{URL: selected.ProjectURL, Source: "nuget_project_url"})
	}
	enrich.Run(ctx, p, candidates, c.Providers, versionTagPattern)

	return nil
}

// parseRepositoryURL accepts both wire shapes NuGet has used historically:
// a bare string, or an object carrying {"url": "..."}.
func parseRepositoryURL(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	var asObj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &asObj); err == nil {
		return asObj.URL
	}
	return ""
}

func parseLicense(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	var asObj struct {
		Type       string `json:"type"`
		Expression string `json:"expression"`
	}
	if err := json.Unmarshal(raw, &asObj); err == nil {
		if asObj.Expression != "" {
			return asObj.Expression
		}
		return asObj.Type
	}
	return ""
}
