// Package maven implements the Maven Source Scanner (§4.7): parse every
// <dependency> under every <dependencies> in pom.xml, stripping namespaces
// first so namespaced POMs still traverse cleanly.
package maven

import (
	"bytes"
	"encoding/xml"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/depgate-dev/depgate/internal/apperrors"
	"github.com/depgate-dev/depgate/internal/scan"
)

// Scanner implements scan.Scanner for Maven.
type Scanner struct{}

func New() *Scanner { return &Scanner{} }

type pomXML struct {
	XMLName      xml.Name `xml:"project"`
	Dependencies []struct {
		Dependency []struct {
			GroupID    string `xml:"groupId"`
			ArtifactID string `xml:"artifactId"`
			Version    string `xml:"version"`
		} `xml:"dependency"`
	} `xml:"dependencies"`
}

// Scan implements scan.Scanner. An invalid pom.xml is non-fatal: it yields
// an empty list rather than an error, per §4.7.
func (Scanner) Scan(fsys afero.Fs, opts scan.Options) ([]scan.Entry, error) {
	pomPath := filepath.Join(opts.Dir, "pom.xml")
	raw, err := afero.ReadFile(fsys, pomPath)
	if err != nil {
		if opts.RequireLockfile {
			return nil, apperrors.NewFileError(pomPath, "pom.xml not found")
		}
		return nil, nil
	}

	stripped := stripNamespaces(raw)

	var pom pomXML
	if err := xml.Unmarshal(stripped, &pom); err != nil {
		return nil, nil // malformed XML: empty list, non-fatal
	}

	var entries []scan.Entry
	for _, block := range pom.Dependencies {
		for _, dep := range block.Dependency {
			if dep.GroupID == "" || dep.ArtifactID == "" {
				continue
			}
			entries = append(entries, scan.Entry{
				Name:    dep.GroupID + ":" + dep.ArtifactID,
				RawSpec: dep.Version,
				Source:  "pom.xml",
			})
		}
	}
	return scan.Dedup(entries), nil
}

// stripNamespaces removes xmlns declarations and namespace prefixes so
// encoding/xml's element-name matching (which is namespace-aware) still
// matches a bare "dependency" tag regardless of the POM's declared
// namespace. This is a textual strip, not a full XML-aware rewrite, but
// POMs don't mix namespaces within the dependency tree in practice.
func stripNamespaces(raw []byte) []byte {
	d := xml.NewDecoder(bytes.NewReader(raw))
	d.Strict = false
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	for {
		tok, err := d.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			t.Name.Space = ""
			for i := range t.Attr {
				if t.Attr[i].Name.Space == "xmlns" || t.Attr[i].Name.Local == "xmlns" {
					continue
				}
				t.Attr[i].Name.Space = ""
			}
			_ = enc.EncodeToken(t)
		case xml.EndElement:
			t.Name.Space = ""
			_ = enc.EncodeToken(t)
		default:
			_ = enc.EncodeToken(tok)
		}
	}
	_ = enc.Flush()
	return buf.Bytes()
}
