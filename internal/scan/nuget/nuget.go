// Package nuget implements the NuGet Source Scanner (§4.7): parse .csproj,
// packages.config, project.json, and Directory.Build.props under the root,
// direct dependencies only.
package nuget

import (
	"encoding/json"
	"encoding/xml"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/depgate-dev/depgate/internal/scan"
)

// Scanner implements scan.Scanner for NuGet.
type Scanner struct{}

func New() *Scanner { return &Scanner{} }

// Scan implements scan.Scanner. Lockfile presence (packages.lock.json) does
// not change direct-dependency extraction for NuGet; it only gates
// require_lockfile.
func (Scanner) Scan(fsys afero.Fs, opts scan.Options) ([]scan.Entry, error) {
	files, err := findProjectFiles(fsys, opts.Dir, opts.Recursive)
	if err != nil {
		return nil, err
	}

	if opts.RequireLockfile {
		lockPath := filepath.Join(opts.Dir, "packages.lock.json")
		if !exists(fsys, lockPath) {
			return nil, nil
		}
	}

	var entries []scan.Entry
	for _, path := range files {
		raw, err := afero.ReadFile(fsys, path)
		if err != nil {
			continue
		}
		name := strings.ToLower(filepath.Base(path))
		switch {
		case strings.HasSuffix(name, ".csproj") || name == "directory.build.props":
			entries = append(entries, parseCsproj(raw, path)...)
		case name == "packages.config":
			entries = append(entries, parsePackagesConfig(raw, path)...)
		case name == "project.json":
			entries = append(entries, parseProjectJSON(raw, path)...)
		}
	}
	return scan.Dedup(entries), nil
}

type csprojXML struct {
	ItemGroup []struct {
		PackageReference []struct {
			Include string `xml:"Include,attr"`
			Version string `xml:"Version,attr"`
		} `xml:"PackageReference"`
	} `xml:"ItemGroup"`
}

func parseCsproj(raw []byte, path string) []scan.Entry {
	var proj csprojXML
	if err := xml.Unmarshal(raw, &proj); err != nil {
		return nil
	}
	var entries []scan.Entry
	for _, group := range proj.ItemGroup {
		for _, ref := range group.PackageReference {
			if ref.Include == "" {
				continue
			}
			entries = append(entries, scan.Entry{Name: ref.Include, RawSpec: ref.Version, Source: filepath.Base(path)})
		}
	}
	return entries
}

type packagesConfigXML struct {
	Package []struct {
		ID      string `xml:"id,attr"`
		Version string `xml:"version,attr"`
	} `xml:"package"`
}

func parsePackagesConfig(raw []byte, path string) []scan.Entry {
	var cfg packagesConfigXML
	if err := xml.Unmarshal(raw, &cfg); err != nil {
		return nil
	}
	var entries []scan.Entry
	for _, pkg := range cfg.Package {
		if pkg.ID == "" {
			continue
		}
		entries = append(entries, scan.Entry{Name: pkg.ID, RawSpec: pkg.Version, Source: filepath.Base(path)})
	}
	return entries
}

type projectJSON struct {
	Dependencies map[string]json.RawMessage `json:"dependencies"`
}

func parseProjectJSON(raw []byte, path string) []scan.Entry {
	var pj projectJSON
	if err := json.Unmarshal(raw, &pj); err != nil {
		return nil
	}
	var entries []scan.Entry
	for name, specRaw := range pj.Dependencies {
		spec := projectJSONVersion(specRaw)
		entries = append(entries, scan.Entry{Name: name, RawSpec: spec, Source: filepath.Base(path)})
	}
	return entries
}

// projectJSONVersion handles both shorthand ("1.0.0") and object
// ({"version": "1.0.0"}) dependency value forms.
func projectJSONVersion(raw json.RawMessage) string {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	var asObject struct {
		Version string `json:"version"`
	}
	_ = json.Unmarshal(raw, &asObject)
	return asObject.Version
}

func findProjectFiles(fsys afero.Fs, dir string, recursive bool) ([]string, error) {
	var files []string
	walkDir := afero.Walk
	visit := func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if !recursive && path != dir {
				return fs.SkipDir
			}
			return nil
		}
		name := strings.ToLower(info.Name())
		if strings.HasSuffix(name, ".csproj") || name == "packages.config" || name == "project.json" || name == "directory.build.props" {
			files = append(files, path)
		}
		return nil
	}
	if err := walkDir(fsys, dir, visit); err != nil {
		return nil, err
	}
	return files, nil
}

func exists(fsys afero.Fs, path string) bool {
	info, err := fsys.Stat(path)
	return err == nil && !info.IsDir()
}
