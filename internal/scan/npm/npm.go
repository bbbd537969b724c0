// Package npm implements the npm Source Scanner (§4.7): discover
// package.json and, when present, one of package-lock.json (v1/v2/v3),
// yarn.lock, or bun.lock, and emit a deduplicated dependency list.
package npm

import (
	"encoding/json"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/depgate-dev/depgate/internal/apperrors"
	"github.com/depgate-dev/depgate/internal/scan"
)

// Scanner implements scan.Scanner for npm.
type Scanner struct{}

func New() *Scanner { return &Scanner{} }

type packageJSON struct {
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// Scan implements scan.Scanner.
func (Scanner) Scan(fsys afero.Fs, opts scan.Options) ([]scan.Entry, error) {
	manifestPath := filepath.Join(opts.Dir, "package.json")
	manifestBytes, err := afero.ReadFile(fsys, manifestPath)
	if err != nil {
		return nil, apperrors.NewFileError(manifestPath, "package.json not found")
	}
	var pkg packageJSON
	if err := json.Unmarshal(manifestBytes, &pkg); err != nil {
		return nil, apperrors.NewFileError(manifestPath, "invalid JSON: "+err.Error())
	}

	lockPath, lockKind := findLockfile(fsys, opts.Dir)
	if opts.RequireLockfile && lockKind == "" {
		return nil, apperrors.NewFileError(opts.Dir, "require_lockfile set but no lockfile found")
	}

	if lockKind != "" && !opts.DirectOnly {
		closure, err := closureFromLockfile(fsys, lockPath, lockKind)
		if err != nil {
			return nil, err
		}
		if len(closure) > 0 {
			return scan.Dedup(closure), nil
		}
	}

	entries := manifestEntries(pkg)
	return scan.Dedup(entries), nil
}

func manifestEntries(pkg packageJSON) []scan.Entry {
	names := make([]string, 0, len(pkg.Dependencies)+len(pkg.DevDependencies))
	specs := make(map[string]string, len(names))
	for name, spec := range pkg.Dependencies {
		names = append(names, name)
		specs[name] = spec
	}
	for name, spec := range pkg.DevDependencies {
		if _, ok := specs[name]; ok {
			continue
		}
		names = append(names, name)
		specs[name] = spec
	}
	sort.Strings(names)

	entries := make([]scan.Entry, 0, len(names))
	for _, name := range names {
		entries = append(entries, scan.Entry{Name: name, RawSpec: specs[name], Source: "package.json"})
	}
	return entries
}

func findLockfile(fsys afero.Fs, dir string) (path, kind string) {
	candidates := []struct {
		file, kind string
	}{
		{"package-lock.json", "npm"},
		{"yarn.lock", "yarn"},
		{"bun.lock", "bun"},
	}
	for _, c := range candidates {
		p := filepath.Join(dir, c.file)
		if exists(fsys, p) {
			return p, c.kind
		}
	}
	return "", ""
}

func exists(fsys afero.Fs, path string) bool {
	info, err := fsys.Stat(path)
	return err == nil && !info.IsDir()
}

func closureFromLockfile(fsys afero.Fs, path, kind string) ([]scan.Entry, error) {
	raw, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, apperrors.NewFileError(path, err.Error())
	}
	switch kind {
	case "npm":
		return parseNpmLock(raw, path)
	case "yarn":
		return parseYarnLock(raw), nil
	case "bun":
		return parseBunLock(raw, path)
	default:
		return nil, nil
	}
}

type npmLockV2 struct {
	LockfileVersion int                       `json:"lockfileVersion"`
	Packages        map[string]npmLockPackage `json:"packages"`
	Dependencies    map[string]npmLockDepV1   `json:"dependencies"`
}

type npmLockPackage struct {
	Version string `json:"version"`
}

type npmLockDepV1 struct {
	Version      string                  `json:"version"`
	Dependencies map[string]npmLockDepV1 `json:"dependencies"`
}

// parseNpmLock extracts the full transitive closure from package-lock.json,
// excluding the root package itself. v2/v3 lockfiles key every install
// location under "packages" as "node_modules/a/node_modules/b"; v1 nests
// a "dependencies" tree instead.
func parseNpmLock(raw []byte, path string) ([]scan.Entry, error) {
	var lock npmLockV2
	if err := json.Unmarshal(raw, &lock); err != nil {
		return nil, apperrors.NewFileError(path, "invalid JSON: "+err.Error())
	}

	if len(lock.Packages) > 0 {
		var entries []scan.Entry
		for key, pkg := range lock.Packages {
			if key == "" {
				continue // the root package
			}
			name := lastNodeModulesSegment(key)
			if name == "" {
				continue
			}
			entries = append(entries, scan.Entry{Name: name, RawSpec: pkg.Version, Source: "package-lock.json"})
		}
		return entries, nil
	}

	var entries []scan.Entry
	var walk func(deps map[string]npmLockDepV1)
	walk = func(deps map[string]npmLockDepV1) {
		for name, dep := range deps {
			entries = append(entries, scan.Entry{Name: name, RawSpec: dep.Version, Source: "package-lock.json"})
			if len(dep.Dependencies) > 0 {
				walk(dep.Dependencies)
			}
		}
	}
	walk(lock.Dependencies)
	return entries, nil
}

// lastNodeModulesSegment pulls "name" (or "@scope/name") out of a
// package-lock v2/v3 packages key like "node_modules/foo" or
// "node_modules/@scope/foo/node_modules/bar".
func lastNodeModulesSegment(key string) string {
	idx := strings.LastIndex(key, "node_modules/")
	if idx < 0 {
		return ""
	}
	rest := key[idx+len("node_modules/"):]
	if strings.HasPrefix(rest, "@") {
		parts := strings.SplitN(rest, "/", 3)
		if len(parts) >= 2 {
			return parts[0] + "/" + parts[1]
		}
		return rest
	}
	parts := strings.SplitN(rest, "/", 2)
	return parts[0]
}

// parseYarnLock does a line-oriented scan of yarn.lock's block format:
//
//	name@range[, name@range2...]:
//	  version "1.2.3"
//
// Scoped names (@scope/name@range) are handled the same way; only the name
// before the last unescaped '@' is taken as the package name.
func parseYarnLock(raw []byte) []scan.Entry {
	var entries []scan.Entry
	lines := strings.Split(string(raw), "\n")
	var pendingNames []string
	for _, line := range lines {
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}
		if !strings.HasPrefix(line, " ") && strings.HasSuffix(strings.TrimSpace(line), ":") {
			header := strings.TrimSuffix(strings.TrimSpace(line), ":")
			header = strings.Trim(header, `"`)
			pendingNames = nil
			for _, spec := range strings.Split(header, ", ") {
				spec = strings.Trim(spec, `"`)
				if name := yarnSpecName(spec); name != "" {
					pendingNames = append(pendingNames, name)
				}
			}
			continue
		}
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "version ") && len(pendingNames) > 0 {
			version := strings.Trim(strings.TrimPrefix(trimmed, "version "), `"`)
			for _, name := range pendingNames {
				entries = append(entries, scan.Entry{Name: name, RawSpec: version, Source: "yarn.lock"})
			}
			pendingNames = nil
		}
	}
	return entries
}

func yarnSpecName(spec string) string {
	if strings.HasPrefix(spec, "@") {
		idx := strings.Index(spec[1:], "@")
		if idx < 0 {
			return ""
		}
		return spec[:idx+1]
	}
	idx := strings.Index(spec, "@")
	if idx < 0 {
		return spec
	}
	return spec[:idx]
}

type bunLock struct {
	Packages map[string][]json.RawMessage `json:"packages"`
}

// parseBunLock reads bun.lock's JSONC "packages" map, keyed
// "name@version" with a tuple value whose shape we don't otherwise need.
func parseBunLock(raw []byte, path string) ([]scan.Entry, error) {
	var lock bunLock
	if err := json.Unmarshal(stripJSONComments(raw), &lock); err != nil {
		return nil, apperrors.NewFileError(path, "invalid bun.lock: "+err.Error())
	}
	var entries []scan.Entry
	for key := range lock.Packages {
		name, version := splitBunKey(key)
		if name == "" {
			continue
		}
		entries = append(entries, scan.Entry{Name: name, RawSpec: version, Source: "bun.lock"})
	}
	return entries, nil
}

func splitBunKey(key string) (name, version string) {
	if strings.HasPrefix(key, "@") {
		idx := strings.Index(key[1:], "@")
		if idx < 0 {
			return key, ""
		}
		return key[:idx+1], key[idx+2:]
	}
	idx := strings.LastIndex(key, "@")
	if idx < 0 {
		return key, ""
	}
	return key[:idx], key[idx+1:]
}

// stripJSONComments removes // line comments so bun.lock's JSONC can be fed
// to encoding/json. Not a general JSONC parser: sufficient for the
// line-comment style bun emits.
func stripJSONComments(raw []byte) []byte {
	lines := strings.Split(string(raw), "\n")
	for i, line := range lines {
		if idx := strings.Index(line, "//"); idx >= 0 {
			lines[i] = line[:idx]
		}
	}
	return []byte(strings.Join(lines, "\n"))
}
