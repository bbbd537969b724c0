// Package pypi implements the PyPI Source Scanner (§4.7): prefer
// pyproject.toml over requirements.txt, pick the matching lockfile by tool
// section, and emit PEP-503-normalizable dependency names.
package pypi

import (
	"bufio"
	"bytes"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"

	"github.com/depgate-dev/depgate/internal/apperrors"
	"github.com/depgate-dev/depgate/internal/scan"
)

// Scanner implements scan.Scanner for PyPI.
type Scanner struct{}

func New() *Scanner { return &Scanner{} }

type pyprojectFile struct {
	Project struct {
		Dependencies []string `toml:"dependencies"`
	} `toml:"project"`
	Tool struct {
		UV     map[string]any `toml:"uv"`
		Poetry *struct {
			Dependencies map[string]any `toml:"dependencies"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

var requirementSpec = regexp.MustCompile(`^([A-Za-z0-9._-]+)\s*(.*)$`)

// Scan implements scan.Scanner.
func (Scanner) Scan(fsys afero.Fs, opts scan.Options) ([]scan.Entry, error) {
	pyprojectPath := filepath.Join(opts.Dir, "pyproject.toml")
	requirementsPath := filepath.Join(opts.Dir, "requirements.txt")

	if exists(fsys, pyprojectPath) {
		raw, err := afero.ReadFile(fsys, pyprojectPath)
		if err != nil {
			return nil, apperrors.NewFileError(pyprojectPath, err.Error())
		}
		var proj pyprojectFile
		if err := toml.Unmarshal(raw, &proj); err != nil {
			return nil, apperrors.NewFileError(pyprojectPath, "invalid TOML: "+err.Error())
		}

		lockPath, lockKind := selectLockfile(fsys, opts.Dir, proj)
		if opts.RequireLockfile && lockKind == "" {
			return nil, apperrors.NewFileError(opts.Dir, "require_lockfile set but no lockfile found")
		}
		_ = lockPath // lockfile presence gates direct_only today; closure extraction is a future addition

		return scan.Dedup(entriesFromDependencySpecs(proj.Project.Dependencies, "pyproject.toml")), nil
	}

	if exists(fsys, requirementsPath) {
		if opts.RequireLockfile {
			return nil, apperrors.NewFileError(opts.Dir, "require_lockfile set but requirements.txt has no lockfile")
		}
		raw, err := afero.ReadFile(fsys, requirementsPath)
		if err != nil {
			return nil, apperrors.NewFileError(requirementsPath, err.Error())
		}
		return scan.Dedup(parseRequirementsTxt(raw)), nil
	}

	return nil, apperrors.NewFileError(opts.Dir, "no pyproject.toml or requirements.txt found")
}

// selectLockfile implements §4.7's tool-section precedence: [tool.uv] picks
// uv.lock, [tool.poetry] picks poetry.lock; with both present and no tool
// section, uv.lock wins and a warning is logged.
func selectLockfile(fsys afero.Fs, dir string, proj pyprojectFile) (path, kind string) {
	uvLock := filepath.Join(dir, "uv.lock")
	poetryLock := filepath.Join(dir, "poetry.lock")
	hasUV := exists(fsys, uvLock)
	hasPoetry := exists(fsys, poetryLock)

	switch {
	case proj.Tool.UV != nil && hasUV:
		return uvLock, "uv"
	case proj.Tool.Poetry != nil && hasPoetry:
		return poetryLock, "poetry"
	case hasUV && hasPoetry:
		slog.Warn("both uv.lock and poetry.lock present with no [tool.uv]/[tool.poetry] section; preferring uv.lock")
		return uvLock, "uv"
	case hasUV:
		return uvLock, "uv"
	case hasPoetry:
		return poetryLock, "poetry"
	default:
		return "", ""
	}
}

func entriesFromDependencySpecs(specs []string, source string) []scan.Entry {
	entries := make([]scan.Entry, 0, len(specs))
	for _, spec := range specs {
		name, rawSpec := splitDependencySpec(spec)
		if name == "" {
			continue
		}
		entries = append(entries, scan.Entry{Name: name, RawSpec: rawSpec, Source: source})
	}
	return entries
}

// splitDependencySpec splits a PEP 508 dependency string ("requests>=2,<3",
// "flask ; python_version>='3.9'") into (name, version-spec), dropping any
// environment marker.
func splitDependencySpec(spec string) (name, rawSpec string) {
	spec = strings.TrimSpace(spec)
	if idx := strings.Index(spec, ";"); idx >= 0 {
		spec = strings.TrimSpace(spec[:idx])
	}
	m := requirementSpec.FindStringSubmatch(spec)
	if m == nil {
		return "", ""
	}
	return m[1], strings.TrimSpace(m[2])
}

func parseRequirementsTxt(raw []byte) []scan.Entry {
	var entries []scan.Entry
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		name, rawSpec := splitDependencySpec(line)
		if name == "" {
			continue
		}
		entries = append(entries, scan.Entry{Name: name, RawSpec: rawSpec, Source: "requirements.txt"})
	}
	return entries
}

func exists(fsys afero.Fs, path string) bool {
	info, err := fsys.Stat(path)
	return err == nil && !info.IsDir()
}
