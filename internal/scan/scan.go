// Package scan ties the per-ecosystem source scanners together behind one
// interface, mirroring internal/registry's Client/Registry split so callers
// don't need an ecosystem switch of their own.
package scan

import (
	"github.com/spf13/afero"

	"github.com/depgate-dev/depgate/internal/domain"
)

// Options controls how a Scanner walks a project directory (§4.7).
type Options struct {
	Dir             string
	Recursive       bool
	DirectOnly      bool // ignored unless a lockfile closure is available
	RequireLockfile bool
}

// Entry is one discovered dependency: a name plus whatever version spec the
// manifest or lockfile pinned it to ("" when unpinned/"latest").
type Entry struct {
	Name    string
	RawSpec string
	// Source records which file produced this entry, e.g. "package.json",
	// "package-lock.json", "pom.xml" — useful for diagnostics, not identity.
	Source string
}

// Scanner discovers dependency identifiers for one ecosystem.
type Scanner interface {
	Scan(fsys afero.Fs, opts Options) ([]Entry, error)
}

// Registry maps an ecosystem to its Scanner.
type Registry map[domain.Ecosystem]Scanner

// For returns the scanner registered for eco, or nil if unconfigured.
func (r Registry) For(eco domain.Ecosystem) Scanner {
	return r[eco]
}

// Dedup removes duplicate entries by Name, keeping the first occurrence
// (manifests are scanned before lockfiles so direct pins win).
func Dedup(entries []Entry) []Entry {
	seen := make(map[string]bool, len(entries))
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if seen[e.Name] {
			continue
		}
		seen[e.Name] = true
		out = append(out, e)
	}
	return out
}
