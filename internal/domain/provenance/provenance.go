// Package provenance tracks which raw source populated each attribute of a
// Package record, keyed by dotted attribute path (e.g.
// "repo_stars" -> "github_api", "license.id" -> "npm_registry").
package provenance

import "sync"

// Map is a concurrency-safe dotted-key provenance ledger.
type Map struct {
	mu      sync.RWMutex
	sources map[string]string
}

// New returns an empty provenance Map.
func New() *Map {
	return &Map{sources: make(map[string]string)}
}

// Set records that key's value came from source. A later Set for the same
// key overwrites the earlier source, reflecting the last writer in the
// resolve -> registry -> enrich -> heuristics -> policy pipeline.
func (m *Map) Set(key, source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[key] = source
}

// Get returns the recorded source for key, and whether one was recorded.
func (m *Map) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src, ok := m.sources[key]
	return src, ok
}

// Snapshot returns a defensive copy of the full key->source map, suitable
// for embedding in a JSON report.
func (m *Map) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.sources))
	for k, v := range m.sources {
		out[k] = v
	}
	return out
}
