package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"

	domainpolicy "github.com/depgate-dev/depgate/internal/domain/policy"
)

// ParseSetFlags turns a batch of "--set a.b.c=value" assignments into the
// highest-precedence PolicyLayers.Overrides layer. Each assignment builds
// a dotted path into a shared tree; the tree is then marshaled to YAML
// and unmarshaled through domainpolicy.Config so RuleSpec's tagged-union
// decoding applies identically to --set as it does to a config file.
func ParseSetFlags(sets []string) (domainpolicy.Config, error) {
	tree := map[string]interface{}{}
	for _, assignment := range sets {
		if err := applySetFlag(tree, assignment); err != nil {
			return domainpolicy.Config{}, err
		}
	}

	raw, err := yaml.Marshal(tree)
	if err != nil {
		return domainpolicy.Config{}, fmt.Errorf("encoding --set overrides: %w", err)
	}

	var cfg domainpolicy.Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return domainpolicy.Config{}, fmt.Errorf("decoding --set overrides: %w", err)
	}
	return cfg, nil
}

func applySetFlag(tree map[string]interface{}, assignment string) error {
	key, value, ok := strings.Cut(assignment, "=")
	if !ok {
		return fmt.Errorf("invalid --set %q: expected key=value", assignment)
	}
	segments := strings.Split(key, ".")
	if len(segments) == 0 || segments[0] == "" {
		return fmt.Errorf("invalid --set %q: empty key", assignment)
	}

	node := tree
	for _, seg := range segments[:len(segments)-1] {
		next, ok := node[seg].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			node[seg] = next
		}
		node = next
	}
	node[segments[len(segments)-1]] = parseSetValue(value)
	return nil
}

// parseSetValue coerces a --set value into the most specific scalar it
// looks like, falling back to the raw string so free-text values (regex
// patterns, license names) are never mangled.
func parseSetValue(raw string) interface{} {
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}
