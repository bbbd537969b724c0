// Package config loads DepGate's user configuration file and --set
// overrides, and validates the on-disk document against a JSON Schema
// before it ever reaches the policy merge.
package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	domainpolicy "github.com/depgate-dev/depgate/internal/domain/policy"
)

// UserConfig is the document a --config YAML file parses into: the
// user's policy layer plus the registry endpoint overrides and proxy
// defaults §6 allows alongside it.
type UserConfig struct {
	Policy     domainpolicy.Config       `yaml:"policy,omitempty"`
	Registries map[string]RegistryConfig `yaml:"registries,omitempty"`
	Proxy      ProxyConfig               `yaml:"proxy,omitempty"`
}

// RegistryConfig overrides a single ecosystem's upstream registry URL.
type RegistryConfig struct {
	URL string `yaml:"url,omitempty"`
}

// ProxyConfig holds the proxy subcommand's configurable defaults.
type ProxyConfig struct {
	Host               string `yaml:"host,omitempty"`
	Port               int    `yaml:"port,omitempty"`
	DecisionMode       string `yaml:"decision_mode,omitempty"`
	CacheTTLSeconds    int    `yaml:"cache_ttl_seconds,omitempty"`
	ResponseCacheTTLMS int    `yaml:"response_cache_ttl_ms,omitempty"`
	TimeoutSeconds     int    `yaml:"timeout_seconds,omitempty"`
}

// Default returns an empty UserConfig, the merge identity: every field
// is a MergePolicy no-op until overridden by a loaded file or a --set.
func Default() *UserConfig {
	return &UserConfig{}
}

// Load reads and validates a YAML config file at path. An empty path is
// not an error: it returns Default().
func Load(path string) (*UserConfig, error) {
	if path == "" {
		return Default(), nil
	}

	//nolint:gosec // G304: path is an explicit, user-provided --config flag
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", path, err)
	}

	if err := ValidateSchema(data); err != nil {
		return nil, fmt.Errorf("config file %q failed schema validation: %w", path, err)
	}

	var cfg UserConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}
	return &cfg, nil
}
