package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Load_EmptyPathReturnsDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func Test_Load_ValidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "depgate.yaml")
	doc := `
policy:
  fail_fast: true
  rules:
    - type: metrics
      metrics:
        stars_count:
          min: 5
registries:
  npm:
    url: https://registry.internal.example/npm
proxy:
  host: 127.0.0.1
  port: 8081
  decision_mode: fail_closed
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Policy.FailFast)
	require.Len(t, cfg.Policy.Rules, 1)
	assert.Equal(t, "https://registry.internal.example/npm", cfg.Registries["npm"].URL)
	assert.Equal(t, 8081, cfg.Proxy.Port)
}

func Test_Load_InvalidSchemaRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "depgate.yaml")
	doc := `
proxy:
  decision_mode: not_a_valid_mode
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func Test_Load_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/depgate.yaml")
	assert.Error(t, err)
}

func Test_ParseSetFlags_BuildsNestedMetricsRule(t *testing.T) {
	cfg, err := ParseSetFlags([]string{"fail_fast=true"})
	require.NoError(t, err)
	assert.True(t, cfg.FailFast)
}

func Test_ParseSetFlags_InvalidAssignment(t *testing.T) {
	_, err := ParseSetFlags([]string{"no-equals-sign"})
	assert.Error(t, err)
}

func Test_ParseSetValue_CoercesTypes(t *testing.T) {
	assert.Equal(t, true, parseSetValue("true"))
	assert.Equal(t, int64(5), parseSetValue("5"))
	assert.Equal(t, 1.5, parseSetValue("1.5"))
	assert.Equal(t, "strict", parseSetValue("strict"))
}
