package secrets

import (
	"context"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depgate-dev/depgate/internal/infrastructure/sensitivedata"
)

func Test_GitHubToken_TracksAndReturnsEnvValue(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_abc123")
	provider := sensitivedata.NewProvider()
	r := New(provider)

	got := r.GitHubToken()

	assert.Equal(t, "ghp_abc123", got)
	assert.Contains(t, provider.AllValues(), "ghp_abc123")
}

func Test_GitLabToken_EmptyWhenUnset(t *testing.T) {
	t.Setenv("GITLAB_TOKEN", "")
	provider := sensitivedata.NewProvider()
	r := New(provider)

	got := r.GitLabToken()

	assert.Empty(t, got)
	assert.Empty(t, provider.AllValues())
}

func Test_OSMToken_DirectEnvTakesPrecedenceOverCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	t.Setenv("DEPGATE_OSM_API_TOKEN", "direct-token")
	t.Setenv("DEPGATE_OSM_TOKEN_COMMAND", "echo should-not-run")
	provider := sensitivedata.NewProvider()
	r := New(provider)

	got, err := r.OSMToken(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "direct-token", got)
}

func Test_OSMToken_RunsCommandWhenNoDirectToken(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	t.Setenv("DEPGATE_OSM_API_TOKEN", "")
	t.Setenv("DEPGATE_OSM_TOKEN_COMMAND", "echo from-command")
	provider := sensitivedata.NewProvider()
	r := New(provider)

	got, err := r.OSMToken(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "from-command", got)
	assert.Contains(t, provider.AllValues(), "from-command")
}

func Test_OSMToken_NoneConfigured(t *testing.T) {
	t.Setenv("DEPGATE_OSM_API_TOKEN", "")
	t.Setenv("DEPGATE_OSM_TOKEN_COMMAND", "")
	provider := sensitivedata.NewProvider()
	r := New(provider)

	got, err := r.OSMToken(context.Background())

	require.NoError(t, err)
	assert.Empty(t, got)
}

func Test_OSMToken_CommandFailureReturnsError(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	t.Setenv("DEPGATE_OSM_API_TOKEN", "")
	t.Setenv("DEPGATE_OSM_TOKEN_COMMAND", "exit 1")
	provider := sensitivedata.NewProvider()
	r := New(provider)

	_, err := r.OSMToken(context.Background())

	assert.Error(t, err)
}
