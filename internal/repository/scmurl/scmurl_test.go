package scmurl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Normalize_Idempotent(t *testing.T) {
	t.Parallel()

	cases := []string{
		"git+https://github.com/owner/repo.git",
		"git@github.com:owner/repo.git",
		"ssh://git@gitlab.com/owner/repo.git",
		"https://github.com/owner/repo",
		"scm:git:https://github.com/owner/repo.git",
	}

	for _, raw := range cases {
		raw := raw
		t.Run(raw, func(t *testing.T) {
			t.Parallel()
			n1 := Normalize(raw)
			require.NotNil(t, n1)
			n2 := Normalize(n1.NormalizedURL)
			require.NotNil(t, n2)
			assert.Equal(t, n1.NormalizedURL, n2.NormalizedURL)
		})
	}
}

func Test_Normalize_GitHubOwnerRepo(t *testing.T) {
	t.Parallel()

	n := Normalize("git+https://github.com/example/project.git")
	require.NotNil(t, n)
	assert.Equal(t, "github", n.Host)
	assert.Equal(t, "example", n.Owner)
	assert.Equal(t, "project", n.Repo)
	assert.Equal(t, "https://github.com/example/project", n.NormalizedURL)
}

func Test_Normalize_MonorepoDirectory(t *testing.T) {
	t.Parallel()

	n := Normalize("https://github.com/owner/monorepo/tree/main/packages/sub")
	require.NotNil(t, n)
	assert.Equal(t, "tree/main/packages/sub", n.Directory)
}

func Test_Normalize_Unparseable(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Normalize(""))
	assert.Nil(t, Normalize("not a url at all///"))
}
