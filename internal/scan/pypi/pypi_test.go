package pypi

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depgate-dev/depgate/internal/scan"
)

func writeFile(t *testing.T, fsys afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fsys, path, []byte(content), 0o644))
}

func Test_Scan_PrefersPyprojectOverRequirements(t *testing.T) {
	t.Parallel()
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/proj/pyproject.toml", `
[project]
dependencies = ["requests>=2.28,<3", "flask"]
`)
	writeFile(t, fsys, "/proj/requirements.txt", "ignored==1.0.0\n")

	entries, err := (Scanner{}).Scan(fsys, scan.Options{Dir: "/proj"})
	require.NoError(t, err)
	names := entryNames(entries)
	assert.ElementsMatch(t, []string{"requests", "flask"}, names)
}

func Test_Scan_RequirementsTxt_StripsCommentsAndOptions(t *testing.T) {
	t.Parallel()
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/proj/requirements.txt", "# a comment\n-r other.txt\nrequests>=2.28\nflask==2.0.0\n\n")

	entries, err := (Scanner{}).Scan(fsys, scan.Options{Dir: "/proj"})
	require.NoError(t, err)
	names := entryNames(entries)
	assert.ElementsMatch(t, []string{"requests", "flask"}, names)
}

func Test_Scan_NoManifest_Errors(t *testing.T) {
	t.Parallel()
	fsys := afero.NewMemMapFs()
	_, err := (Scanner{}).Scan(fsys, scan.Options{Dir: "/proj"})
	require.Error(t, err)
}

func Test_SplitDependencySpec_DropsEnvironmentMarker(t *testing.T) {
	t.Parallel()
	name, spec := splitDependencySpec(`flask ; python_version>="3.9"`)
	assert.Equal(t, "flask", name)
	assert.Empty(t, spec)
}

func entryNames(entries []scan.Entry) []string {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
}
