package npm

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

func Test_Scan_ManifestOnly_UnionsDepsAndDevDeps(t *testing.T) {
	t.Parallel()
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/proj/package.json", `{
		"dependencies": {"lodash": "^4.0.0"},
		"devDependencies": {"jest": "^29.0.0"}
	}`)

	entries, err := (Scanner{}).Scan(fsys, scan.Options{Dir: "/proj"})
	require.NoError(t, err)
	names := entryNames(entries)
	assert.ElementsMatch(t, []string{"lodash", "jest"}, names)
}

func Test_Scan_RequireLockfileWithoutLockfile_Errors(t *testing.T) {
	t.Parallel()
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/proj/package.json", `{"dependencies": {"lodash": "^4.0.0"}}`)

	_, err := (Scanner{}).Scan(fsys, scan.Options{Dir: "/proj", RequireLockfile: true})
	require.Error(t, err)
}

func Test_Scan_NpmLockV2_TransitiveClosure(t *testing.T) {
	t.Parallel()
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/proj/package.json", `{"dependencies": {"lodash": "^4.0.0"}}`)
	writeFile(t, fsys, "/proj/package-lock.json", `{
		"lockfileVersion": 3,
		"packages": {
			"": {"name": "proj"},
			"node_modules/lodash": {"version": "4.17.21"},
			"node_modules/@scope/dep": {"version": "1.2.3"}
		}
	}`)

	entries, err := (Scanner{}).Scan(fsys, scan.Options{Dir: "/proj"})
	require.NoError(t, err)
	names := entryNames(entries)
	assert.ElementsMatch(t, []string{"lodash", "@scope/dep"}, names)
}

func Test_Scan_DirectOnly_IgnoresLockfileClosure(t *testing.T) {
	t.Parallel()
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/proj/package.json", `{"dependencies": {"lodash": "^4.0.0"}}`)
	writeFile(t, fsys, "/proj/package-lock.json", `{
		"lockfileVersion": 3,
		"packages": {
			"": {"name": "proj"},
			"node_modules/lodash": {"version": "4.17.21"},
			"node_modules/transitive-only": {"version": "0.0.1"}
		}
	}`)

	entries, err := (Scanner{}).Scan(fsys, scan.Options{Dir: "/proj", DirectOnly: true})
	require.NoError(t, err)
	names := entryNames(entries)
	assert.ElementsMatch(t, []string{"lodash"}, names)
}

func Test_Scan_YarnLock_ParsesVersionBlocks(t *testing.T) {
	t.Parallel()
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/proj/package.json", `{"dependencies": {"left-pad": "^1.0.0"}}`)
	writeFile(t, fsys, "/proj/yarn.lock", "# yarn lockfile v1\n\n"+
		"left-pad@^1.0.0:\n  version \"1.3.0\"\n  resolved \"https://example\"\n\n"+
		"\"@scope/dep@^2.0.0\":\n  version \"2.0.1\"\n")

	entries, err := (Scanner{}).Scan(fsys, scan.Options{Dir: "/proj"})
	require.NoError(t, err)
	names := entryNames(entries)
	assert.ElementsMatch(t, []string{"left-pad", "@scope/dep"}, names)
}

func Test_Scan_MissingManifest_Errors(t *testing.T) {
	t.Parallel()
	fsys := afero.NewMemMapFs()
	_, err := (Scanner{}).Scan(fsys, scan.Options{Dir: "/proj"})
	require.Error(t, err)
}

func entryNames(entries []scan.Entry) []string {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
}
