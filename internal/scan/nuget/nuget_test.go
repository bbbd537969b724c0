package nuget

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depgate-dev/depgate/internal/scan"
)

func Test_Scan_Csproj_ExtractsPackageReferences(t *testing.T) {
	t.Parallel()
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/proj/App.csproj", []byte(`<Project Sdk="Microsoft.NET.Sdk">
  <ItemGroup>
    <PackageReference Include="Newtonsoft.Json" Version="13.0.1" />
  </ItemGroup>
</Project>`), 0o644))

	entries, err := (Scanner{}).Scan(fsys, scan.Options{Dir: "/proj"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Newtonsoft.Json", entries[0].Name)
	assert.Equal(t, "13.0.1", entries[0].RawSpec)
}

func Test_Scan_PackagesConfig_ExtractsPackages(t *testing.T) {
	t.Parallel()
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/proj/packages.config", []byte(`<packages>
  <package id="log4net" version="2.0.15" targetFramework="net472" />
</packages>`), 0o644))

	entries, err := (Scanner{}).Scan(fsys, scan.Options{Dir: "/proj"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "log4net", entries[0].Name)
}

func Test_Scan_ProjectJSON_HandlesStringAndObjectVersions(t *testing.T) {
	t.Parallel()
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/proj/project.json", []byte(`{
		"dependencies": {
			"PkgA": "1.0.0",
			"PkgB": {"version": "2.0.0"}
		}
	}`), 0o644))

	entries, err := (Scanner{}).Scan(fsys, scan.Options{Dir: "/proj"})
	require.NoError(t, err)
	versions := map[string]string{}
	for _, e := range entries {
		versions[e.Name] = e.RawSpec
	}
	assert.Equal(t, "1.0.0", versions["PkgA"])
	assert.Equal(t, "2.0.0", versions["PkgB"])
}

func Test_Scan_NonRecursive_SkipsSubdirectories(t *testing.T) {
	t.Parallel()
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/proj/App.csproj", []byte(`<Project><ItemGroup><PackageReference Include="Top" Version="1.0.0" /></ItemGroup></Project>`), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/proj/nested/Nested.csproj", []byte(`<Project><ItemGroup><PackageReference Include="Nested" Version="1.0.0" /></ItemGroup></Project>`), 0o644))

	entries, err := (Scanner{}).Scan(fsys, scan.Options{Dir: "/proj", Recursive: false})
	require.NoError(t, err)
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	assert.Equal(t, []string{"Top"}, names)
}

func Test_Scan_Recursive_IncludesSubdirectories(t *testing.T) {
	t.Parallel()
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/proj/App.csproj", []byte(`<Project><ItemGroup><PackageReference Include="Top" Version="1.0.0" /></ItemGroup></Project>`), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/proj/nested/Nested.csproj", []byte(`<Project><ItemGroup><PackageReference Include="Nested" Version="1.0.0" /></ItemGroup></Project>`), 0o644))

	entries, err := (Scanner{}).Scan(fsys, scan.Options{Dir: "/proj", Recursive: true})
	require.NoError(t, err)
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	assert.ElementsMatch(t, []string{"Top", "Nested"}, names)
}
