package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depgate-dev/depgate/internal/domain"
)

func samplePackage() *domain.Package {
	p := domain.NewPackage(domain.Npm, "left-pad")
	p.Exists = domain.BoolPtr(true)
	p.VersionCount = domain.IntPtr(12)
	p.Trust.TrustScore = domain.Float64Ptr(0.42)
	p.Heuristics.RiskLowScore = domain.BoolPtr(false)
	p.Heuristics.RiskMissing = domain.BoolPtr(false)
	p.RequestedSpec = "^1.0.0"
	p.ResolvedVersion = "1.3.0"
	p.ResolutionMode = domain.ResolutionRange
	p.Policy.Decision = domain.Allow
	return p
}

func Test_WriteCSV_HeaderAndRow(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []*domain.Package{samplePackage()}))

	r := csv.NewReader(strings.NewReader(buf.String()))
	rows, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, csvColumns, rows[0])
	assert.Equal(t, "left-pad", rows[1][0])
	assert.Equal(t, "npm", rows[1][1])
	assert.Equal(t, "true", rows[1][2])
	assert.Equal(t, "0.4200", rows[1][4])
	assert.Equal(t, "1.3.0", rows[1][13])
}

func Test_WriteCSV_AnyRisksTrueWhenOneRiskSet(t *testing.T) {
	p := samplePackage()
	p.Heuristics.RiskTooNew = domain.BoolPtr(true)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []*domain.Package{p}))

	r := csv.NewReader(strings.NewReader(buf.String()))
	rows, err := r.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "true", rows[1][11]) // Risk: Any Risks
}

func Test_WriteJSON_NestedShape(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, []*domain.Package{samplePackage()}))

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 1)

	entry := decoded[0]
	assert.Equal(t, "left-pad", entry["package_name"])
	assert.Contains(t, entry, "policy")
	assert.Contains(t, entry, "license")
	assert.Contains(t, entry, "risk")
	policy, ok := entry["policy"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "allow", policy["decision"])
}

func Test_WriteSARIF_ProducesValidJSONWithResult(t *testing.T) {
	p := samplePackage()
	p.Policy.Decision = domain.Deny
	p.Policy.ViolatedRules = []string{"stars_count"}

	var buf bytes.Buffer
	require.NoError(t, WriteSARIF(&buf, []*domain.Package{p}, "test"))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "2.1.0", decoded["version"])
}

func Test_Write_DispatchesByFormat(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, []*domain.Package{samplePackage()}, "test"))
	assert.True(t, strings.HasPrefix(strings.TrimSpace(buf.String()), "["))

	buf.Reset()
	require.NoError(t, Write(&buf, FormatCSV, []*domain.Package{samplePackage()}, "test"))
	assert.True(t, strings.HasPrefix(buf.String(), "Package Name"))

	buf.Reset()
	err := Write(&buf, Format("bogus"), nil, "test")
	assert.Error(t, err)
}
