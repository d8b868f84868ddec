package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valuation-workers/internal/report"
)

const testProperties = `id,address,city,state,zip_code,property_type,bedrooms,bathrooms,sqft,lot_size,year_built,annual_rent
P001,12 Elm St,Austin,TX,78701,single_family,3,2.5,1800,0.25,1995,48000
P002,9 Oak Ave,Austin,TX,78702,condo,2,1,950,0,2010,
`

const testComparables = `id,property_type,bedrooms,bathrooms,sqft,lot_size,sale_price,sale_date
C001,single_family,3,2,1750,0.2,725000,2024-05-01
C002,condo,4,3,2600,0,395000,2024-04-11
`

// ==========================
// Test Helpers
// ==========================

type fixture struct {
	config      string
	properties  string
	comparables string
}

func newFixture(t *testing.T) fixture {
	dir := t.TempDir()
	f := fixture{
		config:      filepath.Join(dir, "config.yaml"),
		properties:  filepath.Join(dir, "property_data.csv"),
		comparables: filepath.Join(dir, "comparable_sales.csv"),
	}
	require.NoError(t, os.WriteFile(f.properties, []byte(testProperties), 0o600))
	require.NoError(t, os.WriteFile(f.comparables, []byte(testComparables), 0o600))

	cfg := fmt.Sprintf(`logging:
  level: warn
report:
  company_name: Acme Appraisals
data:
  properties_path: %s
  comparables_path: %s
`, f.properties, f.comparables)
	require.NoError(t, os.WriteFile(f.config, []byte(cfg), 0o600))
	return f
}

func execute(t *testing.T, args ...string) (string, string, error) {
	cmd := newRootCmd()
	var out, diag bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&diag)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), diag.String(), err
}

// ==========================
// Command Tests
// ==========================

func TestValuate_DefaultMethod(t *testing.T) {
	f := newFixture(t)

	out, diag, err := execute(t, "P001", "--config", f.config)
	require.NoError(t, err)

	assert.Contains(t, diag, "Calculating valuation using sales_comparison method...")
	assert.Contains(t, out, "REP-P001-")
	assert.Contains(t, out, "Sales Comparison")
	assert.Contains(t, out, "Estimated value: $739,107.14 (Sales Comparison, 100% confidence)")
	assert.NotContains(t, out, "Cost Approach")
}

func TestValuate_NamedMethod(t *testing.T) {
	f := newFixture(t)

	out, _, err := execute(t, "P001", "--config", f.config, "-m", "income_approach")
	require.NoError(t, err)
	assert.Contains(t, out, "Income Approach")
	assert.Contains(t, out, "70% confidence")
}

func TestValuate_AllMethods(t *testing.T) {
	f := newFixture(t)

	out, diag, err := execute(t, "P001", "--config", f.config, "--all-methods")
	require.NoError(t, err)
	assert.Contains(t, diag, "Running all valuation methods...")

	order := []string{"Sales Comparison", "Hybrid", "Income Approach", "Cost Approach"}
	last := -1
	for _, title := range order {
		idx := strings.Index(out, title)
		require.GreaterOrEqual(t, idx, 0, title)
		assert.Greater(t, idx, last, "%s out of rank order", title)
		last = idx
	}
}

func TestValuate_MissingDataIsReportedPerMethod(t *testing.T) {
	f := newFixture(t)

	// P002 is a condo without rent; the only condo sale is outside every tolerance
	out, _, err := execute(t, "P002", "--config", f.config, "-a")
	require.NoError(t, err)
	assert.Contains(t, out, "DATA_UNAVAILABLE")
	assert.Contains(t, out, "Estimated value:")
}

func TestValuate_ReportJSON(t *testing.T) {
	f := newFixture(t)

	out, _, err := execute(t, "P001", "--config", f.config, "--report", "--company", "Lone Star Valuers")
	require.NoError(t, err)

	var r report.Report
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Equal(t, "Lone Star Valuers", r.CompanyName)
	assert.Equal(t, "$739,107.14", r.Valuation.PrimaryValue)
	require.Len(t, r.Methods, 1)
	require.NotNil(t, r.ComparativeChart)
}

func TestValuate_FlagPathsOverrideConfig(t *testing.T) {
	f := newFixture(t)
	empty := filepath.Join(t.TempDir(), "none.csv")
	require.NoError(t, os.WriteFile(empty, []byte("id,address\n"), 0o600))

	_, _, err := execute(t, "P001", "--config", f.config, "--properties", empty)
	require.Error(t, err)
	assert.Equal(t, "property with ID P001 not found", err.Error())
}

func TestValuate_Errors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "unknown property", args: []string{"P404", "--config", f.config}, wantErr: "property with ID P404 not found"},
		{name: "invalid method", args: []string{"P001", "--config", f.config, "-m", "guess"}, wantErr: `invalid method "guess"`},
		{name: "missing property id", args: []string{"--config", f.config}, wantErr: "accepts 1 arg(s)"},
		{name: "missing config file", args: []string{"P001", "--config", filepath.Join(t.TempDir(), "nope.yaml")}, wantErr: "failed to read config file"},
		{
			name:    "missing data file",
			args:    []string{"P001", "--config", f.config, "--comparables", filepath.Join(t.TempDir(), "nope.csv")},
			wantErr: "DATA_LOAD_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
