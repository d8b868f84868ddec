package buildvaluationreport

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valuation-workers/internal/common/errors"
	"valuation-workers/internal/common/logger"
	"valuation-workers/internal/models"
	"valuation-workers/internal/valuation"
)

// ==========================
// Test Helpers
// ==========================

var fixedNow = time.Date(2024, time.March, 5, 14, 7, 9, 0, time.UTC)

func createTestConfig() *Config {
	return &Config{
		Timeout:     5 * time.Second,
		CompanyName: "Acme Appraisals",
		AppVersion:  "1.2.0",
		CacheTTL:    time.Minute,
	}
}

func createTestHandler(t *testing.T, cfg *Config) *Handler {
	h := NewHandler(cfg, logger.NewTestLogger(t))
	h.builder.WithClock(func() time.Time { return fixedNow })
	return h
}

func createSubject() *models.PropertyRecord {
	return &models.PropertyRecord{
		ID:           "P001",
		Address:      "12 Elm St",
		City:         "Austin",
		State:        "TX",
		PropertyType: "single_family",
		Bedrooms:     3,
		Bathrooms:    2.5,
		Sqft:         1800,
		LotSize:      0.25,
		YearBuilt:    1995,
		AnnualRent:   models.Float64(48000),
	}
}

func createResults(t *testing.T, comps []models.ComparableSale) []valuation.Result {
	engine := valuation.NewEngine(valuation.DefaultPolicy(), logger.NewTestLogger(t))
	return engine.CalculateAll(createSubject(), comps)
}

func createComparables() []models.ComparableSale {
	return []models.ComparableSale{{
		ID: "C001", PropertyType: "single_family", Bedrooms: 3, Bathrooms: 2, Sqft: 1750, SalePrice: 725000,
	}}
}

func createMockJob(variables map[string]interface{}) entities.Job {
	variablesJSON, _ := json.Marshal(variables)
	return entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:       7,
		Type:      TaskType,
		Retries:   3,
		Variables: string(variablesJSON),
	}}
}

// ==========================
// Execute Tests
// ==========================

func TestHandler_Execute_Success(t *testing.T) {
	results := createResults(t, createComparables())
	// reverse so the handler has to rank
	for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
		results[i], results[j] = results[j], results[i]
	}

	h := createTestHandler(t, createTestConfig())
	output, err := h.Execute(context.Background(), &Input{
		RequestID: "req-42",
		Property:  createSubject(),
		Results:   results,
	})
	require.NoError(t, err)

	assert.Equal(t, "success", output.Status)
	assert.Equal(t, "req-42", output.RequestID)
	assert.Equal(t, "1.2.0", output.Metadata.Version)

	r := output.Report
	require.NotNil(t, r)
	assert.Equal(t, "REP-P001-20240305-140709", r.ReportID)
	assert.Equal(t, "Sales Comparison", r.Valuation.PrimaryMethod)
	assert.Equal(t, "$739,107.14", r.Valuation.PrimaryValue)
	assert.Equal(t, "100%", r.Valuation.PrimaryConfidence)
	assert.Len(t, r.Methods, 4)
	require.NotNil(t, r.ComparativeChart)
	assert.Equal(t, []string{"Comp 1"}, r.ComparativeChart.Labels)

	assert.Equal(t, valuation.MethodCostApproach, results[0].Method, "caller slice is not reordered")
}

func TestHandler_Execute_ResultsFromProcessVariables(t *testing.T) {
	results := createResults(t, nil)
	raw, err := json.Marshal(map[string]interface{}{
		"requestId": "req-7",
		"property":  createSubject(),
		"results":   results,
		"extra":     "ignored",
	})
	require.NoError(t, err)

	var variables map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &variables))

	input, err := parseInput(createMockJob(variables))
	require.NoError(t, err)
	require.Len(t, input.Results, 4)

	output, err := createTestHandler(t, createTestConfig()).Execute(context.Background(), input)
	require.NoError(t, err)
	assert.Nil(t, output.Report.ComparativeChart)

	var salesLine bool
	for _, line := range output.Report.Methods {
		if line.Method == valuation.MethodSalesComparison {
			salesLine = true
			assert.False(t, line.OK)
			assert.Contains(t, line.Error, "DATA_UNAVAILABLE")
		}
	}
	assert.True(t, salesLine)
}

func TestHandler_Execute_Errors(t *testing.T) {
	tests := []struct {
		name     string
		config   func(dir string) *Config
		input    *Input
		wantCode errors.ErrorCode
		wantMsg  string
	}{
		{
			name:     "nil input",
			config:   func(string) *Config { return createTestConfig() },
			wantCode: errors.ErrCodeInvalidInput,
		},
		{
			name:     "no results",
			config:   func(string) *Config { return createTestConfig() },
			input:    &Input{Property: createSubject()},
			wantCode: errors.ErrCodeInvalidInput,
		},
		{
			name: "missing company name fails the schema",
			config: func(string) *Config {
				cfg := createTestConfig()
				cfg.CompanyName = ""
				return cfg
			},
			input:    &Input{Property: createSubject(), Results: []valuation.Result{{Method: valuation.MethodCostApproach, Value: 1}}},
			wantCode: errors.ErrCodeReportValidationFailed,
			wantMsg:  "company_name",
		},
		{
			name: "custom schema rejects the report",
			config: func(dir string) *Config {
				path := filepath.Join(dir, "strict.json")
				_ = os.WriteFile(path, []byte(`{"type":"object","required":["appraiser_license"]}`), 0o600)
				cfg := createTestConfig()
				cfg.SchemaPath = path
				return cfg
			},
			input:    &Input{Property: createSubject(), Results: []valuation.Result{{Method: valuation.MethodCostApproach, Value: 1}}},
			wantCode: errors.ErrCodeReportValidationFailed,
			wantMsg:  "appraiser_license",
		},
		{
			name: "unreadable schema",
			config: func(dir string) *Config {
				cfg := createTestConfig()
				cfg.SchemaPath = filepath.Join(dir, "missing.json")
				return cfg
			},
			input:    &Input{Property: createSubject(), Results: []valuation.Result{{Method: valuation.MethodCostApproach, Value: 1}}},
			wantCode: errors.ErrCodeReportValidationFailed,
			wantMsg:  "SCHEMA_UNAVAILABLE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := createTestHandler(t, tt.config(t.TempDir()))

			output, err := h.Execute(context.Background(), tt.input)
			require.Error(t, err)
			assert.Nil(t, output)
			assert.True(t, errors.HasCode(err, tt.wantCode), err.Error())
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestHandler_LoadSchemaCaches(t *testing.T) {
	h := createTestHandler(t, createTestConfig())

	first, err := h.loadSchema()
	require.NoError(t, err)
	second, err := h.loadSchema()
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestParseInput_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		variables map[string]interface{}
	}{
		{name: "missing results", variables: map[string]interface{}{"requestId": "r1"}},
		{name: "results not an array", variables: map[string]interface{}{"results": "hybrid"}},
		{
			name: "confidence out of range",
			variables: map[string]interface{}{
				"results": []interface{}{map[string]interface{}{"method": "hybrid", "value": 1.0, "confidence": 1.5}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseInput(createMockJob(tt.variables))
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))
		})
	}
}
