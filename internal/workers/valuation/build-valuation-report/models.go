// internal/workers/valuation/build-valuation-report/models.go
package buildvaluationreport

import (
	"valuation-workers/internal/common/validation"
	"valuation-workers/internal/models"
	"valuation-workers/internal/report"
	"valuation-workers/internal/valuation"
)

type Input struct {
	RequestID string                 `json:"requestId,omitempty"`
	Property  *models.PropertyRecord `json:"property,omitempty"`
	Results   []valuation.Result     `json:"results"`
}

type Output struct {
	RequestID string         `json:"requestId,omitempty"`
	Status    string         `json:"status"`
	Report    *report.Report `json:"report"`
	Metadata  ReportMetadata `json:"metadata"`
}

type ReportMetadata struct {
	Timestamp string `json:"timestamp"`
	Version   string `json:"version,omitempty"`
}

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type: "object",
		Properties: map[string]validation.Property{
			"requestId": {Type: "string"},
			"property":  {Type: "object", Nullable: true},
			"results": {
				Type: "array",
				Items: &validation.Property{
					Type: "object",
					Properties: map[string]validation.Property{
						"method":     {Type: "string", MinLength: validation.Int(1)},
						"value":      {Type: "number"},
						"confidence": {Type: "number", Minimum: validation.Float(0), Maximum: validation.Float(1)},
					},
					Required: []string{"method", "value", "confidence"},
				},
			},
		},
		Required:             []string{"results"},
		AdditionalProperties: true,
	}
}
