// internal/workers/valuation/calculate-valuation/models.go
package calculatevaluation

import (
	"valuation-workers/internal/common/validation"
	"valuation-workers/internal/models"
	"valuation-workers/internal/valuation"
)

// Input either names a stored property or carries the subject and its candidates inline.
// Inline data wins when both are present.
type Input struct {
	PropertyID  string                  `json:"propertyId,omitempty"`
	Method      string                  `json:"method,omitempty"`
	AllMethods  bool                    `json:"allMethods,omitempty"`
	Property    *models.PropertyRecord  `json:"property,omitempty"`
	Comparables []models.ComparableSale `json:"comparables,omitempty"`
}

type Output struct {
	ValuationID string             `json:"valuationId"`
	PropertyID  string             `json:"propertyId"`
	Primary     valuation.Result   `json:"primary"`
	Results     []valuation.Result `json:"results"`
}

// GetInputSchema describes the job variables this worker reads. Other process variables pass through.
func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type: "object",
		Properties: map[string]validation.Property{
			"propertyId": {
				Type:      "string",
				MinLength: validation.Int(1),
			},
			"method": {
				Type:        "string",
				Description: "valuation method; sales_comparison when omitted",
			},
			"allMethods": {
				Type: "boolean",
			},
			"property": {
				Type: "object",
				Properties: map[string]validation.Property{
					"id":            {Type: "string"},
					"property_type": {Type: "string", MinLength: validation.Int(1)},
					"bedrooms":      {Type: "number", Minimum: validation.Float(0)},
					"bathrooms":     {Type: "number", Minimum: validation.Float(0)},
					"sqft":          {Type: "number", Minimum: validation.Float(0)},
					"lot_size":      {Type: "number", Minimum: validation.Float(0)},
					"year_built":    {Type: "integer"},
					"annual_rent":   {Type: "number", Nullable: true},
				},
				Required: []string{"property_type"},
			},
			"comparables": {
				Type:     "array",
				Nullable: true,
				Items:    &validation.Property{Type: "object"},
			},
		},
		OneOfRequired:        [][]string{{"propertyId"}, {"property"}},
		AdditionalProperties: true,
	}
}
