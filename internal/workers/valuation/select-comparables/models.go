// internal/workers/valuation/select-comparables/models.go
package selectcomparables

import (
	"valuation-workers/internal/common/validation"
	"valuation-workers/internal/models"
	"valuation-workers/internal/valuation"
)

type Input struct {
	PropertyID string                  `json:"propertyId,omitempty"`
	Property   *models.PropertyRecord  `json:"property,omitempty"`
	Candidates []models.ComparableSale `json:"candidates,omitempty"`
	MaxCount   int                     `json:"maxCount,omitempty"`
}

// Output pairs every selected comparable with its price adjustment, index for index.
type Output struct {
	PropertyID  string                  `json:"propertyId"`
	Comparables []models.ComparableSale `json:"comparables"`
	Adjustments []valuation.Adjustment  `json:"adjustments"`
	Count       int                     `json:"count"`
}

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type: "object",
		Properties: map[string]validation.Property{
			"propertyId": {
				Type:      "string",
				MinLength: validation.Int(1),
			},
			"property": {
				Type: "object",
				Properties: map[string]validation.Property{
					"property_type": {Type: "string", MinLength: validation.Int(1)},
					"bedrooms":      {Type: "number"},
					"bathrooms":     {Type: "number"},
					"sqft":          {Type: "number", Minimum: validation.Float(0)},
				},
				Required: []string{"property_type", "sqft"},
			},
			"candidates": {
				Type: "array",
				Items: &validation.Property{
					Type: "object",
					Properties: map[string]validation.Property{
						"id":         {Type: "string"},
						"sale_price": {Type: "number", Minimum: validation.Float(0)},
						"sqft":       {Type: "number", Minimum: validation.Float(0)},
					},
					Required: []string{"id", "sale_price"},
				},
			},
			"maxCount": {
				Type:    "integer",
				Minimum: validation.Float(0),
				Maximum: validation.Float(100),
			},
		},
		OneOfRequired:        [][]string{{"propertyId"}, {"property", "candidates"}},
		AdditionalProperties: true,
	}
}
