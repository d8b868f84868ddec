// internal/models/property.go
package models

// PropertyRecord is the subject of a valuation. AnnualRent is nil when no rent figure is known.
type PropertyRecord struct {
	ID           string   `json:"id"`
	Address      string   `json:"address,omitempty"`
	City         string   `json:"city,omitempty"`
	State        string   `json:"state,omitempty"`
	ZipCode      string   `json:"zip_code,omitempty"`
	PropertyType string   `json:"property_type"`
	Bedrooms     float64  `json:"bedrooms"`
	Bathrooms    float64  `json:"bathrooms"`
	Sqft         float64  `json:"sqft"`
	LotSize      float64  `json:"lot_size"`
	YearBuilt    int      `json:"year_built,omitempty"`
	AnnualRent   *float64 `json:"annual_rent,omitempty"`
}

// HasRent reports whether an annual rent figure is present.
func (p *PropertyRecord) HasRent() bool {
	return p != nil && p.AnnualRent != nil
}

// ComparableSale is a closed sale used as a reference point. SaleDate is YYYY-MM-DD.
type ComparableSale struct {
	ID           string  `json:"id"`
	PropertyType string  `json:"property_type"`
	Bedrooms     float64 `json:"bedrooms"`
	Bathrooms    float64 `json:"bathrooms"`
	Sqft         float64 `json:"sqft"`
	LotSize      float64 `json:"lot_size"`
	SalePrice    float64 `json:"sale_price"`
	SaleDate     string  `json:"sale_date,omitempty"`
}

// Float64 returns a pointer to v, for optional numeric fields.
func Float64(v float64) *float64 {
	return &v
}
