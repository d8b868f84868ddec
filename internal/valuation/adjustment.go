package valuation

import (
	"math"

	"valuation-workers/internal/models"
)

// AdjustmentBreakdown holds the dollar corrections applied to a comparable's sale price.
type AdjustmentBreakdown struct {
	Size      float64 `json:"size"`
	Bedrooms  float64 `json:"bedrooms"`
	Bathrooms float64 `json:"bathrooms"`
}

func (b AdjustmentBreakdown) Total() float64 {
	return b.Size + b.Bedrooms + b.Bathrooms
}

// Adjustment is a comparable's sale price corrected toward the subject.
// AdjustedPrice is always OriginalPrice + Breakdown.Total().
type Adjustment struct {
	ComparableID  string              `json:"comp_id"`
	OriginalPrice float64             `json:"original_price"`
	Breakdown     AdjustmentBreakdown `json:"adjustments"`
	AdjustedPrice float64             `json:"adjusted_price"`
}

// Adjust prices the differences between the subject and one comparable.
func (e *Engine) Adjust(subject *models.PropertyRecord, comp models.ComparableSale) Adjustment {
	pricePerSqft := comp.SalePrice / math.Max(1, comp.Sqft)

	breakdown := AdjustmentBreakdown{
		Size:      (subject.Sqft - comp.Sqft) * pricePerSqft * e.policy.SizeAdjustmentFactor,
		Bedrooms:  (subject.Bedrooms - comp.Bedrooms) * e.policy.PerBedroom,
		Bathrooms: (subject.Bathrooms - comp.Bathrooms) * e.policy.PerBathroom,
	}

	return Adjustment{
		ComparableID:  comp.ID,
		OriginalPrice: comp.SalePrice,
		Breakdown:     breakdown,
		AdjustedPrice: comp.SalePrice + breakdown.Total(),
	}
}
