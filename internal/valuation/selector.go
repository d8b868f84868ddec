package valuation

import (
	"valuation-workers/internal/common/errors"
	"valuation-workers/internal/models"
)

// SelectComparables keeps candidates that match the subject's property type and fall within the
// policy tolerances for bedrooms, bathrooms and living area. Bounds are inclusive. Candidate order
// is preserved and the result is capped at maxCount, or Policy.MaxComparables when maxCount <= 0.
func (e *Engine) SelectComparables(subject *models.PropertyRecord, candidates []models.ComparableSale, maxCount int) ([]models.ComparableSale, error) {
	if subject == nil {
		return nil, errors.NewDataUnavailableError("subject property is missing")
	}
	if maxCount <= 0 {
		maxCount = e.policy.MaxComparables
	}

	minBed, maxBed := subject.Bedrooms-e.policy.BedroomTolerance, subject.Bedrooms+e.policy.BedroomTolerance
	minBath, maxBath := subject.Bathrooms-e.policy.BathroomTolerance, subject.Bathrooms+e.policy.BathroomTolerance
	minSqft, maxSqft := subject.Sqft*(1-e.policy.SqftTolerance), subject.Sqft*(1+e.policy.SqftTolerance)

	selected := make([]models.ComparableSale, 0, maxCount)
	for _, c := range candidates {
		if c.PropertyType != subject.PropertyType {
			continue
		}
		if c.Bedrooms < minBed || c.Bedrooms > maxBed {
			continue
		}
		if c.Bathrooms < minBath || c.Bathrooms > maxBath {
			continue
		}
		if c.Sqft < minSqft || c.Sqft > maxSqft {
			continue
		}
		selected = append(selected, c)
		if len(selected) == maxCount {
			break
		}
	}

	e.logger.Debug("comparables selected", map[string]interface{}{
		"propertyId": subject.ID,
		"candidates": len(candidates),
		"selected":   len(selected),
	})

	if len(selected) == 0 {
		return nil, errors.NewDataUnavailableError("no comparable sales match the subject property")
	}
	return selected, nil
}
