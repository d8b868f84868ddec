package valuation

import (
	"fmt"
	"math"

	"valuation-workers/internal/common/errors"
	"valuation-workers/internal/models"
)

// SalesComparison values the subject at the mean adjusted price of its comparables.
func (e *Engine) SalesComparison(subject *models.PropertyRecord, candidates []models.ComparableSale) Result {
	comps, err := e.SelectComparables(subject, candidates, e.policy.MaxComparables)
	if err != nil {
		return e.fail(MethodSalesComparison, subject, err)
	}

	adjustments := make([]Adjustment, len(comps))
	prices := make([]float64, len(comps))
	for i, c := range comps {
		adjustments[i] = e.Adjust(subject, c)
		prices[i] = adjustments[i].AdjustedPrice
	}

	stats := describe(prices)
	if !finite(stats.Mean) || !finite(stats.StdDev) {
		return e.fail(MethodSalesComparison, subject,
			errors.NewComputationError(fmt.Sprintf("non-finite adjusted prices for %d comparables", len(comps))))
	}

	confidence := e.policy.SalesConfidenceFloor
	if stats.Mean != 0 {
		confidence = clamp(1-stats.StdDev/stats.Mean, e.policy.SalesConfidenceFloor, 1.0)
	}

	return NewResult(MethodSalesComparison, round2(stats.Mean), round2(confidence), SalesComparisonDetails{
		Comparables: comps,
		Adjustments: adjustments,
		Statistics:  stats,
	})
}

// IncomeApproach capitalizes net operating income derived from the subject's annual rent.
func (e *Engine) IncomeApproach(subject *models.PropertyRecord) Result {
	if subject == nil {
		return e.fail(MethodIncomeApproach, subject, errors.NewDataUnavailableError("subject property is missing"))
	}
	if !subject.HasRent() {
		return e.fail(MethodIncomeApproach, subject, errors.NewMissingDataError("annual_rent"))
	}
	if e.policy.CapRate <= 0 {
		return e.fail(MethodIncomeApproach, subject,
			errors.NewComputationError(fmt.Sprintf("cap rate must be positive, got %v", e.policy.CapRate)))
	}

	rent := *subject.AnnualRent
	noi := rent * (1 - e.policy.ExpenseRatio)
	value := noi / e.policy.CapRate
	if !finite(value) {
		return e.fail(MethodIncomeApproach, subject, errors.NewComputationError("non-finite income value"))
	}

	return NewResult(MethodIncomeApproach, round2(value), e.policy.IncomeConfidence, IncomeDetails{
		NOI:          round2(noi),
		CapRate:      e.policy.CapRate,
		AnnualRent:   rent,
		ExpenseRatio: e.policy.ExpenseRatio,
	})
}

// CostApproach sums land value and depreciated replacement cost of the building.
func (e *Engine) CostApproach(subject *models.PropertyRecord) Result {
	if subject == nil {
		return e.fail(MethodCostApproach, subject, errors.NewDataUnavailableError("subject property is missing"))
	}

	building := subject.Sqft * e.policy.CostPerSqft
	depreciation := building * e.policy.DepreciationRate
	land := subject.LotSize * e.policy.LandValuePerSqft
	value := land + building - depreciation
	if !finite(value) {
		return e.fail(MethodCostApproach, subject, errors.NewComputationError("non-finite cost value"))
	}

	return NewResult(MethodCostApproach, round2(value), e.policy.CostConfidence, CostDetails{
		LandValue:        round2(land),
		BuildingValue:    round2(building),
		Depreciation:     round2(depreciation),
		CostPerSqft:      e.policy.CostPerSqft,
		LandValuePerSqft: e.policy.LandValuePerSqft,
	})
}

func (e *Engine) fail(method Method, subject *models.PropertyRecord, err error) Result {
	stdErr := errors.Normalize(err)
	fields := map[string]interface{}{
		"method":    string(method),
		"errorCode": string(stdErr.Code),
		"error":     stdErr.Summary(),
	}
	if subject != nil {
		fields["propertyId"] = subject.ID
	}
	e.logger.Error("valuation failed", fields)
	return failedResult(method, stdErr)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
