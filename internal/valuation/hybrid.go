package valuation

import (
	"valuation-workers/internal/common/errors"
	"valuation-workers/internal/models"
)

// Hybrid blends the three method results using Policy.Weights. A failed component contributes
// zero at its full weight unless Policy.RenormalizeHybrid is set.
func (e *Engine) Hybrid(subject *models.PropertyRecord, candidates []models.ComparableSale) Result {
	if subject == nil {
		return e.fail(MethodHybrid, subject, errors.NewDataUnavailableError("subject property is missing"))
	}

	sales := e.SalesComparison(subject, candidates)
	income := e.IncomeApproach(subject)
	cost := e.CostApproach(subject)

	w := e.policy.Weights
	parts := []struct {
		result Result
		weight float64
	}{
		{sales, w.SalesComparison},
		{income, w.IncomeApproach},
		{cost, w.CostApproach},
	}

	var value, confidence, usedWeight float64
	for _, p := range parts {
		if e.policy.RenormalizeHybrid && !p.result.OK() {
			continue
		}
		value += p.result.Value * p.weight
		confidence += p.result.Confidence * p.weight
		usedWeight += p.weight
	}

	if e.policy.RenormalizeHybrid && usedWeight > 0 && usedWeight != w.Sum() {
		value /= usedWeight / w.Sum()
		confidence /= usedWeight / w.Sum()
	}

	return NewResult(MethodHybrid, round2(value), round2(confidence), HybridDetails{
		Components: Components{
			SalesComparison: sales.Details,
			IncomeApproach:  income.Details,
			CostApproach:    cost.Details,
		},
		Weights: w,
	})
}
