// Package valuation estimates property market value by sales comparison, income
// capitalization, replacement cost and a weighted blend of the three.
//
// Every entry point returns a Result. Failures are carried in Result.Err and
// ErrorDetails rather than returned as Go errors, so callers can rank and blend
// results uniformly.
package valuation

import (
	"fmt"
	"sort"
	"sync"

	"valuation-workers/internal/common/errors"
	"valuation-workers/internal/common/logger"
	"valuation-workers/internal/models"
)

// Engine is safe for concurrent use; it holds no mutable state.
type Engine struct {
	policy Policy
	logger logger.Logger
}

func NewEngine(policy Policy, log logger.Logger) *Engine {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Engine{
		policy: policy,
		logger: log.WithFields(map[string]interface{}{"component": "valuation-engine"}),
	}
}

func (e *Engine) Policy() Policy {
	return e.policy
}

// Calculate dispatches to the named method. Unrecognized names yield an UNKNOWN_METHOD result
// whose Method echoes the input.
func (e *Engine) Calculate(subject *models.PropertyRecord, candidates []models.ComparableSale, method string) (result Result) {
	m := Method(method)
	defer func() {
		if r := recover(); r != nil {
			result = e.fail(m, subject, errors.NewComputationError(fmt.Sprintf("panic: %v", r)))
		}
	}()

	if subject == nil {
		return e.fail(m, subject, errors.NewDataUnavailableError("subject property is missing"))
	}

	switch m {
	case MethodSalesComparison:
		return e.SalesComparison(subject, candidates)
	case MethodIncomeApproach:
		return e.IncomeApproach(subject)
	case MethodCostApproach:
		return e.CostApproach(subject)
	case MethodHybrid:
		return e.Hybrid(subject, candidates)
	default:
		return e.fail(m, subject, errors.NewUnknownMethodError(method))
	}
}

// CalculateAll runs every method concurrently and returns the results ranked by confidence,
// highest first. Ties keep the order of Methods.
func (e *Engine) CalculateAll(subject *models.PropertyRecord, candidates []models.ComparableSale) []Result {
	results := make([]Result, len(Methods))

	var wg sync.WaitGroup
	for i, m := range Methods {
		wg.Add(1)
		go func(i int, m Method) {
			defer wg.Done()
			results[i] = e.Calculate(subject, candidates, string(m))
		}(i, m)
	}
	wg.Wait()

	Rank(results)
	return results
}

// Rank sorts results by confidence, highest first, keeping the relative order of ties.
func Rank(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Confidence > results[j].Confidence
	})
}
