package valuation

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"valuation-workers/internal/common/errors"
	"valuation-workers/internal/models"
)

type Method string

const (
	MethodSalesComparison Method = "sales_comparison"
	MethodIncomeApproach  Method = "income_approach"
	MethodCostApproach    Method = "cost_approach"
	MethodHybrid          Method = "hybrid"
)

// DefaultMethod is what callers fall back to when a request names no method.
const DefaultMethod = MethodSalesComparison

// Methods lists the supported methods in their canonical order. Ranking ties keep this order.
var Methods = []Method{MethodSalesComparison, MethodIncomeApproach, MethodCostApproach, MethodHybrid}

func (m Method) Valid() bool {
	switch m {
	case MethodSalesComparison, MethodIncomeApproach, MethodCostApproach, MethodHybrid:
		return true
	}
	return false
}

// Details is the method-specific payload of a Result. The concrete type is one of
// SalesComparisonDetails, IncomeDetails, CostDetails, HybridDetails or ErrorDetails.
type Details interface {
	isDetails()
}

type Statistics struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Count  int     `json:"count"`
}

type SalesComparisonDetails struct {
	Comparables []models.ComparableSale `json:"comparables"`
	Adjustments []Adjustment            `json:"adjustments"`
	Statistics  Statistics              `json:"statistics"`
}

type IncomeDetails struct {
	NOI          float64 `json:"noi"`
	CapRate      float64 `json:"cap_rate"`
	AnnualRent   float64 `json:"annual_rent"`
	ExpenseRatio float64 `json:"expense_ratio"`
}

type CostDetails struct {
	LandValue        float64 `json:"land_value"`
	BuildingValue    float64 `json:"building_value"`
	Depreciation     float64 `json:"depreciation"`
	CostPerSqft      float64 `json:"cost_per_sqft"`
	LandValuePerSqft float64 `json:"land_value_per_sqft"`
}

type Components struct {
	SalesComparison Details `json:"sales_comparison"`
	IncomeApproach  Details `json:"income_approach"`
	CostApproach    Details `json:"cost_approach"`
}

type HybridDetails struct {
	Components Components `json:"components"`
	Weights    Weights    `json:"weights"`
}

// ErrorDetails replaces the method payload when a calculation fails.
type ErrorDetails struct {
	Error string           `json:"error"`
	Code  errors.ErrorCode `json:"code"`
}

func (SalesComparisonDetails) isDetails() {}
func (IncomeDetails) isDetails()          {}
func (CostDetails) isDetails()            {}
func (HybridDetails) isDetails()          {}
func (ErrorDetails) isDetails()           {}

// Result is the outcome of one valuation method. Err is nil on success; on failure Value and
// Confidence are zero and Details is ErrorDetails.
type Result struct {
	Method     Method                `json:"method"`
	Value      float64               `json:"value"`
	Confidence float64               `json:"confidence"`
	Details    Details               `json:"details"`
	Err        *errors.StandardError `json:"-"`
}

// NewResult builds a successful result. Confidence is clamped to [0,1].
func NewResult(method Method, value, confidence float64, details Details) Result {
	return Result{
		Method:     method,
		Value:      value,
		Confidence: clamp(confidence, 0, 1),
		Details:    details,
	}
}

func failedResult(method Method, err *errors.StandardError) Result {
	// drop the creation time so identical inputs give identical results
	stdErr := *err
	stdErr.Timestamp = time.Time{}
	return Result{
		Method:  method,
		Details: ErrorDetails{Error: stdErr.Summary(), Code: stdErr.Code},
		Err:     &stdErr,
	}
}

func (r Result) OK() bool {
	return r.Err == nil
}

// SalesDetails returns the sales comparison payload, looking inside hybrid components too.
func (r Result) SalesDetails() (SalesComparisonDetails, bool) {
	switch d := r.Details.(type) {
	case SalesComparisonDetails:
		return d, true
	case HybridDetails:
		sd, ok := d.Components.SalesComparison.(SalesComparisonDetails)
		return sd, ok
	}
	return SalesComparisonDetails{}, false
}

type rawResult struct {
	Method     Method          `json:"method"`
	Value      float64         `json:"value"`
	Confidence float64         `json:"confidence"`
	Details    json.RawMessage `json:"details"`
}

// UnmarshalJSON restores the concrete Details type from the method name.
func (r *Result) UnmarshalJSON(data []byte) error {
	var raw rawResult
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	details, stdErr, err := decodeDetails(raw.Method, raw.Details)
	if err != nil {
		return fmt.Errorf("decode %s details: %w", raw.Method, err)
	}

	*r = Result{
		Method:     raw.Method,
		Value:      raw.Value,
		Confidence: clamp(raw.Confidence, 0, 1),
		Details:    details,
		Err:        stdErr,
	}
	return nil
}

func decodeDetails(method Method, raw json.RawMessage) (Details, *errors.StandardError, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil, nil
	}

	var probe struct {
		Error *string          `json:"error"`
		Code  errors.ErrorCode `json:"code"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, nil, err
	}
	if probe.Error != nil {
		code := probe.Code
		if code == "" {
			code = errors.ErrCodeComputationError
		}
		return ErrorDetails{Error: *probe.Error, Code: code},
			&errors.StandardError{Code: code, Message: *probe.Error}, nil
	}

	switch method {
	case MethodSalesComparison:
		var d SalesComparisonDetails
		err := json.Unmarshal(raw, &d)
		return d, nil, err
	case MethodIncomeApproach:
		var d IncomeDetails
		err := json.Unmarshal(raw, &d)
		return d, nil, err
	case MethodCostApproach:
		var d CostDetails
		err := json.Unmarshal(raw, &d)
		return d, nil, err
	case MethodHybrid:
		var hd struct {
			Components map[Method]json.RawMessage `json:"components"`
			Weights    Weights                    `json:"weights"`
		}
		if err := json.Unmarshal(raw, &hd); err != nil {
			return nil, nil, err
		}
		d := HybridDetails{Weights: hd.Weights}
		targets := map[Method]*Details{
			MethodSalesComparison: &d.Components.SalesComparison,
			MethodIncomeApproach:  &d.Components.IncomeApproach,
			MethodCostApproach:    &d.Components.CostApproach,
		}
		for m, dst := range targets {
			sub, _, err := decodeDetails(m, hd.Components[m])
			if err != nil {
				return nil, nil, err
			}
			*dst = sub
		}
		return d, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown method %q", method)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
