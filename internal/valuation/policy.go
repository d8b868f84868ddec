package valuation

import "fmt"

// Weights are the hybrid blend weights per method.
type Weights struct {
	SalesComparison float64 `mapstructure:"sales_comparison" json:"sales_comparison"`
	IncomeApproach  float64 `mapstructure:"income_approach" json:"income_approach"`
	CostApproach    float64 `mapstructure:"cost_approach" json:"cost_approach"`
}

// Sum returns the total of all three weights.
func (w Weights) Sum() float64 {
	return w.SalesComparison + w.IncomeApproach + w.CostApproach
}

// Policy holds every tunable constant the engine uses.
type Policy struct {
	MaxComparables    int     `mapstructure:"max_comparables"`
	CandidateLimit    int     `mapstructure:"candidate_limit"`
	BedroomTolerance  float64 `mapstructure:"bedroom_tolerance"`
	BathroomTolerance float64 `mapstructure:"bathroom_tolerance"`
	SqftTolerance     float64 `mapstructure:"sqft_tolerance"`

	SizeAdjustmentFactor float64 `mapstructure:"size_adjustment_factor"`
	PerBedroom           float64 `mapstructure:"per_bedroom"`
	PerBathroom          float64 `mapstructure:"per_bathroom"`

	SalesConfidenceFloor float64 `mapstructure:"sales_confidence_floor"`

	CapRate          float64 `mapstructure:"cap_rate"`
	ExpenseRatio     float64 `mapstructure:"expense_ratio"`
	IncomeConfidence float64 `mapstructure:"income_confidence"`

	CostPerSqft      float64 `mapstructure:"cost_per_sqft"`
	LandValuePerSqft float64 `mapstructure:"land_value_per_sqft"`
	DepreciationRate float64 `mapstructure:"depreciation_rate"`
	CostConfidence   float64 `mapstructure:"cost_confidence"`

	Weights Weights `mapstructure:"weights"`

	// RenormalizeHybrid drops failed components from the hybrid blend and rescales the
	// remaining weights. Off by default: failed components count as zero at full weight.
	RenormalizeHybrid bool `mapstructure:"renormalize_hybrid"`
}

func DefaultPolicy() Policy {
	return Policy{
		MaxComparables:    5,
		CandidateLimit:    0,
		BedroomTolerance:  1,
		BathroomTolerance: 0.5,
		SqftTolerance:     0.2,

		SizeAdjustmentFactor: 0.5,
		PerBedroom:           10000,
		PerBathroom:          7500,

		SalesConfidenceFloor: 0.5,

		CapRate:          0.06,
		ExpenseRatio:     0.25,
		IncomeConfidence: 0.7,

		CostPerSqft:      150,
		LandValuePerSqft: 2,
		DepreciationRate: 0.10,
		CostConfidence:   0.6,

		Weights: Weights{
			SalesComparison: 0.5,
			IncomeApproach:  0.3,
			CostApproach:    0.2,
		},
	}
}

func (p Policy) Validate() error {
	if p.MaxComparables <= 0 {
		return fmt.Errorf("valuation.max_comparables must be positive, got %d", p.MaxComparables)
	}
	if p.CandidateLimit < 0 {
		return fmt.Errorf("valuation.candidate_limit must not be negative, got %d", p.CandidateLimit)
	}
	if p.BedroomTolerance < 0 || p.BathroomTolerance < 0 {
		return fmt.Errorf("valuation room tolerances must not be negative")
	}
	if p.SqftTolerance < 0 || p.SqftTolerance >= 1 {
		return fmt.Errorf("valuation.sqft_tolerance must be in [0,1), got %v", p.SqftTolerance)
	}
	if p.CapRate <= 0 {
		return fmt.Errorf("valuation.cap_rate must be positive, got %v", p.CapRate)
	}
	if p.ExpenseRatio < 0 || p.ExpenseRatio > 1 {
		return fmt.Errorf("valuation.expense_ratio must be in [0,1], got %v", p.ExpenseRatio)
	}
	if p.DepreciationRate < 0 || p.DepreciationRate > 1 {
		return fmt.Errorf("valuation.depreciation_rate must be in [0,1], got %v", p.DepreciationRate)
	}
	for name, c := range map[string]float64{
		"sales_confidence_floor": p.SalesConfidenceFloor,
		"income_confidence":      p.IncomeConfidence,
		"cost_confidence":        p.CostConfidence,
	} {
		if c < 0 || c > 1 {
			return fmt.Errorf("valuation.%s must be in [0,1], got %v", name, c)
		}
	}
	w := p.Weights
	if w.SalesComparison < 0 || w.IncomeApproach < 0 || w.CostApproach < 0 {
		return fmt.Errorf("valuation.weights must not be negative")
	}
	if w.Sum() <= 0 {
		return fmt.Errorf("valuation.weights must not all be zero")
	}
	return nil
}
