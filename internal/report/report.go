// Package report turns ranked valuation results into the presentation payload consumed by
// document renderers: formatted headline figures, per-method lines and the comparative
// chart series.
package report

import (
	"strconv"
	"strings"
	"time"

	"valuation-workers/internal/common/errors"
	"valuation-workers/internal/models"
	"valuation-workers/internal/valuation"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const notAvailable = "N/A"

type Report struct {
	ValuationID      string            `json:"valuation_id"`
	ReportID         string            `json:"report_id"`
	ReportDate       string            `json:"report_date"`
	CompanyName      string            `json:"company_name"`
	Property         PropertySection   `json:"property"`
	Valuation        Summary           `json:"valuation"`
	Methods          []MethodLine      `json:"methods"`
	ComparativeChart *ComparativeChart `json:"comparative_chart,omitempty"`
}

type PropertySection struct {
	ID           string `json:"id"`
	Address      string `json:"address"`
	City         string `json:"city"`
	State        string `json:"state"`
	ZipCode      string `json:"zip_code"`
	PropertyType string `json:"property_type"`
	Bedrooms     string `json:"bedrooms"`
	Bathrooms    string `json:"bathrooms"`
	Sqft         string `json:"sqft"`
	LotSize      string `json:"lot_size"`
	YearBuilt    string `json:"year_built"`
}

type Summary struct {
	PrimaryMethod     string `json:"primary_method"`
	PrimaryValue      string `json:"primary_value"`
	PrimaryConfidence string `json:"primary_confidence"`
	FinalValue        string `json:"final_value"`
}

type MethodLine struct {
	Method     valuation.Method `json:"method"`
	Title      string           `json:"title"`
	Value      string           `json:"value"`
	Confidence string           `json:"confidence"`
	OK         bool             `json:"ok"`
	Error      string           `json:"error,omitempty"`
}

// ComparativeChart holds the bar series for original against adjusted comparable prices.
type ComparativeChart struct {
	Labels         []string  `json:"labels"`
	SalePrices     []float64 `json:"sale_prices"`
	AdjustedPrices []float64 `json:"adjusted_prices"`
	SubjectValue   float64   `json:"subject_value"`
}

type Builder struct {
	companyName string
	now         func() time.Time
	printer     *message.Printer
}

func NewBuilder(companyName string) *Builder {
	return &Builder{
		companyName: companyName,
		now:         time.Now,
		printer:     message.NewPrinter(language.English),
	}
}

// WithClock fixes the report timestamp source.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build renders results, which must already be ranked; the first element is the headline.
func (b *Builder) Build(property *models.PropertyRecord, results []valuation.Result) (*Report, error) {
	if len(results) == 0 {
		return nil, errors.NewInvalidInputError("no valuation results to report")
	}

	now := b.now()
	section := b.propertySection(property)
	primary := results[0]

	r := &Report{
		ValuationID: uuid.NewString(),
		ReportID:    "REP-" + section.ID + "-" + now.Format("20060102-150405"),
		ReportDate:  now.Format("January 02, 2006"),
		CompanyName: b.companyName,
		Property:    section,
		Valuation: Summary{
			PrimaryMethod:     b.Title(primary.Method),
			PrimaryValue:      b.Currency(primary.Value),
			PrimaryConfidence: Percent(primary.Confidence),
			FinalValue:        b.Currency(primary.Value),
		},
		Methods:          make([]MethodLine, 0, len(results)),
		ComparativeChart: chartFrom(results),
	}

	for _, res := range results {
		line := MethodLine{
			Method:     res.Method,
			Title:      b.Title(res.Method),
			Value:      b.Currency(res.Value),
			Confidence: Percent(res.Confidence),
			OK:         res.OK(),
		}
		if d, ok := res.Details.(valuation.ErrorDetails); ok {
			line.Error = d.Error
		}
		r.Methods = append(r.Methods, line)
	}
	return r, nil
}

// Currency formats v as US dollars with grouping and two decimals.
func (b *Builder) Currency(v float64) string {
	return "$" + b.printer.Sprint(number.Decimal(v, number.Scale(2)))
}

// Percent truncates a [0,1] confidence to a whole percentage.
func Percent(confidence float64) string {
	return strconv.Itoa(int(confidence*100)) + "%"
}

// Title renders a method name for display. Casers are stateful, so each call gets its own.
func (b *Builder) Title(m valuation.Method) string {
	return cases.Title(language.English).String(strings.ReplaceAll(string(m), "_", " "))
}

func (b *Builder) propertySection(p *models.PropertyRecord) PropertySection {
	if p == nil {
		return PropertySection{
			ID: "UNK", Address: notAvailable, City: notAvailable, State: notAvailable,
			ZipCode: notAvailable, PropertyType: notAvailable, Bedrooms: notAvailable,
			Bathrooms: notAvailable, Sqft: notAvailable, LotSize: notAvailable, YearBuilt: notAvailable,
		}
	}

	id := p.ID
	if id == "" {
		id = "UNK"
	}
	yearBuilt := notAvailable
	if p.YearBuilt > 0 {
		yearBuilt = strconv.Itoa(p.YearBuilt)
	}
	return PropertySection{
		ID:           id,
		Address:      orNA(p.Address),
		City:         orNA(p.City),
		State:        orNA(p.State),
		ZipCode:      orNA(p.ZipCode),
		PropertyType: orNA(p.PropertyType),
		Bedrooms:     strconv.FormatFloat(p.Bedrooms, 'f', -1, 64),
		Bathrooms:    strconv.FormatFloat(p.Bathrooms, 'f', -1, 64),
		Sqft:         b.printer.Sprint(number.Decimal(p.Sqft)),
		LotSize:      strconv.FormatFloat(p.LotSize, 'f', -1, 64),
		YearBuilt:    yearBuilt,
	}
}

// chartFrom uses the first sales comparison payload found, including inside a hybrid.
func chartFrom(results []valuation.Result) *ComparativeChart {
	for _, res := range results {
		d, ok := res.SalesDetails()
		if !ok || len(d.Comparables) == 0 || len(d.Adjustments) == 0 {
			continue
		}
		chart := &ComparativeChart{
			Labels:         make([]string, len(d.Comparables)),
			SalePrices:     make([]float64, len(d.Comparables)),
			AdjustedPrices: make([]float64, len(d.Adjustments)),
			SubjectValue:   res.Value,
		}
		for i, c := range d.Comparables {
			chart.Labels[i] = "Comp " + strconv.Itoa(i+1)
			chart.SalePrices[i] = c.SalePrice
		}
		for i, a := range d.Adjustments {
			chart.AdjustedPrices[i] = a.AdjustedPrice
		}
		return chart
	}
	return nil
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return notAvailable
	}
	return s
}
