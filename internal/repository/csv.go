package repository

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"valuation-workers/internal/common/errors"
	"valuation-workers/internal/common/logger"
	"valuation-workers/internal/models"
	"valuation-workers/internal/valuation"
)

// CSVRepository serves properties and comparable sales from CSV extracts held in memory.
// Comparables keep file order. Rows with malformed numbers are skipped with a warning.
type CSVRepository struct {
	properties  map[string]*models.PropertyRecord
	comparables []models.ComparableSale
	logger      logger.Logger
}

var _ valuation.PropertyRepository = (*CSVRepository)(nil)

// LoadCSV reads both extracts from disk.
func LoadCSV(propertiesPath, comparablesPath string, log logger.Logger) (*CSVRepository, error) {
	pf, err := os.Open(propertiesPath)
	if err != nil {
		return nil, errors.NewDataLoadFailedError(propertiesPath, err)
	}
	defer pf.Close()

	cf, err := os.Open(comparablesPath)
	if err != nil {
		return nil, errors.NewDataLoadFailedError(comparablesPath, err)
	}
	defer cf.Close()

	repo, err := NewCSVRepository(pf, cf, log)
	if err != nil {
		return nil, err
	}
	repo.logger.Info("csv data loaded", map[string]interface{}{
		"properties":  len(repo.properties),
		"comparables": len(repo.comparables),
	})
	return repo, nil
}

func NewCSVRepository(properties, comparables io.Reader, log logger.Logger) (*CSVRepository, error) {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	repo := &CSVRepository{
		properties: make(map[string]*models.PropertyRecord),
		logger:     log.WithFields(map[string]interface{}{"repository": "csv"}),
	}

	if err := readTable(properties, "properties", []string{"id"}, repo.addProperty); err != nil {
		return nil, err
	}
	if err := readTable(comparables, "comparables", []string{"id", "sale_price"}, repo.addComparable); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *CSVRepository) GetProperty(_ context.Context, id string) (*models.PropertyRecord, error) {
	p, ok := r.properties[strings.TrimSpace(id)]
	if !ok {
		return nil, errors.NewPropertyNotFoundError(id)
	}
	cp := *p
	return &cp, nil
}

func (r *CSVRepository) GetComparables(ctx context.Context, id string, limit int) ([]models.ComparableSale, error) {
	subject, err := r.GetProperty(ctx, id)
	if err != nil {
		return nil, err
	}

	var sales []models.ComparableSale
	for _, c := range r.comparables {
		if c.PropertyType != subject.PropertyType {
			continue
		}
		sales = append(sales, c)
		if limit > 0 && len(sales) == limit {
			break
		}
	}
	if len(sales) == 0 {
		return nil, valuation.ErrNoComparables
	}
	return sales, nil
}

// row gives typed access to one record by header name.
type row struct {
	line   int
	header map[string]int
	fields []string
	err    error
}

func (rw *row) str(col string) string {
	i, ok := rw.header[col]
	if !ok || i >= len(rw.fields) {
		return ""
	}
	return strings.TrimSpace(rw.fields[i])
}

// num parses a numeric column. Blank and missing columns read as zero.
func (rw *row) num(col string) float64 {
	v := rw.str(col)
	if v == "" || rw.err != nil {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		rw.err = fmt.Errorf("column %s: %q is not a number", col, v)
	}
	return f
}

func (rw *row) optionalNum(col string) *float64 {
	if rw.str(col) == "" {
		return nil
	}
	v := rw.num(col)
	return &v
}

func readTable(src io.Reader, table string, required []string, add func(*row)) error {
	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	head, err := reader.Read()
	if err != nil {
		return errors.NewDataLoadFailedError(table, fmt.Errorf("read header: %w", err))
	}
	header := make(map[string]int, len(head))
	for i, name := range head {
		header[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	for _, col := range required {
		if _, ok := header[col]; !ok {
			return errors.NewDataLoadFailedError(table, fmt.Errorf("missing column %q", col))
		}
	}

	line := 1
	for {
		fields, err := reader.Read()
		line++
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.NewDataLoadFailedError(table, err)
		}

		add(&row{line: line, header: header, fields: fields})
	}
}

func (r *CSVRepository) addProperty(rw *row) {
	p := &models.PropertyRecord{
		ID:           rw.str("id"),
		Address:      rw.str("address"),
		City:         rw.str("city"),
		State:        rw.str("state"),
		ZipCode:      rw.str("zip_code"),
		PropertyType: rw.str("property_type"),
		Bedrooms:     rw.num("bedrooms"),
		Bathrooms:    rw.num("bathrooms"),
		Sqft:         rw.num("sqft"),
		LotSize:      rw.num("lot_size"),
		YearBuilt:    int(rw.num("year_built")),
		AnnualRent:   rw.optionalNum("annual_rent"),
	}
	if p.ID == "" || rw.err != nil {
		r.skip("properties", rw, p.ID)
		return
	}
	r.properties[p.ID] = p
}

func (r *CSVRepository) addComparable(rw *row) {
	c := models.ComparableSale{
		ID:           rw.str("id"),
		PropertyType: rw.str("property_type"),
		Bedrooms:     rw.num("bedrooms"),
		Bathrooms:    rw.num("bathrooms"),
		Sqft:         rw.num("sqft"),
		LotSize:      rw.num("lot_size"),
		SalePrice:    rw.num("sale_price"),
		SaleDate:     rw.str("sale_date"),
	}
	if c.ID == "" || rw.err != nil {
		r.skip("comparables", rw, c.ID)
		return
	}
	r.comparables = append(r.comparables, c)
}

func (r *CSVRepository) skip(table string, rw *row, id string) {
	reason := "missing id"
	if rw.err != nil {
		reason = rw.err.Error()
	}
	r.logger.Warn("skipping malformed row", map[string]interface{}{
		"table":  table,
		"line":   rw.line,
		"id":     id,
		"reason": reason,
	})
}
