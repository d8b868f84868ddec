// Package repository provides valuation.PropertyRepository implementations over Postgres,
// Elasticsearch and CSV extracts, plus a Redis read-through cache that wraps any of them.
package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	stderrors "errors"
	"net"

	"valuation-workers/internal/common/database"
	"valuation-workers/internal/common/errors"
	"valuation-workers/internal/common/logger"
	"valuation-workers/internal/models"
	"valuation-workers/internal/valuation"
)

const (
	queryGetProperty    = "get_property"
	queryGetComparables = "get_comparables"

	selectPropertySQL = `SELECT id, address, city, state, zip_code, property_type, bedrooms, bathrooms, sqft, lot_size, year_built, annual_rent FROM properties WHERE id = $1`

	// candidates share the subject's property type, newest sale first
	selectComparablesSQL = `SELECT c.id, c.property_type, c.bedrooms, c.bathrooms, c.sqft, c.lot_size, c.sale_price, to_char(c.sale_date, 'YYYY-MM-DD') FROM comparable_sales c JOIN properties p ON p.property_type = c.property_type WHERE p.id = $1 ORDER BY c.sale_date DESC, c.id`
)

type PostgresRepository struct {
	db     *database.PostgresClient
	logger logger.Logger
}

var _ valuation.PropertyRepository = (*PostgresRepository)(nil)

func NewPostgresRepository(db *database.PostgresClient, log logger.Logger) *PostgresRepository {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &PostgresRepository{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"repository": "postgres"}),
	}
}

func (r *PostgresRepository) GetProperty(ctx context.Context, id string) (*models.PropertyRecord, error) {
	qctx, cancel := r.db.WithQueryTimeout(ctx)
	defer cancel()

	var p models.PropertyRecord
	var address, city, state, zip, propType sql.NullString
	var bedrooms, bathrooms, sqft, lot, rent sql.NullFloat64
	var yearBuilt sql.NullInt64
	err := r.db.QueryRow(qctx, selectPropertySQL, id).Scan(
		&p.ID, &address, &city, &state, &zip, &propType,
		&bedrooms, &bathrooms, &sqft, &lot, &yearBuilt, &rent,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewPropertyNotFoundError(id)
	}
	if err != nil {
		return nil, r.queryError(qctx, queryGetProperty, err)
	}

	p.Address = address.String
	p.City = city.String
	p.State = state.String
	p.ZipCode = zip.String
	p.PropertyType = propType.String
	p.Bedrooms = bedrooms.Float64
	p.Bathrooms = bathrooms.Float64
	p.Sqft = sqft.Float64
	p.LotSize = lot.Float64
	p.YearBuilt = int(yearBuilt.Int64)
	if rent.Valid {
		p.AnnualRent = models.Float64(rent.Float64)
	}
	return &p, nil
}

func (r *PostgresRepository) GetComparables(ctx context.Context, id string, limit int) ([]models.ComparableSale, error) {
	qctx, cancel := r.db.WithQueryTimeout(ctx)
	defer cancel()

	query, args := selectComparablesSQL, []interface{}{id}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.db.Query(qctx, query, args...)
	if err != nil {
		return nil, r.queryError(qctx, queryGetComparables, err)
	}
	defer rows.Close()

	var sales []models.ComparableSale
	for rows.Next() {
		var c models.ComparableSale
		var bedrooms, bathrooms, lot sql.NullFloat64
		var saleDate sql.NullString
		if err := rows.Scan(&c.ID, &c.PropertyType, &bedrooms, &bathrooms, &c.Sqft, &lot, &c.SalePrice, &saleDate); err != nil {
			return nil, r.queryError(qctx, queryGetComparables, err)
		}
		c.Bedrooms = bedrooms.Float64
		c.Bathrooms = bathrooms.Float64
		c.LotSize = lot.Float64
		c.SaleDate = saleDate.String
		sales = append(sales, c)
	}
	if err := rows.Err(); err != nil {
		return nil, r.queryError(qctx, queryGetComparables, err)
	}

	r.logger.Debug("comparables loaded", map[string]interface{}{
		"propertyId": id,
		"count":      len(sales),
	})

	if len(sales) == 0 {
		return nil, valuation.ErrNoComparables
	}
	return sales, nil
}

func (r *PostgresRepository) queryError(ctx context.Context, queryType string, err error) error {
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.NewQueryTimeoutError(queryType)
	}
	var netErr net.Error
	if stderrors.Is(err, driver.ErrBadConn) || stderrors.As(err, &netErr) {
		return errors.NewDatabaseConnectionFailedError(err)
	}
	return errors.NewQueryExecutionFailedError(queryType, err)
}
