package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	stderrors "errors"
	"net"
	"regexp"
	"testing"
	"time"

	"valuation-workers/internal/common/database"
	"valuation-workers/internal/common/errors"
	"valuation-workers/internal/common/logger"
	"valuation-workers/internal/valuation"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func setupMockDB(t *testing.T, timeout time.Duration) (*PostgresRepository, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewPostgresRepository(database.NewPostgresFromDB(db, timeout), logger.NewTestLogger(t))
	return repo, mock
}

var propertyColumns = []string{
	"id", "address", "city", "state", "zip_code", "property_type",
	"bedrooms", "bathrooms", "sqft", "lot_size", "year_built", "annual_rent",
}

var comparableColumns = []string{
	"id", "property_type", "bedrooms", "bathrooms", "sqft", "lot_size", "sale_price", "sale_date",
}

// ==========================
// GetProperty
// ==========================

func TestPostgresRepository_GetProperty(t *testing.T) {
	repo, mock := setupMockDB(t, 0)

	rows := sqlmock.NewRows(propertyColumns).
		AddRow("P001", "12 Elm St", "Austin", "TX", "78701", "single_family", 3.0, 2.5, 1800.0, 0.25, 1995, 48000.0)
	mock.ExpectQuery(regexp.QuoteMeta(selectPropertySQL)).WithArgs("P001").WillReturnRows(rows)

	p, err := repo.GetProperty(context.Background(), "P001")
	require.NoError(t, err)
	assert.Equal(t, "P001", p.ID)
	assert.Equal(t, "single_family", p.PropertyType)
	assert.Equal(t, 1800.0, p.Sqft)
	assert.Equal(t, 1995, p.YearBuilt)
	require.True(t, p.HasRent())
	assert.Equal(t, 48000.0, *p.AnnualRent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_GetProperty_NullRent(t *testing.T) {
	repo, mock := setupMockDB(t, 0)

	rows := sqlmock.NewRows(propertyColumns).
		AddRow("P002", nil, nil, nil, nil, "condo", 2.0, 1.0, 950.0, nil, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta(selectPropertySQL)).WithArgs("P002").WillReturnRows(rows)

	p, err := repo.GetProperty(context.Background(), "P002")
	require.NoError(t, err)
	assert.False(t, p.HasRent())
	assert.Equal(t, 0.0, p.LotSize)
	assert.Empty(t, p.Address)
}

func TestPostgresRepository_GetProperty_NotFound(t *testing.T) {
	repo, mock := setupMockDB(t, 0)
	mock.ExpectQuery(regexp.QuoteMeta(selectPropertySQL)).WithArgs("P404").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetProperty(context.Background(), "P404")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, valuation.ErrPropertyNotFound))
}

func TestPostgresRepository_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		queryErr error
		wantCode errors.ErrorCode
	}{
		{"connection refused", &net.OpError{Op: "dial", Net: "tcp", Err: stderrors.New("connection refused")}, errors.ErrCodeDatabaseConnectionFailed},
		{"syntax error", stderrors.New(`pq: relation "properties" does not exist`), errors.ErrCodeQueryExecutionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := setupMockDB(t, 0)
			mock.ExpectQuery(regexp.QuoteMeta(selectPropertySQL)).WithArgs("P001").WillReturnError(tt.queryErr)

			_, err := repo.GetProperty(context.Background(), "P001")
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, tt.wantCode), err.Error())
			assert.True(t, errors.IsRetryableErrorCode(tt.wantCode))
		})
	}
}

func TestPostgresRepository_QueryTimeout(t *testing.T) {
	repo, mock := setupMockDB(t, 10*time.Millisecond)

	rows := sqlmock.NewRows(propertyColumns).
		AddRow("P001", "", "", "", "", "single_family", 3.0, 2.0, 1800.0, 0.2, 2000, nil)
	mock.ExpectQuery(regexp.QuoteMeta(selectPropertySQL)).
		WithArgs("P001").
		WillDelayFor(200 * time.Millisecond).
		WillReturnRows(rows)

	_, err := repo.GetProperty(context.Background(), "P001")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeQueryTimeout), err.Error())
}

// ==========================
// GetComparables
// ==========================

func TestPostgresRepository_GetComparables(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		query string
		args  []driver.Value
	}{
		{"unlimited", 0, selectComparablesSQL, []driver.Value{"P001"}},
		{"limited", 25, selectComparablesSQL + " LIMIT $2", []driver.Value{"P001", 25}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := setupMockDB(t, 0)

			rows := sqlmock.NewRows(comparableColumns).
				AddRow("C002", "single_family", 3.0, 2.0, 1750.0, 0.2, 725000.0, "2024-05-01").
				AddRow("C001", "single_family", 4.0, 3.0, 2100.0, nil, 810000.0, nil)
			mock.ExpectQuery("^" + regexp.QuoteMeta(tt.query) + "$").WithArgs(tt.args...).WillReturnRows(rows)

			sales, err := repo.GetComparables(context.Background(), "P001", tt.limit)
			require.NoError(t, err)
			require.Len(t, sales, 2)
			assert.Equal(t, "C002", sales[0].ID)
			assert.Equal(t, "2024-05-01", sales[0].SaleDate)
			assert.Equal(t, 725000.0, sales[0].SalePrice)
			assert.Equal(t, 0.0, sales[1].LotSize)
			assert.Empty(t, sales[1].SaleDate)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresRepository_GetComparables_Empty(t *testing.T) {
	repo, mock := setupMockDB(t, 0)
	mock.ExpectQuery(regexp.QuoteMeta(selectComparablesSQL)).
		WithArgs("P001").
		WillReturnRows(sqlmock.NewRows(comparableColumns))

	_, err := repo.GetComparables(context.Background(), "P001", 0)
	assert.True(t, stderrors.Is(err, valuation.ErrNoComparables))
}

func TestPostgresRepository_GetComparables_ScanError(t *testing.T) {
	repo, mock := setupMockDB(t, 0)
	rows := sqlmock.NewRows(comparableColumns).
		AddRow("C001", "single_family", 3.0, 2.0, "not-a-number", 0.2, 725000.0, "2024-05-01")
	mock.ExpectQuery(regexp.QuoteMeta(selectComparablesSQL)).WithArgs("P001").WillReturnRows(rows)

	_, err := repo.GetComparables(context.Background(), "P001", 0)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeQueryExecutionFailed))
}
