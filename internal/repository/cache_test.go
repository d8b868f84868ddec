package repository

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"valuation-workers/internal/common/database"
	"valuation-workers/internal/common/errors"
	"valuation-workers/internal/common/logger"
	"valuation-workers/internal/models"
	"valuation-workers/internal/valuation"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type stubRepository struct {
	mock.Mock
}

func (m *stubRepository) GetProperty(ctx context.Context, id string) (*models.PropertyRecord, error) {
	args := m.Called(ctx, id)
	if p := args.Get(0); p != nil {
		return p.(*models.PropertyRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *stubRepository) GetComparables(ctx context.Context, id string, limit int) ([]models.ComparableSale, error) {
	args := m.Called(ctx, id, limit)
	if c := args.Get(0); c != nil {
		return c.([]models.ComparableSale), args.Error(1)
	}
	return nil, args.Error(1)
}

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *database.RedisClient) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, &database.RedisClient{Client: client}
}

func TestCachedRepository_PropertyReadThrough(t *testing.T) {
	ctx := context.Background()
	mr, rc := setupMiniredis(t)

	subject := &models.PropertyRecord{ID: "P001", PropertyType: "single_family", Sqft: 1800, AnnualRent: models.Float64(48000)}
	next := new(stubRepository)
	next.On("GetProperty", ctx, "P001").Return(subject, nil).Once()

	repo := NewCachedRepository(next, rc, 10*time.Minute, logger.NewTestLogger(t))

	first, err := repo.GetProperty(ctx, "P001")
	require.NoError(t, err)
	second, err := repo.GetProperty(ctx, "P001")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	require.True(t, second.HasRent())
	assert.Equal(t, 48000.0, *second.AnnualRent)
	next.AssertNumberOfCalls(t, "GetProperty", 1)
	assert.Equal(t, 10*time.Minute, mr.TTL(propertyKey("P001")))
}

func TestCachedRepository_ComparablesKeyedByLimit(t *testing.T) {
	ctx := context.Background()
	mr, rc := setupMiniredis(t)

	sales := []models.ComparableSale{{ID: "C001", SalePrice: 725000, SaleDate: "2024-05-01"}}
	next := new(stubRepository)
	next.On("GetComparables", ctx, "P001", 0).Return(sales, nil).Once()
	next.On("GetComparables", ctx, "P001", 10).Return(sales, nil).Once()

	repo := NewCachedRepository(next, rc, time.Minute, logger.NewTestLogger(t))

	for i := 0; i < 2; i++ {
		got, err := repo.GetComparables(ctx, "P001", 0)
		require.NoError(t, err)
		assert.Equal(t, sales, got)
	}
	_, err := repo.GetComparables(ctx, "P001", 10)
	require.NoError(t, err)

	next.AssertExpectations(t)
	assert.True(t, mr.Exists(comparablesKey("P001", 0)))
	assert.True(t, mr.Exists(comparablesKey("P001", 10)))
}

func TestCachedRepository_DoesNotCacheMisses(t *testing.T) {
	ctx := context.Background()
	mr, rc := setupMiniredis(t)

	next := new(stubRepository)
	next.On("GetProperty", ctx, "P404").Return(nil, errors.NewPropertyNotFoundError("P404"))
	next.On("GetComparables", ctx, "P001", 0).Return(nil, valuation.ErrNoComparables)

	repo := NewCachedRepository(next, rc, time.Minute, logger.NewTestLogger(t))

	_, err := repo.GetProperty(ctx, "P404")
	assert.True(t, stderrors.Is(err, valuation.ErrPropertyNotFound))
	_, err = repo.GetComparables(ctx, "P001", 0)
	assert.True(t, stderrors.Is(err, valuation.ErrNoComparables))

	assert.False(t, mr.Exists(propertyKey("P404")))
	assert.False(t, mr.Exists(comparablesKey("P001", 0)))
}

func TestCachedRepository_CorruptEntryFallsBack(t *testing.T) {
	ctx := context.Background()
	mr, rc := setupMiniredis(t)
	require.NoError(t, mr.Set(propertyKey("P001"), "{not json"))

	next := new(stubRepository)
	next.On("GetProperty", ctx, "P001").Return(&models.PropertyRecord{ID: "P001"}, nil)

	repo := NewCachedRepository(next, rc, time.Minute, logger.NewTestLogger(t))
	p, err := repo.GetProperty(ctx, "P001")
	require.NoError(t, err)
	assert.Equal(t, "P001", p.ID)
	next.AssertExpectations(t)
}

func TestCachedRepository_RedisErrors(t *testing.T) {
	ctx := context.Background()
	client, redisMock := redismock.NewClientMock()
	rc := &database.RedisClient{Client: client}

	next := new(stubRepository)
	next.On("GetProperty", ctx, "P001").Return(&models.PropertyRecord{ID: "P001"}, nil)

	repo := NewCachedRepository(next, rc, time.Minute, logger.NewTestLogger(t))

	redisMock.ExpectGet(propertyKey("P001")).SetErr(stderrors.New("LOADING Redis is loading the dataset in memory"))
	p, err := repo.GetProperty(ctx, "P001")
	require.NoError(t, err)
	assert.Equal(t, "P001", p.ID)

	redisMock.ExpectDel(propertyKey("P001")).SetErr(stderrors.New("READONLY You can't write against a read only replica"))
	err = repo.Invalidate(ctx, "P001")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeCacheOperationFailed))
}

func TestCachedRepository_Invalidate(t *testing.T) {
	ctx := context.Background()
	client, redisMock := redismock.NewClientMock()
	repo := NewCachedRepository(new(stubRepository), &database.RedisClient{Client: client}, time.Minute, nil)

	redisMock.ExpectDel(propertyKey("P001")).SetVal(1)
	require.NoError(t, repo.Invalidate(ctx, "P001"))
	assert.NoError(t, redisMock.ExpectationsWereMet())
}
