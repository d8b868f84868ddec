package repository

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"valuation-workers/internal/common/database"
	"valuation-workers/internal/common/errors"
	"valuation-workers/internal/common/logger"
	"valuation-workers/internal/models"
	"valuation-workers/internal/valuation"
)

// maxSearchWindow is the default index.max_result_window.
const maxSearchWindow = 10000

// SearchRepository reads comparable sales from an Elasticsearch index. Subjects come from the
// wrapped properties repository.
type SearchRepository struct {
	properties valuation.PropertyRepository
	es         *database.ElasticsearchClient
	index      string
	logger     logger.Logger
}

var _ valuation.PropertyRepository = (*SearchRepository)(nil)

func NewSearchRepository(properties valuation.PropertyRepository, es *database.ElasticsearchClient, index string, log logger.Logger) *SearchRepository {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &SearchRepository{
		properties: properties,
		es:         es,
		index:      index,
		logger:     log.WithFields(map[string]interface{}{"repository": "elasticsearch", "index": index}),
	}
}

func (r *SearchRepository) GetProperty(ctx context.Context, id string) (*models.PropertyRecord, error) {
	return r.properties.GetProperty(ctx, id)
}

func (r *SearchRepository) GetComparables(ctx context.Context, id string, limit int) ([]models.ComparableSale, error) {
	subject, err := r.properties.GetProperty(ctx, id)
	if err != nil {
		return nil, err
	}

	hits, err := r.es.SearchHits(ctx, r.index, comparablesQuery(subject.PropertyType, limit))
	if err != nil {
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.NewSearchTimeoutError(r.index)
		}
		return nil, errors.NewSearchQueryFailedError(r.index, err)
	}

	sales := make([]models.ComparableSale, 0, len(hits))
	for _, raw := range hits {
		var c models.ComparableSale
		if err := json.Unmarshal(raw, &c); err != nil {
			r.logger.Warn("skipping malformed comparable document", map[string]interface{}{
				"error": err.Error(),
			})
			continue
		}
		sales = append(sales, c)
	}

	r.logger.Debug("comparables searched", map[string]interface{}{
		"propertyId":   id,
		"propertyType": subject.PropertyType,
		"count":        len(sales),
	})

	if len(sales) == 0 {
		return nil, valuation.ErrNoComparables
	}
	return sales, nil
}

func comparablesQuery(propertyType string, limit int) map[string]interface{} {
	size := maxSearchWindow
	if limit > 0 && limit < maxSearchWindow {
		size = limit
	}
	return map[string]interface{}{
		"size": size,
		"query": map[string]interface{}{
			"term": map[string]interface{}{
				"property_type": propertyType,
			},
		},
		"sort": []interface{}{
			map[string]interface{}{"sale_date": map[string]interface{}{"order": "desc"}},
			map[string]interface{}{"id": map[string]interface{}{"order": "asc"}},
		},
	}
}
