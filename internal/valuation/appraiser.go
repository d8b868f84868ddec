package valuation

import (
	"context"
	stderrors "errors"
	"fmt"

	"valuation-workers/internal/common/errors"
	"valuation-workers/internal/models"
)

var (
	// ErrPropertyNotFound is returned by repositories when no property has the requested id.
	ErrPropertyNotFound = errors.NewPropertyNotFoundError("")
	// ErrNoComparables is returned by repositories when no candidate sales exist for a property.
	ErrNoComparables = errors.NewDataUnavailableError("no comparable sales on record")
)

// PropertyRepository supplies subjects and candidate comparable sales. A limit <= 0 means no limit.
type PropertyRepository interface {
	GetProperty(ctx context.Context, id string) (*models.PropertyRecord, error)
	GetComparables(ctx context.Context, id string, limit int) ([]models.ComparableSale, error)
}

// Appraiser loads inputs from a repository and runs the engine over them.
type Appraiser struct {
	engine *Engine
	repo   PropertyRepository
}

func NewAppraiser(engine *Engine, repo PropertyRepository) *Appraiser {
	return &Appraiser{engine: engine, repo: repo}
}

// Appraise values one property with the named method. The returned error is set only for
// repository failures the caller may retry; missing data is reported inside the Result.
func (a *Appraiser) Appraise(ctx context.Context, propertyID, method string) (Result, error) {
	subject, candidates, res, err := a.load(ctx, propertyID, Method(method))
	if err != nil || res != nil {
		return derefResult(res), err
	}
	return a.engine.Calculate(subject, candidates, method), nil
}

// AppraiseAll values one property with every method, ranked by confidence.
func (a *Appraiser) AppraiseAll(ctx context.Context, propertyID string) ([]Result, error) {
	subject, candidates, res, err := a.load(ctx, propertyID, MethodHybrid)
	if err != nil {
		return nil, err
	}
	if res != nil {
		all := make([]Result, len(Methods))
		for i, m := range Methods {
			all[i] = failedResult(m, res.Err)
		}
		return all, nil
	}
	return a.engine.CalculateAll(subject, candidates), nil
}

// Load fetches the subject and its candidate sales. A missing property comes back as nil
// subject with a nil error.
func (a *Appraiser) Load(ctx context.Context, propertyID string) (*models.PropertyRecord, []models.ComparableSale, error) {
	subject, err := a.repo.GetProperty(ctx, propertyID)
	if err != nil {
		if stderrors.Is(err, ErrPropertyNotFound) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("get property %s: %w", propertyID, err)
	}

	candidates, err := a.repo.GetComparables(ctx, propertyID, a.engine.policy.CandidateLimit)
	if err != nil && !stderrors.Is(err, ErrNoComparables) {
		return nil, nil, fmt.Errorf("get comparables %s: %w", propertyID, err)
	}
	return subject, candidates, nil
}

func (a *Appraiser) load(ctx context.Context, propertyID string, method Method) (*models.PropertyRecord, []models.ComparableSale, *Result, error) {
	subject, candidates, err := a.Load(ctx, propertyID)
	if err != nil {
		return nil, nil, nil, err
	}
	if subject == nil {
		notFound := errors.NewDataUnavailableError(fmt.Sprintf("property %s not found", propertyID))
		res := a.engine.fail(method, nil, notFound)
		return nil, nil, &res, nil
	}
	return subject, candidates, nil, nil
}

func derefResult(r *Result) Result {
	if r == nil {
		return Result{}
	}
	return *r
}
