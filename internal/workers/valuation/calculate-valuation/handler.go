package calculatevaluation

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"

	"valuation-workers/internal/common/errors"
	"valuation-workers/internal/common/logger"
	"valuation-workers/internal/common/metrics"
	"valuation-workers/internal/common/observability"
	"valuation-workers/internal/common/validation"
	"valuation-workers/internal/valuation"
)

const (
	TaskType = "calculate-valuation"
)

// ErrValuationFailed wraps repository failures; the wrapped StandardError decides retries.
var ErrValuationFailed = stderrors.New("VALUATION_FAILED")

type Handler struct {
	config    *Config
	engine    *valuation.Engine
	appraiser *valuation.Appraiser
	obs       *observability.Observability
	errors    *errors.ErrorHandler
	logger    logger.Logger
}

// NewHandler wires the worker. repo may be nil, in which case only inline jobs are served.
func NewHandler(config *Config, engine *valuation.Engine, repo valuation.PropertyRepository, obs *observability.Observability, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})

	h := &Handler{
		config: config,
		engine: engine,
		obs:    obs,
		errors: errors.NewErrorHandler(log),
		logger: log,
	}
	if repo != nil {
		h.appraiser = valuation.NewAppraiser(engine, repo)
	}
	return h
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	input, err := parseInput(job)
	var output *Output
	if err == nil {
		output, err = h.execute(ctx, input)
	}
	if err != nil {
		h.failJob(ctx, client, job, err, start)
		return
	}

	h.completeJob(client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	h.obs.RecordJobProcessed(ctx, TaskType, "completed")
	h.obs.RecordJobDuration(ctx, TaskType, time.Since(start), "completed")
}

func parseInput(job entities.Job) (*Input, error) {
	variables, err := job.GetVariablesAsMap()
	if err != nil {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("parse variables: %v", err))
	}

	result := validation.ValidateInput(variables, GetInputSchema())
	if !result.Valid {
		return nil, errors.NewInvalidInputError(strings.Join(result.GetErrorMessages(), "; "))
	}

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("decode variables: %v", err))
	}
	return &input, nil
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil {
		return nil, errors.NewInvalidInputError("input cannot be nil")
	}

	method := strings.TrimSpace(input.Method)
	if method == "" {
		method = string(valuation.DefaultMethod)
	}
	if !input.AllMethods && !valuation.Method(method).Valid() {
		return nil, errors.NewUnknownMethodError(method)
	}

	propertyID := strings.TrimSpace(input.PropertyID)
	var results []valuation.Result

	switch {
	case input.Property != nil:
		if propertyID == "" {
			propertyID = input.Property.ID
		}
		if input.AllMethods {
			results = h.engine.CalculateAll(input.Property, input.Comparables)
		} else {
			results = []valuation.Result{h.engine.Calculate(input.Property, input.Comparables, method)}
		}

	case propertyID != "":
		if h.appraiser == nil {
			return nil, errors.NewInvalidInputError("propertyId given but no property store is configured")
		}
		var err error
		results, err = h.appraise(ctx, propertyID, method, input.AllMethods)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrValuationFailed, err)
		}

	default:
		return nil, errors.NewInvalidInputError("either propertyId or property is required")
	}

	h.record(ctx, results)

	h.logger.Info("valuation calculated", map[string]interface{}{
		"propertyId": propertyID,
		"method":     string(results[0].Method),
		"value":      results[0].Value,
		"confidence": results[0].Confidence,
		"methods":    len(results),
	})

	return &Output{
		ValuationID: uuid.NewString(),
		PropertyID:  propertyID,
		Primary:     results[0],
		Results:     results,
	}, nil
}

func (h *Handler) appraise(ctx context.Context, propertyID, method string, all bool) ([]valuation.Result, error) {
	if all {
		return h.appraiser.AppraiseAll(ctx, propertyID)
	}
	res, err := h.appraiser.Appraise(ctx, propertyID, method)
	if err != nil {
		return nil, err
	}
	return []valuation.Result{res}, nil
}

func (h *Handler) record(ctx context.Context, results []valuation.Result) {
	for _, res := range results {
		status := "ok"
		if !res.OK() {
			status = string(res.Err.Code)
		} else {
			metrics.ValuationConfidence.WithLabelValues(string(res.Method)).Observe(res.Confidence)
		}
		metrics.ValuationsTotal.WithLabelValues(string(res.Method), status).Inc()
		h.obs.RecordValuation(ctx, string(res.Method), status, res.Value)
	}
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		return
	}
	if _, err := cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
	}
}

func (h *Handler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, err error, start time.Time) {
	code := string(errors.Normalize(err).Code)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, code).Inc()
	h.obs.RecordJobProcessed(ctx, TaskType, "failed")
	h.obs.RecordJobDuration(ctx, TaskType, time.Since(start), "failed")

	// the job context may already be past its deadline
	h.errors.HandleJobError(context.Background(), client, job, err)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
