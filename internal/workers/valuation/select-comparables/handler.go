package selectcomparables

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"valuation-workers/internal/common/errors"
	"valuation-workers/internal/common/logger"
	"valuation-workers/internal/common/metrics"
	"valuation-workers/internal/common/validation"
	"valuation-workers/internal/models"
	"valuation-workers/internal/valuation"
)

const TaskType = "select-comparables"

var ErrSelectionFailed = stderrors.New("SELECTION_FAILED")

type Handler struct {
	config    *Config
	engine    *valuation.Engine
	appraiser *valuation.Appraiser
	errors    *errors.ErrorHandler
	logger    logger.Logger
}

func NewHandler(config *Config, engine *valuation.Engine, repo valuation.PropertyRepository, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})

	h := &Handler{
		config: config,
		engine: engine,
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

	variables, err := job.GetVariablesAsMap()
	if err != nil {
		h.failJob(client, job, errors.NewInvalidInputError(fmt.Sprintf("parse variables: %v", err)))
		return
	}
	if result := validation.ValidateInput(variables, GetInputSchema()); !result.Valid {
		h.failJob(client, job, errors.NewInvalidInputError(strings.Join(result.GetErrorMessages(), "; ")))
		return
	}

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(client, job, errors.NewInvalidInputError(fmt.Sprintf("decode variables: %v", err)))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.failJob(client, job, err)
		return
	}

	h.completeJob(client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil {
		return nil, errors.NewInvalidInputError("input cannot be nil")
	}

	subject, candidates, err := h.load(ctx, input)
	if err != nil {
		return nil, err
	}

	selected, err := h.engine.SelectComparables(subject, candidates, input.MaxCount)
	if err != nil {
		return nil, err
	}

	adjustments := make([]valuation.Adjustment, len(selected))
	for i, c := range selected {
		adjustments[i] = h.engine.Adjust(subject, c)
	}

	h.logger.Info("comparables selected", map[string]interface{}{
		"propertyId": subject.ID,
		"candidates": len(candidates),
		"selected":   len(selected),
	})

	return &Output{
		PropertyID:  subject.ID,
		Comparables: selected,
		Adjustments: adjustments,
		Count:       len(selected),
	}, nil
}

func (h *Handler) load(ctx context.Context, input *Input) (*models.PropertyRecord, []models.ComparableSale, error) {
	if input.Property != nil {
		subject := *input.Property
		if subject.ID == "" {
			subject.ID = strings.TrimSpace(input.PropertyID)
		}
		return &subject, input.Candidates, nil
	}

	propertyID := strings.TrimSpace(input.PropertyID)
	if propertyID == "" {
		return nil, nil, errors.NewInvalidInputError("either propertyId or property with candidates is required")
	}
	if h.appraiser == nil {
		return nil, nil, errors.NewInvalidInputError("propertyId given but no property store is configured")
	}

	subject, candidates, err := h.appraiser.Load(ctx, propertyID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrSelectionFailed, err)
	}
	if subject == nil {
		return nil, nil, errors.NewPropertyNotFoundError(propertyID)
	}
	return subject, candidates, nil
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{"error": err.Error()})
		return
	}
	if _, err := cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{"error": err.Error()})
	}
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.Normalize(err).Code)).Inc()
	h.errors.HandleJobError(context.Background(), client, job, err)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
