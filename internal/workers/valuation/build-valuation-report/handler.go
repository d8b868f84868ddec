package buildvaluationreport

import (
	"context"
	_ "embed"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/xeipuuv/gojsonschema"

	"valuation-workers/internal/common/errors"
	"valuation-workers/internal/common/logger"
	"valuation-workers/internal/common/metrics"
	"valuation-workers/internal/common/validation"
	"valuation-workers/internal/report"
	"valuation-workers/internal/valuation"
)

const TaskType = "build-valuation-report"

const builtinSchema = "builtin"

var (
	ErrSchemaUnavailable = stderrors.New("SCHEMA_UNAVAILABLE")
	ErrReportInvalid     = stderrors.New("REPORT_INVALID")
)

//go:embed report_schema.json
var defaultSchema []byte

type schemaCacheEntry struct {
	schema   *gojsonschema.Schema
	loadedAt time.Time
}

type Handler struct {
	config  *Config
	builder *report.Builder
	errors  *errors.ErrorHandler
	logger  logger.Logger
	cache   map[string]*schemaCacheEntry
	mu      sync.RWMutex
}

func NewHandler(config *Config, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:  config,
		builder: report.NewBuilder(config.CompanyName),
		errors:  errors.NewErrorHandler(log),
		logger:  log,
		cache:   make(map[string]*schemaCacheEntry),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	input, err := parseInput(job)
	if err != nil {
		h.failJob(client, job, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.Execute(ctx, input)
	if err != nil {
		h.failJob(client, job, err)
		return
	}

	h.completeJob(client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
}

func parseInput(job entities.Job) (*Input, error) {
	variables, err := job.GetVariablesAsMap()
	if err != nil {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("parse variables: %v", err))
	}
	if result := validation.ValidateInput(variables, GetInputSchema()); !result.Valid {
		return nil, errors.NewInvalidInputError(strings.Join(result.GetErrorMessages(), "; "))
	}

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("decode variables: %v", err))
	}
	return &input, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil {
		return nil, errors.NewInvalidInputError("input cannot be nil")
	}

	ranked := append([]valuation.Result(nil), input.Results...)
	valuation.Rank(ranked)

	r, err := h.builder.Build(input.Property, ranked)
	if err != nil {
		return nil, err
	}

	schema, err := h.loadSchema()
	if err != nil {
		return nil, errors.NewReportValidationFailedError(fmt.Sprintf("%v: %v", ErrSchemaUnavailable, err))
	}
	if err := validateReport(schema, r); err != nil {
		h.logger.Error("report failed schema validation", map[string]interface{}{
			"reportId":  r.ReportID,
			"requestId": input.RequestID,
			"error":     err.Error(),
		})
		return nil, errors.NewReportValidationFailedError(err.Error())
	}

	h.logger.Info("valuation report built", map[string]interface{}{
		"reportId":      r.ReportID,
		"requestId":     input.RequestID,
		"primaryMethod": string(ranked[0].Method),
		"methods":       len(r.Methods),
		"hasChart":      r.ComparativeChart != nil,
	})

	return &Output{
		RequestID: input.RequestID,
		Status:    "success",
		Report:    r,
		Metadata: ReportMetadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   h.config.AppVersion,
		},
	}, nil
}

// loadSchema compiles the configured schema once per CacheTTL.
func (h *Handler) loadSchema() (*gojsonschema.Schema, error) {
	key := h.config.SchemaPath
	if key == "" {
		key = builtinSchema
	}

	h.mu.RLock()
	if entry, ok := h.cache[key]; ok && (key == builtinSchema || time.Since(entry.loadedAt) < h.config.CacheTTL) {
		h.mu.RUnlock()
		return entry.schema, nil
	}
	h.mu.RUnlock()

	raw := defaultSchema
	if key != builtinSchema {
		b, err := os.ReadFile(key)
		if err != nil {
			return nil, fmt.Errorf("read schema: %w", err)
		}
		raw = b
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	h.mu.Lock()
	h.cache[key] = &schemaCacheEntry{schema: schema, loadedAt: time.Now()}
	h.mu.Unlock()
	return schema, nil
}

func validateReport(schema *gojsonschema.Schema, r *report.Report) error {
	result, err := schema.Validate(gojsonschema.NewGoLoader(r))
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return fmt.Errorf("%w: %s", ErrReportInvalid, strings.Join(errs, "; "))
	}
	return nil
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
