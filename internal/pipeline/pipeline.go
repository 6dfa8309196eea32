package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/querydesk/querydesk/internal/modelclient"
	"github.com/querydesk/querydesk/internal/observability"
	"github.com/querydesk/querydesk/internal/query"
)

type Stage string

const (
	StageGenerating  Stage = "generating"
	StageExecuting   Stage = "executing"
	StageSummarizing Stage = "summarizing"
	StageDone        Stage = "done"
)

// Model is the pair of chat completion calls the pipeline makes.
type Model interface {
	GenerateQuery(ctx context.Context, question string) (string, error)
	Summarize(ctx context.Context, question, queryText string, result query.Result) modelclient.Summary
}

type Result struct {
	QueryText string
	Rows      query.Result
	Answer    string
	Degraded  bool
}

// Error reports the stage a run stopped in. Only generating and executing fail.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("pipeline %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Orchestrator struct {
	model    Model
	executor query.Executor
	logger   *slog.Logger
}

func New(model Model, executor query.Executor, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Orchestrator{model: model, executor: executor, logger: logger}
}

// Process turns question into an answer: generate query text, execute it,
// then summarize the rows. A failed stage stops the run and later stages
// never start.
func (o *Orchestrator) Process(ctx context.Context, question string) (Result, error) {
	traceID := slog.String("trace_id", observability.TraceIDFromContext(ctx))

	start := time.Now()
	queryText, err := o.model.GenerateQuery(ctx, question)
	o.finishStage(ctx, StageGenerating, start, err, traceID)
	if err != nil {
		return Result{}, &Error{Stage: StageGenerating, Err: err}
	}

	start = time.Now()
	rows, err := o.executor.Execute(ctx, queryText)
	o.finishStage(ctx, StageExecuting, start, err, traceID, slog.Int("rows", rows.RowCount()))
	if err != nil {
		return Result{}, &Error{Stage: StageExecuting, Err: err}
	}

	start = time.Now()
	summary := o.model.Summarize(ctx, question, queryText, rows)
	o.finishStage(ctx, StageSummarizing, start, nil, traceID)
	if summary.Degraded {
		observability.IncrementDegradedSummaries()
		o.logger.WarnContext(ctx, "summary_degraded", traceID, slog.Any("cause", summary.Cause))
	}

	return Result{
		QueryText: queryText,
		Rows:      rows,
		Answer:    summary.Answer,
		Degraded:  summary.Degraded,
	}, nil
}

func (o *Orchestrator) finishStage(ctx context.Context, stage Stage, start time.Time, err error, attrs ...any) {
	elapsed := time.Since(start)
	observability.ObservePipelineStage(string(stage), err, elapsed)
	attrs = append(attrs, slog.String("stage", string(stage)), slog.String("duration", elapsed.String()))
	if err != nil {
		o.logger.ErrorContext(ctx, "pipeline_stage_failed", append(attrs, slog.String("error", err.Error()))...)
		return
	}
	o.logger.DebugContext(ctx, "pipeline_stage_done", attrs...)
}
