package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/querydesk/querydesk/internal/interaction"
	"github.com/querydesk/querydesk/internal/observability"
	"github.com/querydesk/querydesk/internal/pipeline"
)

const (
	ResourceRequester   = "requester"
	ResourceInteraction = "interaction"
)

type Processor interface {
	Process(ctx context.Context, question string) (pipeline.Result, error)
}

type Request struct {
	Question    string
	RequesterID string
}

type Response struct {
	InteractionID uuid.UUID
	Answer        string
	QueryText     string
	Degraded      bool
	Rows          int
}

type Options struct {
	// MarkFailedOnError moves the record to failed when the pipeline fails.
	// Otherwise it stays pending.
	MarkFailedOnError bool
	Logger            *slog.Logger
	Now               func() time.Time
	NewID             func() uuid.UUID
}

type Service struct {
	store      interaction.Store
	requesters interaction.RequesterDirectory
	processor  Processor
	markFailed bool
	logger     *slog.Logger
	now        func() time.Time
	newID      func() uuid.UUID
}

func NewService(store interaction.Store, requesters interaction.RequesterDirectory, processor Processor, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.New
	}
	return &Service{
		store:      store,
		requesters: requesters,
		processor:  processor,
		markFailed: opts.MarkFailedOnError,
		logger:     logger,
		now:        now,
		newID:      newID,
	}
}

// Ask records the question, runs the pipeline and records the answer. The
// pending record is written before any outbound call.
func (s *Service) Ask(ctx context.Context, req Request) (Response, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return Response{}, &ValidationError{Field: "question", Message: "must not be blank"}
	}
	rawRequester := strings.TrimSpace(req.RequesterID)
	if rawRequester == "" {
		return Response{}, &ValidationError{Field: "requester_id", Message: "must not be blank"}
	}
	requesterID, err := uuid.Parse(rawRequester)
	if err != nil {
		return Response{}, &ValidationError{Field: "requester_id", Message: "must be a UUID"}
	}

	requester, err := s.requesters.GetRequester(ctx, requesterID)
	if err != nil {
		if errors.Is(err, interaction.ErrNotFound) {
			return Response{}, &NotFoundError{Resource: ResourceRequester, ID: requesterID.String()}
		}
		return Response{}, fmt.Errorf("resolve requester: %w", err)
	}
	if !requester.Active {
		return Response{}, &NotFoundError{Resource: ResourceRequester, ID: requesterID.String()}
	}

	record := interaction.Interaction{
		ID:           s.newID(),
		RequesterID:  requesterID,
		QuestionText: question,
		RoleContext:  requester.Role,
		Status:       interaction.StatusPending,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.Create(ctx, record); err != nil {
		return Response{}, fmt.Errorf("record question: %w", err)
	}
	observability.IncrementInteractions(string(interaction.StatusPending))
	traceID := slog.String("trace_id", observability.TraceIDFromContext(ctx))
	interactionID := slog.String("interaction_id", record.ID.String())

	result, err := s.processor.Process(ctx, question)
	if err != nil {
		s.logger.ErrorContext(ctx, "interaction_failed", traceID, interactionID, slog.String("error", err.Error()))
		if s.markFailed {
			s.recordFailure(ctx, record.ID, err)
		}
		return Response{}, err
	}

	err = s.store.MarkAnswered(ctx, record.ID, interaction.MarkAnsweredInput{
		AnswerText:  result.Answer,
		QueryText:   result.QueryText,
		CompletedAt: s.now().UTC(),
	})
	if err != nil {
		return Response{}, fmt.Errorf("record answer: %w", err)
	}
	observability.IncrementInteractions(string(interaction.StatusAnswered))
	s.logger.InfoContext(ctx, "interaction_answered", traceID, interactionID,
		slog.Int("rows", result.Rows.RowCount()),
		slog.Bool("degraded", result.Degraded),
	)

	return Response{
		InteractionID: record.ID,
		Answer:        result.Answer,
		QueryText:     result.QueryText,
		Degraded:      result.Degraded,
		Rows:          result.Rows.RowCount(),
	}, nil
}

// recordFailure is best effort; its own errors are logged only.
func (s *Service) recordFailure(ctx context.Context, id uuid.UUID, cause error) {
	stage := ""
	var pipeErr *pipeline.Error
	if errors.As(cause, &pipeErr) {
		stage = string(pipeErr.Stage)
	}
	err := s.store.MarkFailed(context.WithoutCancel(ctx), id, interaction.MarkFailedInput{
		Stage:       stage,
		Message:     cause.Error(),
		CompletedAt: s.now().UTC(),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "mark_failed_error",
			slog.String("interaction_id", id.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	observability.IncrementInteractions(string(interaction.StatusFailed))
}

func (s *Service) Get(ctx context.Context, rawID string) (interaction.Interaction, error) {
	id, err := uuid.Parse(strings.TrimSpace(rawID))
	if err != nil {
		return interaction.Interaction{}, &ValidationError{Field: "interaction_id", Message: "must be a UUID"}
	}
	item, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, interaction.ErrNotFound) {
			return interaction.Interaction{}, &NotFoundError{Resource: ResourceInteraction, ID: id.String()}
		}
		return interaction.Interaction{}, fmt.Errorf("get interaction: %w", err)
	}
	return item, nil
}

type ListRequest struct {
	RequesterID string
	Status      string
	Limit       int
}

func (s *Service) List(ctx context.Context, req ListRequest) ([]interaction.Interaction, error) {
	filter := interaction.ListFilter{Limit: req.Limit}
	if raw := strings.TrimSpace(req.RequesterID); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, &ValidationError{Field: "requester_id", Message: "must be a UUID"}
		}
		filter.RequesterID = &id
	}
	if raw := strings.TrimSpace(req.Status); raw != "" {
		status := interaction.Status(strings.ToLower(raw))
		if !status.Valid() {
			return nil, &ValidationError{Field: "status", Message: "must be pending, answered or failed"}
		}
		filter.Status = status
	}
	if req.Limit < 0 {
		return nil, &ValidationError{Field: "limit", Message: "must not be negative"}
	}
	items, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	return items, nil
}
