package intake

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/querydesk/querydesk/internal/interaction"
	"github.com/querydesk/querydesk/internal/modelclient"
	"github.com/querydesk/querydesk/internal/pipeline"
	"github.com/querydesk/querydesk/internal/query"
)

type memoryStore struct {
	mu        sync.Mutex
	events    *[]string
	items     map[uuid.UUID]interaction.Interaction
	markErr   error
	failedErr error
}

func newMemoryStore(events *[]string) *memoryStore {
	return &memoryStore{events: events, items: map[uuid.UUID]interaction.Interaction{}}
}

func (s *memoryStore) Create(_ context.Context, in interaction.Interaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	*s.events = append(*s.events, "create")
	s.items[in.ID] = in
	return nil
}

func (s *memoryStore) MarkAnswered(_ context.Context, id uuid.UUID, in interaction.MarkAnsweredInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	*s.events = append(*s.events, "answered")
	if s.markErr != nil {
		return s.markErr
	}
	item, ok := s.items[id]
	if !ok {
		return interaction.ErrNotFound
	}
	if item.Status != interaction.StatusPending {
		return interaction.ErrStatusConflict
	}
	item.Status = interaction.StatusAnswered
	item.AnswerText = &in.AnswerText
	item.QueryText = &in.QueryText
	item.CompletedAt = &in.CompletedAt
	s.items[id] = item
	return nil
}

func (s *memoryStore) MarkFailed(_ context.Context, id uuid.UUID, in interaction.MarkFailedInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	*s.events = append(*s.events, "failed")
	if s.failedErr != nil {
		return s.failedErr
	}
	item, ok := s.items[id]
	if !ok {
		return interaction.ErrNotFound
	}
	item.Status = interaction.StatusFailed
	item.FailureStage = &in.Stage
	item.FailureMessage = &in.Message
	s.items[id] = item
	return nil
}

func (s *memoryStore) Get(_ context.Context, id uuid.UUID) (interaction.Interaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return interaction.Interaction{}, interaction.ErrNotFound
	}
	return item, nil
}

func (s *memoryStore) List(_ context.Context, filter interaction.ListFilter) ([]interaction.Interaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]interaction.Interaction, 0)
	for _, item := range s.items {
		if filter.Status != "" && item.Status != filter.Status {
			continue
		}
		if filter.RequesterID != nil && item.RequesterID != *filter.RequesterID {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *memoryStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

type staticDirectory map[uuid.UUID]interaction.Requester

func (d staticDirectory) GetRequester(_ context.Context, id uuid.UUID) (interaction.Requester, error) {
	requester, ok := d[id]
	if !ok {
		return interaction.Requester{}, interaction.ErrNotFound
	}
	return requester, nil
}

type processorFunc func(ctx context.Context, question string) (pipeline.Result, error)

func (f processorFunc) Process(ctx context.Context, question string) (pipeline.Result, error) {
	return f(ctx, question)
}

var (
	activeManager = uuid.MustParse("6f1c2d7e-4a51-4c36-9d1e-2b8f3f0c9a11")
	inactiveUser  = uuid.MustParse("0b9e5a44-7c2f-4f5b-8e3a-1d6c9f2e7b22")
)

func testDirectory() staticDirectory {
	return staticDirectory{
		activeManager: {ID: activeManager, Name: "Ada", Role: "manager", Active: true},
		inactiveUser:  {ID: inactiveUser, Name: "Bob", Role: "analyst", Active: false},
	}
}

func answeringProcessor(events *[]string, store *memoryStore, t *testing.T) processorFunc {
	return func(_ context.Context, question string) (pipeline.Result, error) {
		if store.count() == 0 {
			t.Fatal("processor ran before the pending record was written")
		}
		*events = append(*events, "process")
		return pipeline.Result{
			QueryText: "SELECT COUNT(*) AS count FROM employee WHERE is_active",
			Rows:      query.Result{Columns: []string{"count"}, Rows: [][]query.Value{{query.FromDriver(int64(42))}}},
			Answer:    "There are 42 active employees.",
		}, nil
	}
}

func TestAskRecordsQuestionThenAnswer(t *testing.T) {
	var events []string
	store := newMemoryStore(&events)
	fixedNow := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	service := NewService(store, testDirectory(), answeringProcessor(&events, store, t), Options{
		Now: func() time.Time { return fixedNow },
	})

	resp, err := service.Ask(context.Background(), Request{
		Question:    "  How many active employees are there?  ",
		RequesterID: activeManager.String(),
	})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if strings.Join(events, ",") != "create,process,answered" {
		t.Fatalf("events = %v", events)
	}
	if !strings.Contains(resp.Answer, "42") || resp.Degraded {
		t.Fatalf("resp = %+v", resp)
	}

	item, err := store.Get(context.Background(), resp.InteractionID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if item.Status != interaction.StatusAnswered {
		t.Fatalf("Status = %q", item.Status)
	}
	if item.QuestionText != "How many active employees are there?" {
		t.Fatalf("QuestionText = %q", item.QuestionText)
	}
	if item.RoleContext != "manager" {
		t.Fatalf("RoleContext = %q", item.RoleContext)
	}
	if item.AnswerText == nil || !strings.Contains(*item.AnswerText, "42") {
		t.Fatalf("AnswerText = %v", item.AnswerText)
	}
	if !item.CreatedAt.Equal(fixedNow) {
		t.Fatalf("CreatedAt = %v", item.CreatedAt)
	}
}

func TestAskRejectsInvalidInputWithoutWriting(t *testing.T) {
	tests := []struct {
		name  string
		req   Request
		field string
	}{
		{name: "blank question", req: Request{Question: "   ", RequesterID: activeManager.String()}, field: "question"},
		{name: "blank requester", req: Request{Question: "q", RequesterID: ""}, field: "requester_id"},
		{name: "malformed requester", req: Request{Question: "q", RequesterID: "emp-7"}, field: "requester_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var events []string
			store := newMemoryStore(&events)
			service := NewService(store, testDirectory(), processorFunc(func(context.Context, string) (pipeline.Result, error) {
				t.Fatal("processor should not run")
				return pipeline.Result{}, nil
			}), Options{})

			_, err := service.Ask(context.Background(), tt.req)
			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("Ask() error = %v, want *ValidationError", err)
			}
			if validationErr.Field != tt.field {
				t.Fatalf("Field = %q, want %q", validationErr.Field, tt.field)
			}
			if len(events) != 0 {
				t.Fatalf("events = %v, want none", events)
			}
		})
	}
}

func TestAskRejectsUnknownAndInactiveRequesters(t *testing.T) {
	for _, requesterID := range []uuid.UUID{uuid.New(), inactiveUser} {
		var events []string
		store := newMemoryStore(&events)
		service := NewService(store, testDirectory(), answeringProcessor(&events, store, t), Options{})

		_, err := service.Ask(context.Background(), Request{Question: "q", RequesterID: requesterID.String()})
		var notFound *NotFoundError
		if !errors.As(err, &notFound) {
			t.Fatalf("Ask() error = %v, want *NotFoundError", err)
		}
		if notFound.Resource != ResourceRequester {
			t.Fatalf("Resource = %q", notFound.Resource)
		}
		if store.count() != 0 {
			t.Fatalf("expected no record, got %d", store.count())
		}
	}
}

func TestAskLeavesRecordPendingOnPipelineFailure(t *testing.T) {
	var events []string
	store := newMemoryStore(&events)
	pipeErr := &pipeline.Error{Stage: pipeline.StageGenerating, Err: &modelclient.GenerationError{Kind: modelclient.KindUnavailable, StatusCode: 500}}
	service := NewService(store, testDirectory(), processorFunc(func(context.Context, string) (pipeline.Result, error) {
		return pipeline.Result{}, pipeErr
	}), Options{})

	_, err := service.Ask(context.Background(), Request{Question: "q", RequesterID: activeManager.String()})
	if !errors.Is(err, modelclient.ErrGenerationUnavailable) {
		t.Fatalf("Ask() error = %v", err)
	}
	if strings.Join(events, ",") != "create" {
		t.Fatalf("events = %v, want only the pending write", events)
	}
	items, _ := store.List(context.Background(), interaction.ListFilter{})
	if len(items) != 1 || items[0].Status != interaction.StatusPending || items[0].AnswerText != nil {
		t.Fatalf("items = %+v", items)
	}
}

func TestAskMarksFailedWhenEnabled(t *testing.T) {
	var events []string
	store := newMemoryStore(&events)
	pipeErr := &pipeline.Error{Stage: pipeline.StageExecuting, Err: query.NewExecutionError("syntax error at or near \"SELEC\"", nil)}
	service := NewService(store, testDirectory(), processorFunc(func(context.Context, string) (pipeline.Result, error) {
		return pipeline.Result{}, pipeErr
	}), Options{MarkFailedOnError: true})

	_, err := service.Ask(context.Background(), Request{Question: "q", RequesterID: activeManager.String()})
	var gotPipeErr *pipeline.Error
	if !errors.As(err, &gotPipeErr) || gotPipeErr.Stage != pipeline.StageExecuting {
		t.Fatalf("Ask() error = %v", err)
	}
	items, _ := store.List(context.Background(), interaction.ListFilter{})
	if len(items) != 1 || items[0].Status != interaction.StatusFailed {
		t.Fatalf("items = %+v", items)
	}
	if items[0].FailureStage == nil || *items[0].FailureStage != "executing" {
		t.Fatalf("FailureStage = %v", items[0].FailureStage)
	}
	if items[0].AnswerText != nil {
		t.Fatal("failed record must not carry an answer")
	}
}

func TestAskIgnoresMarkFailedErrors(t *testing.T) {
	var events []string
	store := newMemoryStore(&events)
	store.failedErr = errors.New("connection reset")
	pipeErr := &pipeline.Error{Stage: pipeline.StageExecuting, Err: query.NewExecutionError("boom", nil)}
	service := NewService(store, testDirectory(), processorFunc(func(context.Context, string) (pipeline.Result, error) {
		return pipeline.Result{}, pipeErr
	}), Options{MarkFailedOnError: true})

	_, err := service.Ask(context.Background(), Request{Question: "q", RequesterID: activeManager.String()})
	if !errors.Is(err, pipeErr) {
		t.Fatalf("Ask() error = %v, want the pipeline error", err)
	}
}

func TestAskKeepsDegradedAnswer(t *testing.T) {
	var events []string
	store := newMemoryStore(&events)
	service := NewService(store, testDirectory(), processorFunc(func(context.Context, string) (pipeline.Result, error) {
		return pipeline.Result{
			QueryText: "SELECT 1",
			Rows:      query.Result{Columns: []string{"x"}, Rows: [][]query.Value{{query.FromDriver(int64(1))}}},
			Answer:    "Failed to generate structured answer (model unavailable). The query returned 1 row.",
			Degraded:  true,
		}, nil
	}), Options{})

	resp, err := service.Ask(context.Background(), Request{Question: "q", RequesterID: activeManager.String()})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if !resp.Degraded || resp.QueryText != "SELECT 1" {
		t.Fatalf("resp = %+v", resp)
	}
	item, _ := store.Get(context.Background(), resp.InteractionID)
	if item.Status != interaction.StatusAnswered {
		t.Fatalf("Status = %q", item.Status)
	}
}

func TestAskTwiceCreatesDistinctRecords(t *testing.T) {
	var events []string
	store := newMemoryStore(&events)
	service := NewService(store, testDirectory(), answeringProcessor(&events, store, t), Options{})
	req := Request{Question: "How many active employees are there?", RequesterID: activeManager.String()}

	first, err := service.Ask(context.Background(), req)
	if err != nil {
		t.Fatalf("first Ask() error = %v", err)
	}
	second, err := service.Ask(context.Background(), req)
	if err != nil {
		t.Fatalf("second Ask() error = %v", err)
	}
	if first.InteractionID == second.InteractionID {
		t.Fatal("expected distinct interaction ids")
	}
	if store.count() != 2 {
		t.Fatalf("records = %d", store.count())
	}
}

func TestGetMapsNotFoundAndValidation(t *testing.T) {
	var events []string
	service := NewService(newMemoryStore(&events), testDirectory(), nil, Options{})

	_, err := service.Get(context.Background(), "not-a-uuid")
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("Get() error = %v, want validation error", err)
	}

	_, err = service.Get(context.Background(), uuid.NewString())
	var notFound *NotFoundError
	if !errors.As(err, &notFound) || notFound.Resource != ResourceInteraction {
		t.Fatalf("Get() error = %v, want interaction not found", err)
	}
}

func TestListValidatesFilter(t *testing.T) {
	var events []string
	service := NewService(newMemoryStore(&events), testDirectory(), nil, Options{})

	for _, req := range []ListRequest{
		{RequesterID: "emp-1"},
		{Status: "done"},
		{Limit: -1},
	} {
		_, err := service.List(context.Background(), req)
		var validationErr *ValidationError
		if !errors.As(err, &validationErr) {
			t.Fatalf("List(%+v) error = %v, want validation error", req, err)
		}
	}
}
