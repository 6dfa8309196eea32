package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/querydesk/querydesk/internal/interaction"
)

var interactionRowColumns = []string{
	"interaction_id", "requester_id", "question_text", "role_context", "answer_text", "query_text",
	"status", "failure_stage", "failure_message", "created_at", "completed_at",
}

func TestCreateInsertsPendingInteraction(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	id := uuid.New()
	requesterID := uuid.New()
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta(`
INSERT INTO interaction (interaction_id, requester_id, question_text, role_context, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`)).
		WithArgs(id.String(), requesterID.String(), "How many active employees are there?", "manager", "pending", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), interaction.Interaction{
		ID:           id,
		RequesterID:  requesterID,
		QuestionText: "How many active employees are there?",
		RoleContext:  "manager",
		CreatedAt:    now,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestMarkAnsweredUpdatesPendingRecord(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	id := uuid.New()
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta(`
UPDATE interaction
SET status = 'answered', answer_text = $2, query_text = $3, completed_at = $4
WHERE interaction_id = $1 AND status = 'pending'`)).
		WithArgs(id.String(), "There are 42.", "SELECT 42", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkAnswered(context.Background(), id, interaction.MarkAnsweredInput{
		AnswerText:  "There are 42.",
		QueryText:   "SELECT 42",
		CompletedAt: now,
	})
	if err != nil {
		t.Fatalf("MarkAnswered() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestMarkAnsweredRejectsBlankAnswer(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	if err := repo.MarkAnswered(context.Background(), uuid.New(), interaction.MarkAnsweredInput{AnswerText: "  "}); err == nil {
		t.Fatal("expected error for blank answer")
	}
	assertSQLMock(t, mock)
}

func TestMarkAnsweredReturnsStatusConflictForTerminalRecord(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	id := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE interaction`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS (SELECT 1 FROM interaction WHERE interaction_id = $1)`)).
		WithArgs(id.String()).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := repo.MarkAnswered(context.Background(), id, interaction.MarkAnsweredInput{AnswerText: "late", CompletedAt: time.Now()})
	if !errors.Is(err, interaction.ErrStatusConflict) {
		t.Fatalf("MarkAnswered() error = %v, want ErrStatusConflict", err)
	}
	assertSQLMock(t, mock)
}

func TestMarkFailedReturnsNotFoundForUnknownRecord(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	id := uuid.New()
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta(`
UPDATE interaction
SET status = 'failed', failure_stage = $2, failure_message = $3, completed_at = $4
WHERE interaction_id = $1 AND status = 'pending'`)).
		WithArgs(id.String(), "executing", "relation does not exist", now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).
		WithArgs(id.String()).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := repo.MarkFailed(context.Background(), id, interaction.MarkFailedInput{
		Stage:       "executing",
		Message:     "relation does not exist",
		CompletedAt: now,
	})
	if !errors.Is(err, interaction.ErrNotFound) {
		t.Fatalf("MarkFailed() error = %v, want ErrNotFound", err)
	}
	assertSQLMock(t, mock)
}

func TestGetScansNullableColumns(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	id := uuid.New()
	requesterID := uuid.New()
	created := time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM interaction
WHERE interaction_id = $1`)).
		WithArgs(id.String()).
		WillReturnRows(sqlmock.NewRows(interactionRowColumns).
			AddRow(id.String(), requesterID.String(), "q", "analyst", nil, nil, "pending", nil, nil, created, nil))

	item, err := repo.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if item.ID != id || item.RequesterID != requesterID {
		t.Fatalf("ids = %s/%s", item.ID, item.RequesterID)
	}
	if item.Status != interaction.StatusPending {
		t.Fatalf("Status = %q", item.Status)
	}
	if item.AnswerText != nil || item.CompletedAt != nil {
		t.Fatalf("expected nil answer and completion, got %+v", item)
	}
	if !item.CreatedAt.Equal(created) {
		t.Fatalf("CreatedAt = %v", item.CreatedAt)
	}
	assertSQLMock(t, mock)
}

func TestGetReturnsNotFound(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM interaction`)).
		WithArgs(id.String()).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), id)
	if !errors.Is(err, interaction.ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
	assertSQLMock(t, mock)
}

func TestListAppliesFiltersNewestFirst(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	requesterID := uuid.New()
	first := uuid.New()
	second := uuid.New()
	newer := time.Date(2024, 4, 2, 11, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta(`
FROM interaction
WHERE requester_id = $1 AND status = $2
ORDER BY created_at DESC, interaction_id DESC
LIMIT $3`)).
		WithArgs(requesterID.String(), "answered", 10).
		WillReturnRows(sqlmock.NewRows(interactionRowColumns).
			AddRow(first.String(), requesterID.String(), "q1", "manager", "a1", "SELECT 1", "answered", nil, nil, newer, newer).
			AddRow(second.String(), requesterID.String(), "q2", "manager", "a2", "SELECT 2", "answered", nil, nil, older, older))

	items, err := repo.List(context.Background(), interaction.ListFilter{
		RequesterID: &requesterID,
		Status:      interaction.StatusAnswered,
		Limit:       10,
	})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d", len(items))
	}
	if items[0].ID != first || items[0].AnswerText == nil || *items[0].AnswerText != "a1" {
		t.Fatalf("items[0] = %+v", items[0])
	}
	assertSQLMock(t, mock)
}

func TestListClampsLimit(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`
FROM interaction
ORDER BY created_at DESC, interaction_id DESC
LIMIT $1`)).
		WithArgs(maxListLimit).
		WillReturnRows(sqlmock.NewRows(interactionRowColumns))

	items, err := repo.List(context.Background(), interaction.ListFilter{Limit: 10_000})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("len(items) = %d", len(items))
	}
	assertSQLMock(t, mock)
}

func TestListCreatedBetweenUsesCursor(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	from := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	cursor := Cursor{CreatedAt: from.Add(time.Hour), InteractionID: uuid.New()}

	mock.ExpectQuery(regexp.QuoteMeta(`
WHERE created_at >= $1 AND created_at < $2
  AND (created_at, interaction_id) > ($3, $4)
ORDER BY created_at ASC, interaction_id ASC
LIMIT $5`)).
		WithArgs(from, to, cursor.CreatedAt, cursor.InteractionID.String(), 100).
		WillReturnRows(sqlmock.NewRows(interactionRowColumns))

	if _, err := repo.ListCreatedBetween(context.Background(), from, to, &cursor, 100); err != nil {
		t.Fatalf("ListCreatedBetween() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations were not met: %v", err)
	}
}
