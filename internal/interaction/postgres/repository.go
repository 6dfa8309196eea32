package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/querydesk/querydesk/internal/interaction"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

const interactionColumns = `interaction_id, requester_id, question_text, role_context, answer_text, query_text,
       status, failure_stage, failure_message, created_at, completed_at`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping interaction store: %w", err)
	}
	return nil
}

func (r *Repository) Create(ctx context.Context, in interaction.Interaction) error {
	status := in.Status
	if status == "" {
		status = interaction.StatusPending
	}
	query := `
INSERT INTO interaction (interaction_id, requester_id, question_text, role_context, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.ExecContext(ctx, query, in.ID, in.RequesterID, in.QuestionText, in.RoleContext, string(status), in.CreatedAt); err != nil {
		return fmt.Errorf("create interaction: %w", err)
	}
	return nil
}

func (r *Repository) MarkAnswered(ctx context.Context, id uuid.UUID, in interaction.MarkAnsweredInput) error {
	if strings.TrimSpace(in.AnswerText) == "" {
		return fmt.Errorf("mark interaction answered: answer text is required")
	}
	query := `
UPDATE interaction
SET status = 'answered', answer_text = $2, query_text = $3, completed_at = $4
WHERE interaction_id = $1 AND status = 'pending'`
	result, err := r.db.ExecContext(ctx, query, id, in.AnswerText, nullString(in.QueryText), in.CompletedAt)
	if err != nil {
		return fmt.Errorf("mark interaction answered: %w", err)
	}
	return r.checkTransition(ctx, id, result)
}

func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, in interaction.MarkFailedInput) error {
	query := `
UPDATE interaction
SET status = 'failed', failure_stage = $2, failure_message = $3, completed_at = $4
WHERE interaction_id = $1 AND status = 'pending'`
	result, err := r.db.ExecContext(ctx, query, id, nullString(in.Stage), nullString(in.Message), in.CompletedAt)
	if err != nil {
		return fmt.Errorf("mark interaction failed: %w", err)
	}
	return r.checkTransition(ctx, id, result)
}

// checkTransition tells a missing record apart from one that already left pending.
func (r *Repository) checkTransition(ctx context.Context, id uuid.UUID, result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("read affected rows: %w", err)
	}
	if rows > 0 {
		return nil
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM interaction WHERE interaction_id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check interaction existence: %w", err)
	}
	if !exists {
		return interaction.ErrNotFound
	}
	return interaction.ErrStatusConflict
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (interaction.Interaction, error) {
	query := `
SELECT ` + interactionColumns + `
FROM interaction
WHERE interaction_id = $1`
	item, err := scanInteraction(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return interaction.Interaction{}, interaction.ErrNotFound
		}
		return interaction.Interaction{}, fmt.Errorf("get interaction: %w", err)
	}
	return item, nil
}

func (r *Repository) List(ctx context.Context, filter interaction.ListFilter) ([]interaction.Interaction, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	clauses := make([]string, 0, 2)
	args := make([]any, 0, 3)
	if filter.RequesterID != nil {
		args = append(args, *filter.RequesterID)
		clauses = append(clauses, fmt.Sprintf("requester_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	args = append(args, limit)

	query := `
SELECT ` + interactionColumns + `
FROM interaction`
	if len(clauses) > 0 {
		query += `
WHERE ` + strings.Join(clauses, " AND ")
	}
	query += fmt.Sprintf(`
ORDER BY created_at DESC, interaction_id DESC
LIMIT $%d`, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	return collectInteractions(rows)
}

// Cursor marks the last row of a page in (created_at, interaction_id) order.
type Cursor struct {
	CreatedAt     time.Time
	InteractionID uuid.UUID
}

// ListCreatedBetween pages through interactions created in [from, to), oldest first.
func (r *Repository) ListCreatedBetween(ctx context.Context, from, to time.Time, after *Cursor, limit int) ([]interaction.Interaction, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var (
		rows *sql.Rows
		err  error
	)
	if after == nil {
		rows, err = r.db.QueryContext(ctx, `
SELECT `+interactionColumns+`
FROM interaction
WHERE created_at >= $1 AND created_at < $2
ORDER BY created_at ASC, interaction_id ASC
LIMIT $3`, from, to, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, `
SELECT `+interactionColumns+`
FROM interaction
WHERE created_at >= $1 AND created_at < $2
  AND (created_at, interaction_id) > ($3, $4)
ORDER BY created_at ASC, interaction_id ASC
LIMIT $5`, from, to, after.CreatedAt, after.InteractionID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list interactions by creation time: %w", err)
	}
	return collectInteractions(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInteraction(row rowScanner) (interaction.Interaction, error) {
	var item interaction.Interaction
	var status string
	if err := row.Scan(
		&item.ID,
		&item.RequesterID,
		&item.QuestionText,
		&item.RoleContext,
		&item.AnswerText,
		&item.QueryText,
		&status,
		&item.FailureStage,
		&item.FailureMessage,
		&item.CreatedAt,
		&item.CompletedAt,
	); err != nil {
		return interaction.Interaction{}, err
	}
	item.Status = interaction.Status(status)
	return item, nil
}

func collectInteractions(rows *sql.Rows) ([]interaction.Interaction, error) {
	defer func() { _ = rows.Close() }()

	items := make([]interaction.Interaction, 0)
	for rows.Next() {
		item, err := scanInteraction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan interaction row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interaction rows: %w", err)
	}
	return items, nil
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
