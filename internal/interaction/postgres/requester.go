package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/querydesk/querydesk/internal/interaction"
)

// RequesterDirectory reads requesters from the employee table. It never writes.
type RequesterDirectory struct {
	db *sql.DB
}

func NewRequesterDirectory(db *sql.DB) *RequesterDirectory {
	return &RequesterDirectory{db: db}
}

func (d *RequesterDirectory) GetRequester(ctx context.Context, id uuid.UUID) (interaction.Requester, error) {
	query := `
SELECT employee_id, name, role, is_active
FROM employee
WHERE employee_id = $1`

	var requester interaction.Requester
	if err := d.db.QueryRowContext(ctx, query, id).Scan(
		&requester.ID,
		&requester.Name,
		&requester.Role,
		&requester.Active,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return interaction.Requester{}, interaction.ErrNotFound
		}
		return interaction.Requester{}, fmt.Errorf("get requester: %w", err)
	}
	return requester, nil
}
