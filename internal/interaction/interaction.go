package interaction

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound       = errors.New("interaction: not found")
	ErrStatusConflict = errors.New("interaction: status is not pending")
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusAnswered Status = "answered"
	StatusFailed   Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAnswered, StatusFailed:
		return true
	default:
		return false
	}
}

// Interaction is one question and, once answered, its answer. RoleContext is
// the requester's role copied at intake time.
type Interaction struct {
	ID             uuid.UUID
	RequesterID    uuid.UUID
	QuestionText   string
	RoleContext    string
	AnswerText     *string
	QueryText      *string
	Status         Status
	FailureStage   *string
	FailureMessage *string
	CreatedAt      time.Time
	CompletedAt    *time.Time
}

type Requester struct {
	ID     uuid.UUID
	Name   string
	Role   string
	Active bool
}

type MarkAnsweredInput struct {
	AnswerText  string
	QueryText   string
	CompletedAt time.Time
}

type MarkFailedInput struct {
	Stage       string
	Message     string
	CompletedAt time.Time
}

type ListFilter struct {
	RequesterID *uuid.UUID
	Status      Status
	Limit       int
}

// Store persists interactions. Mark* only move a pending record forward and
// return ErrStatusConflict otherwise.
type Store interface {
	Create(ctx context.Context, in Interaction) error
	MarkAnswered(ctx context.Context, id uuid.UUID, in MarkAnsweredInput) error
	MarkFailed(ctx context.Context, id uuid.UUID, in MarkFailedInput) error
	Get(ctx context.Context, id uuid.UUID) (Interaction, error)
	List(ctx context.Context, filter ListFilter) ([]Interaction, error)
}

type RequesterDirectory interface {
	GetRequester(ctx context.Context, id uuid.UUID) (Requester, error)
}
