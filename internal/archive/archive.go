package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/querydesk/querydesk/internal/interaction"
	"github.com/querydesk/querydesk/internal/interaction/postgres"
	"github.com/querydesk/querydesk/internal/observability"
	"github.com/querydesk/querydesk/internal/storage"
)

const parquetContentType = "application/vnd.apache.parquet"

// Source pages interactions by creation time, oldest first.
type Source interface {
	ListCreatedBetween(ctx context.Context, from, to time.Time, after *postgres.Cursor, limit int) ([]interaction.Interaction, error)
}

type Config struct {
	PageSize int
	Interval time.Duration
	// Overwrite replaces an existing object for the same window instead of skipping it.
	Overwrite bool
}

type Exporter struct {
	Source      Source
	ObjectStore storage.ObjectStore
	Config      Config
	Logger      *slog.Logger
	Now         func() time.Time
}

type Summary struct {
	From    time.Time `json:"from"`
	To      time.Time `json:"to"`
	Key     string    `json:"key"`
	Rows    int       `json:"rows"`
	Bytes   int64     `json:"bytes"`
	Skipped bool      `json:"skipped"`
}

type archivedInteraction struct {
	InteractionID string  `parquet:"interaction_id"`
	RequesterID   string  `parquet:"requester_id"`
	QuestionText  string  `parquet:"question_text"`
	RoleContext   string  `parquet:"role_context"`
	AnswerText    *string `parquet:"answer_text,optional"`
	QueryText     *string `parquet:"query_text,optional"`
	Status        string  `parquet:"status"`
	CreatedAtMs   int64   `parquet:"created_at"`
	CompletedAtMs *int64  `parquet:"completed_at,optional"`
}

func (e *Exporter) ensureDefaults() {
	if e.Config.PageSize <= 0 {
		e.Config.PageSize = 500
	}
	if e.Config.Interval <= 0 {
		e.Config.Interval = 24 * time.Hour
	}
	if e.Now == nil {
		e.Now = time.Now
	}
}

// Run exports the previous UTC day immediately and then once per interval.
func (e *Exporter) Run(ctx context.Context) error {
	e.ensureDefaults()

	ticker := time.NewTicker(e.Config.Interval)
	defer ticker.Stop()

	for {
		from, to := PreviousDay(e.Now())
		summary, err := e.Export(ctx, from, to)
		if err != nil {
			if e.Logger != nil {
				e.Logger.ErrorContext(ctx, "archive cycle failed", slog.Any("error", err), slog.Any("summary", summary))
			}
		} else if e.Logger != nil {
			e.Logger.InfoContext(ctx, "archive cycle completed", slog.Any("summary", summary))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Export writes interactions created in [from, to) as one parquet object.
// An empty window writes nothing. Records are never deleted.
func (e *Exporter) Export(ctx context.Context, from, to time.Time) (Summary, error) {
	e.ensureDefaults()
	if e.Source == nil {
		return Summary{}, fmt.Errorf("archive source is required")
	}
	if e.ObjectStore == nil {
		return Summary{}, fmt.Errorf("object store is required")
	}

	key, err := storage.BuildArchiveKey(from, to)
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{From: from.UTC(), To: to.UTC(), Key: key}

	if !e.Config.Overwrite {
		_, err := e.ObjectStore.Stat(ctx, key)
		switch {
		case err == nil:
			summary.Skipped = true
			return summary, nil
		case !errors.Is(err, storage.ErrObjectNotFound):
			return summary, fmt.Errorf("check existing archive: %w", err)
		}
	}

	rows, err := e.collect(ctx, summary.From, summary.To)
	if err != nil {
		return summary, err
	}
	if len(rows) == 0 {
		return summary, nil
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[archivedInteraction](buf)
	if _, err := writer.Write(rows); err != nil {
		return summary, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return summary, fmt.Errorf("close parquet writer: %w", err)
	}

	size := int64(buf.Len())
	if _, err := e.ObjectStore.Put(ctx, key, buf, size, storage.PutOptions{ContentType: parquetContentType}); err != nil {
		return summary, fmt.Errorf("upload archive: %w", err)
	}
	summary.Rows = len(rows)
	summary.Bytes = size
	observability.AddArchivedRows(len(rows))
	return summary, nil
}

func (e *Exporter) collect(ctx context.Context, from, to time.Time) ([]archivedInteraction, error) {
	var (
		rows  []archivedInteraction
		after *postgres.Cursor
	)
	for {
		page, err := e.Source.ListCreatedBetween(ctx, from, to, after, e.Config.PageSize)
		if err != nil {
			return nil, fmt.Errorf("list interactions: %w", err)
		}
		for _, item := range page {
			rows = append(rows, toArchived(item))
		}
		if len(page) < e.Config.PageSize {
			return rows, nil
		}
		last := page[len(page)-1]
		after = &postgres.Cursor{CreatedAt: last.CreatedAt, InteractionID: last.ID}
	}
}

func toArchived(item interaction.Interaction) archivedInteraction {
	row := archivedInteraction{
		InteractionID: item.ID.String(),
		RequesterID:   item.RequesterID.String(),
		QuestionText:  item.QuestionText,
		RoleContext:   item.RoleContext,
		AnswerText:    item.AnswerText,
		QueryText:     item.QueryText,
		Status:        string(item.Status),
		CreatedAtMs:   item.CreatedAt.UTC().UnixMilli(),
	}
	if item.CompletedAt != nil {
		completed := item.CompletedAt.UTC().UnixMilli()
		row.CompletedAtMs = &completed
	}
	return row
}

// PreviousDay returns the UTC day before now as [from, to).
func PreviousDay(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return to.AddDate(0, 0, -1), to
}
