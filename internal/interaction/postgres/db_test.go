package postgres

import (
	"context"
	"testing"

	"github.com/querydesk/querydesk/internal/config"
)

func TestOpenRequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), config.DatabaseConfig{})
	if err == nil {
		t.Fatal("expected error for empty DSN")
	}
}
