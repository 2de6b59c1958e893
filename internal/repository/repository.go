package repository

import (
	"context"
	"database/sql"

	"sousvide_simulator/internal/models"
)

// MessageLog is the append-only wire-message history, capped to a bounded
// ring so memory stays flat however long the simulator runs.
type MessageLog interface {
	Append(ctx context.Context, e models.MessageLogEntry) error
	// Tail returns up to limit most recent entries in chronological order,
	// optionally filtered by direction ("inbound"/"outbound"; "" or "all"
	// means both).
	Tail(ctx context.Context, limit int, direction string) ([]models.MessageLogEntry, error)
}

// Repository groups the persistence layer.
type Repository struct {
	Messages MessageLog
}

// NewRepository wires the SQLite-backed implementations.
func NewRepository(db *sql.DB, messageCap int) *Repository {
	return &Repository{
		Messages: NewMessageSQLite(db, messageCap),
	}
}
