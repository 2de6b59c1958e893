package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"sousvide_simulator/internal/models"
)

// maxRawBytes bounds the stored payload; broadcasts carry the full nested
// state block and would bloat the log otherwise.
const maxRawBytes = 500

// MessageSQLite stores the wire-message history in SQLite. The ring cap is
// enforced on every append by evicting the oldest rows.
type MessageSQLite struct {
	db  *sql.DB
	cap int
}

func NewMessageSQLite(db *sql.DB, cap int) *MessageSQLite {
	return &MessageSQLite{db: db, cap: cap}
}

// Append inserts one message record, filling timestamp and parsed fields
// when absent, then trims the ring.
func (r *MessageSQLite) Append(ctx context.Context, e models.MessageLogEntry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	} else {
		e.Timestamp = e.Timestamp.UTC()
	}

	// Best-effort extraction of protocol fields before truncation.
	if e.Command == "" && e.RequestID == "" {
		var probe struct {
			Command   string `json:"command"`
			RequestID string `json:"requestId"`
		}
		if err := json.Unmarshal([]byte(e.Raw), &probe); err == nil {
			e.Command = probe.Command
			e.RequestID = probe.RequestID
		}
	}
	if len(e.Raw) > maxRawBytes {
		e.Raw = e.Raw[:maxRawBytes]
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (ts, direction, raw, command, request_id)
		VALUES (?, ?, ?, ?, ?)
	`,
		e.Timestamp.Format("2006-01-02 15:04:05.000"),
		e.Direction,
		e.Raw,
		e.Command,
		e.RequestID,
	)
	if err != nil {
		return err
	}

	// Evict everything beyond the newest cap rows.
	_, err = r.db.ExecContext(ctx, `
		DELETE FROM messages
		WHERE id NOT IN (SELECT id FROM messages ORDER BY id DESC LIMIT ?)
	`, r.cap)
	return err
}

// Tail returns the most recent entries, oldest first.
func (r *MessageSQLite) Tail(ctx context.Context, limit int, direction string) ([]models.MessageLogEntry, error) {
	if limit <= 0 || limit > r.cap {
		limit = r.cap
	}

	q := `SELECT ts, direction, raw, command, request_id FROM messages`
	args := []any{}
	if direction != "" && direction != "all" {
		q += ` WHERE direction = ?`
		args = append(args, direction)
	}
	q += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.MessageLogEntry, 0, limit)
	for rows.Next() {
		var (
			e  models.MessageLogEntry
			ts string
		)
		if err := rows.Scan(&ts, &e.Direction, &e.Raw, &e.Command, &e.RequestID); err != nil {
			return nil, err
		}
		if parsed, perr := time.Parse("2006-01-02 15:04:05.000", ts); perr == nil {
			e.Timestamp = parsed.UTC()
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query fetched newest-first; flip to chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
