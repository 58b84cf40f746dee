// Package store persists leads and conversation history in a single-file
// relational database, keyed by canonical phone number.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/dialworks/leadagent/pkg/otel"
)

// Lead status values.
const (
	StatusNew           = "new"
	StatusCalled        = "called"
	StatusCallCompleted = "call_completed"
	StatusFailed        = "failed"
	StatusNoAnswer      = "no_answer"
)

var ErrNotFound = errors.New("lead not found")

type Lead struct {
	Phone     string    `json:"phone"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Status    string    `json:"status"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ConversationEntry struct {
	ID            int64     `json:"id"`
	LeadPhone     string    `json:"lead_phone"`
	Content       string    `json:"content"`
	FromAssistant bool      `json:"from_assistant"`
	CreatedAt     time.Time `json:"created_at"`
}

type Call struct {
	CallSID   string    `json:"call_sid"`
	LeadPhone string    `json:"lead_phone"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store wraps the SQLite database handle.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS leads (
	phone      TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	email      TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'new',
	notes      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS conversations (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	lead_phone     TEXT NOT NULL,
	content        TEXT NOT NULL,
	from_assistant INTEGER NOT NULL DEFAULT 0,
	created_at     TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_conversations_lead ON conversations(lead_phone);

CREATE TABLE IF NOT EXISTS calls (
	call_sid   TEXT PRIMARY KEY,
	lead_phone TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Open opens (creating if needed) the database at path and runs migrations.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer at a time
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("Lead store opened", zap.String("path", path))

	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetLead fetches one lead by canonical phone number.
func (s *Store) GetLead(ctx context.Context, phone string) (*Lead, error) {
	var lead Lead
	err := otel.ExecuteWithSpan(ctx, "leads", "select", func(ctx context.Context) error {
		row := s.db.QueryRowContext(ctx,
			`SELECT phone, name, email, status, notes, created_at, updated_at
			 FROM leads WHERE phone = ?`, phone)
		return row.Scan(&lead.Phone, &lead.Name, &lead.Email, &lead.Status,
			&lead.Notes, &lead.CreatedAt, &lead.UpdatedAt)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}
	return &lead, nil
}

// UpsertLead inserts a lead, or refreshes name/notes on conflict. Status and
// email of an existing lead are preserved.
func (s *Store) UpsertLead(ctx context.Context, lead Lead) error {
	if lead.Status == "" {
		lead.Status = StatusNew
	}
	err := otel.ExecuteWithSpan(ctx, "leads", "upsert", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO leads (phone, name, email, status, notes)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(phone) DO UPDATE SET
			   name = excluded.name,
			   notes = excluded.notes,
			   updated_at = CURRENT_TIMESTAMP`,
			lead.Phone, lead.Name, lead.Email, lead.Status, lead.Notes)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to upsert lead: %w", err)
	}
	return nil
}

// ImportLeads bulk-upserts leads, returning the number applied.
func (s *Store) ImportLeads(ctx context.Context, leads []Lead) (int, error) {
	imported := 0
	for _, lead := range leads {
		if err := s.UpsertLead(ctx, lead); err != nil {
			s.logger.Error("Failed to import lead", zap.Error(err),
				zap.String("phone", lead.Phone))
			continue
		}
		imported++
	}
	return imported, nil
}

// UpdateStatus sets the status of an existing lead.
func (s *Store) UpdateStatus(ctx context.Context, phone, status string) error {
	err := otel.ExecuteWithSpan(ctx, "leads", "update", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE leads SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE phone = ?`,
			status, phone)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update lead status: %w", err)
	}
	return nil
}

// UpdateEmail records an extracted email address. Upserts when no lead exists
// for the phone number yet.
func (s *Store) UpdateEmail(ctx context.Context, phone, email string) error {
	err := otel.ExecuteWithSpan(ctx, "leads", "upsert", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO leads (phone, email, status)
			 VALUES (?, ?, ?)
			 ON CONFLICT(phone) DO UPDATE SET
			   email = excluded.email,
			   updated_at = CURRENT_TIMESTAMP`,
			phone, email, StatusCalled)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to update lead email: %w", err)
	}
	return nil
}

// AppendConversation adds one entry to a lead's conversation history.
func (s *Store) AppendConversation(ctx context.Context, phone, content string, fromAssistant bool) error {
	err := otel.ExecuteWithSpan(ctx, "conversations", "insert", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO conversations (lead_phone, content, from_assistant) VALUES (?, ?, ?)`,
			phone, content, fromAssistant)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to append conversation: %w", err)
	}
	return nil
}

// ListConversation returns a lead's history, oldest first.
func (s *Store) ListConversation(ctx context.Context, phone string, limit int) ([]ConversationEntry, error) {
	if limit <= 0 {
		limit = 200
	}

	var entries []ConversationEntry
	err := otel.ExecuteWithSpan(ctx, "conversations", "select", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx,
			`SELECT id, lead_phone, content, from_assistant, created_at
			 FROM conversations WHERE lead_phone = ?
			 ORDER BY id ASC LIMIT ?`, phone, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var e ConversationEntry
			if err := rows.Scan(&e.ID, &e.LeadPhone, &e.Content, &e.FromAssistant, &e.CreatedAt); err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list conversation: %w", err)
	}
	return entries, nil
}

// ListLeads returns leads filtered by status ("" for all), newest first.
func (s *Store) ListLeads(ctx context.Context, status string, limit, offset int) ([]Lead, int64, error) {
	if limit <= 0 {
		limit = 50
	}

	var leads []Lead
	var total int64
	err := otel.ExecuteWithSpan(ctx, "leads", "select", func(ctx context.Context) error {
		countQuery := `SELECT COUNT(*) FROM leads`
		listQuery := `SELECT phone, name, email, status, notes, created_at, updated_at FROM leads`
		args := []interface{}{}
		if status != "" {
			countQuery += ` WHERE status = ?`
			listQuery += ` WHERE status = ?`
			args = append(args, status)
		}
		if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
			return err
		}

		listQuery += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
		rows, err := s.db.QueryContext(ctx, listQuery, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var l Lead
			if err := rows.Scan(&l.Phone, &l.Name, &l.Email, &l.Status, &l.Notes,
				&l.CreatedAt, &l.UpdatedAt); err != nil {
				return err
			}
			leads = append(leads, l)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list leads: %w", err)
	}
	return leads, total, nil
}

// UpsertCall records a call's latest provider status.
func (s *Store) UpsertCall(ctx context.Context, callSID, leadPhone, status string) error {
	err := otel.ExecuteWithSpan(ctx, "calls", "upsert", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO calls (call_sid, lead_phone, status)
			 VALUES (?, ?, ?)
			 ON CONFLICT(call_sid) DO UPDATE SET
			   status = excluded.status,
			   updated_at = CURRENT_TIMESTAMP`,
			callSID, leadPhone, status)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to upsert call: %w", err)
	}
	return nil
}

// GetCall fetches one call record by provider SID.
func (s *Store) GetCall(ctx context.Context, callSID string) (*Call, error) {
	var call Call
	err := otel.ExecuteWithSpan(ctx, "calls", "select", func(ctx context.Context) error {
		row := s.db.QueryRowContext(ctx,
			`SELECT call_sid, lead_phone, status, created_at, updated_at
			 FROM calls WHERE call_sid = ?`, callSID)
		return row.Scan(&call.CallSID, &call.LeadPhone, &call.Status,
			&call.CreatedAt, &call.UpdatedAt)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get call: %w", err)
	}
	return &call, nil
}
