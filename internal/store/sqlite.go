// ABOUTME: SQLite-backed snapshot persistence using modernc.org/sqlite
// ABOUTME: Whole-collection save/load with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nbd-wtf/go-nostr"
	_ "modernc.org/sqlite"

	"github.com/Synvya/ai-concierge-sub000/internal/message"
	"github.com/Synvya/ai-concierge-sub000/internal/thread"
)

// ErrNotFound is returned when a requested thread does not exist.
var ErrNotFound = errors.New("not found")

// SQLiteStore persists thread snapshots in a single SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the database at path. Parent
// directories are created if needed and the schema is applied
// automatically.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL keeps reads cheap while the save transaction runs.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("snapshot store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS threads (
			id TEXT PRIMARY KEY,
			restaurant_name TEXT NOT NULL DEFAULT '',
			restaurant_id TEXT NOT NULL DEFAULT '',
			counterparty TEXT NOT NULL DEFAULT '',
			party_size INTEGER NOT NULL DEFAULT 0,
			iso_time TEXT NOT NULL DEFAULT '',
			original_iso_time TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			pending_iso_time TEXT,
			pending_message TEXT,
			pending_message_id TEXT,
			pending_proposed_by TEXT,
			pending_proposed_at INTEGER,
			last_updated INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS thread_messages (
			id TEXT PRIMARY KEY,
			thread_id TEXT NOT NULL,
			sender TEXT NOT NULL,
			recipient TEXT NOT NULL,
			kind INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			root_id TEXT NOT NULL DEFAULT '',
			has_e_tag INTEGER NOT NULL DEFAULT 0,
			content TEXT NOT NULL,
			FOREIGN KEY (thread_id) REFERENCES threads(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_thread_messages_thread
			ON thread_messages(thread_id, created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// SaveSnapshot replaces the persisted collection with the given flat list
// in one transaction.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, threads []*thread.Thread) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM thread_messages"); err != nil {
		return fmt.Errorf("clearing messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM threads"); err != nil {
		return fmt.Errorf("clearing threads: %w", err)
	}

	for _, t := range threads {
		var (
			pISOTime, pMessage, pMessageID, pProposedBy *string
			pProposedAt                                 *int64
		)
		if t.Pending != nil {
			pISOTime = &t.Pending.ISOTime
			pMessage = &t.Pending.Message
			pMessageID = &t.Pending.MessageID
			pProposedBy = &t.Pending.ProposedBy
			at := int64(t.Pending.ProposedAt)
			pProposedAt = &at
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO threads (
				id, restaurant_name, restaurant_id, counterparty,
				party_size, iso_time, original_iso_time, notes, status,
				pending_iso_time, pending_message, pending_message_id,
				pending_proposed_by, pending_proposed_at, last_updated
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.RestaurantName, t.RestaurantID, t.Counterparty,
			t.PartySize, t.ISOTime, t.OriginalISOTime, t.Notes, string(t.Status),
			pISOTime, pMessage, pMessageID, pProposedBy, pProposedAt,
			int64(t.LastUpdated),
		)
		if err != nil {
			return fmt.Errorf("saving thread %s: %w", t.ID, err)
		}

		for _, m := range t.Messages {
			hasETag := 0
			if m.HasETag {
				hasETag = 1
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO thread_messages (
					id, thread_id, sender, recipient, kind,
					created_at, root_id, has_e_tag, content
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				m.ID, t.ID, m.Sender, m.Recipient, m.Kind,
				int64(m.CreatedAt), m.RootID, hasETag, m.Content,
			)
			if err != nil {
				return fmt.Errorf("saving message %s: %w", m.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	s.logger.Debug("snapshot saved", "threads", len(threads))
	return nil
}

// LoadSnapshot reads the persisted flat list. Status labels are returned as
// stored; callers pass the result through thread.Restore, which normalizes
// legacy labels.
func (s *SQLiteStore) LoadSnapshot(ctx context.Context) ([]*thread.Thread, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, restaurant_name, restaurant_id, counterparty,
		       party_size, iso_time, original_iso_time, notes, status,
		       pending_iso_time, pending_message, pending_message_id,
		       pending_proposed_by, pending_proposed_at, last_updated
		FROM threads`)
	if err != nil {
		return nil, fmt.Errorf("loading threads: %w", err)
	}
	defer rows.Close()

	byID := map[string]*thread.Thread{}
	var order []string
	for rows.Next() {
		var (
			t                                           thread.Thread
			status                                      string
			lastUpdated                                 int64
			pISOTime, pMessage, pMessageID, pProposedBy sql.NullString
			pProposedAt                                 sql.NullInt64
		)
		err := rows.Scan(
			&t.ID, &t.RestaurantName, &t.RestaurantID, &t.Counterparty,
			&t.PartySize, &t.ISOTime, &t.OriginalISOTime, &t.Notes, &status,
			&pISOTime, &pMessage, &pMessageID, &pProposedBy, &pProposedAt,
			&lastUpdated,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning thread: %w", err)
		}
		t.Status = thread.Status(status)
		t.LastUpdated = nostr.Timestamp(lastUpdated)
		if pISOTime.Valid {
			t.Pending = &thread.Proposal{
				ISOTime:    pISOTime.String,
				Message:    pMessage.String,
				MessageID:  pMessageID.String,
				ProposedBy: pProposedBy.String,
				ProposedAt: nostr.Timestamp(pProposedAt.Int64),
			}
		}
		byID[t.ID] = &t
		order = append(order, t.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating threads: %w", err)
	}

	if err := s.loadMessages(ctx, byID); err != nil {
		return nil, err
	}

	out := make([]*thread.Thread, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out, nil
}

func (s *SQLiteStore) loadMessages(ctx context.Context, byID map[string]*thread.Thread) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, thread_id, sender, recipient, kind,
		       created_at, root_id, has_e_tag, content
		FROM thread_messages
		ORDER BY thread_id, created_at, id`)
	if err != nil {
		return fmt.Errorf("loading messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			m         message.Message
			threadID  string
			createdAt int64
			hasETag   int
		)
		err := rows.Scan(&m.ID, &threadID, &m.Sender, &m.Recipient, &m.Kind,
			&createdAt, &m.RootID, &hasETag, &m.Content)
		if err != nil {
			return fmt.Errorf("scanning message: %w", err)
		}
		m.CreatedAt = nostr.Timestamp(createdAt)
		m.HasETag = hasETag != 0

		payload, err := message.DecodePayload(m.Kind, m.Content)
		if err != nil {
			s.logger.Warn("skipping persisted message with undecodable payload",
				"message_id", m.ID, "thread_id", threadID, "error", err)
			continue
		}
		m.Payload = payload

		t, ok := byID[threadID]
		if !ok {
			s.logger.Warn("skipping message for unknown thread",
				"message_id", m.ID, "thread_id", threadID)
			continue
		}
		t.Messages = append(t.Messages, &m)
	}
	return rows.Err()
}

// GetThread loads one persisted thread by id.
func (s *SQLiteStore) GetThread(ctx context.Context, id string) (*thread.Thread, error) {
	list, err := s.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range list {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, ErrNotFound
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
