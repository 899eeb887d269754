package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/wirechat-rooms/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS history (
	room   TEXT    NOT NULL,
	seq    INTEGER NOT NULL,
	ts     INTEGER NOT NULL,
	author TEXT    NOT NULL,
	body   TEXT    NOT NULL,
	PRIMARY KEY (room, seq)
);
`

// SQLiteStore implements store.HistoryStore for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the history schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(schema)
		return err
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply schema without migrations.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with single connection; it also keeps ":memory:" on one database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Schema returns the DDL applied by New.
func Schema() string {
	return schema
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append persists a message to the room's partition.
func (s *SQLiteStore) Append(ctx context.Context, msg *store.Message) error {
	query := `
		INSERT INTO history (room, seq, ts, author, body)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query, msg.Room, int64(msg.Seq), msg.Timestamp, msg.Author, msg.Body)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return fmt.Errorf("insert history: %w", store.ErrConflict)
		}
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// Scan retrieves a page of a room's history in append order.
func (s *SQLiteStore) Scan(ctx context.Context, room string, after, upTo uint64, limit int) ([]*store.Message, error) {
	// Seqs are stored as INTEGER, so nothing lies above MaxInt64.
	if after >= math.MaxInt64 {
		return nil, nil
	}
	if upTo > math.MaxInt64 {
		upTo = 0
	}

	var query string
	var args []interface{}

	if limit <= 0 {
		limit = -1 // no limit
	}

	if upTo > 0 {
		query = `
			SELECT room, seq, ts, author, body
			FROM history
			WHERE room = ? AND seq > ? AND seq <= ?
			ORDER BY seq ASC
			LIMIT ?
		`
		args = []interface{}{room, int64(after), int64(upTo), limit}
	} else {
		query = `
			SELECT room, seq, ts, author, body
			FROM history
			WHERE room = ? AND seq > ?
			ORDER BY seq ASC
			LIMIT ?
		`
		args = []interface{}{room, int64(after), limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var msg store.Message
		var seq int64
		if err := rows.Scan(&msg.Room, &seq, &msg.Timestamp, &msg.Author, &msg.Body); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		msg.Seq = uint64(seq)
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	return messages, nil
}

// Head returns the newest entry of a room.
func (s *SQLiteStore) Head(ctx context.Context, room string) (store.Head, error) {
	query := `
		SELECT seq, ts
		FROM history
		WHERE room = ?
		ORDER BY seq DESC
		LIMIT 1
	`
	var head store.Head
	var seq int64
	err := s.db.QueryRowContext(ctx, query, room).Scan(&seq, &head.Timestamp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Head{}, nil
		}
		return store.Head{}, fmt.Errorf("query head: %w", err)
	}
	head.Seq = uint64(seq)
	return head, nil
}

// Rooms lists stored partitions ordered by room name.
func (s *SQLiteStore) Rooms(ctx context.Context) ([]store.RoomSummary, error) {
	query := `
		SELECT room, COUNT(*), MAX(seq), MAX(ts)
		FROM history
		GROUP BY room
		ORDER BY room ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	var rooms []store.RoomSummary
	for rows.Next() {
		var summary store.RoomSummary
		var seq int64
		if err := rows.Scan(&summary.Room, &summary.Messages, &seq, &summary.Head.Timestamp); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		summary.Head.Seq = uint64(seq)
		rooms = append(rooms, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rooms: %w", err)
	}

	return rooms, nil
}
