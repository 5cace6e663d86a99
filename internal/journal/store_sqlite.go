// Package journal persists executed trades and loop state transitions
package journal

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"livetrader/internal/core"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	runtime_id TEXT    NOT NULL,
	market     TEXT    NOT NULL,
	data       TEXT    NOT NULL,
	checksum   BLOB    NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_runtime ON trades (runtime_id, id);
CREATE TABLE IF NOT EXISTS status_transitions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	runtime_id TEXT    NOT NULL,
	market     TEXT    NOT NULL,
	state      TEXT    NOT NULL,
	iteration  INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
`

// SQLiteStore implements core.IJournal on a local SQLite file
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens dbPath, enables WAL and creates the schema
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Enable WAL mode for crash recovery
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// RecordTrade appends a trade together with a checksum of its payload
func (s *SQLiteStore) RecordTrade(ctx context.Context, rec core.TradeRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal trade: %w", err)
	}
	checksum := sha256.Sum256(data)

	query := `INSERT INTO trades (runtime_id, market, data, checksum, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, rec.RuntimeID, rec.Market, string(data), checksum[:], time.Now().UnixNano()); err != nil {
		return fmt.Errorf("failed to write trade: %w", err)
	}
	return nil
}

// RecordStatus appends a loop state transition
func (s *SQLiteStore) RecordStatus(ctx context.Context, rec core.StatusRecord) error {
	query := `INSERT INTO status_transitions (runtime_id, market, state, iteration, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, rec.RuntimeID, rec.Market, rec.State, rec.Iteration, rec.Timestamp.UnixNano()); err != nil {
		return fmt.Errorf("failed to write status: %w", err)
	}
	return nil
}

// Trades returns the trades of a run in insertion order, verifying each checksum
func (s *SQLiteStore) Trades(ctx context.Context, runtimeID string) ([]core.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data, checksum FROM trades WHERE runtime_id = ? ORDER BY id`, runtimeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var out []core.TradeRecord
	for rows.Next() {
		var data string
		var stored []byte
		if err := rows.Scan(&data, &stored); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}

		computed := sha256.Sum256([]byte(data))
		if string(stored) != string(computed[:]) {
			return nil, fmt.Errorf("checksum verification failed: data corruption detected")
		}

		var rec core.TradeRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trade: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Statuses returns the state transitions of a run in insertion order
func (s *SQLiteStore) Statuses(ctx context.Context, runtimeID string) ([]core.StatusRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT market, state, iteration, created_at FROM status_transitions WHERE runtime_id = ? ORDER BY id`, runtimeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query statuses: %w", err)
	}
	defer rows.Close()

	var out []core.StatusRecord
	for rows.Next() {
		rec := core.StatusRecord{RuntimeID: runtimeID}
		var ts int64
		if err := rows.Scan(&rec.Market, &rec.State, &rec.Iteration, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan status: %w", err)
		}
		rec.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
