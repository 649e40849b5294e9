package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgnsrekt/tab_traverser/internal/types"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

type sqliteStore struct {
	db *sql.DB
}

func openSQLite(cfg Config) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("storage: mkdir %s: %w", filepath.Dir(path), err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			slog.Debug("sqlite pragma failed", "pragma", p, "error", err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	slog.Debug("sqlite store opened", "path", path)
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Get(ctx context.Context, tabID string) (types.TraversalState, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, StateKey(tabID)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return types.TraversalState{}, false, nil
	}
	if err != nil {
		return types.TraversalState{}, false, fmt.Errorf("storage: get %s: %w", tabID, err)
	}
	var st types.TraversalState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return types.TraversalState{}, false, fmt.Errorf("storage: decode %s: %w", tabID, err)
	}
	return st, true, nil
}

func (s *sqliteStore) Set(ctx context.Context, tabID string, st types.TraversalState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", tabID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kv(key, value, updated_at) VALUES(?,?,?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		StateKey(tabID), string(data), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("storage: set %s: %w", tabID, err)
	}
	return nil
}

func (s *sqliteStore) Remove(ctx context.Context, tabID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, StateKey(tabID)); err != nil {
		return fmt.Errorf("storage: remove %s: %w", tabID, err)
	}
	return nil
}

func (s *sqliteStore) List(ctx context.Context) (map[string]types.TraversalState, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM kv WHERE key LIKE ?`, keyPrefix+"%"+keySuffix)
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	defer rows.Close()

	out := make(map[string]types.TraversalState)
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("storage: list scan: %w", err)
		}
		id, ok := TabIDFromKey(key)
		if !ok {
			continue
		}
		var st types.TraversalState
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			slog.Warn("skipping undecodable traversal record", "key", key, "error", err)
			continue
		}
		out[id] = st
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	return out, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
