// Package storage persists one TraversalState per tab identifier.
//
// Every backend stores records under the key "traversal:{tabId}:state". Each
// call is atomic on its own; callers that read, modify and write a record must
// serialize those sequences themselves.
package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dgnsrekt/tab_traverser/internal/types"
)

const (
	keyPrefix = "traversal:"
	keySuffix = ":state"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("storage closed")

// Store is the persistence API used by the traversal scheduler.
type Store interface {
	Get(ctx context.Context, tabID string) (types.TraversalState, bool, error)
	Set(ctx context.Context, tabID string, st types.TraversalState) error
	Remove(ctx context.Context, tabID string) error
	List(ctx context.Context) (map[string]types.TraversalState, error)
	Close() error
}

// Config selects and configures a backend.
//
// Driver values:
//   - "sqlite": SQLite database file at Path
//   - "file": one JSON document per tab under the directory Path
//   - "memory": process-local map, lost on restart
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Open initializes the configured store.
func Open(cfg Config) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg)
	case "file":
		return openFile(cfg)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

// StateKey builds the persisted key for a tab.
func StateKey(tabID string) string {
	return keyPrefix + tabID + keySuffix
}

// TabIDFromKey extracts the tab identifier from a key built by StateKey.
func TabIDFromKey(key string) (string, bool) {
	if !strings.HasPrefix(key, keyPrefix) || !strings.HasSuffix(key, keySuffix) {
		return "", false
	}
	id := key[len(keyPrefix) : len(key)-len(keySuffix)]
	if id == "" {
		return "", false
	}
	return id, true
}
