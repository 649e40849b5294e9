package storage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dgnsrekt/tab_traverser/internal/types"
)

// fileStore keeps one JSON document per tab in a directory. Writes go to a
// temp file that is renamed over the target so readers never see a partial
// record.
type fileStore struct {
	dir string
	mu  sync.RWMutex
}

type fileRecord struct {
	Key   string               `json:"key"`
	State types.TraversalState `json:"state"`
}

func openFile(cfg Config) (Store, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		return nil, errors.New("storage path is required for file driver")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: mkdir %s: %w", dir, err)
	}
	return &fileStore{dir: dir}, nil
}

func (s *fileStore) pathFor(tabID string) string {
	name := base64.RawURLEncoding.EncodeToString([]byte(StateKey(tabID)))
	return filepath.Join(s.dir, name+".json")
}

func (s *fileStore) Get(_ context.Context, tabID string) (types.TraversalState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.pathFor(tabID))
	if err != nil {
		if os.IsNotExist(err) {
			return types.TraversalState{}, false, nil
		}
		return types.TraversalState{}, false, fmt.Errorf("storage: read %s: %w", tabID, err)
	}
	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return types.TraversalState{}, false, fmt.Errorf("storage: decode %s: %w", tabID, err)
	}
	return rec.State, true, nil
}

func (s *fileStore) Set(_ context.Context, tabID string, st types.TraversalState) error {
	data, err := json.MarshalIndent(fileRecord{Key: StateKey(tabID), State: st}, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", tabID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.pathFor(tabID)
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("storage: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("storage: write %s: %w", tabID, err)
	}
	if err := tmp.Sync(); err != nil {
		slog.Debug("storage temp file sync failed", "path", tmpName, "error", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("storage: close %s: %w", tabID, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("storage: rename %s: %w", tabID, err)
	}
	return nil
}

func (s *fileStore) Remove(_ context.Context, tabID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.pathFor(tabID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: remove %s: %w", tabID, err)
	}
	return nil
}

func (s *fileStore) List(_ context.Context) (map[string]types.TraversalState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("storage: glob: %w", err)
	}

	out := make(map[string]types.TraversalState, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Debug("storage list read failed", "path", path, "error", err)
			continue
		}
		var rec fileRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			slog.Warn("skipping undecodable traversal record", "path", path, "error", err)
			continue
		}
		id, ok := TabIDFromKey(rec.Key)
		if !ok {
			continue
		}
		out[id] = rec.State
	}
	return out, nil
}

func (s *fileStore) Close() error { return nil }
