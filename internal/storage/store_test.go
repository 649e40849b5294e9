package storage

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/dgnsrekt/tab_traverser/internal/types"
)

func openAll(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	stores := map[string]Store{"memory": NewMemory()}

	fs, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "files")})
	if err != nil {
		t.Fatalf("Open(file) error = %v", err)
	}
	stores["file"] = fs

	sq, err := Open(Config{Driver: "sqlite", Path: filepath.Join(dir, "db", "traverser.db")})
	if err != nil {
		t.Fatalf("Open(sqlite) error = %v", err)
	}
	stores["sqlite"] = sq

	t.Cleanup(func() {
		for name, st := range stores {
			if err := st.Close(); err != nil {
				t.Errorf("%s Close() error = %v", name, err)
			}
		}
	})
	return stores
}

func sampleState() types.TraversalState {
	return types.TraversalState{
		URLs:         []string{"https://a.example", "https://b.example"},
		CurrentIndex: 1,
		IntervalMs:   1000,
		IsRunning:    true,
		NextRunAt:    1_700_000_000_000,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, st := range openAll(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := st.Get(ctx, "tab-1"); err != nil || ok {
				t.Fatalf("Get() on empty = (ok=%v, err=%v); want absent", ok, err)
			}

			want := sampleState()
			if err := st.Set(ctx, "tab-1", want); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			got, ok, err := st.Get(ctx, "tab-1")
			if err != nil || !ok {
				t.Fatalf("Get() = (ok=%v, err=%v); want present", ok, err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("Get() = %+v; want %+v", got, want)
			}

			want.IsPaused = true
			if err := st.Set(ctx, "tab-1", want); err != nil {
				t.Fatalf("Set() overwrite error = %v", err)
			}
			got, _, _ = st.Get(ctx, "tab-1")
			if !got.IsPaused {
				t.Fatalf("Get() after overwrite IsPaused = false; want true")
			}

			if err := st.Remove(ctx, "tab-1"); err != nil {
				t.Fatalf("Remove() error = %v", err)
			}
			if _, ok, _ := st.Get(ctx, "tab-1"); ok {
				t.Fatalf("Get() after Remove() present; want absent")
			}
			if err := st.Remove(ctx, "tab-1"); err != nil {
				t.Fatalf("Remove() on absent = %v; want nil", err)
			}
		})
	}
}

func TestStoreTabsAreIsolated(t *testing.T) {
	ctx := context.Background()
	for name, st := range openAll(t) {
		t.Run(name, func(t *testing.T) {
			a := sampleState()
			b := sampleState()
			b.URLs = []string{"https://c.example"}
			b.CurrentIndex = 0

			if err := st.Set(ctx, "A", a); err != nil {
				t.Fatalf("Set(A) error = %v", err)
			}
			if err := st.Set(ctx, "B", b); err != nil {
				t.Fatalf("Set(B) error = %v", err)
			}
			if err := st.Remove(ctx, "A"); err != nil {
				t.Fatalf("Remove(A) error = %v", err)
			}

			all, err := st.List(ctx)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(all) != 1 {
				t.Fatalf("List() len = %d; want 1", len(all))
			}
			if !reflect.DeepEqual(all["B"], b) {
				t.Fatalf("List()[B] = %+v; want %+v", all["B"], b)
			}
		})
	}
}

func TestMemoryClonesOnSet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	st := sampleState()
	if err := m.Set(ctx, "t", st); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	st.URLs[0] = "mutated"
	got, _, _ := m.Get(ctx, "t")
	if got.URLs[0] == "mutated" {
		t.Fatalf("Memory aliased caller slice")
	}
}

func TestStateKey(t *testing.T) {
	if got, want := StateKey("42"), "traversal:42:state"; got != want {
		t.Fatalf("StateKey() = %q; want %q", got, want)
	}
	tests := []struct {
		key  string
		id   string
		want bool
	}{
		{"traversal:42:state", "42", true},
		{"traversal:a:b:state", "a:b", true},
		{"traversal::state", "", false},
		{"other:42:state", "", false},
		{"traversal:42", "", false},
	}
	for _, tt := range tests {
		id, ok := TabIDFromKey(tt.key)
		if ok != tt.want || id != tt.id {
			t.Fatalf("TabIDFromKey(%q) = (%q, %v); want (%q, %v)", tt.key, id, ok, tt.id, tt.want)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "redis"}); err == nil {
		t.Fatalf("Open(redis) = nil error; want error")
	}
}

func TestMemoryClosed(t *testing.T) {
	m := NewMemory()
	_ = m.Close()
	if err := m.Set(context.Background(), "t", sampleState()); err != ErrClosed {
		t.Fatalf("Set() after Close() = %v; want ErrClosed", err)
	}
}
