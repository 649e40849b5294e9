package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/tab_traverser/internal/relay"
	"github.com/dgnsrekt/tab_traverser/internal/storage"
	"github.com/dgnsrekt/tab_traverser/internal/traversal"
	"github.com/dgnsrekt/tab_traverser/internal/types"
)

type nopTimer struct{}

func (nopTimer) Arm(string, time.Time) {}
func (nopTimer) Cancel(string)         {}

type nopNav struct{}

func (nopNav) Navigate(context.Context, string, string) error { return nil }

type stubTabs struct {
	tabs []types.TabInfo
	err  error
}

func (s stubTabs) ListTabs(context.Context) ([]types.TabInfo, error) { return s.tabs, s.err }

func newTestServer(t *testing.T, tabs TabLister) http.Handler {
	t.Helper()
	sched := traversal.New(storage.NewMemory(), nopTimer{}, nopNav{})
	broker := relay.NewBroker()
	t.Cleanup(broker.Close)
	return NewServer(sched, tabs, broker)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeStatus(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body transitionBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return body.Status
}

func TestTraversalLifecycle(t *testing.T) {
	h := newTestServer(t, stubTabs{})

	w := do(t, h, http.MethodPut, "/api/v1/tabs/T1/traversal", `{"urls":["https://a","https://b"],"interval_ms":1000}`)
	if w.Code != http.StatusOK {
		t.Fatalf("start status = %d, body = %s", w.Code, w.Body.String())
	}
	if got := decodeStatus(t, w); got != "started" {
		t.Fatalf("start status field = %q; want started", got)
	}

	w = do(t, h, http.MethodGet, "/api/v1/tabs/T1/traversal", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var view traversal.View
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.TabID != "T1" || view.CurrentURL != "https://a" || !view.State.IsRunning {
		t.Fatalf("view = %+v", view)
	}

	steps := []struct {
		method, path, want string
	}{
		{http.MethodPost, "/api/v1/tabs/T1/traversal/pause", "paused"},
		{http.MethodPost, "/api/v1/tabs/T1/traversal/pause", "noop"},
		{http.MethodPost, "/api/v1/tabs/T1/traversal/resume", "resumed"},
		{http.MethodPost, "/api/v1/tabs/T1/traversal/resume", "noop"},
		{http.MethodDelete, "/api/v1/tabs/T1/traversal", "stopped"},
		{http.MethodDelete, "/api/v1/tabs/T1/traversal", "stopped"},
	}
	for _, s := range steps {
		w := do(t, h, s.method, s.path, "")
		if w.Code != http.StatusOK {
			t.Fatalf("%s %s status = %d, body = %s", s.method, s.path, w.Code, w.Body.String())
		}
		if got := decodeStatus(t, w); got != s.want {
			t.Fatalf("%s %s status field = %q; want %q", s.method, s.path, got, s.want)
		}
	}

	if w := do(t, h, http.MethodGet, "/api/v1/tabs/T1/traversal", ""); w.Code != http.StatusNotFound {
		t.Fatalf("get after stop status = %d; want 404", w.Code)
	}
}

func TestStartValidationIsBadRequest(t *testing.T) {
	h := newTestServer(t, stubTabs{})
	for _, body := range []string{
		`{"urls":[],"interval_ms":1000}`,
		`{"urls":["https://a"],"interval_ms":0}`,
		`{"urls":["  "],"interval_ms":1000}`,
	} {
		w := do(t, h, http.MethodPut, "/api/v1/tabs/T1/traversal", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("start %s status = %d; want 400", body, w.Code)
		}
	}
}

func TestListTraversals(t *testing.T) {
	h := newTestServer(t, stubTabs{})
	for _, id := range []string{"B", "A"} {
		if w := do(t, h, http.MethodPut, "/api/v1/tabs/"+id+"/traversal", `{"urls":["https://a"],"interval_ms":500}`); w.Code != http.StatusOK {
			t.Fatalf("start %s status = %d", id, w.Code)
		}
	}
	w := do(t, h, http.MethodGet, "/api/v1/traversals", "")
	var body struct {
		Traversals []traversal.View `json:"traversals"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Traversals) != 2 || body.Traversals[0].TabID != "A" {
		t.Fatalf("traversals = %+v", body.Traversals)
	}
}

func TestListTabs(t *testing.T) {
	h := newTestServer(t, stubTabs{tabs: []types.TabInfo{{TabID: "X", URL: "https://x", Title: "x"}}})
	w := do(t, h, http.MethodGet, "/api/v1/tabs", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"tab_id":"X"`) {
		t.Fatalf("tabs status = %d, body = %s", w.Code, w.Body.String())
	}

	down := newTestServer(t, stubTabs{err: types.NewError(types.CodeCDPUnavailable, "down", nil)})
	if w := do(t, down, http.MethodGet, "/api/v1/tabs", ""); w.Code != http.StatusBadGateway {
		t.Fatalf("tabs with CDP down status = %d; want 502", w.Code)
	}
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, stubTabs{})
	w := do(t, h, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Fatalf("health status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestDocsDarkMode(t *testing.T) {
	h := newTestServer(t, stubTabs{})
	w := do(t, h, http.MethodGet, "/docs", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `data-theme="dark"`) {
		t.Fatalf("docs missing dark theme marker")
	}
}

func TestMapErr(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{types.NewError(types.CodeValidation, "bad", nil), http.StatusBadRequest},
		{types.NewError(types.CodeNotFound, "gone", nil), http.StatusNotFound},
		{types.NewError(types.CodeTabNotFound, "closed", nil), http.StatusBadGateway},
		{types.NewError(types.CodeCDPUnavailable, "down", nil), http.StatusBadGateway},
		{types.NewError(types.CodeStoreFailure, "disk", errors.New("full")), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		var se interface{ GetStatus() int }
		if !errors.As(mapErr(tt.err), &se) {
			t.Fatalf("mapErr(%v) is not a status error", tt.err)
		}
		if got := se.GetStatus(); got != tt.want {
			t.Fatalf("mapErr(%v) status = %d; want %d", tt.err, got, tt.want)
		}
	}
	if mapErr(nil) != nil {
		t.Fatalf("mapErr(nil) != nil")
	}
}
