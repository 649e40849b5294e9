//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

var env *Env

// Env holds shared state for all integration tests. The traverser must be
// running against a browser with at least one open tab.
type Env struct {
	BaseURL string
	Client  *http.Client
	TabID   string // discovered from /api/v1/tabs
}

type tabInfo struct {
	TabID string `json:"tab_id"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

// discoverTab fetches /api/v1/tabs and sets env.TabID to the first tab.
func (e *Env) discoverTab() error {
	resp, err := e.Client.Get(e.BaseURL + "/api/v1/tabs")
	if err != nil {
		return fmt.Errorf("server not reachable at %s: %w", e.BaseURL, err)
	}
	defer resp.Body.Close()

	var listing struct {
		Tabs []tabInfo `json:"tabs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return fmt.Errorf("decode tabs: %w", err)
	}
	if len(listing.Tabs) == 0 {
		return fmt.Errorf("no tabs found at %s", e.BaseURL)
	}
	e.TabID = listing.Tabs[0].TabID
	return nil
}

func TestMain(m *testing.M) {
	baseURL := os.Getenv("TRAVERSER_URL")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8190"
	}

	env = &Env{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}

	if err := env.discoverTab(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, "integration: using tab %s at %s\n", env.TabID, env.BaseURL)

	code := m.Run()

	// Leave the tab idle whatever happened.
	req, _ := http.NewRequest(http.MethodDelete, env.traversalPath(""), nil)
	if resp, err := env.Client.Do(req); err == nil {
		resp.Body.Close()
	}
	os.Exit(code)
}

func (e *Env) traversalPath(suffix string) string {
	p := "/api/v1/tabs/" + e.TabID + "/traversal"
	if suffix != "" {
		p += "/" + suffix
	}
	return e.BaseURL + p
}

func (e *Env) GET(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := e.Client.Get(e.BaseURL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func (e *Env) PUT(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	return e.do(t, http.MethodPut, path, body)
}

func (e *Env) POST(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	return e.do(t, http.MethodPost, path, body)
}

func (e *Env) DELETE(t *testing.T, path string) *http.Response {
	t.Helper()
	return e.do(t, http.MethodDelete, path, nil)
}

func (e *Env) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("%s %s: marshal body: %v", method, path, err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.BaseURL+path, r)
	if err != nil {
		t.Fatalf("%s %s: new request: %v", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.Client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func requireStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want %d; body: %s", resp.StatusCode, want, body)
	}
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func requireField[T comparable](t *testing.T, got, want T, name string) {
	t.Helper()
	if got != want {
		t.Fatalf("%s = %v, want %v", name, got, want)
	}
}
