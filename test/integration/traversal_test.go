//go:build integration

package integration

import (
	"net/http"
	"testing"
	"time"
)

type transition struct {
	Status string `json:"status"`
	State  *struct {
		CurrentIndex int  `json:"currentIndex"`
		IsPaused     bool `json:"isPaused"`
	} `json:"state"`
}

func TestHealth(t *testing.T) {
	resp := env.GET(t, "/health")
	requireStatus(t, resp, http.StatusOK)
	result := decodeJSON[struct {
		Status string `json:"status"`
	}](t, resp)
	requireField(t, result.Status, "ok", "status")
}

func TestTraversalCyclesRealTab(t *testing.T) {
	path := "/api/v1/tabs/" + env.TabID + "/traversal"
	resp := env.PUT(t, path, map[string]any{
		"urls":        []string{"about:blank#one", "about:blank#two"},
		"interval_ms": 1000,
	})
	requireStatus(t, resp, http.StatusOK)
	requireField(t, decodeJSON[transition](t, resp).Status, "started", "status")

	time.Sleep(2500 * time.Millisecond)

	resp = env.GET(t, path)
	requireStatus(t, resp, http.StatusOK)
	view := decodeJSON[struct {
		State struct {
			CurrentIndex int `json:"currentIndex"`
		} `json:"state"`
	}](t, resp)
	t.Logf("current index after 2.5s: %d", view.State.CurrentIndex)

	resp = env.POST(t, path+"/pause", nil)
	requireStatus(t, resp, http.StatusOK)
	requireField(t, decodeJSON[transition](t, resp).Status, "paused", "status")

	resp = env.POST(t, path+"/resume", nil)
	requireStatus(t, resp, http.StatusOK)
	requireField(t, decodeJSON[transition](t, resp).Status, "resumed", "status")

	resp = env.DELETE(t, path)
	requireStatus(t, resp, http.StatusOK)
	requireField(t, decodeJSON[transition](t, resp).Status, "stopped", "status")

	resp = env.GET(t, path)
	requireStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestUnknownTabTraversalAutoStops(t *testing.T) {
	path := "/api/v1/tabs/NO-SUCH-TARGET/traversal"
	resp := env.PUT(t, path, map[string]any{"urls": []string{"about:blank"}, "interval_ms": 500})
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	time.Sleep(1500 * time.Millisecond)

	resp = env.GET(t, path)
	requireStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}
