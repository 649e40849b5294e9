package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/dgnsrekt/tab_traverser/internal/types"
)

// listTargets fetches open targets via the HTTP /json/list endpoint. It does
// not need a DevTools session, so it works before Connect and keeps working
// when the websocket has dropped.
func (c *Client) listTargets(ctx context.Context) ([]*target.Info, error) {
	listCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(listCtx, http.MethodGet, c.httpBase+"/json/list", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cdp: /json/list: HTTP %d", resp.StatusCode)
	}

	var entries []struct {
		ID    string `json:"id"`
		Type  string `json:"type"`
		Title string `json:"title"`
		URL   string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("cdp: decode /json/list: %w", err)
	}

	out := make([]*target.Info, 0, len(entries))
	for _, e := range entries {
		out = append(out, &target.Info{
			TargetID: target.ID(e.ID),
			Type:     e.Type,
			Title:    e.Title,
			URL:      e.URL,
		})
	}
	return out, nil
}

// browserWSURL fetches the browser-level debugger URL from /json/version.
func (c *Client) browserWSURL(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.httpBase+"/json/version", nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("cdp: /json/version: HTTP %d", resp.StatusCode)
	}

	var info struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", err
	}
	if info.WebSocketDebuggerURL == "" {
		return "", fmt.Errorf("cdp: empty webSocketDebuggerUrl")
	}
	return info.WebSocketDebuggerURL, nil
}

// ListTabs returns the page targets currently open, ordered by tab id.
func (c *Client) ListTabs(ctx context.Context) ([]types.TabInfo, error) {
	targets, err := c.listTargets(ctx)
	if err != nil {
		return nil, types.NewError(types.CodeCDPUnavailable, "list targets failed", err)
	}
	tabs := make([]types.TabInfo, 0, len(targets))
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		tabs = append(tabs, types.TabInfo{TabID: string(t.TargetID), URL: t.URL, Title: t.Title})
	}
	sort.Slice(tabs, func(i, j int) bool { return tabs[i].TabID < tabs[j].TabID })
	return tabs, nil
}

// tabExists reports whether a page target with the given id is open.
func (c *Client) tabExists(ctx context.Context, tabID string) (bool, error) {
	targets, err := c.listTargets(ctx)
	if err != nil {
		return false, err
	}
	for _, t := range targets {
		if string(t.TargetID) == tabID && t.Type == "page" {
			return true, nil
		}
	}
	return false, nil
}
