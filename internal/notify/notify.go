// Package notify posts plain-text alerts to an ntfy topic.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Notifier posts to one ntfy endpoint. A Notifier with an empty endpoint
// drops every message.
type Notifier struct {
	endpoint string
	client   *http.Client
}

func New(endpoint string, client *http.Client) *Notifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Notifier{endpoint: strings.TrimSpace(endpoint), client: client}
}

func (n *Notifier) Enabled() bool { return n != nil && n.endpoint != "" }

// TraversalStopped reports a traversal that ended because its tab closed.
// Failures are logged, never returned; the caller is a wake-up handler with
// nobody to report to.
func (n *Notifier) TraversalStopped(ctx context.Context, tabID string, cause error) {
	if !n.Enabled() {
		return
	}
	msg := "Traversal for tab " + tabID + " stopped: tab is no longer open"
	if cause != nil {
		msg += " (" + cause.Error() + ")"
	}
	if err := Send(ctx, n.client, n.endpoint, "Tab traversal stopped", msg); err != nil {
		slog.Warn("ntfy notification failed", "tab_id", tabID, "error", err)
	}
}

// Send posts message to endpoint. A non-empty title is sent as the ntfy
// Title header.
func Send(ctx context.Context, client *http.Client, endpoint, title, message string) error {
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "text/plain")
	if title != "" {
		req.Header.Set("Title", title)
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}
