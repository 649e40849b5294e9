// Package cdp drives browser tabs over the Chrome DevTools Protocol.
//
// Tab identifiers are CDP target ids as reported by /json/list.
package cdp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/tab_traverser/internal/types"
)

// Config configures a Client.
type Config struct {
	URL        string        // http://host:port of the DevTools endpoint
	NavTimeout time.Duration // upper bound for one navigation; 0 means 15s
	NavRate    float64       // navigations per second across all tabs; 0 disables pacing
	HTTPClient *http.Client
}

// Client navigates tabs through a remote Chromium.
type Client struct {
	httpBase   string
	http       *http.Client
	navTimeout time.Duration
	limiter    *rate.Limiter

	mu          sync.Mutex
	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabs        *tabRegistry
}

func NewClient(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	timeout := cfg.NavTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.NavRate > 0 {
		burst := int(cfg.NavRate)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.NavRate), burst)
	}
	return &Client{
		httpBase:   strings.TrimRight(cfg.URL, "/"),
		http:       hc,
		navTimeout: timeout,
		limiter:    limiter,
		tabs:       newTabRegistry(),
	}
}

// Connect resolves the browser websocket and prepares a remote allocator.
// Navigate calls made before Connect fail with CDP_UNAVAILABLE.
func (c *Client) Connect(ctx context.Context) error {
	if c.httpBase == "" {
		return types.NewError(types.CodeCDPUnavailable, "missing CDP URL", nil)
	}
	wsURL, err := c.browserWSURL(ctx)
	if err != nil {
		return types.NewError(types.CodeCDPUnavailable, "connect to CDP failed", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupLocked()
	c.allocCtx, c.allocCancel = chromedp.NewRemoteAllocator(context.Background(), wsURL)
	slog.Info("cdp connected", "cdp_url", c.httpBase, "ws_url", wsURL)
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupLocked()
	slog.Info("cdp client closed")
	return nil
}

func (c *Client) cleanupLocked() {
	c.tabs.closeAll()
	if c.allocCancel != nil {
		c.allocCancel()
	}
	c.allocCtx, c.allocCancel = nil, nil
}

// Navigate loads url in the tab. A tab that is not open yields
// TAB_NOT_FOUND; a failed load yields NAVIGATION_FAILED.
func (c *Client) Navigate(ctx context.Context, tabID, url string) error {
	exists, err := c.tabExists(ctx, tabID)
	if err != nil {
		return types.NewError(types.CodeCDPUnavailable, "list targets failed", err)
	}
	if !exists {
		c.tabs.drop(target.ID(tabID))
		return types.NewError(types.CodeTabNotFound, "tab "+tabID+" is not open", nil)
	}

	c.mu.Lock()
	allocCtx := c.allocCtx
	c.mu.Unlock()
	if allocCtx == nil {
		return types.NewError(types.CodeCDPUnavailable, "not connected", nil)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return types.NewError(types.CodeNavigation, "navigation wait cancelled", err)
	}

	tabCtx, fresh := c.tabs.session(allocCtx, target.ID(tabID))
	if fresh {
		if err := chromedp.Run(tabCtx); err != nil {
			c.tabs.drop(target.ID(tabID))
			return types.NewError(types.CodeCDPUnavailable, "attach to tab "+tabID+" failed", err)
		}
		slog.Info("cdp attached to tab", "tab_id", tabID)
	}
	navCtx, cancel := context.WithTimeout(tabCtx, c.navTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	start := time.Now()
	if err := chromedp.Run(navCtx, chromedp.Navigate(url)); err != nil {
		return c.navigateError(ctx, tabID, url, err)
	}
	slog.Debug("cdp navigated", "tab_id", tabID, "url", truncateURL(url), "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// navigateError classifies a failed navigation. The tab may have closed
// mid-load, so the target list is consulted again.
func (c *Client) navigateError(ctx context.Context, tabID, url string, cause error) error {
	if errors.Is(cause, context.Canceled) || isSessionGone(cause) {
		c.tabs.drop(target.ID(tabID))
	}
	checkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if exists, err := c.tabExists(checkCtx, tabID); err == nil && !exists {
		c.tabs.drop(target.ID(tabID))
		return types.NewError(types.CodeTabNotFound, "tab "+tabID+" closed during navigation", cause)
	}
	return types.NewError(types.CodeNavigation, "navigate to "+truncateURL(url)+" failed", cause)
}

var sessionGoneHints = []string{
	"target closed",
	"session closed",
	"no such target",
	"websocket",
	"connection reset",
	"broken pipe",
	"eof",
}

func isSessionGone(err error) bool {
	cause := strings.ToLower(err.Error())
	for _, hint := range sessionGoneHints {
		if strings.Contains(cause, hint) {
			return true
		}
	}
	return false
}

func truncateURL(url string) string {
	if len(url) > 120 {
		return url[:120] + "..."
	}
	return url
}
