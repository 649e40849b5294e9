package cdp

import (
	"context"
	"sync"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

type tabSession struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// tabRegistry caches one chromedp context per target so repeated
// navigations reuse the attached session.
type tabRegistry struct {
	mu   sync.Mutex
	tabs map[target.ID]*tabSession
}

func newTabRegistry() *tabRegistry {
	return &tabRegistry{tabs: make(map[target.ID]*tabSession)}
}

// session returns the cached context for id, creating one under allocCtx
// when none exists. fresh is true when the caller must attach it with an
// initial chromedp.Run on the returned context itself; attaching through a
// derived timeout context would tie the session's lifetime to that timeout.
func (r *tabRegistry) session(allocCtx context.Context, id target.ID) (ctx context.Context, fresh bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.tabs[id]; ok && s.ctx.Err() == nil {
		return s.ctx, false
	}
	ctx, cancel := chromedp.NewContext(allocCtx, chromedp.WithTargetID(id))
	r.tabs[id] = &tabSession{ctx: ctx, cancel: cancel}
	return ctx, true
}

// drop detaches from id. The next navigation attaches afresh.
func (r *tabRegistry) drop(id target.ID) {
	r.mu.Lock()
	s, ok := r.tabs[id]
	delete(r.tabs, id)
	r.mu.Unlock()
	if ok {
		s.cancel()
	}
}

func (r *tabRegistry) closeAll() {
	r.mu.Lock()
	tabs := r.tabs
	r.tabs = make(map[target.ID]*tabSession)
	r.mu.Unlock()
	for _, s := range tabs {
		s.cancel()
	}
}

func (r *tabRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tabs)
}
