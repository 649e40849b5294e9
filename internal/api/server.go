package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgnsrekt/tab_traverser/internal/relay"
	"github.com/dgnsrekt/tab_traverser/internal/traversal"
	"github.com/dgnsrekt/tab_traverser/internal/types"
)

// Service is the traversal control surface, satisfied by *traversal.Scheduler.
type Service interface {
	Start(ctx context.Context, tabID string, urls []string, intervalMs int64) (traversal.Result, error)
	Pause(ctx context.Context, tabID string) (traversal.Result, error)
	Resume(ctx context.Context, tabID string) (traversal.Result, error)
	Stop(ctx context.Context, tabID string) (traversal.Result, error)
	Get(ctx context.Context, tabID string) (traversal.View, error)
	List(ctx context.Context) ([]traversal.View, error)
}

// TabLister enumerates the browser's open tabs.
type TabLister interface {
	ListTabs(ctx context.Context) ([]types.TabInfo, error)
}

type tabIDInput struct {
	TabID string `path:"tab_id" minLength:"1" doc:"CDP target id of the tab"`
}

// NewServer builds the HTTP handler. broker may be nil, in which case the
// event stream routes are not mounted.
func NewServer(svc Service, tabs TabLister, broker *relay.Broker) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Tab Traverser API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	if broker != nil {
		router.Get("/api/v1/events", relay.SSEHandler(broker))
		router.Get("/api/v1/events/ws", relay.WebSocketHandler(broker))
	}

	registerTraversalHandlers(api, svc)
	registerMiscHandlers(api, svc, tabs, broker)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *types.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case types.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case types.CodeNotFound:
			return huma.Error404NotFound(coded.Message)
		case types.CodeTabNotFound, types.CodeCDPUnavailable, types.CodeNavigation:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
