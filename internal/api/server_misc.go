package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/tab_traverser/internal/relay"
	"github.com/dgnsrekt/tab_traverser/internal/types"
)

func registerMiscHandlers(api huma.API, svc Service, tabs TabLister, broker *relay.Broker) {
	type healthOutput struct {
		Body struct {
			Status       string `json:"status"`
			Traversals   int    `json:"traversals"`
			EventClients int    `json:"event_clients"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			if views, err := svc.List(ctx); err == nil {
				out.Body.Traversals = len(views)
			} else {
				out.Body.Status = "degraded"
			}
			if broker != nil {
				out.Body.EventClients = broker.ClientCount()
			}
			return out, nil
		})

	type tabsOutput struct {
		Body struct {
			Tabs []types.TabInfo `json:"tabs"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-tabs", Method: http.MethodGet, Path: "/api/v1/tabs", Summary: "List open browser tabs", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct{}) (*tabsOutput, error) {
			if tabs == nil {
				return nil, mapErr(types.NewError(types.CodeCDPUnavailable, "no browser connection", nil))
			}
			list, err := tabs.ListTabs(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &tabsOutput{}
			out.Body.Tabs = list
			return out, nil
		})
}
