package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/tab_traverser/internal/traversal"
	"github.com/dgnsrekt/tab_traverser/internal/types"
)

// transitionBody reports a state transition. Status is "noop" when the
// operation's preconditions did not hold.
type transitionBody struct {
	Status string                `json:"status" enum:"started,paused,resumed,stopped,noop"`
	TabID  string                `json:"tab_id"`
	State  *types.TraversalState `json:"state,omitempty"`
}

type transitionOutput struct {
	Body transitionBody
}

func transition(tabID string, res traversal.Result) *transitionOutput {
	out := &transitionOutput{}
	out.Body.Status = string(res.Outcome)
	out.Body.TabID = tabID
	if res.State.IsRunning {
		st := res.State
		out.Body.State = &st
	}
	return out
}

func registerTraversalHandlers(api huma.API, svc Service) {
	type startInput struct {
		TabID string `path:"tab_id" minLength:"1" doc:"CDP target id of the tab"`
		Body  struct {
			URLs       []string `json:"urls,omitempty" doc:"URLs to cycle through, in order; must not be empty"`
			IntervalMs int64    `json:"interval_ms,omitempty" doc:"Milliseconds between navigations; must be positive"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "start-traversal", Method: http.MethodPut, Path: "/api/v1/tabs/{tab_id}/traversal", Summary: "Start or replace a traversal", Tags: []string{"Traversal"}},
		func(ctx context.Context, input *startInput) (*transitionOutput, error) {
			res, err := svc.Start(ctx, input.TabID, input.Body.URLs, input.Body.IntervalMs)
			if err != nil {
				return nil, mapErr(err)
			}
			return transition(input.TabID, res), nil
		})

	huma.Register(api, huma.Operation{OperationID: "pause-traversal", Method: http.MethodPost, Path: "/api/v1/tabs/{tab_id}/traversal/pause", Summary: "Pause a running traversal", Tags: []string{"Traversal"}},
		func(ctx context.Context, input *tabIDInput) (*transitionOutput, error) {
			res, err := svc.Pause(ctx, input.TabID)
			if err != nil {
				return nil, mapErr(err)
			}
			return transition(input.TabID, res), nil
		})

	huma.Register(api, huma.Operation{OperationID: "resume-traversal", Method: http.MethodPost, Path: "/api/v1/tabs/{tab_id}/traversal/resume", Summary: "Resume a paused traversal", Tags: []string{"Traversal"}},
		func(ctx context.Context, input *tabIDInput) (*transitionOutput, error) {
			res, err := svc.Resume(ctx, input.TabID)
			if err != nil {
				return nil, mapErr(err)
			}
			return transition(input.TabID, res), nil
		})

	huma.Register(api, huma.Operation{OperationID: "stop-traversal", Method: http.MethodDelete, Path: "/api/v1/tabs/{tab_id}/traversal", Summary: "Stop a traversal and forget its state", Tags: []string{"Traversal"}},
		func(ctx context.Context, input *tabIDInput) (*transitionOutput, error) {
			res, err := svc.Stop(ctx, input.TabID)
			if err != nil {
				return nil, mapErr(err)
			}
			return transition(input.TabID, res), nil
		})

	type viewOutput struct {
		Body traversal.View
	}
	huma.Register(api, huma.Operation{OperationID: "get-traversal", Method: http.MethodGet, Path: "/api/v1/tabs/{tab_id}/traversal", Summary: "Get a tab's traversal", Tags: []string{"Traversal"}},
		func(ctx context.Context, input *tabIDInput) (*viewOutput, error) {
			view, err := svc.Get(ctx, input.TabID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &viewOutput{Body: view}, nil
		})

	type listOutput struct {
		Body struct {
			Traversals []traversal.View `json:"traversals"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-traversals", Method: http.MethodGet, Path: "/api/v1/traversals", Summary: "List all traversals", Tags: []string{"Traversal"}},
		func(ctx context.Context, input *struct{}) (*listOutput, error) {
			views, err := svc.List(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listOutput{}
			out.Body.Traversals = views
			return out, nil
		})
}
