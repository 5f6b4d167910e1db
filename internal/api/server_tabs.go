package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/driftbrowser/tabcore/internal/tab"
)

type tabIDInput struct {
	TabID string `path:"tab_id"`
}

type tabOutput struct {
	Body tab.Info
}

type tabListOutput struct {
	Body struct {
		Tabs []tab.Info `json:"tabs"`
	}
}

type statusOutput struct {
	Body struct {
		TabID  string `json:"tab_id,omitempty"`
		Status string `json:"status"`
	}
}

func statusResult(tabID, status string) *statusOutput {
	out := &statusOutput{}
	out.Body.TabID = tabID
	out.Body.Status = status
	return out
}

func registerTabHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tabs",
		Method:      http.MethodGet,
		Path:        "/tabs",
		Summary:     "List all tab records",
	}, func(ctx context.Context, _ *struct{}) (*tabListOutput, error) {
		out := &tabListOutput{}
		out.Body.Tabs = svc.ListTabs(ctx)
		if out.Body.Tabs == nil {
			out.Body.Tabs = []tab.Info{}
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "open-tab",
		Method:      http.MethodPost,
		Path:        "/tabs",
		Summary:     "Open a new tab record (surface created lazily)",
	}, func(ctx context.Context, input *struct {
		Body struct {
			ProfileID string `json:"profile_id"`
			URL       string `json:"url,omitempty"`
			PopupHost bool   `json:"popup_host,omitempty" doc:"Popup hosts await an externally-driven first load"`
		}
	}) (*tabOutput, error) {
		info, err := svc.OpenTab(ctx, input.Body.ProfileID, input.Body.URL, input.Body.PopupHost)
		if err != nil {
			return nil, mapErr(err)
		}
		return &tabOutput{Body: info}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-tab",
		Method:      http.MethodGet,
		Path:        "/tabs/{tab_id}",
		Summary:     "Get one tab record",
	}, func(ctx context.Context, input *tabIDInput) (*tabOutput, error) {
		info, err := svc.GetTab(ctx, input.TabID)
		if err != nil {
			return nil, mapErr(err)
		}
		return &tabOutput{Body: info}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "ensure-surface",
		Method:      http.MethodPost,
		Path:        "/tabs/{tab_id}/surface",
		Summary:     "Ensure the tab's primary surface for a window",
	}, func(ctx context.Context, input *struct {
		TabID string `path:"tab_id"`
		Body  struct {
			WindowID string `json:"window_id"`
		}
	}) (*tabOutput, error) {
		info, err := svc.EnsureSurface(ctx, input.TabID, input.Body.WindowID)
		if err != nil {
			return nil, mapErr(err)
		}
		return &tabOutput{Body: info}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "unload-tab",
		Method:      http.MethodPost,
		Path:        "/tabs/{tab_id}/unload",
		Summary:     "Reclaim the tab's surface, keeping its metadata",
	}, func(ctx context.Context, input *tabIDInput) (*statusOutput, error) {
		if err := svc.Unload(ctx, input.TabID); err != nil {
			return nil, mapErr(err)
		}
		return statusResult(input.TabID, "unloaded"), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "close-tab",
		Method:      http.MethodDelete,
		Path:        "/tabs/{tab_id}",
		Summary:     "Close and destroy a tab (idempotent)",
	}, func(ctx context.Context, input *tabIDInput) (*statusOutput, error) {
		if err := svc.CloseTab(ctx, input.TabID); err != nil {
			return nil, mapErr(err)
		}
		return statusResult(input.TabID, "closed"), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "navigate-tab",
		Method:      http.MethodPost,
		Path:        "/tabs/{tab_id}/navigate",
		Summary:     "Navigate the tab's surface",
	}, func(ctx context.Context, input *struct {
		TabID string `path:"tab_id"`
		Body  struct {
			URL string `json:"url"`
		}
	}) (*statusOutput, error) {
		if err := svc.Navigate(ctx, input.TabID, input.Body.URL); err != nil {
			return nil, mapErr(err)
		}
		return statusResult(input.TabID, "navigating"), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "refresh-tab",
		Method:      http.MethodPost,
		Path:        "/tabs/{tab_id}/refresh",
		Summary:     "Reload the tab's current URL",
	}, func(ctx context.Context, input *tabIDInput) (*statusOutput, error) {
		if err := svc.Refresh(ctx, input.TabID); err != nil {
			return nil, mapErr(err)
		}
		return statusResult(input.TabID, "refreshing"), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "tab-back",
		Method:      http.MethodPost,
		Path:        "/tabs/{tab_id}/back",
		Summary:     "Go back in the tab's history",
	}, func(ctx context.Context, input *tabIDInput) (*statusOutput, error) {
		if err := svc.GoBack(ctx, input.TabID); err != nil {
			return nil, mapErr(err)
		}
		return statusResult(input.TabID, "back"), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "tab-forward",
		Method:      http.MethodPost,
		Path:        "/tabs/{tab_id}/forward",
		Summary:     "Go forward in the tab's history",
	}, func(ctx context.Context, input *tabIDInput) (*statusOutput, error) {
		if err := svc.GoForward(ctx, input.TabID); err != nil {
			return nil, mapErr(err)
		}
		return statusResult(input.TabID, "forward"), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stop-tab",
		Method:      http.MethodPost,
		Path:        "/tabs/{tab_id}/stop",
		Summary:     "Stop the in-flight navigation",
	}, func(ctx context.Context, input *tabIDInput) (*statusOutput, error) {
		if err := svc.StopLoading(ctx, input.TabID); err != nil {
			return nil, mapErr(err)
		}
		return statusResult(input.TabID, "stopped"), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mute-tab",
		Method:      http.MethodPost,
		Path:        "/tabs/{tab_id}/mute",
		Summary:     "Set the sticky per-tab mute preference",
	}, func(ctx context.Context, input *struct {
		TabID string `path:"tab_id"`
		Body  struct {
			Muted bool `json:"muted"`
		}
	}) (*statusOutput, error) {
		if err := svc.SetMuted(ctx, input.TabID, input.Body.Muted); err != nil {
			return nil, mapErr(err)
		}
		return statusResult(input.TabID, "muted_updated"), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "activate-tab",
		Method:      http.MethodPost,
		Path:        "/tabs/{tab_id}/activate",
		Summary:     "Mark the tab active in a window",
	}, func(ctx context.Context, input *struct {
		TabID string `path:"tab_id"`
		Body  struct {
			WindowID string `json:"window_id"`
		}
	}) (*statusOutput, error) {
		if err := svc.Activate(ctx, input.TabID, input.Body.WindowID); err != nil {
			return nil, mapErr(err)
		}
		return statusResult(input.TabID, "activated"), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "tab-media",
		Method:      http.MethodGet,
		Path:        "/tabs/{tab_id}/media",
		Summary:     "Aggregate media activity across all windows displaying the tab",
	}, func(ctx context.Context, input *tabIDInput) (*mediaOutput, error) {
		probe, err := svc.AggregateMedia(ctx, input.TabID)
		if err != nil {
			return nil, mapErr(err)
		}
		return &mediaOutput{Body: probe}, nil
	})
}
