package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/driftbrowser/tabcore/internal/engine"
	"github.com/driftbrowser/tabcore/internal/shell"
)

type mediaOutput struct {
	Body engine.MediaProbe
}

type healthOutput struct {
	Body shell.Health
}

func registerMiscHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Core health counters",
	}, func(ctx context.Context, _ *struct{}) (*healthOutput, error) {
		return &healthOutput{Body: svc.Health(ctx)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-profile",
		Method:      http.MethodPost,
		Path:        "/profiles",
		Summary:     "Mark a profile resolved, releasing deferred surface creations",
	}, func(ctx context.Context, input *struct {
		Body struct {
			ProfileID string `json:"profile_id"`
			DataDir   string `json:"data_dir,omitempty"`
			Ephemeral bool   `json:"ephemeral,omitempty"`
		}
	}) (*statusOutput, error) {
		if err := svc.ResolveProfile(ctx, input.Body.ProfileID, input.Body.DataDir, input.Body.Ephemeral); err != nil {
			return nil, mapErr(err)
		}
		out := &statusOutput{}
		out.Body.Status = "resolved"
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "clear-favicons",
		Method:      http.MethodDelete,
		Path:        "/favicons",
		Summary:     "Drop both favicon cache tiers",
	}, func(ctx context.Context, _ *struct{}) (*statusOutput, error) {
		if err := svc.ClearFavicons(ctx); err != nil {
			return nil, mapErr(err)
		}
		out := &statusOutput{}
		out.Body.Status = "cleared"
		return out, nil
	})
}

// faviconHandler serves raw icon bytes outside huma so the response is the
// image itself, not a JSON envelope.
func faviconHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pageURL := r.URL.Query().Get("url")
		if pageURL == "" {
			http.Error(w, "url query parameter is required", http.StatusBadRequest)
			return
		}
		data, err := svc.Favicon(r.Context(), pageURL)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		if _, err := w.Write(data); err != nil {
			slog.Debug("favicon response write failed", "error", err)
		}
	}
}
