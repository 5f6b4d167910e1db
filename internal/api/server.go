// Package api exposes the tab core boundary over HTTP: tab lifecycle
// operations, aggregate media state, favicons, and a websocket event
// stream for presentation-layer clients.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/driftbrowser/tabcore/internal/engine"
	"github.com/driftbrowser/tabcore/internal/events"
	"github.com/driftbrowser/tabcore/internal/lifecycle"
	"github.com/driftbrowser/tabcore/internal/shell"
	"github.com/driftbrowser/tabcore/internal/tab"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Service is the boundary the API layer consumes.
type Service interface {
	OpenTab(ctx context.Context, profileID, url string, popupHost bool) (tab.Info, error)
	ListTabs(ctx context.Context) []tab.Info
	GetTab(ctx context.Context, id string) (tab.Info, error)
	EnsureSurface(ctx context.Context, tabID, windowID string) (tab.Info, error)
	Unload(ctx context.Context, tabID string) error
	CloseTab(ctx context.Context, tabID string) error
	Navigate(ctx context.Context, tabID, url string) error
	Refresh(ctx context.Context, tabID string) error
	GoBack(ctx context.Context, tabID string) error
	GoForward(ctx context.Context, tabID string) error
	StopLoading(ctx context.Context, tabID string) error
	SetMuted(ctx context.Context, tabID string, muted bool) error
	Activate(ctx context.Context, tabID, windowID string) error
	AggregateMedia(ctx context.Context, tabID string) (engine.MediaProbe, error)
	Favicon(ctx context.Context, pageURL string) ([]byte, error)
	ClearFavicons(ctx context.Context) error
	ResolveProfile(ctx context.Context, id, dataDir string, ephemeral bool) error
	Health(ctx context.Context) shell.Health
}

// NewServer builds the HTTP handler for the control API.
func NewServer(svc Service, broker *events.Broker) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(logRequests)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Tabcore Shell API", "1.0.0")
	api := humachi.New(router, cfg)

	registerTabHandlers(api, svc)
	registerMiscHandlers(api, svc)

	router.Get("/events", eventsHandler(broker))
	router.Get("/favicon", faviconHandler(svc))

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *lifecycle.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case lifecycle.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case lifecycle.CodeTabNotFound:
			return huma.Error404NotFound(coded.Message)
		case lifecycle.CodeOwnedElsewhere:
			return huma.Error409Conflict(coded.Message)
		case lifecycle.CodeProfilePending:
			// Deferred precondition, not a failure: the ensure re-runs
			// when the profile resolves.
			return huma.NewError(http.StatusAccepted, coded.Message)
		case lifecycle.CodeSurfaceUnloaded:
			return huma.Error409Conflict(coded.Message)
		case lifecycle.CodeEngineFailure:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
