// Package shell is the service facade the API layer consumes: validation
// plus delegation to the coordinator, aggregator, and favicon cache.
package shell

import (
	"context"
	"fmt"
	"strings"

	"github.com/driftbrowser/tabcore/internal/engine"
	"github.com/driftbrowser/tabcore/internal/favicon"
	"github.com/driftbrowser/tabcore/internal/lifecycle"
	"github.com/driftbrowser/tabcore/internal/media"
	"github.com/driftbrowser/tabcore/internal/ownership"
	"github.com/driftbrowser/tabcore/internal/profile"
	"github.com/driftbrowser/tabcore/internal/tab"
)

// Health summarizes the core's live state.
type Health struct {
	Tabs          int `json:"tabs"`
	OwnedSurfaces int `json:"owned_surfaces"`
	Profiles      int `json:"profiles"`
	CachedIcons   int `json:"cached_icons"`
}

// Service wraps the tab core boundary for the control API.
type Service struct {
	coord    *lifecycle.Coordinator
	agg      *media.Aggregator
	icons    *favicon.Resolver
	cache    *favicon.Cache
	tabs     *tab.Collection
	registry *ownership.Registry
	profiles *profile.Store
}

func NewService(coord *lifecycle.Coordinator, agg *media.Aggregator, icons *favicon.Resolver,
	cache *favicon.Cache, tabs *tab.Collection, registry *ownership.Registry, profiles *profile.Store) *Service {
	return &Service{
		coord:    coord,
		agg:      agg,
		icons:    icons,
		cache:    cache,
		tabs:     tabs,
		registry: registry,
		profiles: profiles,
	}
}

func requireNonEmpty(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return &lifecycle.CodedError{Code: lifecycle.CodeValidation, Message: fieldName + " is required"}
	}
	return nil
}

func (s *Service) OpenTab(ctx context.Context, profileID, url string, popupHost bool) (tab.Info, error) {
	if err := requireNonEmpty(profileID, "profile_id"); err != nil {
		return tab.Info{}, err
	}
	t := s.coord.OpenTab(strings.TrimSpace(profileID), strings.TrimSpace(url), popupHost)
	return t.Snapshot(), nil
}

func (s *Service) ListTabs(ctx context.Context) []tab.Info {
	tabs := s.tabs.List()
	out := make([]tab.Info, 0, len(tabs))
	for _, t := range tabs {
		out = append(out, t.Snapshot())
	}
	return out
}

func (s *Service) GetTab(ctx context.Context, id string) (tab.Info, error) {
	t, ok := s.tabs.Get(strings.TrimSpace(id))
	if !ok {
		return tab.Info{}, &lifecycle.CodedError{Code: lifecycle.CodeTabNotFound, Message: fmt.Sprintf("unknown tab %q", id)}
	}
	return t.Snapshot(), nil
}

// EnsureSurface runs the creation path and returns the updated snapshot.
// A pending profile is reported via CodeProfilePending, not a crash.
func (s *Service) EnsureSurface(ctx context.Context, tabID, windowID string) (tab.Info, error) {
	if err := requireNonEmpty(windowID, "window_id"); err != nil {
		return tab.Info{}, err
	}
	if _, err := s.coord.EnsureSurface(ctx, strings.TrimSpace(tabID), strings.TrimSpace(windowID)); err != nil {
		return tab.Info{}, err
	}
	return s.GetTab(ctx, tabID)
}

func (s *Service) Unload(ctx context.Context, tabID string) error {
	return s.coord.Unload(ctx, strings.TrimSpace(tabID))
}

func (s *Service) CloseTab(ctx context.Context, tabID string) error {
	return s.coord.CloseTab(ctx, strings.TrimSpace(tabID))
}

func (s *Service) Navigate(ctx context.Context, tabID, url string) error {
	if err := requireNonEmpty(url, "url"); err != nil {
		return err
	}
	return s.coord.Navigate(ctx, strings.TrimSpace(tabID), strings.TrimSpace(url))
}

func (s *Service) Refresh(ctx context.Context, tabID string) error {
	return s.coord.Refresh(ctx, strings.TrimSpace(tabID))
}

func (s *Service) GoBack(ctx context.Context, tabID string) error {
	return s.coord.GoBack(ctx, strings.TrimSpace(tabID))
}

func (s *Service) GoForward(ctx context.Context, tabID string) error {
	return s.coord.GoForward(ctx, strings.TrimSpace(tabID))
}

func (s *Service) StopLoading(ctx context.Context, tabID string) error {
	return s.coord.StopLoading(ctx, strings.TrimSpace(tabID))
}

func (s *Service) SetMuted(ctx context.Context, tabID string, muted bool) error {
	return s.coord.SetMuted(ctx, strings.TrimSpace(tabID), muted)
}

func (s *Service) Activate(ctx context.Context, tabID, windowID string) error {
	if err := requireNonEmpty(windowID, "window_id"); err != nil {
		return err
	}
	return s.coord.Activate(strings.TrimSpace(tabID), strings.TrimSpace(windowID))
}

// AggregateMedia returns the OR-fold of media activity across every surface
// displaying the tab.
func (s *Service) AggregateMedia(ctx context.Context, tabID string) (engine.MediaProbe, error) {
	if _, ok := s.tabs.Get(strings.TrimSpace(tabID)); !ok {
		return engine.MediaProbe{}, &lifecycle.CodedError{Code: lifecycle.CodeTabNotFound, Message: fmt.Sprintf("unknown tab %q", tabID)}
	}
	return s.agg.Probe(ctx, strings.TrimSpace(tabID)), nil
}

// Favicon returns a synchronously-available best-effort icon for the URL.
func (s *Service) Favicon(ctx context.Context, pageURL string) ([]byte, error) {
	if err := requireNonEmpty(pageURL, "url"); err != nil {
		return nil, err
	}
	return s.icons.Icon(strings.TrimSpace(pageURL)), nil
}

// ClearFavicons drops both cache tiers.
func (s *Service) ClearFavicons(ctx context.Context) error {
	return s.cache.Clear()
}

// ResolveProfile marks a profile as resolved, releasing any tabs whose
// surface creation was deferred on it.
func (s *Service) ResolveProfile(ctx context.Context, id, dataDir string, ephemeral bool) error {
	if err := requireNonEmpty(id, "profile_id"); err != nil {
		return err
	}
	s.profiles.Resolve(engine.Profile{ID: strings.TrimSpace(id), DataDir: strings.TrimSpace(dataDir), Ephemeral: ephemeral})
	return nil
}

func (s *Service) Health(ctx context.Context) Health {
	return Health{
		Tabs:          s.tabs.Count(),
		OwnedSurfaces: s.registry.PrimaryCount(),
		Profiles:      s.profiles.Count(),
		CachedIcons:   s.cache.Len(),
	}
}
