// Package lifecycle orchestrates render-surface creation, ownership,
// unloading, and teardown for the tab core. The ordering contract for both
// unload and close is: stop activity, detach observers, release ownership,
// clear the tab's surface reference.
package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/driftbrowser/tabcore/internal/engine"
	"github.com/driftbrowser/tabcore/internal/events"
	"github.com/driftbrowser/tabcore/internal/favicon"
	"github.com/driftbrowser/tabcore/internal/ownership"
	"github.com/driftbrowser/tabcore/internal/tab"
)

// MediaRefresher is the slice of the media aggregator the coordinator
// drives: on-demand probes and per-tab state disposal.
type MediaRefresher interface {
	Probe(ctx context.Context, tabID string) engine.MediaProbe
	Forget(tabID string)
}

// depWaiter is the one-shot, cancellable continuation deferring surface
// construction until the tab's profile resolves.
type depWaiter struct {
	windowID string
	cancel   func()
	fired    bool
}

// Coordinator owns the creation and teardown paths for tab surfaces. All
// collaborators are narrow injected capabilities; the coordinator holds no
// back-reference to a wider manager.
type Coordinator struct {
	tabs     *tab.Collection
	registry *ownership.Registry
	factory  engine.Factory
	profiles engine.ProfileSource
	icons    *favicon.Resolver
	broker   *events.Broker
	media    MediaRefresher

	mu       sync.Mutex
	waiters  map[string]*depWaiter
	observed map[string]*binding // tab id -> attached primary surface
}

func NewCoordinator(tabs *tab.Collection, registry *ownership.Registry, factory engine.Factory,
	profiles engine.ProfileSource, icons *favicon.Resolver, broker *events.Broker) *Coordinator {
	return &Coordinator{
		tabs:     tabs,
		registry: registry,
		factory:  factory,
		profiles: profiles,
		icons:    icons,
		broker:   broker,
		waiters:  make(map[string]*depWaiter),
		observed: make(map[string]*binding),
	}
}

// SetMediaRefresher wires the aggregator in after construction (the
// aggregator itself needs the coordinator as its change notifier).
func (c *Coordinator) SetMediaRefresher(m MediaRefresher) { c.media = m }

// OpenTab creates an unloaded tab record. The surface is constructed
// lazily on first EnsureSurface, never here.
func (c *Coordinator) OpenTab(profileID, url string, popupHost bool) *tab.Tab {
	t := tab.New(profileID, popupHost)
	if url != "" {
		t.SetURL(url)
	}
	c.tabs.Add(t)
	slog.Info("tab opened", "tab_id", t.ID(), "profile_id", profileID, "popup_host", popupHost)
	c.broker.Publish(events.Event{Kind: events.TabOpened, TabID: t.ID(), Payload: t.Snapshot()})
	return t
}

// EnsureSurface returns the tab's primary surface for the requesting
// window, constructing one if the tab is unloaded. A request from a window
// that does not own the existing primary gets CodeOwnedElsewhere; it must
// observe aggregate state instead of driving the surface. When the tab's
// profile has not resolved yet, a one-shot waiter is registered and
// CodeProfilePending is returned; the ensure re-runs exactly once on
// resolution.
func (c *Coordinator) EnsureSurface(ctx context.Context, tabID, windowID string) (engine.Surface, error) {
	t, ok := c.tabs.Get(tabID)
	if !ok {
		return nil, newError(CodeTabNotFound, fmt.Sprintf("unknown tab %q", tabID), nil)
	}
	if windowID == "" {
		return nil, newError(CodeValidation, "window id is required", nil)
	}

	if s, owner, ok := c.registry.PrimarySurface(tabID); ok {
		if owner == windowID {
			return s, nil
		}
		return nil, newError(CodeOwnedElsewhere,
			fmt.Sprintf("tab %s primary surface is owned by window %s", tabID, owner), nil)
	}

	prof, resolved := c.profiles.Profile(t.ProfileID())
	if !resolved {
		c.registerWaiter(tabID, windowID, t.ProfileID())
		return nil, newError(CodeProfilePending,
			fmt.Sprintf("profile %q not resolved; surface creation deferred", t.ProfileID()), nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// A concurrent ensure may have won the race before we took the lock.
	if s, owner, ok := c.registry.PrimarySurface(tabID); ok {
		if owner == windowID {
			return s, nil
		}
		return nil, newError(CodeOwnedElsewhere,
			fmt.Sprintf("tab %s primary surface is owned by window %s", tabID, owner), nil)
	}

	s, err := c.factory.Create(ctx, prof)
	if err != nil {
		return nil, newError(CodeEngineFailure, "surface construction failed", err)
	}

	c.observed[tabID] = c.attach(t, s)
	c.registry.AssignPrimary(tabID, windowID, s)
	t.MarkLoaded()
	slog.Info("surface created", "tab_id", tabID, "window_id", windowID, "profile_id", prof.ID)

	// Popup hosts await an externally-driven first load.
	if !t.PopupHost() {
		if url := t.URL(); url != "" {
			if err := s.Load(ctx, url); err != nil {
				slog.Warn("initial navigation failed", "tab_id", tabID, "url", url, "error", err)
			}
		}
	}
	if t.Muted() {
		if err := s.Evaluate(ctx, muteScript(true), nil); err != nil {
			slog.Debug("mute apply failed", "tab_id", tabID, "error", err)
		}
	}

	c.publishProperties(t)
	return s, nil
}

// AdoptSurface registers a surface created by the engine itself (popup
// windows), skipping construction but still attaching the observer set and
// recording ownership.
func (c *Coordinator) AdoptSurface(ctx context.Context, tabID, windowID string, s engine.Surface) error {
	t, ok := c.tabs.Get(tabID)
	if !ok {
		return newError(CodeTabNotFound, fmt.Sprintf("unknown tab %q", tabID), nil)
	}
	if s == nil {
		return newError(CodeValidation, "surface is required", nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.observed[tabID]; exists {
		return nil
	}
	c.observed[tabID] = c.attach(t, s)
	c.registry.AssignPrimary(tabID, windowID, s)
	t.MarkLoaded()
	slog.Info("surface adopted", "tab_id", tabID, "window_id", windowID)
	c.publishProperties(t)
	return nil
}

// registerWaiter installs at most one pending-profile continuation per tab.
func (c *Coordinator) registerWaiter(tabID, windowID, profileID string) {
	c.mu.Lock()
	if _, exists := c.waiters[tabID]; exists {
		c.mu.Unlock()
		return
	}
	w := &depWaiter{windowID: windowID}
	c.waiters[tabID] = w
	c.mu.Unlock()

	// Subscribe outside the lock: an already-resolved profile fires the
	// callback synchronously.
	cancel := c.profiles.Subscribe(profileID, func(engine.Profile) {
		c.fireWaiter(tabID)
	})

	c.mu.Lock()
	if cur, ok := c.waiters[tabID]; ok && cur == w && !cur.fired {
		cur.cancel = cancel
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	cancel()
}

// fireWaiter re-invokes the creation path exactly once after the profile
// resolves. Firing for a tab that was closed in the meantime is a guarded
// no-op.
func (c *Coordinator) fireWaiter(tabID string) {
	c.mu.Lock()
	w, ok := c.waiters[tabID]
	if !ok || w.fired {
		c.mu.Unlock()
		return
	}
	w.fired = true
	delete(c.waiters, tabID)
	cancel := w.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if _, ok := c.tabs.Get(tabID); !ok {
		slog.Debug("profile waiter fired for closed tab", "tab_id", tabID)
		return
	}
	if _, err := c.EnsureSurface(context.Background(), tabID, w.windowID); err != nil {
		slog.Warn("deferred surface creation failed", "tab_id", tabID, "error", err)
	}
}

// WaiterPending reports whether a profile waiter is registered for the tab.
func (c *Coordinator) WaiterPending(tabID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.waiters[tabID]
	return ok
}

// Unload reclaims the tab's surface while preserving its metadata. Order:
// stop activity, detach observers, release ownership, clear the reference.
// A later EnsureSurface recreates the surface transparently. Unloading an
// already-unloaded tab is a no-op.
func (c *Coordinator) Unload(ctx context.Context, tabID string) error {
	t, ok := c.tabs.Get(tabID)
	if !ok {
		return newError(CodeTabNotFound, fmt.Sprintf("unknown tab %q", tabID), nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.unloadLocked(ctx, t)
	return nil
}

func (c *Coordinator) unloadLocked(ctx context.Context, t *tab.Tab) {
	b, attached := c.observed[t.ID()]
	if !attached {
		return
	}
	s := b.surface

	// 1. Stop activity: in-flight loads, then in-page media and timers.
	if err := s.Stop(ctx); err != nil {
		slog.Debug("stop before unload failed", "tab_id", t.ID(), "error", err)
	}
	if err := s.TerminateMedia(ctx); err != nil {
		slog.Debug("media termination failed", "tab_id", t.ID(), "error", err)
	}
	t.StopNavigation()

	// 2. Detach observers and the message channel before ownership moves,
	// so a dangling callback cannot mutate a record it no longer owns.
	b.detach()
	delete(c.observed, t.ID())

	// 3. Release ownership.
	c.registry.Release(t.ID())

	// 4. Clear the reference and stop hardware-activity monitoring.
	t.MarkUnloaded()
	if c.media != nil {
		c.media.Forget(t.ID())
	}

	if err := s.Close(); err != nil {
		slog.Debug("surface close failed", "tab_id", t.ID(), "error", err)
	}

	slog.Info("tab unloaded", "tab_id", t.ID())
	c.publishProperties(t)
}

// CloseTab fully destroys a tab: the unload sequence plus media flag reset,
// waiter cancellation, close notification, and record removal. Closing an
// already-closed tab is a no-op.
func (c *Coordinator) CloseTab(ctx context.Context, tabID string) error {
	t, ok := c.tabs.Get(tabID)
	if !ok {
		return nil
	}

	c.mu.Lock()
	c.unloadLocked(ctx, t)
	t.ResetMedia()
	if w, ok := c.waiters[tabID]; ok {
		delete(c.waiters, tabID)
		if w.cancel != nil {
			w.cancel()
		}
	}
	c.mu.Unlock()

	c.tabs.Remove(tabID)
	slog.Info("tab closed", "tab_id", tabID)
	c.broker.Publish(events.Event{Kind: events.TabClosed, TabID: tabID})
	return nil
}

// Shutdown unloads every tab so surfaces close in order during process
// exit. Tab records are left in place; the process is going away anyway.
func (c *Coordinator) Shutdown(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.tabs.List() {
		c.unloadLocked(ctx, t)
	}
}

// Navigate loads url in the tab's surface when one exists; for unloaded
// tabs the target is recorded and issued on the next EnsureSurface.
func (c *Coordinator) Navigate(ctx context.Context, tabID, url string) error {
	t, ok := c.tabs.Get(tabID)
	if !ok {
		return newError(CodeTabNotFound, fmt.Sprintf("unknown tab %q", tabID), nil)
	}
	if url == "" {
		return newError(CodeValidation, "url is required", nil)
	}

	s, _, owned := c.registry.PrimarySurface(tabID)
	if !owned {
		t.SetURL(url)
		return nil
	}
	if err := s.Load(ctx, url); err != nil {
		return newError(CodeEngineFailure, "navigation failed", err)
	}
	return nil
}

// Refresh re-issues the current URL; retry after a failed navigation is
// always user-initiated, never automatic.
func (c *Coordinator) Refresh(ctx context.Context, tabID string) error {
	t, ok := c.tabs.Get(tabID)
	if !ok {
		return newError(CodeTabNotFound, fmt.Sprintf("unknown tab %q", tabID), nil)
	}
	return c.Navigate(ctx, tabID, t.URL())
}

// GoBack navigates history backward, gated by the affordance flag.
func (c *Coordinator) GoBack(ctx context.Context, tabID string) error {
	return c.historyMove(ctx, tabID, true)
}

// GoForward navigates history forward, gated by the affordance flag.
func (c *Coordinator) GoForward(ctx context.Context, tabID string) error {
	return c.historyMove(ctx, tabID, false)
}

func (c *Coordinator) historyMove(ctx context.Context, tabID string, back bool) error {
	t, ok := c.tabs.Get(tabID)
	if !ok {
		return newError(CodeTabNotFound, fmt.Sprintf("unknown tab %q", tabID), nil)
	}
	s, _, owned := c.registry.PrimarySurface(tabID)
	if !owned {
		return newError(CodeSurfaceUnloaded, "tab has no surface", nil)
	}
	canBack, canForward := t.Affordance()
	var err error
	switch {
	case back && !canBack:
		return newError(CodeValidation, "cannot go back", nil)
	case !back && !canForward:
		return newError(CodeValidation, "cannot go forward", nil)
	case back:
		err = s.GoBack(ctx)
	default:
		err = s.GoForward(ctx)
	}
	if err != nil {
		return newError(CodeEngineFailure, "history navigation failed", err)
	}
	return nil
}

// StopLoading halts the in-flight navigation, returning the tab to idle.
func (c *Coordinator) StopLoading(ctx context.Context, tabID string) error {
	t, ok := c.tabs.Get(tabID)
	if !ok {
		return newError(CodeTabNotFound, fmt.Sprintf("unknown tab %q", tabID), nil)
	}
	if s, _, owned := c.registry.PrimarySurface(tabID); owned {
		if err := s.Stop(ctx); err != nil {
			return newError(CodeEngineFailure, "stop failed", err)
		}
	}
	t.StopNavigation()
	c.publishProperties(t)
	return nil
}

// SetMuted applies the sticky per-tab mute preference to every surface
// currently displaying the tab.
func (c *Coordinator) SetMuted(ctx context.Context, tabID string, muted bool) error {
	t, ok := c.tabs.Get(tabID)
	if !ok {
		return newError(CodeTabNotFound, fmt.Sprintf("unknown tab %q", tabID), nil)
	}
	changed := t.SetMuted(muted)
	for _, s := range c.registry.Surfaces(tabID) {
		if err := s.Evaluate(ctx, muteScript(muted), nil); err != nil {
			slog.Debug("mute apply failed", "tab_id", tabID, "error", err)
		}
	}
	if changed {
		c.publishProperties(t)
	}
	return nil
}

// Activate records which window brought the tab to the foreground.
func (c *Coordinator) Activate(tabID, windowID string) error {
	t, ok := c.tabs.Get(tabID)
	if !ok {
		return newError(CodeTabNotFound, fmt.Sprintf("unknown tab %q", tabID), nil)
	}
	c.broker.Publish(events.Event{Kind: events.TabActivated, TabID: tabID, Payload: map[string]any{
		"window_id": windowID,
		"tab":       t.Snapshot(),
	}})
	return nil
}

// RegisterDisplay adds a secondary, observe-only surface for the tab in
// another window; it joins media probes but is never driven by the core.
func (c *Coordinator) RegisterDisplay(tabID, windowID string, s engine.Surface) error {
	if _, ok := c.tabs.Get(tabID); !ok {
		return newError(CodeTabNotFound, fmt.Sprintf("unknown tab %q", tabID), nil)
	}
	c.registry.RegisterDisplay(tabID, windowID, s)
	return nil
}

func (c *Coordinator) RemoveDisplay(tabID, windowID string) {
	c.registry.RemoveDisplay(tabID, windowID)
}

// MediaChanged implements the aggregator's change notifier.
func (c *Coordinator) MediaChanged(tabID string) {
	if t, ok := c.tabs.Get(tabID); ok {
		c.publishProperties(t)
	}
}

func (c *Coordinator) publishProperties(t *tab.Tab) {
	c.broker.Publish(events.Event{Kind: events.TabProperties, TabID: t.ID(), Payload: t.Snapshot()})
}

func eventFor(t *tab.Tab, msg engine.PageMessage) events.Event {
	return events.Event{Kind: events.TabProperties, TabID: t.ID(), Payload: msg}
}

func unmarshalPayload(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return fmt.Errorf("empty payload")
	}
	return json.Unmarshal(raw, out)
}
