package lifecycle

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/driftbrowser/tabcore/internal/engine"
	"github.com/driftbrowser/tabcore/internal/tab"
)

const engineCallTimeout = 10 * time.Second

// binding tracks everything attached to one primary surface: observer
// tokens, the navigation handler, and the message pump. Detach flips the
// guard first so a straggling engine callback can never mutate a tab the
// surface no longer owns.
type binding struct {
	tabID    string
	surface  engine.Surface
	tokens   []engine.ObserverToken
	stopMsgs chan struct{}
	detached atomic.Bool
}

// attach wires the full observer set onto a surface. Attaching twice for
// the same tab is a no-op; the coordinator's observed set already holds a
// binding then.
func (c *Coordinator) attach(t *tab.Tab, s engine.Surface) *binding {
	b := &binding{
		tabID:    t.ID(),
		surface:  s,
		stopMsgs: make(chan struct{}),
	}

	s.SetNavigationHandler(&navHandler{c: c, t: t, b: b})

	b.tokens = append(b.tokens,
		s.Observe(engine.ObserveAffordance, func(ch engine.PropertyChange) {
			if b.detached.Load() {
				return
			}
			if t.SetAffordance(ch.CanGoBack, ch.CanGoForward) {
				c.publishProperties(t)
			}
		}),
		s.Observe(engine.ObserveTitle, func(ch engine.PropertyChange) {
			if b.detached.Load() {
				return
			}
			if t.SetTitle(ch.Title) {
				c.publishProperties(t)
			}
		}),
		s.Observe(engine.ObserveThemeColor, func(ch engine.PropertyChange) {
			if b.detached.Load() {
				return
			}
			if t.SetThemeColor(ch.ThemeColor) {
				c.publishProperties(t)
			}
		}),
	)

	go c.pumpMessages(t, b)
	return b
}

// detach removes every observer and the navigation handler, then stops the
// message pump. Deterministic: nothing is left to destructor ordering.
func (b *binding) detach() {
	if !b.detached.CompareAndSwap(false, true) {
		return
	}
	for _, tok := range b.tokens {
		b.surface.Unobserve(tok)
	}
	b.tokens = nil
	b.surface.SetNavigationHandler(nil)
	close(b.stopMsgs)
}

// pumpMessages routes page-originated events for one surface until detach.
func (c *Coordinator) pumpMessages(t *tab.Tab, b *binding) {
	for {
		select {
		case <-b.stopMsgs:
			return
		case msg, ok := <-b.surface.Messages():
			if !ok {
				return
			}
			if b.detached.Load() {
				return
			}
			c.routeMessage(t, b, msg)
		}
	}
}

func (c *Coordinator) routeMessage(t *tab.Tab, b *binding, msg engine.PageMessage) {
	switch msg.Kind {
	case "media_state":
		if c.media != nil {
			ctx, cancel := context.WithTimeout(context.Background(), engineCallTimeout)
			c.media.Probe(ctx, t.ID())
			cancel()
		}
	case "background_color":
		var payload struct {
			Color string `json:"color"`
		}
		if err := unmarshalPayload(msg.Payload, &payload); err == nil && payload.Color != "" {
			if t.SetThemeColor(payload.Color) {
				c.publishProperties(t)
			}
		}
	case "history_state":
		c.refreshAffordance(t, b.surface)
	case "link_hover":
		// Presentation-layer concern; surfaced as-is on the event stream.
		c.broker.Publish(eventFor(t, msg))
	default:
		slog.Debug("unhandled page message", "tab_id", t.ID(), "kind", msg.Kind)
	}
}

// refreshAffordance re-derives back/forward availability from the surface
// and propagates only an actual change.
func (c *Coordinator) refreshAffordance(t *tab.Tab, s engine.Surface) {
	ctx, cancel := context.WithTimeout(context.Background(), engineCallTimeout)
	defer cancel()
	back, forward, err := s.Affordance(ctx)
	if err != nil {
		slog.Debug("affordance query failed", "tab_id", t.ID(), "error", err)
		return
	}
	if t.SetAffordance(back, forward) {
		c.publishProperties(t)
	}
}

// navHandler folds the engine's navigation callback sequence into the tab
// record. Every callback is guarded against a detached binding.
type navHandler struct {
	c *Coordinator
	t *tab.Tab
	b *binding
}

func (h *navHandler) ProvisionalStart(url string) {
	if h.b.detached.Load() {
		return
	}
	h.t.BeginNavigation(url)
	h.c.publishProperties(h.t)
}

func (h *navHandler) Committed(url string) {
	if h.b.detached.Load() {
		return
	}
	if !h.t.Commit(url) {
		slog.Debug("commit callback out of order", "tab_id", h.t.ID(), "state", h.t.State().String())
		return
	}
	// Fire-and-forget cross-window sync: later events supersede earlier
	// ones, so no queueing is needed.
	h.c.publishProperties(h.t)
	h.c.refreshAffordance(h.t, h.b.surface)
}

func (h *navHandler) Finished(url string) {
	if h.b.detached.Load() {
		return
	}
	if !h.t.Finish() {
		slog.Debug("finish callback out of order", "tab_id", h.t.ID(), "state", h.t.State().String())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), engineCallTimeout)
	defer cancel()
	s := h.b.surface

	if title, err := s.Title(ctx); err == nil {
		h.t.SetTitle(title)
	} else {
		slog.Debug("title refresh failed", "tab_id", h.t.ID(), "error", err)
	}
	if color, err := s.ThemeColor(ctx); err == nil && color != "" {
		h.t.SetThemeColor(color)
	}
	if h.c.icons != nil && url != "" {
		h.c.icons.Icon(url)
	}
	if err := s.Evaluate(ctx, pageObserverScript, nil); err != nil {
		// Script failures are logged, never coordinator failures.
		slog.Debug("page observer injection failed", "tab_id", h.t.ID(), "error", err)
	}
	if h.t.Muted() {
		if err := s.Evaluate(ctx, muteScript(true), nil); err != nil {
			slog.Debug("mute re-apply failed", "tab_id", h.t.ID(), "error", err)
		}
	}

	h.c.refreshAffordance(h.t, s)
	// History recording and title/url propagation ride the same
	// deduplicated properties event.
	h.c.publishProperties(h.t)
}

func (h *navHandler) Failed(err error) {
	if h.b.detached.Load() {
		return
	}
	if !h.t.Fail(err) {
		return
	}
	slog.Debug("navigation failed", "tab_id", h.t.ID(), "error", err)
	h.c.publishProperties(h.t)
}

func (h *navHandler) FailedProvisional(err error) {
	if h.b.detached.Load() {
		return
	}
	if !h.t.FailProvisional(err) {
		return
	}
	slog.Debug("provisional navigation failed", "tab_id", h.t.ID(), "error", err)
	h.c.publishProperties(h.t)
}
