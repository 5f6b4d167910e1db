package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/driftbrowser/tabcore/internal/engine"
)

// bindingName is the page-exposed function the observer script calls to
// push events back to the shell. Must match the injected script.
const bindingName = "__tabcoreEmit"

const defaultCallTimeout = 15 * time.Second

const themeColorScript = `(() => {
  const m = document.querySelector('meta[name="theme-color"]');
  if (m && m.content) { return m.content; }
  const el = document.body || document.documentElement;
  return el ? getComputedStyle(el).backgroundColor : '';
})()`

const mediaProbeScript = `(() => {
  const out = { has_audio_content: false, has_playing_audio: false, has_video_content: false, has_playing_video: false, has_picture_in_picture: !!document.pictureInPictureElement };
  for (const m of document.querySelectorAll('audio,video')) {
    const video = m.tagName === 'VIDEO';
    const playing = !m.paused && !m.ended && m.readyState > 2;
    if (video) {
      out.has_video_content = true;
      if (playing) { out.has_playing_video = true; }
    } else {
      out.has_audio_content = true;
      if (playing && !m.muted) { out.has_playing_audio = true; }
    }
  }
  return out;
})()`

const terminateMediaScript = `(() => {
  for (const m of document.querySelectorAll('audio,video')) {
    try { m.pause(); m.src = ''; m.load(); } catch (e) {}
  }
  if (window.__tabcoreAudioContexts) {
    for (const c of window.__tabcoreAudioContexts) {
      try { c.close(); } catch (e) {}
    }
  }
  return true;
})()`

type observer struct {
	kind engine.ObserverKind
	fn   func(engine.PropertyChange)
}

// surface is one CDP page target. The embedded chromedp context pins the
// target session; cancelling it destroys the target.
type surface struct {
	ctx    context.Context
	cancel context.CancelFunc

	msgs   chan engine.PageMessage
	closed atomic.Bool

	mu          sync.Mutex
	nav         engine.NavigationHandler
	observers   map[engine.ObserverToken]observer
	nextToken   int64
	pendingURL  string
	provisional bool
	mainFrame   string
	lastTitle   string
	lastColor   string
}

func newSurface(parent context.Context, opts ...chromedp.ContextOption) (*surface, error) {
	sctx, cancel := chromedp.NewContext(parent, opts...)

	s := &surface{
		ctx:       sctx,
		cancel:    cancel,
		msgs:      make(chan engine.PageMessage, 64),
		observers: make(map[engine.ObserverToken]observer),
	}

	// The first Run materializes the page target; enabling the domains up
	// front means no event is missed between create and attach.
	if err := chromedp.Run(sctx,
		network.Enable(),
		page.Enable(),
		runtime.Enable(),
		runtime.AddBinding(bindingName),
	); err != nil {
		cancel()
		return nil, fmt.Errorf("create page target: %w", err)
	}

	chromedp.ListenTarget(sctx, s.handleEvent)
	return s, nil
}

// run executes actions against this surface's target, bounded by the
// caller's deadline when one is set and a default timeout otherwise.
func (s *surface) run(ctx context.Context, actions ...chromedp.Action) error {
	if s.closed.Load() {
		return fmt.Errorf("surface is closed")
	}
	d, ok := ctx.Deadline()
	if !ok {
		d = time.Now().Add(defaultCallTimeout)
	}
	runCtx, cancel := context.WithDeadline(s.ctx, d)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

func (s *surface) Load(ctx context.Context, url string) error {
	s.mu.Lock()
	s.pendingURL = url
	s.mu.Unlock()
	return s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, errText, _, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		if errText != "" {
			return fmt.Errorf("navigate: %s", errText)
		}
		return nil
	}))
}

func (s *surface) Stop(ctx context.Context) error {
	return s.run(ctx, page.StopLoading())
}

func (s *surface) GoBack(ctx context.Context) error {
	return s.historyStep(ctx, -1)
}

func (s *surface) GoForward(ctx context.Context) error {
	return s.historyStep(ctx, 1)
}

func (s *surface) historyStep(ctx context.Context, delta int) error {
	return s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		cur, entries, err := page.GetNavigationHistory().Do(ctx)
		if err != nil {
			return err
		}
		next := int(cur) + delta
		if next < 0 || next >= len(entries) {
			return fmt.Errorf("no history entry at offset %d", delta)
		}
		return page.NavigateToHistoryEntry(entries[next].ID).Do(ctx)
	}))
}

func (s *surface) Evaluate(ctx context.Context, script string, out any) error {
	return s.run(ctx, chromedp.Evaluate(script, out))
}

func (s *surface) Affordance(ctx context.Context) (bool, bool, error) {
	var back, forward bool
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		cur, entries, err := page.GetNavigationHistory().Do(ctx)
		if err != nil {
			return err
		}
		back = cur > 0
		forward = int(cur) < len(entries)-1
		return nil
	}))
	return back, forward, err
}

func (s *surface) Title(ctx context.Context) (string, error) {
	var title string
	if err := s.run(ctx, chromedp.Title(&title)); err != nil {
		return "", err
	}
	return title, nil
}

func (s *surface) ThemeColor(ctx context.Context) (string, error) {
	var color string
	if err := s.run(ctx, chromedp.Evaluate(themeColorScript, &color)); err != nil {
		return "", err
	}
	return color, nil
}

func (s *surface) ProbeMedia(ctx context.Context) (engine.MediaProbe, error) {
	var probe engine.MediaProbe
	if err := s.run(ctx, chromedp.Evaluate(mediaProbeScript, &probe)); err != nil {
		return engine.MediaProbe{}, err
	}
	return probe, nil
}

func (s *surface) TerminateMedia(ctx context.Context) error {
	return s.run(ctx, chromedp.Evaluate(terminateMediaScript, nil))
}

func (s *surface) SetNavigationHandler(h engine.NavigationHandler) {
	s.mu.Lock()
	s.nav = h
	s.mu.Unlock()
}

func (s *surface) Observe(kind engine.ObserverKind, fn func(engine.PropertyChange)) engine.ObserverToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextToken++
	tok := engine.ObserverToken(s.nextToken)
	s.observers[tok] = observer{kind: kind, fn: fn}
	return tok
}

func (s *surface) Unobserve(token engine.ObserverToken) {
	s.mu.Lock()
	delete(s.observers, token)
	s.mu.Unlock()
}

func (s *surface) Messages() <-chan engine.PageMessage {
	return s.msgs
}

func (s *surface) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	// Best effort: the target may already be gone with the browser.
	closeCtx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	if err := chromedp.Run(closeCtx, page.Close()); err != nil {
		slog.Debug("page close failed", "error", err)
	}
	cancel()
	s.cancel()
	// Closing under the mutex lets deliver send-or-bail atomically; a
	// straggling target event can never hit a closed channel.
	s.mu.Lock()
	close(s.msgs)
	s.mu.Unlock()
	return nil
}

func (s *surface) navHandler() engine.NavigationHandler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nav
}

// handleEvent maps raw CDP target events onto the engine boundary:
// navigation callbacks, page messages, and property observer fires.
func (s *surface) handleEvent(ev interface{}) {
	if s.closed.Load() {
		return
	}
	switch e := ev.(type) {
	case *page.EventFrameStartedLoading:
		s.mu.Lock()
		main := s.mainFrame == "" || string(e.FrameID) == s.mainFrame
		already := s.provisional
		url := s.pendingURL
		if main && !already {
			s.provisional = true
		}
		s.mu.Unlock()
		if main && !already {
			if h := s.navHandler(); h != nil {
				h.ProvisionalStart(url)
			}
		}

	case *page.EventFrameNavigated:
		if e.Frame.ParentID != "" {
			return
		}
		s.mu.Lock()
		s.mainFrame = string(e.Frame.ID)
		s.provisional = false
		s.mu.Unlock()
		if h := s.navHandler(); h != nil {
			h.Committed(e.Frame.URL)
		}

	case *page.EventLoadEventFired:
		var url string
		s.mu.Lock()
		url = s.pendingURL
		s.mu.Unlock()
		if h := s.navHandler(); h != nil {
			h.Finished(url)
		}
		go s.refreshObserved()

	case *page.EventNavigatedWithinDocument:
		// Same-document navigation never re-enters the load pipeline; only
		// the history affordance can have changed.
		s.deliver(engine.PageMessage{Kind: "history_state"})
		go s.refreshObserved()

	case *network.EventLoadingFailed:
		if e.Type != network.ResourceTypeDocument || e.Canceled {
			return
		}
		s.mu.Lock()
		provisional := s.provisional
		s.provisional = false
		s.mu.Unlock()
		h := s.navHandler()
		if h == nil {
			return
		}
		err := fmt.Errorf("document load failed: %s", e.ErrorText)
		if provisional {
			h.FailedProvisional(err)
		} else {
			h.Failed(err)
		}

	case *runtime.EventBindingCalled:
		if e.Name != bindingName {
			return
		}
		var msg struct {
			Kind    string          `json:"kind"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal([]byte(e.Payload), &msg); err != nil {
			slog.Debug("malformed page message", "error", err)
			return
		}
		s.deliver(engine.PageMessage{Kind: msg.Kind, Payload: msg.Payload})
	}
}

func (s *surface) deliver(msg engine.PageMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return
	}
	select {
	case s.msgs <- msg:
	default:
		slog.Debug("page message dropped, channel full", "kind", msg.Kind)
	}
}

// refreshObserved re-queries title, theme color, and history affordance and
// fires the matching observers for values that actually changed.
func (s *surface) refreshObserved() {
	if s.closed.Load() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultCallTimeout)
	defer cancel()

	if title, err := s.Title(ctx); err == nil {
		s.mu.Lock()
		changed := title != s.lastTitle
		s.lastTitle = title
		s.mu.Unlock()
		if changed {
			s.notify(engine.ObserveTitle, engine.PropertyChange{Kind: engine.ObserveTitle, Title: title})
		}
	}

	if color, err := s.ThemeColor(ctx); err == nil && color != "" {
		s.mu.Lock()
		changed := color != s.lastColor
		s.lastColor = color
		s.mu.Unlock()
		if changed {
			s.notify(engine.ObserveThemeColor, engine.PropertyChange{Kind: engine.ObserveThemeColor, ThemeColor: color})
		}
	}

	if back, forward, err := s.Affordance(ctx); err == nil {
		s.notify(engine.ObserveAffordance, engine.PropertyChange{
			Kind:         engine.ObserveAffordance,
			CanGoBack:    back,
			CanGoForward: forward,
		})
	}
}

func (s *surface) notify(kind engine.ObserverKind, change engine.PropertyChange) {
	s.mu.Lock()
	fns := make([]func(engine.PropertyChange), 0, len(s.observers))
	for _, ob := range s.observers {
		if ob.kind == kind {
			fns = append(fns, ob.fn)
		}
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(change)
	}
}
