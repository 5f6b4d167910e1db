// Package cdp implements the engine boundary over the Chrome DevTools
// Protocol. Each surface is one page target attached through chromedp; per
// profile isolation rides CDP browser contexts.
package cdp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	cdpproto "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/driftbrowser/tabcore/internal/engine"
)

// Factory creates page targets against one remote browser. The browser
// session context stays open for the factory's lifetime; it carries the
// browser-level commands that create targets and browser contexts.
type Factory struct {
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu       sync.Mutex
	contexts map[string]cdpproto.BrowserContextID
}

// NewFactory connects to the browser's devtools endpoint and verifies the
// session before returning.
func NewFactory(cdpURL string) (*Factory, error) {
	slog.Info("connecting to browser", "url", cdpURL)

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), cdpURL)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	return &Factory{
		allocCtx:      allocCtx,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		contexts:      make(map[string]cdpproto.BrowserContextID),
	}, nil
}

// Create opens a new page target inside the profile's browser context and
// wraps it as a surface. The browser context for a profile is created on
// first use and reused afterwards, so same-profile surfaces share cookies
// and storage while cross-profile surfaces stay isolated.
func (f *Factory) Create(ctx context.Context, profile engine.Profile) (engine.Surface, error) {
	bctx, err := f.browserContextFor(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("browser context for profile %q: %w", profile.ID, err)
	}

	var targetID target.ID
	err = chromedp.Run(f.browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		params := target.CreateTarget("about:blank")
		if bctx != "" {
			params = params.WithBrowserContextID(bctx)
		}
		var err error
		targetID, err = params.Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("create target: %w", err)
	}

	s, err := newSurface(f.allocCtx, chromedp.WithTargetID(targetID))
	if err != nil {
		return nil, err
	}
	slog.Debug("surface created", "target_id", targetID, "profile_id", profile.ID)
	return s, nil
}

func (f *Factory) browserContextFor(ctx context.Context, profile engine.Profile) (cdpproto.BrowserContextID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if id, ok := f.contexts[profile.ID]; ok {
		return id, nil
	}

	var id cdpproto.BrowserContextID
	err := chromedp.Run(f.browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		params := target.CreateBrowserContext()
		if profile.Ephemeral {
			params = params.WithDisposeOnDetach(true)
		}
		var err error
		id, err = params.Do(ctx)
		return err
	}))
	if err != nil {
		return "", err
	}
	f.contexts[profile.ID] = id
	return id, nil
}

// Close tears down the browser session. Open surfaces become unusable; the
// coordinator closes them first during shutdown.
func (f *Factory) Close() error {
	f.browserCancel()
	f.allocCancel()
	slog.Info("engine factory closed")
	return nil
}
