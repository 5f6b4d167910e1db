// Package media computes per-tab aggregate audio/video activity by probing
// every surface currently displaying the tab and OR-folding the results.
package media

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/driftbrowser/tabcore/internal/engine"
	"github.com/driftbrowser/tabcore/internal/tab"
	"golang.org/x/sync/errgroup"
)

// SurfaceSource lists the surfaces displaying a tab across all windows.
type SurfaceSource interface {
	Surfaces(tabID string) []engine.Surface
}

// Notifier is told when a tab's aggregate media state actually changed.
type Notifier interface {
	MediaChanged(tabID string)
}

const (
	defaultProbeTimeout     = 5 * time.Second
	defaultHardwareInterval = 2 * time.Second
)

// Aggregator fans media probes out across a tab's surfaces and folds the
// answers into the tab record. Probe errors are logged and treated as "no
// signal this round"; when no surface answers, the last known aggregate is
// kept rather than zeroed.
type Aggregator struct {
	source   SurfaceSource
	tabs     *tab.Collection
	notifier Notifier

	probeTimeout     time.Duration
	hardwareInterval time.Duration

	mu           sync.Mutex
	last         map[string]engine.MediaProbe
	lastHardware map[string]time.Time
}

func NewAggregator(source SurfaceSource, tabs *tab.Collection, notifier Notifier) *Aggregator {
	return &Aggregator{
		source:           source,
		tabs:             tabs,
		notifier:         notifier,
		probeTimeout:     defaultProbeTimeout,
		hardwareInterval: defaultHardwareInterval,
		last:             make(map[string]engine.MediaProbe),
		lastHardware:     make(map[string]time.Time),
	}
}

// SetHardwareInterval overrides the minimum spacing between hardware-driven
// re-probes of the same tab.
func (a *Aggregator) SetHardwareInterval(d time.Duration) {
	if d > 0 {
		a.hardwareInterval = d
	}
}

// Probe computes the tab's aggregate media state. All surface probes run
// concurrently and the fold waits for every one to complete; partial
// results are never used for the fold.
func (a *Aggregator) Probe(ctx context.Context, tabID string) engine.MediaProbe {
	surfaces := a.source.Surfaces(tabID)
	if len(surfaces) == 0 {
		return a.lastKnown(tabID)
	}

	probeCtx, cancel := context.WithTimeout(ctx, a.probeTimeout)
	defer cancel()

	results := make([]engine.MediaProbe, len(surfaces))
	answered := make([]bool, len(surfaces))

	var g errgroup.Group
	for i, s := range surfaces {
		g.Go(func() error {
			p, err := s.ProbeMedia(probeCtx)
			if err != nil {
				slog.Debug("media probe failed", "tab_id", tabID, "error", err)
				return nil
			}
			results[i] = p
			answered[i] = true
			return nil
		})
	}
	_ = g.Wait()

	var folded engine.MediaProbe
	any := false
	for i := range results {
		if !answered[i] {
			continue
		}
		folded = folded.Or(results[i])
		any = true
	}
	if !any {
		// Every probe errored: keep the previous aggregate instead of
		// zeroing indicators the user may be relying on.
		return a.lastKnown(tabID)
	}

	a.mu.Lock()
	a.last[tabID] = folded
	a.mu.Unlock()

	if t, ok := a.tabs.Get(tabID); ok {
		if t.SetMedia(folded) && a.notifier != nil {
			a.notifier.MediaChanged(tabID)
		}
	}
	return folded
}

func (a *Aggregator) lastKnown(tabID string) engine.MediaProbe {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last[tabID]
}

// Forget drops cached state for a closed tab.
func (a *Aggregator) Forget(tabID string) {
	a.mu.Lock()
	delete(a.last, tabID)
	delete(a.lastHardware, tabID)
	a.mu.Unlock()
}

// HandleHardwareActivity is the event-driven supplement for audio the
// in-page probes cannot see (e.g. DRM playback). It rate-limits itself per
// tab so hardware-change notification storms do not hot-loop probes.
func (a *Aggregator) HandleHardwareActivity(ctx context.Context, tabID string) {
	a.mu.Lock()
	lastAt := a.lastHardware[tabID]
	if time.Since(lastAt) < a.hardwareInterval {
		a.mu.Unlock()
		return
	}
	a.lastHardware[tabID] = time.Now()
	a.mu.Unlock()

	a.Probe(ctx, tabID)
}

// RunHardwareEvents consumes the native hardware-output notification
// channel until the context ends or the channel closes.
func (a *Aggregator) RunHardwareEvents(ctx context.Context, events <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case tabID, ok := <-events:
			if !ok {
				return
			}
			a.HandleHardwareActivity(ctx, tabID)
		}
	}
}

// RunPeriodic re-probes every loaded tab at the given interval.
func (a *Aggregator) RunPeriodic(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, t := range a.tabs.List() {
				if t.Unloaded() {
					continue
				}
				a.Probe(ctx, t.ID())
			}
		}
	}
}
