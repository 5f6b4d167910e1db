// Package ownership arbitrates which window holds a tab's primary render
// surface, and tracks every surface currently displaying a tab across
// windows.
package ownership

import (
	"log/slog"
	"sync"

	"github.com/driftbrowser/tabcore/internal/engine"
)

// Entry records the single primary owner of a tab's surface.
type Entry struct {
	WindowID string
	Surface  engine.Surface
}

// Registry maps tab id -> primary owner, plus the per-tab display set the
// media aggregator fans out over. A tab has at most one primary at any
// instant; a window may own primaries for many tabs.
type Registry struct {
	mu        sync.RWMutex
	primaries map[string]Entry
	displays  map[string]map[string]engine.Surface // tab id -> window id -> surface
}

func NewRegistry() *Registry {
	return &Registry{
		primaries: make(map[string]Entry),
		displays:  make(map[string]map[string]engine.Surface),
	}
}

// AssignPrimary registers surface as the tab's primary resource owned by
// window. Reassignment while a different window still owns the tab is a
// coordination bug upstream; it is logged but honored, since rejecting it
// would strand the requesting window without a surface.
func (r *Registry) AssignPrimary(tabID, windowID string, s engine.Surface) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.primaries[tabID]; ok && prev.WindowID != windowID {
		slog.Warn("primary surface reassigned without release",
			"tab_id", tabID, "previous_window", prev.WindowID, "new_window", windowID)
		if wins, ok := r.displays[tabID]; ok {
			delete(wins, prev.WindowID)
		}
	}

	r.primaries[tabID] = Entry{WindowID: windowID, Surface: s}
	r.registerDisplayLocked(tabID, windowID, s)
}

// PrimarySurface returns the tab's primary surface only when an owning
// window has been recorded; it never creates one. The ok=false result
// covers both never-displayed and currently-unloaded tabs.
func (r *Registry) PrimarySurface(tabID string) (engine.Surface, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.primaries[tabID]
	if !ok {
		return nil, "", false
	}
	return e.Surface, e.WindowID, true
}

// Release clears the ownership mapping and the owner's display entry. It
// does not destroy the surface; teardown ordering stays with the
// coordinator.
func (r *Registry) Release(tabID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.primaries[tabID]
	if !ok {
		return
	}
	delete(r.primaries, tabID)
	if wins, ok := r.displays[tabID]; ok {
		delete(wins, e.WindowID)
		if len(wins) == 0 {
			delete(r.displays, tabID)
		}
	}
}

// RegisterDisplay records a non-primary surface rendering the tab in
// another window. Display surfaces participate in media probes only.
func (r *Registry) RegisterDisplay(tabID, windowID string, s engine.Surface) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registerDisplayLocked(tabID, windowID, s)
}

func (r *Registry) registerDisplayLocked(tabID, windowID string, s engine.Surface) {
	wins, ok := r.displays[tabID]
	if !ok {
		wins = make(map[string]engine.Surface)
		r.displays[tabID] = wins
	}
	wins[windowID] = s
}

func (r *Registry) RemoveDisplay(tabID, windowID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wins, ok := r.displays[tabID]
	if !ok {
		return
	}
	delete(wins, windowID)
	if len(wins) == 0 {
		delete(r.displays, tabID)
	}
}

// Surfaces returns every surface currently displaying the tab, across all
// windows, primary included.
func (r *Registry) Surfaces(tabID string) []engine.Surface {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wins := r.displays[tabID]
	out := make([]engine.Surface, 0, len(wins))
	for _, s := range wins {
		out = append(out, s)
	}
	return out
}

// Owner returns the owning window id for a tab, if any.
func (r *Registry) Owner(tabID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.primaries[tabID]
	return e.WindowID, ok
}

func (r *Registry) PrimaryCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.primaries)
}
