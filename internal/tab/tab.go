// Package tab holds the per-tab record: navigation state machine, display
// cache fields, and aggregate media flags.
package tab

import (
	"sync"

	"github.com/driftbrowser/tabcore/internal/engine"
	"github.com/google/uuid"
)

// LoadState is the per-navigation loading state of a tab.
type LoadState int

const (
	Idle LoadState = iota
	Provisional
	Committed
	Finished
	Failed
	FailedProvisional
)

func (s LoadState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Provisional:
		return "provisional"
	case Committed:
		return "committed"
	case Finished:
		return "finished"
	case Failed:
		return "failed"
	case FailedProvisional:
		return "failed_provisional"
	default:
		return "unknown"
	}
}

// MediaFlags are the tab-level aggregate media indicators. They are the
// OR-fold over every surface displaying the tab, never a single surface's
// view.
type MediaFlags struct {
	HasAudioContent  bool `json:"has_audio_content"`
	HasPlayingAudio  bool `json:"has_playing_audio"`
	HasVideoContent  bool `json:"has_video_content"`
	HasPlayingVideo  bool `json:"has_playing_video"`
	PictureInPicture bool `json:"picture_in_picture"`
}

// Info is a transport-friendly snapshot of a tab record.
type Info struct {
	ID           string     `json:"id"`
	ProfileID    string     `json:"profile_id"`
	URL          string     `json:"url"`
	Title        string     `json:"title,omitempty"`
	ThemeColor   string     `json:"theme_color,omitempty"`
	State        string     `json:"state"`
	LastError    string     `json:"last_error,omitempty"`
	CanGoBack    bool       `json:"can_go_back"`
	CanGoForward bool       `json:"can_go_forward"`
	Media        MediaFlags `json:"media"`
	Muted        bool       `json:"muted"`
	Unloaded     bool       `json:"unloaded"`
	PopupHost    bool       `json:"popup_host"`
}

// Tab is the record for one logical tab. Field mutation goes through
// methods; setters report whether the value actually changed so callers can
// suppress redundant downstream propagation.
type Tab struct {
	id        string
	profileID string
	popupHost bool

	mu           sync.Mutex
	url          string
	title        string
	themeColor   string
	state        LoadState
	lastErr      error
	canGoBack    bool
	canGoForward bool
	media        MediaFlags
	muted        bool
	unloaded     bool
}

// New creates an unloaded tab record. The id is never reused.
func New(profileID string, popupHost bool) *Tab {
	return &Tab{
		id:        uuid.New().String(),
		profileID: profileID,
		popupHost: popupHost,
		state:     Idle,
		unloaded:  true,
	}
}

func (t *Tab) ID() string        { return t.id }
func (t *Tab) ProfileID() string { return t.profileID }
func (t *Tab) PopupHost() bool   { return t.popupHost }

func (t *Tab) URL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.url
}

// SetURL records the navigation target without starting a navigation, used
// for unloaded tabs whose initial load is deferred until a surface exists.
func (t *Tab) SetURL(url string) {
	t.mu.Lock()
	t.url = url
	t.mu.Unlock()
}

func (t *Tab) State() LoadState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Tab) Unloaded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unloaded
}

func (t *Tab) MarkLoaded() {
	t.mu.Lock()
	t.unloaded = false
	t.mu.Unlock()
}

func (t *Tab) MarkUnloaded() {
	t.mu.Lock()
	t.unloaded = true
	t.mu.Unlock()
}

// BeginNavigation enters the provisional state for a new navigation. It
// resets the per-navigation media signals but never the mute preference,
// which is sticky across navigations.
func (t *Tab) BeginNavigation(url string) {
	t.mu.Lock()
	t.state = Provisional
	t.url = url
	t.lastErr = nil
	t.media = MediaFlags{}
	t.mu.Unlock()
}

// Commit moves provisional -> committed and updates the authoritative URL.
// Out-of-order callbacks are rejected (returns false) rather than applied.
func (t *Tab) Commit(url string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Provisional {
		return false
	}
	t.state = Committed
	t.url = url
	return true
}

// Finish moves committed -> finished.
func (t *Tab) Finish() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Committed {
		return false
	}
	t.state = Finished
	return true
}

// Fail records a post-commit navigation failure.
func (t *Tab) Fail(err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Committed {
		return false
	}
	t.state = Failed
	t.lastErr = err
	return true
}

// FailProvisional records a failure before the navigation committed.
func (t *Tab) FailProvisional(err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Provisional {
		return false
	}
	t.state = FailedProvisional
	t.lastErr = err
	return true
}

// StopNavigation returns the tab to idle, e.g. after stop() or unload.
func (t *Tab) StopNavigation() {
	t.mu.Lock()
	t.state = Idle
	t.mu.Unlock()
}

// SetTitle reports whether the title actually changed, so callers can skip
// redundant UI propagation.
func (t *Tab) SetTitle(title string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.title == title {
		return false
	}
	t.title = title
	return true
}

func (t *Tab) SetThemeColor(color string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.themeColor == color {
		return false
	}
	t.themeColor = color
	return true
}

// SetAffordance re-derives back/forward availability; the change is only
// worth propagating when the returned value is true.
func (t *Tab) SetAffordance(back, forward bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.canGoBack == back && t.canGoForward == forward {
		return false
	}
	t.canGoBack = back
	t.canGoForward = forward
	return true
}

func (t *Tab) Affordance() (back, forward bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.canGoBack, t.canGoForward
}

// SetMedia replaces the aggregate media flags from a probe fold.
func (t *Tab) SetMedia(p engine.MediaProbe) bool {
	next := MediaFlags{
		HasAudioContent:  p.HasAudioContent,
		HasPlayingAudio:  p.HasPlayingAudio,
		HasVideoContent:  p.HasVideoContent,
		HasPlayingVideo:  p.HasPlayingVideo,
		PictureInPicture: p.HasPictureInPicture,
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.media == next {
		return false
	}
	t.media = next
	return true
}

func (t *Tab) Media() MediaFlags {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.media
}

// ResetMedia zeroes every aggregate media flag (close path).
func (t *Tab) ResetMedia() {
	t.mu.Lock()
	t.media = MediaFlags{}
	t.mu.Unlock()
}

func (t *Tab) SetMuted(muted bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.muted == muted {
		return false
	}
	t.muted = muted
	return true
}

func (t *Tab) Muted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.muted
}

// Snapshot returns a consistent copy of the record.
func (t *Tab) Snapshot() Info {
	t.mu.Lock()
	defer t.mu.Unlock()
	info := Info{
		ID:           t.id,
		ProfileID:    t.profileID,
		URL:          t.url,
		Title:        t.title,
		ThemeColor:   t.themeColor,
		State:        t.state.String(),
		CanGoBack:    t.canGoBack,
		CanGoForward: t.canGoForward,
		Media:        t.media,
		Muted:        t.muted,
		Unloaded:     t.unloaded,
		PopupHost:    t.popupHost,
	}
	if t.lastErr != nil {
		info.LastError = t.lastErr.Error()
	}
	return info
}
