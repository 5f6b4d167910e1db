// Package engine defines the boundary contract between the shell core and
// the page-rendering engine. The core never depends on a concrete engine;
// it drives opaque Surface handles created by a Factory.
package engine

import (
	"context"
	"encoding/json"
)

// ObserverKind selects which observable surface property a subscription covers.
type ObserverKind int

const (
	ObserveAffordance ObserverKind = iota // back/forward availability
	ObserveTitle
	ObserveThemeColor
)

func (k ObserverKind) String() string {
	switch k {
	case ObserveAffordance:
		return "affordance"
	case ObserveTitle:
		return "title"
	case ObserveThemeColor:
		return "theme_color"
	default:
		return "unknown"
	}
}

// ObserverToken identifies a single property subscription on a surface.
type ObserverToken int64

// PropertyChange carries the new value for an observed surface property.
// Only the field matching Kind is meaningful.
type PropertyChange struct {
	Kind         ObserverKind
	CanGoBack    bool
	CanGoForward bool
	Title        string
	ThemeColor   string
}

// NavigationHandler receives the engine's strictly-ordered navigation
// callbacks for one surface: provisional -> commit -> finish/fail.
type NavigationHandler interface {
	ProvisionalStart(url string)
	Committed(url string)
	Finished(url string)
	Failed(err error)
	FailedProvisional(err error)
}

// PageMessage is a page-originated event delivered over the surface's
// message channel, keyed by tab id to avoid cross-tab collisions.
type PageMessage struct {
	TabID   string          `json:"tab_id"`
	Kind    string          `json:"kind"` // link_hover, media_state, background_color, history_state
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MediaProbe is the per-surface answer to a media activity probe.
type MediaProbe struct {
	HasAudioContent     bool `json:"has_audio_content"`
	HasPlayingAudio     bool `json:"has_playing_audio"`
	HasVideoContent     bool `json:"has_video_content"`
	HasPlayingVideo     bool `json:"has_playing_video"`
	HasPictureInPicture bool `json:"has_picture_in_picture"`
}

// Or folds another probe into this one field-by-field.
func (m MediaProbe) Or(other MediaProbe) MediaProbe {
	return MediaProbe{
		HasAudioContent:     m.HasAudioContent || other.HasAudioContent,
		HasPlayingAudio:     m.HasPlayingAudio || other.HasPlayingAudio,
		HasVideoContent:     m.HasVideoContent || other.HasVideoContent,
		HasPlayingVideo:     m.HasPlayingVideo || other.HasPlayingVideo,
		HasPictureInPicture: m.HasPictureInPicture || other.HasPictureInPicture,
	}
}

// Surface is an opaque handle to one rendering-engine instance. All methods
// that reach into the engine take a context; engine-level failures surface
// as errors, never panics.
type Surface interface {
	Load(ctx context.Context, url string) error
	Stop(ctx context.Context) error
	GoBack(ctx context.Context) error
	GoForward(ctx context.Context) error

	// Evaluate runs script in the page and unmarshals the result into out
	// (out may be nil when the result is not needed).
	Evaluate(ctx context.Context, script string, out any) error

	Affordance(ctx context.Context) (back, forward bool, err error)
	Title(ctx context.Context) (string, error)
	ThemeColor(ctx context.Context) (string, error)
	ProbeMedia(ctx context.Context) (MediaProbe, error)

	// TerminateMedia stops in-page media playback, timers, and audio
	// contexts ahead of surface teardown.
	TerminateMedia(ctx context.Context) error

	// SetNavigationHandler installs (or, with nil, removes) the single
	// navigation callback receiver for this surface.
	SetNavigationHandler(h NavigationHandler)

	// Observe subscribes to a property. Unobserve with the returned token;
	// a token is never reused by the same surface.
	Observe(kind ObserverKind, fn func(PropertyChange)) ObserverToken
	Unobserve(token ObserverToken)

	// Messages is the page-originated event channel. Closed when the
	// surface is closed.
	Messages() <-chan PageMessage

	// Close destroys the engine instance. Idempotent.
	Close() error
}

// Profile is the isolation context a surface is constructed under.
type Profile struct {
	ID        string
	DataDir   string
	Ephemeral bool
}

// Factory constructs surfaces. Construction must not panic past this
// boundary; failures are returned as errors.
type Factory interface {
	Create(ctx context.Context, profile Profile) (Surface, error)
}

// ProfileSource resolves profiles asynchronously. Profile reports whether a
// profile is resolved yet; Subscribe registers a callback fired once when it
// resolves, returning a cancel func that must make a later fire a no-op.
type ProfileSource interface {
	Profile(id string) (Profile, bool)
	Subscribe(id string, fn func(Profile)) (cancel func())
}
