package tab

import (
	"errors"
	"testing"

	"github.com/driftbrowser/tabcore/internal/engine"
)

func TestNewTabStartsUnloadedIdle(t *testing.T) {
	tb := New("default", false)
	if tb.ID() == "" {
		t.Fatal("ID() is empty")
	}
	if !tb.Unloaded() {
		t.Fatal("Unloaded() = false; want true for a fresh tab")
	}
	if tb.State() != Idle {
		t.Fatalf("State() = %v; want Idle", tb.State())
	}
}

func TestNavigationHappyPath(t *testing.T) {
	tb := New("default", false)

	tb.BeginNavigation("https://example.com/a")
	if tb.State() != Provisional {
		t.Fatalf("State() = %v; want Provisional", tb.State())
	}
	if !tb.Commit("https://example.com/a") {
		t.Fatal("Commit() = false; want true from Provisional")
	}
	if !tb.Finish() {
		t.Fatal("Finish() = false; want true from Committed")
	}
	if tb.State() != Finished {
		t.Fatalf("State() = %v; want Finished", tb.State())
	}
	if tb.URL() != "https://example.com/a" {
		t.Fatalf("URL() = %q; want commit url", tb.URL())
	}
}

func TestOutOfOrderCallbacksRejected(t *testing.T) {
	tb := New("default", false)

	if tb.Commit("https://example.com") {
		t.Fatal("Commit() = true from Idle; want false")
	}
	if tb.Finish() {
		t.Fatal("Finish() = true from Idle; want false")
	}
	if tb.Fail(errors.New("boom")) {
		t.Fatal("Fail() = true from Idle; want false")
	}

	tb.BeginNavigation("https://example.com")
	if tb.Finish() {
		t.Fatal("Finish() = true from Provisional; want false")
	}
	if tb.Fail(errors.New("boom")) {
		t.Fatal("Fail() = true from Provisional; want false")
	}
	if !tb.FailProvisional(errors.New("dns")) {
		t.Fatal("FailProvisional() = false from Provisional; want true")
	}
	if tb.State() != FailedProvisional {
		t.Fatalf("State() = %v; want FailedProvisional", tb.State())
	}

	// A failed tab accepts a fresh navigation.
	tb.BeginNavigation("https://example.com/retry")
	if !tb.Commit("https://example.com/retry") {
		t.Fatal("Commit() = false after retry; want true")
	}
	if tb.Fail(errors.New("reset")) != true {
		t.Fatal("Fail() = false from Committed; want true")
	}
	if tb.Snapshot().LastError != "reset" {
		t.Fatalf("Snapshot().LastError = %q; want %q", tb.Snapshot().LastError, "reset")
	}
}

func TestBeginNavigationResetsMediaButNotMute(t *testing.T) {
	tb := New("default", false)
	tb.SetMuted(true)
	tb.SetMedia(engine.MediaProbe{HasPlayingAudio: true, HasAudioContent: true})

	tb.BeginNavigation("https://example.com/next")

	if got := tb.Media(); got != (MediaFlags{}) {
		t.Fatalf("Media() = %+v after BeginNavigation; want zero flags", got)
	}
	if !tb.Muted() {
		t.Fatal("Muted() = false after BeginNavigation; want sticky true")
	}
}

func TestSettersReportChange(t *testing.T) {
	tb := New("default", false)

	if !tb.SetTitle("Docs") {
		t.Fatal("SetTitle() = false for new value; want true")
	}
	if tb.SetTitle("Docs") {
		t.Fatal("SetTitle() = true for same value; want false")
	}

	if !tb.SetAffordance(true, false) {
		t.Fatal("SetAffordance() = false for new value; want true")
	}
	if tb.SetAffordance(true, false) {
		t.Fatal("SetAffordance() = true for same value; want false")
	}

	if !tb.SetThemeColor("#112233") {
		t.Fatal("SetThemeColor() = false for new value; want true")
	}
	if tb.SetThemeColor("#112233") {
		t.Fatal("SetThemeColor() = true for same value; want false")
	}

	probe := engine.MediaProbe{HasVideoContent: true}
	if !tb.SetMedia(probe) {
		t.Fatal("SetMedia() = false for new value; want true")
	}
	if tb.SetMedia(probe) {
		t.Fatal("SetMedia() = true for same value; want false")
	}

	if !tb.SetMuted(true) {
		t.Fatal("SetMuted() = false for new value; want true")
	}
	if tb.SetMuted(true) {
		t.Fatal("SetMuted() = true for same value; want false")
	}
}

func TestSetMediaCarriesPictureInPicture(t *testing.T) {
	tb := New("default", false)

	if !tb.SetMedia(engine.MediaProbe{HasVideoContent: true, HasPictureInPicture: true}) {
		t.Fatal("SetMedia() = false for new value; want true")
	}
	if !tb.Media().PictureInPicture {
		t.Fatal("Media().PictureInPicture = false; want probe flag applied")
	}

	if !tb.SetMedia(engine.MediaProbe{HasVideoContent: true}) {
		t.Fatal("SetMedia() = false when pip drops; want true")
	}
	if tb.Media().PictureInPicture {
		t.Fatal("Media().PictureInPicture = true after pip ended; want false")
	}
}

func TestSnapshotReflectsRecord(t *testing.T) {
	tb := New("work", true)
	tb.SetURL("https://example.com")
	tb.SetTitle("Example")
	tb.MarkLoaded()

	info := tb.Snapshot()
	if info.ID != tb.ID() {
		t.Fatalf("Snapshot().ID = %q; want %q", info.ID, tb.ID())
	}
	if info.ProfileID != "work" || !info.PopupHost {
		t.Fatalf("Snapshot() profile/popup = %q/%v; want work/true", info.ProfileID, info.PopupHost)
	}
	if info.State != "idle" {
		t.Fatalf("Snapshot().State = %q; want idle", info.State)
	}
	if info.Unloaded {
		t.Fatal("Snapshot().Unloaded = true after MarkLoaded")
	}
}

func TestLoadStateString(t *testing.T) {
	cases := map[LoadState]string{
		Idle:              "idle",
		Provisional:       "provisional",
		Committed:         "committed",
		Finished:          "finished",
		Failed:            "failed",
		FailedProvisional: "failed_provisional",
		LoadState(99):     "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Fatalf("LoadState(%d).String() = %q; want %q", state, got, want)
		}
	}
}
