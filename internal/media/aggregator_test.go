package media

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/driftbrowser/tabcore/internal/engine"
	"github.com/driftbrowser/tabcore/internal/tab"
)

// probeSurface answers only ProbeMedia; nothing else is driven here.
type probeSurface struct {
	engine.Surface
	mu     sync.Mutex
	probe  engine.MediaProbe
	err    error
	probes int
}

func (p *probeSurface) ProbeMedia(ctx context.Context) (engine.MediaProbe, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probes++
	if p.err != nil {
		return engine.MediaProbe{}, p.err
	}
	return p.probe, nil
}

func (p *probeSurface) probeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.probes
}

type staticSource struct {
	mu       sync.Mutex
	surfaces map[string][]engine.Surface
}

func (s *staticSource) Surfaces(tabID string) []engine.Surface {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.surfaces[tabID]
}

type changeRecorder struct {
	mu      sync.Mutex
	changed []string
}

func (r *changeRecorder) MediaChanged(tabID string) {
	r.mu.Lock()
	r.changed = append(r.changed, tabID)
	r.mu.Unlock()
}

func (r *changeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.changed)
}

func setup(t *testing.T, surfaces ...engine.Surface) (*Aggregator, *tab.Tab, *changeRecorder) {
	t.Helper()
	tabs := tab.NewCollection()
	tb := tab.New("default", false)
	tabs.Add(tb)

	source := &staticSource{surfaces: map[string][]engine.Surface{tb.ID(): surfaces}}
	recorder := &changeRecorder{}
	return NewAggregator(source, tabs, recorder), tb, recorder
}

func TestProbeFoldsAcrossSurfaces(t *testing.T) {
	audio := &probeSurface{probe: engine.MediaProbe{HasAudioContent: true, HasPlayingAudio: true}}
	video := &probeSurface{probe: engine.MediaProbe{HasVideoContent: true}}
	agg, tb, recorder := setup(t, audio, video)

	got := agg.Probe(context.Background(), tb.ID())

	want := engine.MediaProbe{HasAudioContent: true, HasPlayingAudio: true, HasVideoContent: true}
	if got != want {
		t.Fatalf("Probe() = %+v; want OR-fold %+v", got, want)
	}
	if tb.Media().HasPlayingAudio != true || tb.Media().HasVideoContent != true {
		t.Fatalf("tab media = %+v; want fold applied to record", tb.Media())
	}
	if recorder.count() != 1 {
		t.Fatalf("MediaChanged fired %d times; want 1", recorder.count())
	}
}

func TestProbeFoldsPictureInPicture(t *testing.T) {
	plain := &probeSurface{probe: engine.MediaProbe{HasVideoContent: true}}
	pip := &probeSurface{probe: engine.MediaProbe{HasVideoContent: true, HasPictureInPicture: true}}
	agg, tb, _ := setup(t, plain, pip)

	got := agg.Probe(context.Background(), tb.ID())
	if !got.HasPictureInPicture {
		t.Fatalf("Probe() = %+v; want pip folded in from any surface", got)
	}
	if !tb.Media().PictureInPicture {
		t.Fatalf("tab media = %+v; want PictureInPicture set", tb.Media())
	}

	// PiP ends on the reporting surface; the aggregate follows.
	pip.mu.Lock()
	pip.probe.HasPictureInPicture = false
	pip.mu.Unlock()

	if got := agg.Probe(context.Background(), tb.ID()); got.HasPictureInPicture {
		t.Fatalf("Probe() = %+v after pip ended; want flag cleared", got)
	}
	if tb.Media().PictureInPicture {
		t.Fatalf("tab media = %+v after pip ended; want PictureInPicture cleared", tb.Media())
	}
}

func TestProbeUnchangedDoesNotNotify(t *testing.T) {
	s := &probeSurface{probe: engine.MediaProbe{HasAudioContent: true}}
	agg, tb, recorder := setup(t, s)

	agg.Probe(context.Background(), tb.ID())
	agg.Probe(context.Background(), tb.ID())

	if recorder.count() != 1 {
		t.Fatalf("MediaChanged fired %d times for identical folds; want 1", recorder.count())
	}
}

func TestProbePartialFailureUsesAnswers(t *testing.T) {
	ok := &probeSurface{probe: engine.MediaProbe{HasPlayingVideo: true, HasVideoContent: true}}
	bad := &probeSurface{err: errors.New("surface gone")}
	agg, tb, _ := setup(t, ok, bad)

	got := agg.Probe(context.Background(), tb.ID())
	if !got.HasPlayingVideo {
		t.Fatalf("Probe() = %+v; want the answering surface's signal", got)
	}
}

func TestProbeAllFailedKeepsLastKnown(t *testing.T) {
	s := &probeSurface{probe: engine.MediaProbe{HasPlayingAudio: true, HasAudioContent: true}}
	agg, tb, _ := setup(t, s)

	first := agg.Probe(context.Background(), tb.ID())
	if !first.HasPlayingAudio {
		t.Fatalf("Probe() = %+v; want playing audio", first)
	}

	s.mu.Lock()
	s.err = errors.New("engine detached")
	s.mu.Unlock()

	got := agg.Probe(context.Background(), tb.ID())
	if got != first {
		t.Fatalf("Probe() = %+v after all-failed round; want last known %+v", got, first)
	}
}

func TestProbeNoSurfacesReturnsLastKnown(t *testing.T) {
	s := &probeSurface{probe: engine.MediaProbe{HasAudioContent: true}}
	agg, tb, _ := setup(t, s)

	first := agg.Probe(context.Background(), tb.ID())

	// Simulate unload: the display set empties.
	src := agg.source.(*staticSource)
	src.mu.Lock()
	src.surfaces[tb.ID()] = nil
	src.mu.Unlock()

	if got := agg.Probe(context.Background(), tb.ID()); got != first {
		t.Fatalf("Probe() = %+v with no surfaces; want last known %+v", got, first)
	}
}

func TestForgetDropsState(t *testing.T) {
	s := &probeSurface{probe: engine.MediaProbe{HasAudioContent: true}}
	agg, tb, _ := setup(t, s)

	agg.Probe(context.Background(), tb.ID())
	agg.Forget(tb.ID())

	src := agg.source.(*staticSource)
	src.mu.Lock()
	src.surfaces[tb.ID()] = nil
	src.mu.Unlock()

	if got := agg.Probe(context.Background(), tb.ID()); got != (engine.MediaProbe{}) {
		t.Fatalf("Probe() = %+v after Forget; want zero", got)
	}
}

func TestHardwareActivityRateLimited(t *testing.T) {
	s := &probeSurface{probe: engine.MediaProbe{HasAudioContent: true}}
	agg, tb, _ := setup(t, s)
	agg.SetHardwareInterval(time.Hour)

	agg.HandleHardwareActivity(context.Background(), tb.ID())
	agg.HandleHardwareActivity(context.Background(), tb.ID())
	agg.HandleHardwareActivity(context.Background(), tb.ID())

	if n := s.probeCount(); n != 1 {
		t.Fatalf("probe ran %d times under rate limit; want 1", n)
	}
}

func TestHardwareActivityAllowedAfterInterval(t *testing.T) {
	s := &probeSurface{probe: engine.MediaProbe{HasAudioContent: true}}
	agg, tb, _ := setup(t, s)
	agg.SetHardwareInterval(time.Millisecond)

	agg.HandleHardwareActivity(context.Background(), tb.ID())
	time.Sleep(5 * time.Millisecond)
	agg.HandleHardwareActivity(context.Background(), tb.ID())

	if n := s.probeCount(); n != 2 {
		t.Fatalf("probe ran %d times across interval; want 2", n)
	}
}

func TestRunHardwareEventsConsumesChannel(t *testing.T) {
	s := &probeSurface{probe: engine.MediaProbe{HasAudioContent: true}}
	agg, tb, _ := setup(t, s)

	events := make(chan string, 1)
	done := make(chan struct{})
	go func() {
		agg.RunHardwareEvents(context.Background(), events)
		close(done)
	}()

	events <- tb.ID()
	close(events)
	<-done

	if n := s.probeCount(); n != 1 {
		t.Fatalf("probe ran %d times from hardware events; want 1", n)
	}
}
