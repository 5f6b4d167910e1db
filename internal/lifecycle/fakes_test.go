package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"github.com/driftbrowser/tabcore/internal/engine"
)

// fakeSurface records every engine call in order so tests can assert the
// teardown contract without a live engine.
type fakeSurface struct {
	name string

	mu        sync.Mutex
	calls     []string
	evals     []string
	nav       engine.NavigationHandler
	observers map[engine.ObserverToken]engine.ObserverKind
	nextTok   engine.ObserverToken
	closed    bool

	loadErr error
	back    bool
	forward bool
	title   string
	color   string
	probe   engine.MediaProbe

	msgs chan engine.PageMessage
}

func newFakeSurface(name string) *fakeSurface {
	return &fakeSurface{
		name:      name,
		observers: make(map[engine.ObserverToken]engine.ObserverKind),
		msgs:      make(chan engine.PageMessage, 8),
	}
}

func (f *fakeSurface) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeSurface) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeSurface) Load(ctx context.Context, url string) error {
	f.record("load:" + url)
	return f.loadErr
}

func (f *fakeSurface) Stop(ctx context.Context) error {
	f.record("stop")
	return nil
}

func (f *fakeSurface) GoBack(ctx context.Context) error {
	f.record("back")
	return nil
}

func (f *fakeSurface) GoForward(ctx context.Context) error {
	f.record("forward")
	return nil
}

func (f *fakeSurface) Evaluate(ctx context.Context, script string, out any) error {
	f.mu.Lock()
	f.evals = append(f.evals, script)
	f.mu.Unlock()
	f.record("evaluate")
	return nil
}

func (f *fakeSurface) Affordance(ctx context.Context) (bool, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.back, f.forward, nil
}

func (f *fakeSurface) Title(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.title, nil
}

func (f *fakeSurface) ThemeColor(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.color, nil
}

func (f *fakeSurface) ProbeMedia(ctx context.Context) (engine.MediaProbe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probe, nil
}

func (f *fakeSurface) TerminateMedia(ctx context.Context) error {
	f.record("terminate_media")
	return nil
}

func (f *fakeSurface) SetNavigationHandler(h engine.NavigationHandler) {
	f.mu.Lock()
	f.nav = h
	f.mu.Unlock()
	if h == nil {
		f.record("nav_handler_cleared")
	} else {
		f.record("nav_handler_set")
	}
}

func (f *fakeSurface) handler() engine.NavigationHandler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nav
}

func (f *fakeSurface) Observe(kind engine.ObserverKind, fn func(engine.PropertyChange)) engine.ObserverToken {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextTok++
	f.observers[f.nextTok] = kind
	return f.nextTok
}

func (f *fakeSurface) Unobserve(token engine.ObserverToken) {
	f.mu.Lock()
	delete(f.observers, token)
	f.mu.Unlock()
	f.record("unobserve")
}

func (f *fakeSurface) observerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.observers)
}

func (f *fakeSurface) Messages() <-chan engine.PageMessage {
	return f.msgs
}

func (f *fakeSurface) Close() error {
	f.mu.Lock()
	already := f.closed
	f.closed = true
	f.mu.Unlock()
	if already {
		return nil
	}
	f.record("close")
	close(f.msgs)
	return nil
}

func (f *fakeSurface) setAnswers(back, forward bool, title, color string) {
	f.mu.Lock()
	f.back = back
	f.forward = forward
	f.title = title
	f.color = color
	f.mu.Unlock()
}

func (f *fakeSurface) evalLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.evals))
	copy(out, f.evals)
	return out
}

// fakeFactory hands out fakeSurfaces and counts constructions.
type fakeFactory struct {
	mu       sync.Mutex
	created  []*fakeSurface
	failNext error
}

func (f *fakeFactory) Create(ctx context.Context, profile engine.Profile) (engine.Surface, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return nil, err
	}
	s := newFakeSurface(fmt.Sprintf("surface-%d", len(f.created)+1))
	f.created = append(f.created, s)
	return s, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func (f *fakeFactory) surface(i int) *fakeSurface {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created[i]
}
