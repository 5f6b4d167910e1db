// Package profile tracks isolation profiles that surfaces are constructed
// under. Profiles resolve asynchronously; subscribers registered before
// resolution fire exactly once when it lands.
package profile

import (
	"log/slog"
	"sync"

	"github.com/driftbrowser/tabcore/internal/engine"
)

// Store is an in-memory ProfileSource. It satisfies
// engine.ProfileSource.
type Store struct {
	mu       sync.Mutex
	profiles map[string]engine.Profile
	subs     map[string]map[int64]func(engine.Profile)
	nextSub  int64
}

func NewStore() *Store {
	return &Store{
		profiles: make(map[string]engine.Profile),
		subs:     make(map[string]map[int64]func(engine.Profile)),
	}
}

// Profile reports whether the profile has resolved.
func (s *Store) Profile(id string) (engine.Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	return p, ok
}

// Subscribe registers a one-shot callback fired when the profile resolves.
// The returned cancel makes a later resolution a no-op for this subscriber.
// A subscription against an already-resolved profile fires immediately.
func (s *Store) Subscribe(id string, fn func(engine.Profile)) func() {
	s.mu.Lock()
	if p, ok := s.profiles[id]; ok {
		s.mu.Unlock()
		fn(p)
		return func() {}
	}
	s.nextSub++
	subID := s.nextSub
	if s.subs[id] == nil {
		s.subs[id] = make(map[int64]func(engine.Profile))
	}
	s.subs[id][subID] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		if m, ok := s.subs[id]; ok {
			delete(m, subID)
			if len(m) == 0 {
				delete(s.subs, id)
			}
		}
		s.mu.Unlock()
	}
}

// Resolve records the profile and fires pending subscribers once each.
func (s *Store) Resolve(p engine.Profile) {
	s.mu.Lock()
	s.profiles[p.ID] = p
	pending := s.subs[p.ID]
	delete(s.subs, p.ID)
	s.mu.Unlock()

	if len(pending) > 0 {
		slog.Debug("profile resolved, firing waiters", "profile_id", p.ID, "waiters", len(pending))
	}
	for _, fn := range pending {
		fn(p)
	}
}

// Remove drops a profile; subsequent lookups see it unresolved again.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	delete(s.profiles, id)
	s.mu.Unlock()
}

func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.profiles)
}
