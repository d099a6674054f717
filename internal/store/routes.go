// Package store holds the current set of predicted routes.
package store

import (
	"sync"

	"arrival-predictor/internal/route"
)

// Routes is the process-wide route set. Readers get copies; writers swap
// or edit the set under the lock, so a reader never sees a partial commit.
type Routes struct {
	mu     sync.RWMutex
	routes []route.Route
}

func NewRoutes() *Routes {
	return &Routes{}
}

// Replace swaps the whole set.
func (s *Routes) Replace(routes []route.Route) {
	next := make([]route.Route, len(routes))
	copy(next, routes)

	s.mu.Lock()
	s.routes = next
	s.mu.Unlock()
}

// Upsert replaces the route with the same id in place, or appends it.
func (s *Routes) Upsert(r route.Route) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.routes {
		if s.routes[i].ID == r.ID {
			s.routes[i] = r
			return
		}
	}
	s.routes = append(s.routes, r)
}

// Delete removes every route with id and reports whether any was removed.
func (s *Routes) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.routes[:0:0]
	for _, r := range s.routes {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	removed := len(kept) != len(s.routes)
	if removed {
		s.routes = kept
	}
	return removed
}

// All returns a copy of the set in commit order.
func (s *Routes) All() []route.Route {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]route.Route, len(s.routes))
	copy(out, s.routes)
	return out
}

func (s *Routes) Get(id string) (route.Route, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.routes {
		if r.ID == id {
			return r, true
		}
	}
	return route.Route{}, false
}

func (s *Routes) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.routes)
}
