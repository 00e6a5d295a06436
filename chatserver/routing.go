package chatserver

import "chatfed/wire"

// storeRouteLocked applies conflict rule: shorter route wins;
// on a length tie, the lexicographically smallest next hop wins. Callers
// must already hold s.mu exclusively.
func (s *Server) storeRouteLocked(dst wire.ServerId, route []wire.ServerId) {
	existing, ok := s.routes[dst]
	if ok && !preferRoute(route, existing) {
		return
	}
	cp := make([]wire.ServerId, len(route))
	copy(cp, route)
	s.routes[dst] = cp
}

// preferRoute reports whether candidate should replace existing as the
// stored route to some destination.
func preferRoute(candidate, existing []wire.ServerId) bool {
	if len(candidate) != len(existing) {
		return len(candidate) < len(existing)
	}
	if len(candidate) == 0 {
		return false
	}
	return wire.CompareServerId(candidate[0], existing[0]) < 0
}

// firstHopLocked returns the next hop toward destination, if a route is
// known. Callers must already hold s.mu (either mode).
func (s *Server) firstHopLocked(destination wire.ServerId) (wire.ServerId, bool) {
	route, ok := s.routes[destination]
	if !ok || len(route) == 0 {
		return wire.ServerId{}, false
	}
	return route[0], true
}

// RouteTo returns the known route to destination: the first element is
// the next hop from this server, the last is destination itself.
// Reported false if no route is known.
func (s *Server) RouteTo(destination wire.ServerId) ([]wire.ServerId, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	route, ok := s.routes[destination]
	if !ok {
		return nil, false
	}
	cp := make([]wire.ServerId, len(route))
	copy(cp, route)
	return cp, true
}

// RouteForAnnounce returns the route this server would advertise to its
// own neighbors for destination: the stored route with this server
// prepended, suitable for carrying in a new Announce. A server is always
// reachable from itself trivially, so destination == s.ID() is reported
// as the single-hop route [s.ID()].
func (s *Server) RouteForAnnounce(destination wire.ServerId) ([]wire.ServerId, bool) {
	if destination == s.id {
		return []wire.ServerId{s.id}, true
	}
	route, ok := s.RouteTo(destination)
	if !ok {
		return nil, false
	}
	out := make([]wire.ServerId, 0, len(route)+1)
	out = append(out, s.id)
	out = append(out, route...)
	return out, true
}
