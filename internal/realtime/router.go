package realtime

import (
	"sync"
)

// Router owns group membership: which sessions receive a broadcast to
// which group. All mutations and snapshots go through one RWMutex, and
// Members returns a copy so no lock is ever held across a send.
//
// Invariants it maintains:
//   - a session is in PersonalGroup(u) iff its UserID is u
//   - a session is in Premium iff its last-known premium flag is true
//   - an unregistered session is in no group
type Router struct {
	mu sync.RWMutex

	// groups maps each group to its member set; sessions is the reverse
	// index used to tear a session out of everything on unregister.
	groups   map[Group]map[*Session]struct{}
	sessions map[*Session]map[Group]struct{}
}

func NewRouter() *Router {
	return &Router{
		groups:   make(map[Group]map[*Session]struct{}),
		sessions: make(map[*Session]map[Group]struct{}),
	}
}

// Register enrolls the session into its personal group, and into the
// premium group if its flag is set. Idempotent per session.
func (r *Router) Register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.joinLocked(s, PersonalGroup(s.UserID))
	if s.IsPremium() {
		r.joinLocked(s, Premium)
	}
}

// Unregister removes the session from every group it belongs to. Safe
// to call on a session that was never registered or already removed.
func (r *Router) Unregister(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for g := range r.sessions[s] {
		r.leaveLocked(s, g)
	}
	delete(r.sessions, s)
}

// PromoteToPremium flips the premium flag on every live session of
// userID and adds them to the premium group. Sessions connecting later
// are already marked by the verifier's fresher token read.
func (r *Router) PromoteToPremium(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for s := range r.groups[PersonalGroup(userID)] {
		s.setPremium(true)
		r.joinLocked(s, Premium)
	}
}

// DemoteFromPremium is the inverse transition; the membership invariant
// requires it even though promotion is the common direction.
func (r *Router) DemoteFromPremium(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for s := range r.groups[PersonalGroup(userID)] {
		s.setPremium(false)
		r.leaveLocked(s, Premium)
	}
}

// Members returns a snapshot of the group's sessions. An unknown or
// empty group yields an empty slice, never an error. The set may change
// concurrently; callers iterate the snapshot.
func (r *Router) Members(g Group) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.groups[g]
	out := make([]*Session, 0, len(members))
	for s := range members {
		out = append(out, s)
	}
	return out
}

// SessionCount reports the number of registered sessions, for logging.
func (r *Router) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Router) joinLocked(s *Session, g Group) {
	members, ok := r.groups[g]
	if !ok {
		members = make(map[*Session]struct{})
		r.groups[g] = members
	}
	members[s] = struct{}{}

	groups, ok := r.sessions[s]
	if !ok {
		groups = make(map[Group]struct{})
		r.sessions[s] = groups
	}
	groups[g] = struct{}{}
}

func (r *Router) leaveLocked(s *Session, g Group) {
	if members, ok := r.groups[g]; ok {
		delete(members, s)
		if len(members) == 0 {
			delete(r.groups, g)
		}
	}
	if groups, ok := r.sessions[s]; ok {
		delete(groups, g)
	}
}
