package auth

import (
	"slices"
	"sync"
)

// StateListener is called with the signed-in user id, or "" after sign-out.
type StateListener func(userID string)

// State is the auth state of one user session. Listeners are called outside the
// lock, in registration order, after every change.
type State struct {
	listeners map[int]StateListener
	userID    string
	next      int
	mu        sync.Mutex
}

// NewState returns a signed-out state.
func NewState() *State {
	return &State{listeners: make(map[int]StateListener)}
}

// CurrentUserID returns the signed-in user.
func (s *State) CurrentUserID() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID, s.userID != ""
}

// OnAuthStateChange registers fn and calls it once with the current state.
// The returned func removes the listener.
func (s *State) OnAuthStateChange(fn StateListener) (cancel func()) {
	s.mu.Lock()
	key := s.next
	s.next++
	s.listeners[key] = fn
	uid := s.userID
	s.mu.Unlock()

	fn(uid)

	return func() {
		s.mu.Lock()
		delete(s.listeners, key)
		s.mu.Unlock()
	}
}

// SignIn sets the signed-in user.
func (s *State) SignIn(userID string) {
	s.set(userID)
}

// SignOut clears the signed-in user.
func (s *State) SignOut() {
	s.set("")
}

func (s *State) set(userID string) {
	s.mu.Lock()
	if s.userID == userID {
		s.mu.Unlock()
		return
	}
	s.userID = userID
	keys := make([]int, 0, len(s.listeners))
	for k := range s.listeners {
		keys = append(keys, k)
	}
	fns := make([]StateListener, 0, len(keys))
	slices.Sort(keys)
	for _, k := range keys {
		fns = append(fns, s.listeners[k])
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(userID)
	}
}
