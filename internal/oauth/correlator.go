package oauth

import (
	"sync"
)

// DefaultMaxPendingLogins bounds how many login attempts may await a redirect at once.
const DefaultMaxPendingLogins = 8

// RedirectKind distinguishes login from logout redirects.
type RedirectKind int

const (
	RedirectLogin RedirectKind = iota
	RedirectLogout
)

// String returns the string representation of the redirect kind.
func (k RedirectKind) String() string {
	if k == RedirectLogout {
		return "logout"
	}
	return "login"
}

// RedirectResponse is the data carried by a redirect back into the application.
type RedirectResponse struct {
	// URL is the full redirect URL as delivered.
	URL string

	State            string
	Code             string
	Error            string
	ErrorDescription string

	// Superseded is set when the pending entry was evicted by a newer attempt
	// rather than resolved by a redirect.
	Superseded bool
}

// IsError returns true if the redirect carried an OAuth error.
func (r RedirectResponse) IsError() bool {
	return r.Error != ""
}

// ResponseHandler receives the response for one pending redirect.
type ResponseHandler func(RedirectResponse)

type pendingLogin struct {
	seq      uint64
	callback ResponseHandler
}

// RedirectCorrelator maps redirect responses back to the attempts that started them.
// Logins are keyed by their state value; there is a single logout slot.
//
// Entries are always removed before their callback runs, and callbacks run
// outside the lock, so a callback may begin a new redirect.
type RedirectCorrelator struct {
	mu        sync.Mutex
	logins    map[string]*pendingLogin
	seq       uint64
	maxLogins int
	logout    ResponseHandler
	logoutSeq uint64
	hasLogout bool
}

// NewRedirectCorrelator creates a correlator. maxPendingLogins <= 0 selects
// DefaultMaxPendingLogins.
func NewRedirectCorrelator(maxPendingLogins int) *RedirectCorrelator {
	if maxPendingLogins <= 0 {
		maxPendingLogins = DefaultMaxPendingLogins
	}
	return &RedirectCorrelator{
		logins:    make(map[string]*pendingLogin),
		maxLogins: maxPendingLogins,
	}
}

// BeginLogin registers a pending login keyed by state. When the table is full the
// oldest pending login is evicted and told it was superseded.
func (c *RedirectCorrelator) BeginLogin(state string, callback ResponseHandler) {
	c.mu.Lock()
	c.seq++
	c.logins[state] = &pendingLogin{seq: c.seq, callback: callback}

	var evicted ResponseHandler
	if len(c.logins) > c.maxLogins {
		evicted = c.evictOldestLocked()
	}
	c.mu.Unlock()

	if evicted != nil {
		evicted(RedirectResponse{Superseded: true})
	}
}

// evictOldestLocked removes the pending login with the lowest sequence number.
// REQUIRES: c.mu held.
func (c *RedirectCorrelator) evictOldestLocked() ResponseHandler {
	var oldestState string
	var oldest *pendingLogin
	for state, p := range c.logins {
		if oldest == nil || p.seq < oldest.seq {
			oldestState, oldest = state, p
		}
	}
	if oldest == nil {
		return nil
	}
	delete(c.logins, oldestState)
	return oldest.callback
}

// BeginLogout registers the single pending logout, replacing any previous one.
// A replaced callback is told it was superseded. The returned id identifies this
// registration for CancelLogout.
func (c *RedirectCorrelator) BeginLogout(callback ResponseHandler) uint64 {
	c.mu.Lock()
	previous := c.logout
	hadPrevious := c.hasLogout
	c.seq++
	c.logout = callback
	c.logoutSeq = c.seq
	c.hasLogout = true
	id := c.logoutSeq
	c.mu.Unlock()

	if hadPrevious && previous != nil {
		previous(RedirectResponse{Superseded: true})
	}
	return id
}

// ResolveLogin removes and invokes the login callback registered for state.
// Unknown, forged, or duplicate states are dropped and false is returned.
func (c *RedirectCorrelator) ResolveLogin(state string, response RedirectResponse) bool {
	c.mu.Lock()
	p, ok := c.logins[state]
	if ok {
		delete(c.logins, state)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	p.callback(response)
	return true
}

// ResolveLogout invokes and clears the logout slot. Returns false when no
// logout is pending.
func (c *RedirectCorrelator) ResolveLogout(response RedirectResponse) bool {
	c.mu.Lock()
	callback := c.logout
	ok := c.hasLogout
	c.logout = nil
	c.hasLogout = false
	c.mu.Unlock()

	if !ok {
		return false
	}
	callback(response)
	return true
}

// CancelLogin abandons a pending login without invoking its callback.
func (c *RedirectCorrelator) CancelLogin(state string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.logins[state]; !ok {
		return false
	}
	delete(c.logins, state)
	return true
}

// CancelLogout abandons the pending logout if it is still the registration
// identified by id.
func (c *RedirectCorrelator) CancelLogout(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hasLogout || c.logoutSeq != id {
		return false
	}
	c.logout = nil
	c.hasLogout = false
	return true
}

// PendingLogins returns the number of logins awaiting a redirect.
func (c *RedirectCorrelator) PendingLogins() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.logins)
}

// HasPendingLogout reports whether a logout is awaiting its redirect.
func (c *RedirectCorrelator) HasPendingLogout() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasLogout
}
