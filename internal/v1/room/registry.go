// Package room implements the room directory, per-room broadcast and the
// per-room user registry that the session aggregator joins/leaves against.
package room

// SessionAndUser pairs a connection's SessionId with its logical UserId.
// It is carried on every join, leave and broadcast send so a room can
// de-duplicate participation notifications across multiple sessions of the
// same user.
type SessionAndUser struct {
	SessionID string
	UserID    string
}

// UserRegistry tracks, for one room, which UserIds currently have at least
// one active session present. It has no lock of its own: callers (the
// owning Room) must already hold exclusive access for the duration of a
// mutation, so that the derived unique-user view is never observed
// mid-update.
type UserRegistry struct {
	sessionsByUser map[string]map[string]struct{}
}

// NewUserRegistry returns an empty registry.
func NewUserRegistry() *UserRegistry {
	return &UserRegistry{sessionsByUser: make(map[string]map[string]struct{})}
}

// Insert adds su.SessionID to the set for su.UserID, creating the set if
// absent. It reports isNewUser true iff the set transitioned from empty
// (or missing) to non-empty.
func (reg *UserRegistry) Insert(su SessionAndUser) (isNewUser bool) {
	sessions, ok := reg.sessionsByUser[su.UserID]
	if !ok {
		sessions = make(map[string]struct{})
		reg.sessionsByUser[su.UserID] = sessions
	}
	isNewUser = len(sessions) == 0
	sessions[su.SessionID] = struct{}{}
	return isNewUser
}

// Remove deletes su.SessionID from the set for su.UserID. It reports
// wasLastSession true iff the set became empty as a result, in which case
// the UserID entry is discarded entirely. Removing an absent SessionID is a
// no-op and reports false.
func (reg *UserRegistry) Remove(su SessionAndUser) (wasLastSession bool) {
	sessions, ok := reg.sessionsByUser[su.UserID]
	if !ok {
		return false
	}
	if _, present := sessions[su.SessionID]; !present {
		return false
	}
	delete(sessions, su.SessionID)
	if len(sessions) == 0 {
		delete(reg.sessionsByUser, su.UserID)
		return true
	}
	return false
}

// UniqueUserIDs returns a snapshot of the UserIds with a non-empty session
// set. Order is unspecified.
func (reg *UserRegistry) UniqueUserIDs() []string {
	ids := make([]string, 0, len(reg.sessionsByUser))
	for userID := range reg.sessionsByUser {
		ids = append(ids, userID)
	}
	return ids
}

// Len reports the number of unique users, for the participants gauge.
func (reg *UserRegistry) Len() int {
	return len(reg.sessionsByUser)
}
