package models

// SessionRecordName is the name of the single persisted session record.
const SessionRecordName = "whobought-storage"

// Session is the persisted client state. A nil field means "absent".
type Session struct {
	User        *User  `json:"user"`
	ActiveGroup *Group `json:"activeGroup"`
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	return &Session{
		User:        s.User.Clone(),
		ActiveGroup: s.ActiveGroup.Clone(),
	}
}

// Empty reports whether the session holds neither a user nor a group.
func (s *Session) Empty() bool {
	return s == nil || (s.User == nil && s.ActiveGroup == nil)
}
