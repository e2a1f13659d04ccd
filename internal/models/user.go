package models

import "slices"

// User represents the authenticated account.
type User struct {
	// ID is the opaque account id assigned by the server. It never changes.
	ID string `json:"id"`

	// Name is the display name of the user.
	Name string `json:"name"`

	// Email is the user's email address.
	Email string `json:"email"`

	// GroupIDs lists the groups the user belongs to, without duplicates.
	GroupIDs []string `json:"groupsIds"`
}

// HasGroup reports whether groupID is one of the user's groups.
func (u *User) HasGroup(groupID string) bool {
	if u == nil {
		return false
	}
	return slices.Contains(u.GroupIDs, groupID)
}

// Clone returns a deep copy of the user with duplicate group ids removed.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.GroupIDs = dedupe(u.GroupIDs)
	return &c
}

func dedupe(ids []string) []string {
	if ids == nil {
		return nil
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
