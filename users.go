/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

// User is one live connection's identity inside a room.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Room     string `json:"room"`
}

// UserRegistry maps connection ids to users. It holds no game rules.
type UserRegistry struct {
	users map[string]*User
}

func newUserRegistry() *UserRegistry {
	return &UserRegistry{
		users: make(map[string]*User),
	}
}

// Join records connID as username in roomID, replacing any previous entry.
func (r *UserRegistry) Join(connID, username, roomID string) *User {
	u := &User{
		ID:       connID,
		Username: username,
		Room:     roomID,
	}
	r.users[connID] = u

	return u
}

func (r *UserRegistry) Get(connID string) (*User, bool) {
	u, ok := r.users[connID]

	return u, ok
}

func (r *UserRegistry) Leave(connID string) {
	delete(r.users, connID)
}

func (r *UserRegistry) Len() int {
	return len(r.users)
}
