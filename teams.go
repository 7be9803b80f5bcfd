/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"slices"
)

// JoinTeam adds u to the room and to whichever team has fewer or equal
// members, preferring team A on a tie.
func (s *RoomStore) JoinTeam(room *Room, u *User) TeamID {
	id := TeamA
	if len(room.teamB.Members) < len(room.teamA.Members) {
		id = TeamB
	}

	t := room.team(id)
	t.Members = append(t.Members, u)
	room.users[u.ID] = u
	room.lastActive = s.now()

	return id
}

// TeamOf reports which team holds connID, scanning A before B.
func (r *Room) TeamOf(connID string) (TeamID, bool) {
	for _, id := range []TeamID{TeamA, TeamB} {
		if memberIndex(r.team(id), connID) >= 0 {
			return id, true
		}
	}

	return "", false
}

// LeaveTeam removes connID from its team and from the room. When the room
// has no users left it is deleted from the store and emptied is true.
func (s *RoomStore) LeaveTeam(room *Room, connID string) (emptied bool, err error) {
	if id, ok := room.TeamOf(connID); ok {
		t := room.team(id)
		i := memberIndex(t, connID)
		t.Members = slices.Delete(t.Members, i, i+1)
	} else if _, present := room.users[connID]; !present {
		return false, fmt.Errorf("%w: %s in %s", ErrNotMember, connID, room.ID)
	}

	delete(room.users, connID)
	room.lastActive = s.now()

	if len(room.users) == 0 {
		s.Delete(room.ID)

		return true, nil
	}

	return false, nil
}

// ChangeTeam moves connID from current to the other team. It does nothing
// unless connID is a member of current.
func (s *RoomStore) ChangeTeam(room *Room, connID string, current TeamID) error {
	from := room.team(current)
	if from == nil {
		return fmt.Errorf("%w: %q", ErrUnknownTeam, current)
	}

	i := memberIndex(from, connID)
	if i < 0 {
		return fmt.Errorf("%w: %s not in team %s", ErrNotMember, connID, current)
	}

	u := from.Members[i]
	from.Members = slices.Delete(from.Members, i, i+1)

	to := room.team(current.other())
	to.Members = append(to.Members, u)
	room.lastActive = s.now()

	return nil
}

func memberIndex(t *Team, connID string) int {
	return slices.IndexFunc(t.Members, func(u *User) bool {
		return u.ID == connID
	})
}
