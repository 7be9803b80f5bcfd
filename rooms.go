/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"crypto/rand"
	"time"
)

const (
	roomIDLength    = 8
	roomIDLetters   = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	collisionMarker = "e"
)

// TeamID names one of the two fixed teams of a room.
type TeamID string

const (
	TeamA TeamID = "A"
	TeamB TeamID = "B"
)

func parseTeam(s string) (TeamID, bool) {
	switch TeamID(s) {
	case TeamA:
		return TeamA, true
	case TeamB:
		return TeamB, true
	}

	return "", false
}

func (t TeamID) other() TeamID {
	if t == TeamA {
		return TeamB
	}

	return TeamA
}

type Team struct {
	Points  int
	Members []*User
}

// Room is one isolated game session. It is only touched from the gateway's
// task loop, so it carries no lock.
type Room struct {
	ID string

	users   map[string]*User
	teamA   *Team
	teamB   *Team
	prompts []Prompt

	roundInProgress bool
	currentPlayer   string

	createdAt  time.Time
	lastActive time.Time
}

func (r *Room) team(id TeamID) *Team {
	switch id {
	case TeamA:
		return r.teamA
	case TeamB:
		return r.teamB
	}

	return nil
}

func (r *Room) UserCount() int {
	return len(r.users)
}

func (r *Room) RoundInProgress() bool {
	return r.roundInProgress
}

func (r *Room) CurrentPlayer() string {
	return r.currentPlayer
}

// TeamView is the wire form of a team.
type TeamView struct {
	Points  int    `json:"points"`
	Members []User `json:"members"`
}

// TeamsView is the room-users snapshot sent to every subscriber.
type TeamsView struct {
	A TeamView `json:"A"`
	B TeamView `json:"B"`
}

func (t *Team) view() TeamView {
	members := make([]User, 0, len(t.Members))
	for _, u := range t.Members {
		members = append(members, *u)
	}

	return TeamView{
		Points:  t.Points,
		Members: members,
	}
}

// Teams returns a copy of both teams that is safe to hand to writers.
func (r *Room) Teams() TeamsView {
	return TeamsView{
		A: r.teamA.view(),
		B: r.teamB.view(),
	}
}

// RoomStore owns every live room, keyed by id.
type RoomStore struct {
	rooms map[string]*Room
	now   func() time.Time
}

func newRoomStore(now func() time.Time) *RoomStore {
	if now == nil {
		now = time.Now
	}

	return &RoomStore{
		rooms: make(map[string]*Room),
		now:   now,
	}
}

// Create inserts a fresh room under id. An existing room with the same id is
// replaced; callers pick the id with UniqueID first.
func (s *RoomStore) Create(id string) *Room {
	now := s.now()

	room := &Room{
		ID:         id,
		users:      make(map[string]*User),
		teamA:      &Team{},
		teamB:      &Team{},
		prompts:    []Prompt{},
		createdAt:  now,
		lastActive: now,
	}
	s.rooms[id] = room

	return room
}

func (s *RoomStore) Find(id string) (*Room, bool) {
	room, ok := s.rooms[id]

	return room, ok
}

func (s *RoomStore) Exists(id string) bool {
	_, ok := s.rooms[id]

	return ok
}

func (s *RoomStore) Delete(id string) {
	delete(s.rooms, id)
}

func (s *RoomStore) Len() int {
	return len(s.rooms)
}

// Touch marks the room as active now.
func (s *RoomStore) Touch(id string) {
	if room, ok := s.rooms[id]; ok {
		room.lastActive = s.now()
	}
}

// Idle lists rooms with no activity since cutoff.
func (s *RoomStore) Idle(cutoff time.Time) []string {
	var ids []string

	for id, room := range s.rooms {
		if room.lastActive.Before(cutoff) {
			ids = append(ids, id)
		}
	}

	return ids
}

// UniqueID returns an id that is not in use. An empty request gets a random
// id; a taken one has the collision marker appended until it is free.
func (s *RoomStore) UniqueID(requested string) string {
	if requested == "" {
		for {
			id := randomRoomID()
			if id != "" && !s.Exists(id) {
				return id
			}
		}
	}

	id := requested
	for s.Exists(id) {
		id += collisionMarker
	}

	return id
}

func randomRoomID() string {
	buf := make([]byte, roomIDLength)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}

	out := make([]byte, roomIDLength)
	for i := range out {
		out[i] = roomIDLetters[int(buf[i])%len(roomIDLetters)]
	}

	return string(out)
}
